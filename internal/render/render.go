// Package render formats comparison reports and skill tables as fixed-width
// text, JSON, CSV, or XLSX. Values arrive in canonical SI units and are
// converted to the caller's presentation unit here, at the output boundary,
// and nowhere earlier.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/windrose-labs/wxbench/internal/compare"
	"github.com/windrose-labs/wxbench/internal/model"
	"github.com/windrose-labs/wxbench/internal/units"
)

// Format selects an output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
	FormatXLSX  Format = "xlsx"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatTable, FormatJSON, FormatCSV, FormatXLSX:
		return Format(s), nil
	}
	return "", eris.Errorf("render: unknown format %q", s)
}

// Renderer writes reports under one presentation unit system.
type Renderer struct {
	system  units.System
	printer *message.Printer
}

// New creates a renderer for the given unit system.
func New(sys units.System) *Renderer {
	return &Renderer{system: sys, printer: message.NewPrinter(language.English)}
}

// rowDoc is one presented comparison row, shared by the JSON, CSV, and XLSX
// encodings.
type rowDoc struct {
	ValidTime time.Time      `json:"valid_time"`
	Model     model.SourceID `json:"model"`
	LeadHours int            `json:"lead_hours"`
	Predicted float64        `json:"predicted"`
	Reference float64        `json:"reference"`
	AbsError  float64        `json:"abs_error"`
	Members   int            `json:"members"`
	Spread    *float64       `json:"spread,omitempty"`
}

type reportDoc struct {
	Target    model.GeoPoint                    `json:"target"`
	Variable  model.Variable                    `json:"variable"`
	From      time.Time                         `json:"from"`
	To        time.Time                         `json:"to"`
	LeadHours int                               `json:"lead_hours"`
	Reference model.SourceID                    `json:"reference"`
	Unit      string                            `json:"unit"`
	Cells     map[model.SourceID]model.GridCell `json:"cells,omitempty"`
	Rows      []rowDoc                          `json:"rows"`
	Notes     []compare.FailureNote             `json:"notes,omitempty"`
}

// present converts a report's canonical values into the renderer's unit.
func (r *Renderer) present(report *compare.Report) (reportDoc, units.Unit, error) {
	canonical := units.Canonical(report.Variable)
	unit := units.Presentation(report.Variable, r.system)

	doc := reportDoc{
		Target:    report.Target,
		Variable:  report.Variable,
		From:      report.From,
		To:        report.To,
		LeadHours: int(report.Lead.Hours()),
		Reference: report.Reference,
		Unit:      string(unit),
		Cells:     report.Cells,
		Rows:      make([]rowDoc, 0, len(report.Rows)),
		Notes:     report.Notes,
	}

	for _, row := range report.Rows {
		predicted, err := units.Convert(row.Predicted, canonical, unit)
		if err != nil {
			return reportDoc{}, "", eris.Wrap(err, "render: predicted")
		}
		reference, err := units.Convert(row.Reference, canonical, unit)
		if err != nil {
			return reportDoc{}, "", eris.Wrap(err, "render: reference")
		}
		absErr, err := units.ConvertDelta(row.AbsError, canonical, unit)
		if err != nil {
			return reportDoc{}, "", eris.Wrap(err, "render: abs error")
		}
		out := rowDoc{
			ValidTime: row.ValidTime,
			Model:     row.Model,
			LeadHours: int(row.LeadTime.Hours()),
			Predicted: predicted,
			Reference: reference,
			AbsError:  absErr,
			Members:   row.MemberCount,
		}
		if row.Spread != nil {
			spread, err := units.ConvertDelta(*row.Spread, canonical, unit)
			if err != nil {
				return reportDoc{}, "", eris.Wrap(err, "render: spread")
			}
			out.Spread = &spread
		}
		doc.Rows = append(doc.Rows, out)
	}
	return doc, unit, nil
}

// Report writes a comparison report in the requested format.
func (r *Renderer) Report(w io.Writer, report *compare.Report, format Format) error {
	doc, unit, err := r.present(report)
	if err != nil {
		return err
	}
	switch format {
	case FormatTable:
		return r.reportTable(w, doc, unit)
	case FormatJSON:
		return writeJSON(w, doc)
	case FormatCSV:
		return reportCSV(w, doc)
	case FormatXLSX:
		return reportXLSX(w, doc)
	}
	return eris.Errorf("render: unknown format %q", format)
}

func (r *Renderer) reportTable(w io.Writer, doc reportDoc, unit units.Unit) error {
	decimals := valueDecimals(unit)

	_, _ = fmt.Fprintf(w, "Forecast comparison: %s at (%.4f, %.4f)\n",
		doc.Variable, doc.Target.Lat, doc.Target.Lon)
	_, _ = fmt.Fprintf(w, "Reference: %s   Unit: %s   Lead: %dh   Window: %s .. %s\n\n",
		doc.Reference, units.Label(unit), doc.LeadHours,
		doc.From.Format(timeLayout), doc.To.Format(timeLayout))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "VALID_TIME\tMODEL\tPREDICTED\tREFERENCE\tABS_ERR\tMEMBERS\tSPREAD")
	_, _ = fmt.Fprintln(tw, "----------\t-----\t---------\t---------\t-------\t-------\t------")
	for _, row := range doc.Rows {
		spread := "-"
		if row.Spread != nil {
			spread = formatValue(*row.Spread, decimals)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			row.ValidTime.Format(timeLayout),
			row.Model,
			formatValue(row.Predicted, decimals),
			formatValue(row.Reference, decimals),
			formatValue(row.AbsError, decimals),
			row.Members,
			spread)
	}
	if err := tw.Flush(); err != nil {
		return eris.Wrap(err, "render: flush table")
	}

	_, _ = fmt.Fprintln(w)
	_, _ = r.printer.Fprintf(w, "Rows: %d\n", len(doc.Rows))
	if len(doc.Notes) > 0 {
		_, _ = fmt.Fprintln(w, "Skipped models:")
		for _, note := range doc.Notes {
			_, _ = fmt.Fprintf(w, "  - %s (%s): %s\n", note.Model, note.Stage, note.Reason)
		}
	}
	return nil
}

func reportCSV(w io.Writer, doc reportDoc) error {
	cw := csv.NewWriter(w)
	header := []string{"valid_time", "model", "lead_hours", "predicted", "reference", "abs_error", "members", "spread", "unit"}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "render: csv header")
	}
	for _, row := range doc.Rows {
		spread := ""
		if row.Spread != nil {
			spread = formatFloat(*row.Spread)
		}
		record := []string{
			row.ValidTime.Format(time.RFC3339),
			string(row.Model),
			strconv.Itoa(row.LeadHours),
			formatFloat(row.Predicted),
			formatFloat(row.Reference),
			formatFloat(row.AbsError),
			strconv.Itoa(row.Members),
			spread,
			doc.Unit,
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrap(err, "render: csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "render: csv flush")
}

func reportXLSX(w io.Writer, doc reportDoc) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("comparison")
	if err != nil {
		return eris.Wrap(err, "render: xlsx sheet")
	}

	header := sheet.AddRow()
	for _, name := range []string{"valid_time", "model", "lead_hours", "predicted", "reference", "abs_error", "members", "spread", "unit"} {
		header.AddCell().SetString(name)
	}
	for _, row := range doc.Rows {
		out := sheet.AddRow()
		out.AddCell().SetString(row.ValidTime.Format(time.RFC3339))
		out.AddCell().SetString(string(row.Model))
		out.AddCell().SetInt(row.LeadHours)
		out.AddCell().SetFloat(row.Predicted)
		out.AddCell().SetFloat(row.Reference)
		out.AddCell().SetFloat(row.AbsError)
		out.AddCell().SetInt(row.Members)
		if row.Spread != nil {
			out.AddCell().SetFloat(*row.Spread)
		} else {
			out.AddCell().SetString("")
		}
		out.AddCell().SetString(doc.Unit)
	}
	return eris.Wrap(file.Write(w), "render: xlsx write")
}

const timeLayout = "2006-01-02 15:04"

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "render: encode json")
}

// valueDecimals keeps tables readable per unit: SI precipitation in meters
// needs more places than a temperature.
func valueDecimals(unit units.Unit) int {
	if unit == units.Meters {
		return 4
	}
	return 1
}

func formatValue(v float64, decimals int) string {
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
