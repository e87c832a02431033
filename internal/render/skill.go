package render

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/windrose-labs/wxbench/internal/skill"
)

// SkillTable writes an accuracy-band sweep in the requested format. Shares
// are percentages and need no unit conversion; band labels carry the unit
// they were declared in.
func (r *Renderer) SkillTable(w io.Writer, table *skill.Table, format Format) error {
	switch format {
	case FormatTable:
		return r.skillText(w, table)
	case FormatJSON:
		return writeJSON(w, table)
	case FormatCSV:
		return skillCSV(w, table)
	case FormatXLSX:
		return skillXLSX(w, table)
	}
	return eris.Errorf("render: unknown format %q", format)
}

func (r *Renderer) skillText(w io.Writer, table *skill.Table) error {
	labels := table.Bands.Labels()

	_, _ = fmt.Fprintf(w, "Accuracy by lead time: %s at (%.4f, %.4f)\n",
		table.Variable, table.Target.Lat, table.Target.Lon)
	_, _ = fmt.Fprintf(w, "Reference: %s\n", table.Reference)

	for _, ms := range table.Models {
		_, _ = fmt.Fprintf(w, "\n%s\n", strings.ToUpper(string(ms.Model)))

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(tw, "LEAD\t%s\tSAMPLES\n", strings.Join(labels, "\t"))
		_, _ = fmt.Fprintf(tw, "----\t%s\t-------\n", dashes(labels))
		for _, day := range ms.Days {
			cells := make([]string, 0, len(day.Shares))
			for _, share := range day.Shares {
				cells = append(cells, strconv.FormatFloat(share, 'f', 1, 64)+"%")
			}
			_, _ = fmt.Fprintf(tw, "%d-day ahead\t%s\t%d\n",
				day.LeadDay, strings.Join(cells, "\t"), day.Samples)
		}
		if err := tw.Flush(); err != nil {
			return eris.Wrap(err, "render: flush skill table")
		}
	}

	totalSamples := 0
	for _, ms := range table.Models {
		for _, day := range ms.Days {
			totalSamples += day.Samples
		}
	}
	_, _ = fmt.Fprintln(w)
	_, _ = r.printer.Fprintf(w, "Scored forecasts: %d\n", totalSamples)

	if len(table.Notes) > 0 {
		_, _ = fmt.Fprintln(w, "Skipped:")
		for _, note := range table.Notes {
			_, _ = fmt.Fprintf(w, "  - day %d %s (%s): %s\n", note.LeadDay, note.Model, note.Stage, note.Reason)
		}
	}
	return nil
}

func skillCSV(w io.Writer, table *skill.Table) error {
	cw := csv.NewWriter(w)
	header := append([]string{"model", "lead_day", "samples"}, table.Bands.Labels()...)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "render: csv header")
	}
	for _, ms := range table.Models {
		for _, day := range ms.Days {
			record := []string{string(ms.Model), strconv.Itoa(day.LeadDay), strconv.Itoa(day.Samples)}
			for _, share := range day.Shares {
				record = append(record, strconv.FormatFloat(share, 'f', 1, 64))
			}
			if err := cw.Write(record); err != nil {
				return eris.Wrap(err, "render: csv row")
			}
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "render: csv flush")
}

func skillXLSX(w io.Writer, table *skill.Table) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("skill")
	if err != nil {
		return eris.Wrap(err, "render: xlsx sheet")
	}

	header := sheet.AddRow()
	header.AddCell().SetString("model")
	header.AddCell().SetString("lead_day")
	header.AddCell().SetString("samples")
	for _, label := range table.Bands.Labels() {
		header.AddCell().SetString(label)
	}
	for _, ms := range table.Models {
		for _, day := range ms.Days {
			row := sheet.AddRow()
			row.AddCell().SetString(string(ms.Model))
			row.AddCell().SetInt(day.LeadDay)
			row.AddCell().SetInt(day.Samples)
			for _, share := range day.Shares {
				row.AddCell().SetFloat(share)
			}
		}
	}
	return eris.Wrap(file.Write(w), "render: xlsx write")
}

func dashes(labels []string) string {
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		out = append(out, strings.Repeat("-", utf8.RuneCountInString(label)))
	}
	return strings.Join(out, "\t")
}
