package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/windrose-labs/wxbench/internal/archive"
	"github.com/windrose-labs/wxbench/internal/catalog"
	"github.com/windrose-labs/wxbench/internal/model"
)

// layout maps a catalog time encoding to the columns an export must carry.
type layout struct {
	encoding catalog.TimeEncoding
	required []string
	optional []string
}

func layoutFor(entry catalog.Source) (layout, error) {
	switch entry.TimeEncoding {
	case catalog.EncodingInitPlusLead:
		return layout{
			encoding: catalog.EncodingInitPlusLead,
			required: []string{"variable", "init_time", "lead_hours", "lat", "lon", "value"},
			optional: []string{"member"},
		}, nil
	case catalog.EncodingAbsolute:
		return layout{
			encoding: catalog.EncodingAbsolute,
			required: []string{"variable", "valid_time", "lat", "lon", "value"},
			optional: []string{"init_time", "member"},
		}, nil
	default:
		return layout{}, eris.Errorf("ingest: source %q declares unknown time encoding %q", entry.ID, entry.TimeEncoding)
	}
}

// columns maps header name to index for one bound file.
type columns map[string]int

// bind resolves the layout's columns against a file header.
func (l layout) bind(header []string) (columns, error) {
	cols := make(columns, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range l.required {
		if _, ok := cols[name]; !ok {
			return nil, eris.Errorf("missing required column %q for %s layout", name, l.encoding)
		}
	}
	return cols, nil
}

func (c columns) field(record []string, name string) (string, bool) {
	idx, ok := c[name]
	if !ok || idx >= len(record) {
		return "", false
	}
	return strings.TrimSpace(record[idx]), true
}

// parse converts one CSV record into an archive row, enforcing the source's
// member bounds and keeping the value in the catalog's native unit.
func (l layout) parse(cols columns, record []string, entry catalog.Source) (archive.ForecastRow, error) {
	row := archive.ForecastRow{Source: entry.ID, Unit: entry.NativeUnit}

	varName, _ := cols.field(record, "variable")
	variable, err := model.ParseVariable(varName)
	if err != nil {
		return row, err
	}
	row.Variable = variable

	if row.Lat, err = parseFloat(cols, record, "lat"); err != nil {
		return row, err
	}
	if row.Lon, err = parseFloat(cols, record, "lon"); err != nil {
		return row, err
	}
	if row.Value, err = parseFloat(cols, record, "value"); err != nil {
		return row, err
	}
	if err := (model.GeoPoint{Lat: row.Lat, Lon: row.Lon}).Validate(); err != nil {
		return row, err
	}

	switch l.encoding {
	case catalog.EncodingInitPlusLead:
		init, err := parseTime(cols, record, "init_time")
		if err != nil {
			return row, err
		}
		lead, err := parseInt(cols, record, "lead_hours")
		if err != nil {
			return row, err
		}
		if lead < 0 {
			return row, eris.Errorf("negative lead_hours %d", lead)
		}
		row.InitTime = init
		row.LeadHours = lead
		row.ValidTime = init.Add(time.Duration(lead) * time.Hour)

	case catalog.EncodingAbsolute:
		valid, err := parseTime(cols, record, "valid_time")
		if err != nil {
			return row, err
		}
		row.ValidTime = valid
		if raw, ok := cols.field(record, "init_time"); ok && raw != "" {
			init, err := parseTime(cols, record, "init_time")
			if err != nil {
				return row, err
			}
			if init.After(valid) {
				return row, eris.Errorf("init_time %s after valid_time %s", init.Format(time.RFC3339), valid.Format(time.RFC3339))
			}
			row.InitTime = init
			row.LeadHours = int(valid.Sub(init) / time.Hour)
		} else {
			row.InitTime = valid
		}
	}

	if raw, ok := cols.field(record, "member"); ok && raw != "" {
		member, err := strconv.Atoi(raw)
		if err != nil {
			return row, eris.Wrapf(err, "parse member %q", raw)
		}
		if member < 0 || member >= max(entry.EnsembleMembers, 1) {
			return row, eris.Errorf("member %d out of range [0, %d) for %s", member, entry.EnsembleMembers, entry.ID)
		}
		row.Member = &member
	}

	return row, nil
}

// timeFormats are the valid-time encodings seen across export tooling.
var timeFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTime(cols columns, record []string, name string) (time.Time, error) {
	raw, ok := cols.field(record, name)
	if !ok || raw == "" {
		return time.Time{}, eris.Errorf("empty %s", name)
	}
	for _, f := range timeFormats {
		if t, err := time.Parse(f, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("unparseable %s %q", name, raw)
}

func parseFloat(cols columns, record []string, name string) (float64, error) {
	raw, ok := cols.field(record, name)
	if !ok || raw == "" {
		return 0, eris.Errorf("empty %s", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "parse %s %q", name, raw)
	}
	return v, nil
}

func parseInt(cols columns, record []string, name string) (int, error) {
	raw, ok := cols.field(record, name)
	if !ok || raw == "" {
		return 0, eris.Errorf("empty %s", name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, eris.Wrapf(err, "parse %s %q", name, raw)
	}
	return v, nil
}
