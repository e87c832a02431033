// Package skill sweeps the comparison engine across forecast lead days and
// aggregates absolute errors into accuracy bands, producing the headline
// "share of forecasts within X degrees" table per model and horizon.
package skill

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/windrose-labs/wxbench/internal/compare"
	"github.com/windrose-labs/wxbench/internal/model"
	"github.com/windrose-labs/wxbench/internal/units"
)

// DefaultDays is the deepest lead horizon swept when the request leaves it
// unset. Nine days matches the archive exports, which carry ten-day runs
// scored from one-day ahead onward.
const DefaultDays = 9

// Bands holds ascending absolute-error thresholds. Each error lands in
// exactly one bucket: the first threshold it does not exceed, or the
// overflow bucket past the last, so n thresholds define n+1 buckets.
type Bands struct {
	// Unit is the unit the thresholds were declared in; labels render in it.
	Unit units.Unit `json:"unit"`
	// Thresholds are the declared values, ascending, in Unit.
	Thresholds []float64 `json:"thresholds"`

	canonical []float64
}

// NewBands validates thresholds declared for a variable and precomputes
// their canonical deltas. The unit must measure the variable's dimension.
func NewBands(v model.Variable, unit units.Unit, thresholds []float64) (Bands, error) {
	if len(thresholds) == 0 {
		return Bands{}, eris.New("skill: at least one band threshold required")
	}
	b := Bands{Unit: unit, Thresholds: thresholds, canonical: make([]float64, len(thresholds))}
	prev := 0.0
	for i, th := range thresholds {
		if th <= prev {
			return Bands{}, eris.Errorf("skill: band thresholds must be positive and ascending, got %v", thresholds)
		}
		prev = th
		delta, err := units.ConvertDelta(th, unit, units.Canonical(v))
		if err != nil {
			return Bands{}, eris.Wrapf(err, "skill: band unit %s does not measure %s", unit, v)
		}
		b.canonical[i] = delta
	}
	return b, nil
}

// DefaultBands returns the standard temperature bands: 0.1, 0.5, 1.0 and
// 3.0 degrees Fahrenheit.
func DefaultBands() Bands {
	b, _ := NewBands(model.VarTemperature2m, units.Fahrenheit, []float64{0.1, 0.5, 1.0, 3.0})
	return b
}

// Buckets returns the bucket count, thresholds plus overflow.
func (b Bands) Buckets() int { return len(b.Thresholds) + 1 }

// Bucket places a canonical-unit absolute error. Boundary values belong to
// the band they close (err <= threshold).
func (b Bands) Bucket(absErr float64) int {
	for i, th := range b.canonical {
		if absErr <= th {
			return i
		}
	}
	return len(b.canonical)
}

// Labels names every bucket in the declared unit, e.g. "≤0.1°F",
// "0.1-0.5°F", ">3°F".
func (b Bands) Labels() []string {
	unit := units.Label(b.Unit)
	out := make([]string, 0, b.Buckets())
	for i, th := range b.Thresholds {
		s := strconv.FormatFloat(th, 'g', -1, 64)
		if i == 0 {
			out = append(out, "≤"+s+unit)
			continue
		}
		prev := strconv.FormatFloat(b.Thresholds[i-1], 'g', -1, 64)
		out = append(out, prev+"-"+s+unit)
	}
	last := strconv.FormatFloat(b.Thresholds[len(b.Thresholds)-1], 'g', -1, 64)
	return append(out, ">"+last+unit)
}

// DaySkill is one model's bucket shares at one lead horizon.
type DaySkill struct {
	LeadDay int       `json:"lead_day"`
	Samples int       `json:"samples"`
	Shares  []float64 `json:"shares"` // percent per bucket; zeros when no samples
}

// ModelSkill is one model's full sweep.
type ModelSkill struct {
	Model model.SourceID `json:"model"`
	Days  []DaySkill     `json:"days"`
}

// HorizonNote ties a per-model failure to the lead day it occurred on.
type HorizonNote struct {
	LeadDay int `json:"lead_day"`
	compare.FailureNote
}

// Table is the sweep outcome.
type Table struct {
	Target    model.GeoPoint `json:"target"`
	Variable  model.Variable `json:"variable"`
	Reference model.SourceID `json:"reference"`
	Bands     Bands          `json:"bands"`
	Models    []ModelSkill   `json:"models"`
	Notes     []HorizonNote  `json:"notes,omitempty"`
}

// Tracker accumulates bucket counts per model and lead day.
type Tracker struct {
	bands  Bands
	counts map[model.SourceID]map[int][]int
}

// NewTracker creates an empty tracker over the given bands.
func NewTracker(bands Bands) *Tracker {
	return &Tracker{bands: bands, counts: make(map[model.SourceID]map[int][]int)}
}

// Observe files one canonical absolute error under (model, lead day).
func (t *Tracker) Observe(id model.SourceID, leadDay int, absErr float64) {
	days, ok := t.counts[id]
	if !ok {
		days = make(map[int][]int)
		t.counts[id] = days
	}
	buckets, ok := days[leadDay]
	if !ok {
		buckets = make([]int, t.bands.Buckets())
		days[leadDay] = buckets
	}
	buckets[t.bands.Bucket(absErr)]++
}

// Day reports one model's shares at one horizon. A horizon with no samples
// yields zero shares, not an error.
func (t *Tracker) Day(id model.SourceID, leadDay int) DaySkill {
	out := DaySkill{LeadDay: leadDay, Shares: make([]float64, t.bands.Buckets())}
	buckets, ok := t.counts[id][leadDay]
	if !ok {
		return out
	}
	for _, n := range buckets {
		out.Samples += n
	}
	if out.Samples == 0 {
		return out
	}
	for i, n := range buckets {
		out.Shares[i] = float64(n) / float64(out.Samples) * 100
	}
	return out
}

// Comparer is the slice of the comparison engine the sweep needs.
type Comparer interface {
	Compare(ctx context.Context, req compare.Request) (*compare.Report, error)
	Reference() model.SourceID
}

// Request describes one sweep. From and To bound the issue dates; the valid
// window scored at lead day d is [From+d, To+d] so every horizon grades the
// same set of forecast runs.
type Request struct {
	Target     model.GeoPoint
	From       time.Time
	To         time.Time
	Models     []model.SourceID
	Variable   model.Variable
	Days       int   // horizons 1..Days; zero means DefaultDays
	MaxMembers int
	Bands      Bands // zero value means DefaultBands (temperature only)
}

// Sweep runs one comparison per lead day and aggregates the rows into an
// accuracy-band table. Any single horizon failing (reference outage, bad
// request) aborts the sweep; per-model failures become notes tagged with the
// horizon they happened on.
func Sweep(ctx context.Context, comp Comparer, req Request) (*Table, error) {
	days := req.Days
	if days == 0 {
		days = DefaultDays
	}
	if days < 0 {
		return nil, eris.New("skill: lead days cannot be negative")
	}

	bands := req.Bands
	if len(bands.Thresholds) == 0 {
		if req.Variable != model.VarTemperature2m {
			return nil, eris.Errorf("skill: no default bands for %s, declare thresholds", req.Variable)
		}
		bands = DefaultBands()
	} else if _, err := units.ConvertDelta(1, bands.Unit, units.Canonical(req.Variable)); err != nil {
		return nil, eris.Wrapf(err, "skill: band unit %s does not measure %s", bands.Unit, req.Variable)
	}

	table := &Table{
		Target:    req.Target,
		Variable:  req.Variable,
		Reference: comp.Reference(),
		Bands:     bands,
	}
	tracker := NewTracker(bands)

	zap.L().Info("skill: sweeping horizons",
		zap.String("variable", string(req.Variable)),
		zap.Int("days", days),
		zap.Int("models", len(req.Models)))

	for d := 1; d <= days; d++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report, err := comp.Compare(ctx, compare.Request{
			Target:     req.Target,
			From:       req.From.AddDate(0, 0, d),
			To:         req.To.AddDate(0, 0, d),
			Models:     req.Models,
			Variable:   req.Variable,
			Lead:       time.Duration(d) * 24 * time.Hour,
			MaxMembers: req.MaxMembers,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "skill: lead day %d", d)
		}
		for _, row := range report.Rows {
			tracker.Observe(row.Model, d, row.AbsError)
		}
		for _, note := range report.Notes {
			table.Notes = append(table.Notes, HorizonNote{LeadDay: d, FailureNote: note})
		}
		zap.L().Debug("skill: horizon scored",
			zap.Int("lead_day", d),
			zap.Int("rows", len(report.Rows)),
			zap.Int("dropped_models", len(report.Notes)))
	}

	for _, id := range uniqueModels(req.Models) {
		ms := ModelSkill{Model: id, Days: make([]DaySkill, 0, days)}
		for d := 1; d <= days; d++ {
			ms.Days = append(ms.Days, tracker.Day(id, d))
		}
		table.Models = append(table.Models, ms)
	}
	return table, nil
}

func uniqueModels(ids []model.SourceID) []model.SourceID {
	seen := make(map[model.SourceID]struct{}, len(ids))
	out := make([]model.SourceID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
