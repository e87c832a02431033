// Package compare runs the verification workflow: fetch the reference and
// every requested model concurrently for one target location, collapse
// ensembles, and score each model instant against the reference truth.
package compare

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/windrose-labs/wxbench/internal/catalog"
	"github.com/windrose-labs/wxbench/internal/ensemble"
	"github.com/windrose-labs/wxbench/internal/grid"
	"github.com/windrose-labs/wxbench/internal/model"
	"github.com/windrose-labs/wxbench/internal/resilience"
	"github.com/windrose-labs/wxbench/internal/source"
)

const defaultMaxConcurrent = 4

// Stage names the phase of the per-model pipeline where a failure occurred.
type Stage string

const (
	StageLocate Stage = "locate"
	StageFetch  Stage = "fetch"
	StageReduce Stage = "reduce"
)

// FailureNote records why one model was dropped from a report. The model is
// skipped; the comparison proceeds with whatever else succeeded.
type FailureNote struct {
	Model  model.SourceID `json:"model"`
	Stage  Stage          `json:"stage"`
	Reason string         `json:"reason"`
}

// Request describes one comparison: which models to score against the
// reference, where, over which valid-time window, and at which lead horizon.
type Request struct {
	Target   model.GeoPoint
	From     time.Time
	To       time.Time
	Models   []model.SourceID
	Variable model.Variable

	// Lead selects the forecast generation: records issued Lead before
	// their valid time. Must be positive; mixing generations at one
	// instant would corrupt the ensemble statistics.
	Lead time.Duration

	// MaxMembers caps ensemble members per valid time. Zero means each
	// source's declared ensemble size.
	MaxMembers int
}

// Report is the outcome of one comparison. Rows hold only instants where
// both the model and the reference produced a value; Notes explain every
// model that was requested but dropped.
type Report struct {
	Target    model.GeoPoint                     `json:"target"`
	Variable  model.Variable                     `json:"variable"`
	From      time.Time                          `json:"from"`
	To        time.Time                          `json:"to"`
	Lead      time.Duration                      `json:"lead"`
	Reference model.SourceID                     `json:"reference"`
	Cells     map[model.SourceID]model.GridCell `json:"cells"`
	Rows      []model.ComparisonResult           `json:"rows"`
	Notes     []FailureNote                      `json:"notes,omitempty"`
}

// Engine coordinates comparison runs over the registered adapters.
type Engine struct {
	registry  *source.Registry
	catalog   *catalog.Catalog
	reference model.SourceID
	limit     int
}

// Option configures an Engine.
type Option func(*Engine)

// WithReference overrides the source scored as ground truth.
func WithReference(id model.SourceID) Option {
	return func(e *Engine) { e.reference = id }
}

// WithMaxConcurrent bounds simultaneous source fetches.
func WithMaxConcurrent(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.limit = n
		}
	}
}

// New creates an engine over the given adapters and catalog.
func New(reg *source.Registry, cat *catalog.Catalog, opts ...Option) *Engine {
	e := &Engine{
		registry:  reg,
		catalog:   cat,
		reference: model.SourceERA5,
		limit:     defaultMaxConcurrent,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reference returns the source currently scored as ground truth.
func (e *Engine) Reference() model.SourceID { return e.reference }

// located is a model that survived validation and cell resolution.
type located struct {
	id      model.SourceID
	adapter source.Adapter
	cell    model.GridCell
}

// modelOutcome is the result slot for one model's fetch goroutine. Exactly
// one of records or note is populated.
type modelOutcome struct {
	records []model.ForecastRecord
	note    *FailureNote
}

// Compare fetches the reference and every requested model, reduces ensembles
// per valid time, and scores overlapping instants. A reference failure fails
// the whole comparison; a model failure becomes a FailureNote.
func (e *Engine) Compare(ctx context.Context, req Request) (*Report, error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}

	report := &Report{
		Target:    req.Target,
		Variable:  req.Variable,
		From:      req.From.UTC(),
		To:        req.To.UTC(),
		Lead:      req.Lead,
		Reference: e.reference,
		Cells:     make(map[model.SourceID]model.GridCell),
		Rows:      []model.ComparisonResult{},
	}

	refAdapter := e.registry.Get(e.reference)
	refCell, err := grid.Locate(req.Target, refAdapter.GridSpec())
	if err != nil {
		return nil, eris.Wrapf(err, "compare: locate reference %s", e.reference)
	}
	report.Cells[e.reference] = refCell

	// Cell resolution is pure arithmetic; only fetches need the errgroup.
	var active []located
	for _, id := range dedupe(req.Models) {
		adapter := e.registry.Get(id)
		cell, err := grid.Locate(req.Target, adapter.GridSpec())
		if err != nil {
			report.Notes = append(report.Notes, FailureNote{Model: id, Stage: StageLocate, Reason: err.Error()})
			continue
		}
		report.Cells[id] = cell
		active = append(active, located{id: id, adapter: adapter, cell: cell})
	}

	zap.L().Info("compare: fetching sources",
		zap.String("variable", string(req.Variable)),
		zap.String("target", req.Target.String()),
		zap.Int("models", len(active)),
		zap.String("reference", string(e.reference)))

	var refRecords []model.ForecastRecord
	outcomes := make([]modelOutcome, len(active))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)

	g.Go(func() error {
		records, err := e.fetchSource(gCtx, refAdapter, refCell, req)
		if err != nil {
			return eris.Wrapf(err, "compare: reference %s fetch", e.reference)
		}
		refRecords = records
		return nil
	})

	for i, loc := range active {
		g.Go(func() error {
			records, err := e.fetchSource(gCtx, loc.adapter, loc.cell, req)
			if err != nil {
				// The group context dying means the reference failed
				// or the caller cancelled; either way the comparison
				// is over, so propagate instead of noting.
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				zap.L().Warn("compare: model fetch failed",
					zap.String("model", string(loc.id)),
					zap.Error(err))
				outcomes[i].note = &FailureNote{Model: loc.id, Stage: StageFetch, Reason: err.Error()}
				return nil
			}
			outcomes[i].records = records
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	refSummaries, err := ensemble.ReduceSeries(refRecords)
	if err != nil {
		return nil, eris.Wrapf(err, "compare: reduce reference %s", e.reference)
	}
	refByTime := make(map[int64]float64, len(refSummaries))
	for _, s := range refSummaries {
		refByTime[s.ValidTime.Unix()] = s.Mean
	}

	for i, loc := range active {
		if note := outcomes[i].note; note != nil {
			report.Notes = append(report.Notes, *note)
			continue
		}
		rows, err := scoreModel(loc.id, outcomes[i].records, refByTime)
		if err != nil {
			// Mixed grouping keys mean an adapter broke its output
			// contract; that is a caller bug, not a model outage.
			if ensemble.IsHeterogeneousInput(err) {
				return nil, eris.Wrapf(err, "compare: reduce %s", loc.id)
			}
			zap.L().Warn("compare: model reduce failed",
				zap.String("model", string(loc.id)),
				zap.Error(err))
			report.Notes = append(report.Notes, FailureNote{Model: loc.id, Stage: StageReduce, Reason: err.Error()})
			continue
		}
		report.Rows = append(report.Rows, rows...)
	}

	sort.Slice(report.Rows, func(i, j int) bool {
		a, b := report.Rows[i], report.Rows[j]
		if !a.ValidTime.Equal(b.ValidTime) {
			return a.ValidTime.Before(b.ValidTime)
		}
		return a.Model < b.Model
	})

	zap.L().Info("compare: complete",
		zap.Int("rows", len(report.Rows)),
		zap.Int("reference_instants", len(refByTime)),
		zap.Int("dropped_models", len(report.Notes)))

	return report, nil
}

func (e *Engine) validate(req Request) error {
	if err := req.Target.Validate(); err != nil {
		return eris.Wrap(err, "compare: target")
	}
	if req.From.IsZero() || req.To.IsZero() {
		return eris.New("compare: valid-time range required")
	}
	if req.From.After(req.To) {
		return eris.Errorf("compare: range start %s is after end %s",
			req.From.Format(time.RFC3339), req.To.Format(time.RFC3339))
	}
	if req.Lead <= 0 {
		return eris.New("compare: lead horizon must be positive")
	}
	if req.MaxMembers < 0 {
		return eris.New("compare: max members cannot be negative")
	}
	if len(req.Models) == 0 {
		return eris.New("compare: at least one model required")
	}
	if e.registry.Get(e.reference) == nil {
		return eris.Errorf("compare: reference %q not registered", e.reference)
	}
	if _, ok := e.catalog.Get(e.reference); !ok {
		return eris.Errorf("compare: reference %q missing from catalog", e.reference)
	}
	for _, id := range req.Models {
		if id == e.reference {
			return eris.Errorf("compare: reference %q cannot be scored against itself", id)
		}
		if e.registry.Get(id) == nil {
			return eris.Errorf("compare: unknown model %q", id)
		}
		if _, ok := e.catalog.Get(id); !ok {
			return eris.Errorf("compare: model %q missing from catalog", id)
		}
	}
	return nil
}

// fetchSource pulls one source's records with the catalog's per-source
// timeout and retry budget. Timeouts under a live parent context count as
// transient so the retry loop gets another attempt.
func (e *Engine) fetchSource(ctx context.Context, adapter source.Adapter, cell model.GridCell, req Request) ([]model.ForecastRecord, error) {
	entry, _ := e.catalog.Get(adapter.ModelID())

	cfg := resilience.RetryConfig{
		MaxAttempts: entry.RetryAttempts,
		ShouldRetry: source.IsUnavailable,
		OnRetry:     resilience.RetryLogger(string(adapter.ModelID()), "fetch_forecast"),
	}

	timeout := entry.Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]model.ForecastRecord, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		it, err := adapter.FetchForecast(fetchCtx, source.FetchRequest{
			Cell:       cell,
			From:       req.From,
			To:         req.To,
			Variable:   req.Variable,
			Lead:       req.Lead,
			MaxMembers: req.MaxMembers,
		})
		if err == nil {
			var records []model.ForecastRecord
			records, err = source.Collect(fetchCtx, it)
			if err == nil {
				return records, nil
			}
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &source.UnavailableError{Source: adapter.ModelID(), Err: err}
		}
		return nil, err
	})
}

// scoreModel reduces one model's records per valid time and joins them to
// the reference. Instants the reference lacks are dropped, not errors.
func scoreModel(id model.SourceID, records []model.ForecastRecord, refByTime map[int64]float64) ([]model.ComparisonResult, error) {
	summaries, err := ensemble.ReduceSeries(records)
	if err != nil {
		return nil, err
	}

	leadByTime := make(map[int64]time.Duration, len(records))
	for _, rec := range records {
		key := rec.ValidTime.Unix()
		if _, ok := leadByTime[key]; !ok {
			leadByTime[key] = rec.LeadTime
		}
	}

	rows := make([]model.ComparisonResult, 0, len(summaries))
	for _, s := range summaries {
		ref, ok := refByTime[s.ValidTime.Unix()]
		if !ok {
			continue
		}
		rows = append(rows, model.ComparisonResult{
			Model:       id,
			ValidTime:   s.ValidTime,
			LeadTime:    leadByTime[s.ValidTime.Unix()],
			Predicted:   s.Mean,
			Reference:   ref,
			AbsError:    math.Abs(s.Mean - ref),
			Location:    s.Location,
			MemberCount: s.MemberCount,
			Spread:      s.StdDev,
		})
	}
	return rows, nil
}

func dedupe(ids []model.SourceID) []model.SourceID {
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
