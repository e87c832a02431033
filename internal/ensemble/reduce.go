// Package ensemble collapses per-member forecast values at a fixed
// (source, valid time, location, variable) into summary statistics using
// Welford's streaming accumulation, which stays numerically stable on large
// ensembles where naive sum-of-squares cancels catastrophically.
package ensemble

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/windrose-labs/wxbench/internal/model"
)

// HeterogeneousInputError reports records with mismatched grouping keys fed
// to one reduction. This is a caller bug, not a data-quality condition: it is
// never retried and never tolerated.
type HeterogeneousInputError struct {
	Field string
	Want  string
	Got   string
}

func (e *HeterogeneousInputError) Error() string {
	return fmt.Sprintf("ensemble: heterogeneous input: %s %q does not match %q", e.Field, e.Got, e.Want)
}

// IsHeterogeneousInput reports whether err wraps a HeterogeneousInputError.
func IsHeterogeneousInput(err error) bool {
	var e *HeterogeneousInputError
	return errors.As(err, &e)
}

// Accumulator reduces a stream of member records one at a time. The first
// record fixes the grouping key; every later record must match it. The zero
// value is ready to use.
type Accumulator struct {
	keyed     bool
	source    model.SourceID
	validTime time.Time
	location  model.GeoPoint
	variable  model.Variable

	n    int
	mean float64
	m2   float64
	min  float64
	max  float64
}

// Add folds one member record into the running statistics.
func (a *Accumulator) Add(rec model.ForecastRecord) error {
	if !a.keyed {
		a.keyed = true
		a.source = rec.Source
		a.validTime = rec.ValidTime
		a.location = rec.Location
		a.variable = rec.Variable
	} else if err := a.checkKey(rec); err != nil {
		return err
	}

	a.n++
	delta := rec.Value - a.mean
	a.mean += delta / float64(a.n)
	a.m2 += delta * (rec.Value - a.mean)

	if a.n == 1 || rec.Value < a.min {
		a.min = rec.Value
	}
	if a.n == 1 || rec.Value > a.max {
		a.max = rec.Value
	}
	return nil
}

func (a *Accumulator) checkKey(rec model.ForecastRecord) error {
	switch {
	case rec.Source != a.source:
		return &HeterogeneousInputError{Field: "source", Want: string(a.source), Got: string(rec.Source)}
	case !rec.ValidTime.Equal(a.validTime):
		return &HeterogeneousInputError{Field: "valid_time", Want: a.validTime.Format(time.RFC3339), Got: rec.ValidTime.Format(time.RFC3339)}
	case rec.Location != a.location:
		return &HeterogeneousInputError{Field: "location", Want: a.location.String(), Got: rec.Location.String()}
	case rec.Variable != a.variable:
		return &HeterogeneousInputError{Field: "variable", Want: string(a.variable), Got: string(rec.Variable)}
	}
	return nil
}

// Count returns the number of members folded in so far.
func (a *Accumulator) Count() int { return a.n }

// Summary finalizes the reduction. Sample standard deviation (n-1); nil, not
// zero, for a single member.
func (a *Accumulator) Summary() (model.EnsembleSummary, error) {
	if a.n == 0 {
		return model.EnsembleSummary{}, eris.New("ensemble: no records to reduce")
	}

	var stddev *float64
	if a.n > 1 {
		sd := math.Sqrt(a.m2 / float64(a.n-1))
		stddev = &sd
	}

	return model.EnsembleSummary{
		Source:      a.source,
		ValidTime:   a.validTime,
		Location:    a.location,
		Variable:    a.variable,
		Mean:        a.mean,
		StdDev:      stddev,
		MemberCount: a.n,
		Min:         a.min,
		Max:         a.max,
	}, nil
}

// Reduce collapses a complete slice of member records in one call.
func Reduce(records []model.ForecastRecord) (model.EnsembleSummary, error) {
	var acc Accumulator
	for _, rec := range records {
		if err := acc.Add(rec); err != nil {
			return model.EnsembleSummary{}, err
		}
	}
	return acc.Summary()
}

// ReduceSeries partitions records by valid time and reduces each group,
// returning summaries in ascending valid-time order. All records must share
// source, location, and variable; valid time is the one key allowed to vary.
func ReduceSeries(records []model.ForecastRecord) ([]model.EnsembleSummary, error) {
	if len(records) == 0 {
		return nil, nil
	}

	first := records[0]
	for _, rec := range records[1:] {
		switch {
		case rec.Source != first.Source:
			return nil, &HeterogeneousInputError{Field: "source", Want: string(first.Source), Got: string(rec.Source)}
		case rec.Location != first.Location:
			return nil, &HeterogeneousInputError{Field: "location", Want: first.Location.String(), Got: rec.Location.String()}
		case rec.Variable != first.Variable:
			return nil, &HeterogeneousInputError{Field: "variable", Want: string(first.Variable), Got: string(rec.Variable)}
		}
	}

	groups := make(map[int64]*Accumulator)
	var order []int64
	for _, rec := range records {
		key := rec.ValidTime.Unix()
		acc, ok := groups[key]
		if !ok {
			acc = &Accumulator{}
			groups[key] = acc
			order = append(order, key)
		}
		if err := acc.Add(rec); err != nil {
			return nil, err
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]model.EnsembleSummary, 0, len(order))
	for _, key := range order {
		summary, err := groups[key].Summary()
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}
