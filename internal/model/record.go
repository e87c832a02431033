package model

import "time"

// ForecastRecord is the normalized unit of data every adapter emits. Value is
// always in the variable's canonical SI unit regardless of the source's
// native unit; conversion happens at the adapter boundary, never downstream.
type ForecastRecord struct {
	Source    SourceID      `json:"source"`
	ValidTime time.Time     `json:"valid_time"`
	LeadTime  time.Duration `json:"lead_time"`
	Location  GeoPoint      `json:"location"`
	Variable  Variable      `json:"variable"`
	Value     float64       `json:"value"`
	Member    *int          `json:"member,omitempty"`
}

// EnsembleSummary condenses per-member records sharing (source, valid_time,
// location, variable). StdDev is nil, not zero, when MemberCount == 1.
type EnsembleSummary struct {
	Source      SourceID  `json:"source"`
	ValidTime   time.Time `json:"valid_time"`
	Location    GeoPoint  `json:"location"`
	Variable    Variable  `json:"variable"`
	Mean        float64   `json:"mean"`
	StdDev      *float64  `json:"stddev,omitempty"`
	MemberCount int       `json:"member_count"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
}

// ComparisonResult is one scored row per (location, valid_time, model).
// Reference always comes from the designated reference adapter at the exact
// same instant; rows with no reference observation are never emitted.
// Predicted, Reference, AbsError and Spread are in the canonical SI unit.
type ComparisonResult struct {
	Model       SourceID      `json:"model"`
	ValidTime   time.Time     `json:"valid_time"`
	LeadTime    time.Duration `json:"lead_time"`
	Predicted   float64       `json:"predicted"`
	Reference   float64       `json:"reference"`
	AbsError    float64       `json:"abs_error"`
	Location    GeoPoint      `json:"location"`
	MemberCount int           `json:"member_count"`
	Spread      *float64      `json:"spread,omitempty"`
}
