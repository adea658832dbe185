package api

import "github.com/maksimkurb/pbrsync/src/internal/pbrmap"

// DataResponse wraps successful responses with a "data" field.
type DataResponse struct {
	Data interface{} `json:"data"`
}

// PBRSummary counts rules by state.
type PBRSummary struct {
	Total     int `json:"total"`
	Installed int `json:"installed"`
	Failed    int `json:"failed"`
	Removing  int `json:"removing"`
}

// PBRResponse returns every managed rule.
type PBRResponse struct {
	Summary PBRSummary        `json:"summary"`
	Rules   []pbrmap.RuleView `json:"rules"`
}

// MapsResponse returns rules grouped by pbr map.
type MapsResponse struct {
	Maps []pbrmap.MapView `json:"maps"`
}

// InterfacesResponse returns rules grouped by interface.
type InterfacesResponse struct {
	Interfaces []pbrmap.InterfaceView `json:"interfaces"`
}

// HealthCheckResponse returns the health check results.
type HealthCheckResponse struct {
	Healthy bool                   `json:"healthy"`
	Checks  map[string]CheckResult `json:"checks"`
}

// CheckResult contains the result of a single check.
type CheckResult struct {
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}
