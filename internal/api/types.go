package api

import "github.com/roughmark/roughmark/pkg/types"

// RunResponse is one run in GET /api/v1/run and GET /api/v1/runs.
type RunResponse struct {
	RunID      string      `json:"run_id"`
	Phase      string      `json:"phase"`
	Workers    int         `json:"workers"`
	Items      int         `json:"items"`
	Dispatched int         `json:"dispatched"`
	Collected  int         `json:"collected"`
	Progress   float64     `json:"progress"`
	PerWorker  map[int]int `json:"per_worker"`
	StartedAt  string      `json:"started_at"`            // RFC3339
	FinishedAt string      `json:"finished_at,omitempty"` // RFC3339
	Error      string      `json:"error,omitempty"`
}

// ResultsResponse is the payload for GET /api/v1/results.
type ResultsResponse struct {
	RunID  string         `json:"run_id"`
	ByID   []types.Result `json:"by_id"`
	ByBand []BandGroup    `json:"by_band"`
}

// BandGroup is one contiguous run of equal final scores in score order.
type BandGroup struct {
	FinalScore float64 `json:"final_score"`
	IDs        []int   `json:"ids"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
