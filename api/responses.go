package api

import "github.com/xraph/bastion"

// CheckResponse is the response for an authorization check.
type CheckResponse struct {
	Allowed    bool                 `json:"allowed" description:"Whether the request is allowed"`
	Decision   string               `json:"decision" description:"Decision code"`
	Reason     string               `json:"reason,omitempty" description:"Human-readable reason"`
	Trace      []bastion.TraceEntry `json:"trace,omitempty" description:"Rules that shaped the decision (administrators only)"`
	Cached     bool                 `json:"cached,omitempty" description:"Served from the decision cache"`
	EvalTimeNs int64                `json:"eval_time_ns" description:"Evaluation time in nanoseconds"`
}

// BatchCheckResponse contains results for multiple checks.
type BatchCheckResponse struct {
	Results []CheckResponse `json:"results" description:"Check results in order"`
}

// ListResponse wraps a list of items with pagination metadata.
type ListResponse[T any] struct {
	Items  []T   `json:"items" description:"List of items"`
	Total  int64 `json:"total" description:"Total count"`
	Limit  int   `json:"limit" description:"Page size"`
	Offset int   `json:"offset" description:"Page offset"`
}
