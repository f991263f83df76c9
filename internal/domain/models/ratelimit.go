package models

import "time"

// RateEndpoint names one of the per-endpoint sliding-window buckets
// configured in SPEC_FULL.md §4.2.
type RateEndpoint string

const (
	EndpointAnalyze    RateEndpoint = "analyze"
	EndpointLogin      RateEndpoint = "login"
	EndpointToolResult RateEndpoint = "tool_result"
	EndpointResume     RateEndpoint = "resume"
)

// RateLimitConfig is the per-endpoint request-per-minute ceiling.
var RateLimitConfig = map[RateEndpoint]int{
	EndpointAnalyze:    20,
	EndpointLogin:      10,
	EndpointToolResult: 60,
	EndpointResume:     60,
}

// RateWindow is the duration over which each endpoint's limit applies.
const RateWindow = time.Minute

// RateDecision is the result of a Rate Limiter admission check.
type RateDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
}
