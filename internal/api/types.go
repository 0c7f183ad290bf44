package api

import (
	"encoding/json"
	"time"
)

// --- POST /v1/assess request/response ---

// AssessRequest is the JSON body for POST /v1/assess.
type AssessRequest struct {
	Profile       string    `json:"profile,omitempty"`
	Tokens        []string  `json:"tokens"`
	MessageVector []float64 `json:"message_vector"`
	TopicVector   []float64 `json:"topic_vector"`
}

// AssessResponse is the decision plus the actions it implies.
type AssessResponse struct {
	Y             float64  `json:"y"`
	Z             float64  `json:"z"`
	F             float64  `json:"f"`
	RiskBand      string   `json:"risk_band"`
	Triggers      []string `json:"triggers"`
	TraceID       string   `json:"trace_id"`
	Profile       string   `json:"profile"`
	Action        string   `json:"action"`
	ShouldBlock   bool     `json:"should_block"`
	ShouldRewrite bool     `json:"should_rewrite"`
	LatencyMs     float64  `json:"latency_ms"`
	LogError      *string  `json:"log_error,omitempty"`
}

// --- Profiles ---

// ProfileResp is a stored profile. Config is the JSON document PUT accepts.
type ProfileResp struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Config    json.RawMessage `json:"config"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ProfileListResp wraps the profile listing.
type ProfileListResp struct {
	Profiles []ProfileResp `json:"profiles"`
}

// --- API keys ---

// CreateKeyReq is the JSON body for POST /api/wordmath/keys.
type CreateKeyReq struct {
	Name    string `json:"name"`
	Profile string `json:"profile,omitempty"`
}

// CreateKeyResp includes the plaintext API key (shown once).
type CreateKeyResp struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	APIKey    string    `json:"api_key"`
	KeyPrefix string    `json:"key_prefix"`
	Profile   string    `json:"profile"`
	CreatedAt time.Time `json:"created_at"`
}

// --- Decisions & analytics ---

// DecisionResp is one stored decision.
type DecisionResp struct {
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id"`
	Profile   string    `json:"profile"`
	Y         float64   `json:"y"`
	Z         float64   `json:"z"`
	F         float64   `json:"f"`
	RiskBand  string    `json:"risk_band"`
	Triggers  []string  `json:"triggers"`
	Hex       string    `json:"hex"`
}

// DecisionListResp is a page of decisions.
type DecisionListResp struct {
	Decisions []DecisionResp `json:"decisions"`
	Total     int            `json:"total"`
	Page      int            `json:"page"`
	PageSize  int            `json:"page_size"`
}

// ErrorResp is the error body for every non-2xx response.
type ErrorResp struct {
	Detail string `json:"detail"`
}
