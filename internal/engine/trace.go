package engine

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// TraceSource supplies the opaque token attached to each decision.
// Implementations must be safe for concurrent use.
type TraceSource interface {
	NewTraceID() string
}

// TraceSourceFunc adapts a plain function to TraceSource.
type TraceSourceFunc func() string

func (f TraceSourceFunc) NewTraceID() string { return f() }

// UUIDTraceSource issues random v4 UUIDs rendered as 32 lowercase hex
// characters without dashes.
type UUIDTraceSource struct{}

func (UUIDTraceSource) NewTraceID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}
