package api

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Doctor0Evil/WordMath/internal/auth"
	"github.com/Doctor0Evil/WordMath/internal/engine"
	"github.com/Doctor0Evil/WordMath/internal/features"
	"github.com/Doctor0Evil/WordMath/internal/guard"
	"github.com/Doctor0Evil/WordMath/internal/registry"
)

// handleAssess implements POST /v1/assess.
// The request's profile wins over the key's default profile.
func (d *Dependencies) handleAssess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req AssessRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	profile := req.Profile
	if profile == "" {
		if p := auth.PrincipalFrom(r.Context()); p != nil {
			profile = p.Profile
		}
	}

	g, err := d.Registry.Get(r.Context(), profile)
	if err != nil {
		if errors.Is(err, registry.ErrProfileNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Profile not found."})
			return
		}
		d.Logger.Error("failed to resolve profile", zap.String("profile", profile), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Failed to load profile"})
		return
	}

	dec, err := g.Assess(r.Context(), req.Tokens, req.MessageVector, req.TopicVector)
	var logErr *guard.LogError
	switch {
	case err == nil:
	case errors.As(err, &logErr):
		// The decision is valid; the caller still sees the sink failure.
	case errors.Is(err, features.ErrShapeMismatch):
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "message_vector and topic_vector must have the same length"})
		return
	default:
		d.Logger.Error("assessment failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Assessment failed"})
		return
	}

	resp := decisionToResp(dec, g.Profile())
	resp.LatencyMs = float64(time.Since(start)) / float64(time.Millisecond)
	if logErr != nil {
		msg := logErr.Error()
		resp.LogError = &msg
	}
	writeJSON(w, http.StatusOK, resp)
}

func decisionToResp(dec engine.Decision, profile string) AssessResponse {
	if profile == "" {
		profile = registry.DefaultProfile
	}
	return AssessResponse{
		Y:             dec.Y,
		Z:             dec.Z,
		F:             dec.F,
		RiskBand:      dec.Band.String(),
		Triggers:      dec.TriggerNames(),
		TraceID:       dec.TraceID,
		Profile:       profile,
		Action:        guard.Decide(dec).String(),
		ShouldBlock:   guard.ShouldBlock(dec),
		ShouldRewrite: guard.ShouldRewrite(dec),
	}
}
