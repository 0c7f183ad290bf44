package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Doctor0Evil/WordMath/internal/chread"
)

func (d *Dependencies) requireReader(w http.ResponseWriter) bool {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return false
	}
	return true
}

func (d *Dependencies) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	if !d.requireReader(w) {
		return
	}

	q := r.URL.Query()
	params := chread.ListParams{
		Page:     queryInt(q, "page", 1),
		PageSize: queryInt(q, "page_size", 50),
	}
	if params.PageSize > 200 {
		params.PageSize = 200
	}
	if params.PageSize < 1 {
		params.PageSize = 1
	}
	if params.Page < 1 {
		params.Page = 1
	}

	if v := q.Get("profile"); v != "" {
		params.Profile = &v
	}
	if v := q.Get("risk_band"); v != "" {
		params.RiskBand = &v
	}
	if v := q.Get("trigger"); v != "" {
		params.Trigger = &v
	}
	if v := q.Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.StartTime = &t
		}
	}
	if v := q.Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.EndTime = &t
		}
	}

	rows, total, err := d.Reader.ListDecisions(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list decisions", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list decisions"})
		return
	}

	resp := DecisionListResp{
		Decisions: make([]DecisionResp, 0, len(rows)),
		Total:     total,
		Page:      params.Page,
		PageSize:  params.PageSize,
	}
	for _, row := range rows {
		resp.Decisions = append(resp.Decisions, decisionRowToResp(row))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	if !d.requireReader(w) {
		return
	}

	row, err := d.Reader.GetDecision(r.Context(), r.PathValue("trace_id"))
	if err != nil {
		d.Logger.Error("failed to get decision", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get decision"})
		return
	}
	if row == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Decision not found."})
		return
	}
	writeJSON(w, http.StatusOK, decisionRowToResp(*row))
}

func (d *Dependencies) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	if !d.requireReader(w) {
		return
	}

	q := r.URL.Query()
	days := queryInt(q, "days", 7)
	if days < 1 {
		days = 1
	}
	if days > 90 {
		days = 90
	}
	var profile *string
	if v := q.Get("profile"); v != "" {
		profile = &v
	}

	result, err := d.Reader.GetAnalytics(r.Context(), profile, days)
	if err != nil {
		d.Logger.Error("failed to get analytics", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get analytics"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func decisionRowToResp(row chread.DecisionRow) DecisionResp {
	triggers := row.Triggers
	if triggers == nil {
		triggers = []string{}
	}
	return DecisionResp{
		Timestamp: row.Timestamp,
		TraceID:   row.TraceID,
		Profile:   row.Profile,
		Y:         row.Y,
		Z:         row.Z,
		F:         row.F,
		RiskBand:  row.RiskBand,
		Triggers:  triggers,
		Hex:       row.Hex,
	}
}
