package chread

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Reader provides read access to the ClickHouse wordmath_decisions table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(ctx context.Context, dsn string, logger *zap.Logger) (*Reader, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}

	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// DecisionRow is a single row from wordmath_decisions.
type DecisionRow struct {
	Timestamp time.Time
	TraceID   string
	Profile   string
	Y         float64
	Z         float64
	F         float64
	RiskBand  string
	Triggers  []string
	Hex       string
}

// ListParams holds filters and pagination for decision listing.
type ListParams struct {
	Profile   *string
	RiskBand  *string
	Trigger   *string
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
}

// where renders the filter conditions of p with their named arguments.
func (p ListParams) where() (string, []any) {
	conditions := []string{"1 = 1"}
	var args []any

	if p.Profile != nil {
		conditions = append(conditions, "profile = @profile")
		args = append(args, clickhouse.Named("profile", *p.Profile))
	}
	if p.RiskBand != nil {
		conditions = append(conditions, "risk_band = @risk_band")
		args = append(args, clickhouse.Named("risk_band", *p.RiskBand))
	}
	if p.Trigger != nil {
		conditions = append(conditions, "has(triggers, @trigger)")
		args = append(args, clickhouse.Named("trigger", *p.Trigger))
	}
	if p.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *p.StartTime))
	}
	if p.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *p.EndTime))
	}

	return strings.Join(conditions, " AND "), args
}

const decisionColumns = "timestamp, trace_id, profile, y, z, f, risk_band, triggers, hex"

// ListDecisions returns paginated, filtered decisions and the total count.
func (r *Reader) ListDecisions(ctx context.Context, params ListParams) ([]DecisionRow, int, error) {
	where, args := params.where()
	offset := (params.Page - 1) * params.PageSize

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM wordmath_decisions WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListDecisions count: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT %s FROM wordmath_decisions WHERE %s "+
			"ORDER BY timestamp DESC "+
			"LIMIT @limit OFFSET @offset",
		decisionColumns, where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListDecisions query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var decisions []DecisionRow
	for rows.Next() {
		var d DecisionRow
		if err := rows.Scan(
			&d.Timestamp, &d.TraceID, &d.Profile, &d.Y, &d.Z, &d.F,
			&d.RiskBand, &d.Triggers, &d.Hex,
		); err != nil {
			return nil, 0, fmt.Errorf("ListDecisions scan: %w", err)
		}
		decisions = append(decisions, d)
	}

	return decisions, int(total), rows.Err()
}

// GetDecision returns a single decision by trace ID, or nil if not found.
func (r *Reader) GetDecision(ctx context.Context, traceID string) (*DecisionRow, error) {
	rows, err := r.conn.Query(ctx,
		"SELECT "+decisionColumns+" FROM wordmath_decisions "+
			"WHERE trace_id = @trace_id LIMIT 1",
		clickhouse.Named("trace_id", traceID),
	)
	if err != nil {
		return nil, fmt.Errorf("GetDecision: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var d DecisionRow
	if err := rows.Scan(
		&d.Timestamp, &d.TraceID, &d.Profile, &d.Y, &d.Z, &d.F,
		&d.RiskBand, &d.Triggers, &d.Hex,
	); err != nil {
		return nil, fmt.Errorf("GetDecision scan: %w", err)
	}
	return &d, nil
}

// BandCounts holds per-band decision counts.
type BandCounts struct {
	Total  int `json:"total"`
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// TriggerCount holds a trigger name and how often it fired.
type TriggerCount struct {
	Trigger string `json:"trigger"`
	Count   int    `json:"count"`
}

// TimeSeriesBucket holds an hourly count of high-risk decisions.
type TimeSeriesBucket struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// ScoreStats summarizes f over the window.
type ScoreStats struct {
	Mean float64 `json:"mean"`
	P50  float64 `json:"p50"`
	P95  float64 `json:"p95"`
}

// AnalyticsResult holds all analytics aggregations.
type AnalyticsResult struct {
	Bands        BandCounts         `json:"bands"`
	Triggers     []TriggerCount     `json:"triggers"`
	HighOverTime []TimeSeriesBucket `json:"high_over_time"`
	Scores       ScoreStats         `json:"scores"`
}

// GetAnalytics aggregates decisions of the last days. A nil profile covers
// every profile.
func (r *Reader) GetAnalytics(ctx context.Context, profile *string, days int) (*AnalyticsResult, error) {
	start := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	where, args := ListParams{Profile: profile, StartTime: &start}.where()

	result := &AnalyticsResult{}

	var total, high, medium, low uint64
	var mean, p50, p95 float64
	err := r.conn.QueryRow(ctx,
		"SELECT count(), "+
			"countIf(risk_band = 'high'), "+
			"countIf(risk_band = 'medium'), "+
			"countIf(risk_band = 'low'), "+
			"avg(f), quantile(0.5)(f), quantile(0.95)(f) "+
			"FROM wordmath_decisions WHERE "+where,
		args...,
	).Scan(&total, &high, &medium, &low, &mean, &p50, &p95)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics bands: %w", err)
	}
	result.Bands = BandCounts{Total: int(total), High: int(high), Medium: int(medium), Low: int(low)}
	result.Scores = ScoreStats{Mean: safeFloat(mean), P50: safeFloat(p50), P95: safeFloat(p95)}

	trigRows, err := r.conn.Query(ctx,
		"SELECT arrayJoin(triggers) AS trigger, count() AS count "+
			"FROM wordmath_decisions WHERE "+where+" "+
			"GROUP BY trigger ORDER BY count DESC",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics triggers: %w", err)
	}
	defer func() { _ = trigRows.Close() }()
	for trigRows.Next() {
		var name string
		var count uint64
		if err := trigRows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics triggers scan: %w", err)
		}
		result.Triggers = append(result.Triggers, TriggerCount{Trigger: name, Count: int(count)})
	}

	hourRows, err := r.conn.Query(ctx,
		"SELECT toStartOfHour(timestamp) AS hour, count() AS count "+
			"FROM wordmath_decisions WHERE "+where+" AND risk_band = 'high' "+
			"GROUP BY hour ORDER BY hour",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics high_over_time: %w", err)
	}
	defer func() { _ = hourRows.Close() }()
	for hourRows.Next() {
		var hour time.Time
		var count uint64
		if err := hourRows.Scan(&hour, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics high_over_time scan: %w", err)
		}
		result.HighOverTime = append(result.HighOverTime, TimeSeriesBucket{
			Hour:  hour.Format(time.RFC3339),
			Count: int(count),
		})
	}

	// Non-nil for JSON serialization.
	if result.Triggers == nil {
		result.Triggers = []TriggerCount{}
	}
	if result.HighOverTime == nil {
		result.HighOverTime = []TimeSeriesBucket{}
	}

	return result, nil
}

// safeFloat replaces NaN/Inf with 0.0.
// ClickHouse returns NaN for avg() and quantile() on empty result sets.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	return f
}
