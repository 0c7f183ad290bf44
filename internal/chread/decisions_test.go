package chread

import (
	"math"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

func TestListParams_Where(t *testing.T) {
	profile := "strict"
	band := "high"
	trigger := "DRIFT_TRIGGER"
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		params   ListParams
		want     string
		wantArgs []string
	}{
		{"no filters", ListParams{}, "1 = 1", nil},
		{"profile", ListParams{Profile: &profile}, "1 = 1 AND profile = @profile", []string{"profile"}},
		{
			"all",
			ListParams{Profile: &profile, RiskBand: &band, Trigger: &trigger, StartTime: &start, EndTime: &start},
			"1 = 1 AND profile = @profile AND risk_band = @risk_band AND has(triggers, @trigger)" +
				" AND timestamp >= @start_time AND timestamp <= @end_time",
			[]string{"profile", "risk_band", "trigger", "start_time", "end_time"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := tt.params.where()
			if where != tt.want {
				t.Errorf("where = %q, want %q", where, tt.want)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("got %d args, want %d", len(args), len(tt.wantArgs))
			}
			for i, a := range args {
				named, ok := a.(driver.NamedValue)
				if !ok {
					t.Fatalf("arg %d is %T, not a named arg", i, a)
				}
				if named.Name != tt.wantArgs[i] {
					t.Errorf("arg %d name = %q, want %q", i, named.Name, tt.wantArgs[i])
				}
			}
		})
	}
}

func TestSafeFloat(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.25, 0.25},
		{math.NaN(), 0},
		{math.Inf(1), 0},
		{math.Inf(-1), 0},
	}
	for _, tt := range tests {
		if got := safeFloat(tt.in); got != tt.want {
			t.Errorf("safeFloat(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
