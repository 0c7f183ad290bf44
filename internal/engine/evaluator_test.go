package engine

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
)

const eps = 1e-9

var testThresholds = Thresholds{
	HighRiskMax:   0.3,
	MediumRiskMax: 0.7,
	MaxRepetition: 0.5,
	MaxDrift:      0.5,
}

func fixedIDs(id string) TraceSource {
	return TraceSourceFunc(func() string { return id })
}

func ptr(v float64) *float64 { return &v }

func TestBandFor_Boundaries(t *testing.T) {
	tests := []struct {
		f    float64
		want Band
	}{
		{0.0, BandHigh},
		{0.3, BandHigh},
		{0.30000001, BandMedium},
		{0.5, BandMedium},
		{0.7, BandMedium},
		{0.70001, BandLow},
		{1.0, BandLow},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("f=%v", tt.f), func(t *testing.T) {
			if got := bandFor(tt.f, testThresholds); got != tt.want {
				t.Errorf("bandFor(%v) = %s, want %s", tt.f, got, tt.want)
			}
		})
	}
}

func TestBandFor_InvertedThresholdsKeepFirstMatch(t *testing.T) {
	// high_risk_max above medium_risk_max: the medium band is unreachable.
	th := Thresholds{HighRiskMax: 0.8, MediumRiskMax: 0.4}
	for _, f := range []float64{0.1, 0.4, 0.6, 0.8} {
		if got := bandFor(f, th); got != BandHigh {
			t.Errorf("bandFor(%v) = %s, want high", f, got)
		}
	}
	if got := bandFor(0.81, th); got != BandLow {
		t.Errorf("bandFor(0.81) = %s, want low", got)
	}
}

func TestTriggers_Strict(t *testing.T) {
	tests := []struct {
		name string
		y, z float64
		want []Trigger
	}{
		{"both at cutoff", 0.5, 0.5, nil},
		{"repeat just above", 0.5000001, 0.5, []Trigger{TriggerRepeat}},
		{"drift just above", 0.5, 0.5000001, []Trigger{TriggerDrift}},
		{"both above keeps order", 0.9, 0.9, []Trigger{TriggerRepeat, TriggerDrift}},
		{"both below", 0.1, 0.1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := triggersFor(tt.y, tt.z, testThresholds)
			if len(got) != len(tt.want) {
				t.Fatalf("triggersFor(%v, %v) = %v, want %v", tt.y, tt.z, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("trigger[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestComputeScore_WorkedExamples(t *testing.T) {
	tests := []struct {
		name    string
		scoring ScoringConfig
		want    float64
	}{
		{"linear", ScoringConfig{Variant: VariantLinear, Alpha: 0.4, Beta: 0.4}, 0.6},
		{"quadratic", ScoringConfig{Variant: VariantQuadratic, Alpha: 0.4, Beta: 0.4}, 0.8},
		{"interaction", ScoringConfig{Variant: VariantInteraction, Alpha: 0.3, Beta: 0.3, Gamma: ptr(0.2)}, 0.65},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ComputeScore(0.5, 0.5, tt.scoring, testThresholds, fixedIDs("abc"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(d.F-tt.want) > eps {
				t.Errorf("f = %v, want %v", d.F, tt.want)
			}
			if d.Band != BandMedium {
				t.Errorf("band = %s, want medium", d.Band)
			}
			if len(d.Triggers) != 0 {
				t.Errorf("expected no triggers at the cutoff, got %v", d.Triggers)
			}
			if d.TraceID != "abc" {
				t.Errorf("trace id = %q, want %q", d.TraceID, "abc")
			}
		})
	}
}

func TestComputeScore_ClipIsTotal(t *testing.T) {
	formulas := []ScoringConfig{
		{Variant: VariantLinear, Alpha: 0.4, Beta: 0.4},
		{Variant: VariantLinear, Alpha: -3, Beta: 5},
		{Variant: VariantQuadratic, Alpha: 2, Beta: 2},
		{Variant: VariantQuadratic, Alpha: -1, Beta: -1},
		{Variant: VariantInteraction, Alpha: 0.3, Beta: 0.3, Gamma: ptr(0.2)},
		{Variant: VariantInteraction, Alpha: 0.3, Beta: 0.3, Gamma: ptr(-10)},
		{Variant: VariantInteraction, Alpha: 1, Beta: 1},
	}
	inputs := []float64{-1, 0, 0.25, 0.5, 0.75, 1, 2, math.NaN(), math.Inf(1), math.Inf(-1)}

	for _, sc := range formulas {
		for _, y := range inputs {
			for _, z := range inputs {
				d, err := ComputeScore(y, z, sc, testThresholds, fixedIDs("x"))
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if d.F < 0 || d.F > 1 || math.IsNaN(d.F) {
					t.Errorf("%s(%v, %v): f = %v escaped [0, 1]", sc.Variant, y, z, d.F)
				}
				if d.Y < 0 || d.Y > 1 || d.Z < 0 || d.Z > 1 {
					t.Errorf("%s(%v, %v): signals (%v, %v) not clipped", sc.Variant, y, z, d.Y, d.Z)
				}
			}
		}
	}
}

func TestEvaluate_ClipsInputSignals(t *testing.T) {
	e := NewEvaluator(Linear{Alpha: 0.5, Beta: 0.5}, testThresholds, fixedIDs("t"))

	d := e.Evaluate(1.7, -0.4)
	if d.Y != 1 || d.Z != 0 {
		t.Errorf("expected clipped (1, 0), got (%v, %v)", d.Y, d.Z)
	}
	if d.F != 0.5 {
		t.Errorf("f = %v, want 0.5", d.F)
	}
	if !d.HasTrigger(TriggerRepeat) || d.HasTrigger(TriggerDrift) {
		t.Errorf("unexpected triggers %v", d.Triggers)
	}
}

func TestEvaluate_NaNSignalIsWorstCase(t *testing.T) {
	e := NewEvaluator(Linear{Alpha: 0.4, Beta: 0.4}, testThresholds, fixedIDs("t"))

	d := e.Evaluate(math.NaN(), 0)
	if d.Y != 1 {
		t.Errorf("NaN repetition should clip to 1, got %v", d.Y)
	}
	if math.Abs(d.F-0.6) > eps {
		t.Errorf("f = %v, want 0.6", d.F)
	}
}

func TestEvaluate_TriggersIndependentOfBand(t *testing.T) {
	// Zero coefficients pin f at 1.0 (low) while both signals trigger.
	e := NewEvaluator(Linear{}, testThresholds, fixedIDs("t"))
	d := e.Evaluate(1, 1)
	if d.Band != BandLow {
		t.Errorf("band = %s, want low", d.Band)
	}
	if len(d.Triggers) != 2 {
		t.Errorf("expected both triggers on a low band record, got %v", d.Triggers)
	}

	// Heavy coefficients pin f at 0 (high) with no triggers.
	e = NewEvaluator(Linear{Alpha: 10, Beta: 10}, testThresholds, fixedIDs("t"))
	d = e.Evaluate(0.4, 0.4)
	if d.Band != BandHigh || len(d.Triggers) != 0 {
		t.Errorf("expected high band without triggers, got %s %v", d.Band, d.Triggers)
	}
}

func TestEvaluate_TraceSourceCalledOncePerEvaluation(t *testing.T) {
	var n atomic.Int64
	ids := TraceSourceFunc(func() string {
		n.Add(1)
		return "id"
	})
	e := NewEvaluator(Quadratic{Alpha: 1, Beta: 1}, testThresholds, ids)
	for i := 0; i < 5; i++ {
		e.Evaluate(0.1, 0.1)
	}
	if got := n.Load(); got != 5 {
		t.Errorf("trace source called %d times, want 5", got)
	}
}

func TestNewEvaluator_DefaultTraceSource(t *testing.T) {
	e := NewEvaluator(Linear{}, testThresholds, nil)
	a := e.Evaluate(0, 0).TraceID
	b := e.Evaluate(0, 0).TraceID
	if len(a) != 32 {
		t.Errorf("expected 32 hex chars, got %q", a)
	}
	if a == b {
		t.Error("expected distinct trace ids")
	}
}

func TestComputeScore_UnknownVariant(t *testing.T) {
	for _, v := range []Variant{"", "cubic", "Linear", "linear "} {
		d, err := ComputeScore(0.5, 0.5, ScoringConfig{Variant: v, Alpha: 0.4, Beta: 0.4}, testThresholds, fixedIDs("x"))
		if !errors.Is(err, ErrUnknownVariant) {
			t.Errorf("variant %q: expected ErrUnknownVariant, got %v", v, err)
		}
		if d.TraceID != "" || d.Band != 0 {
			t.Errorf("variant %q: expected zero decision, got %+v", v, d)
		}
	}
}

func TestDecision_TriggerNames(t *testing.T) {
	d := Decision{}
	if names := d.TriggerNames(); names == nil || len(names) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", names)
	}
	d.Triggers = []Trigger{TriggerRepeat, TriggerDrift}
	names := d.TriggerNames()
	if len(names) != 2 || names[0] != "REPEAT_TRIGGER" || names[1] != "DRIFT_TRIGGER" {
		t.Errorf("unexpected names %v", names)
	}
}

func TestBand_StringAndParse(t *testing.T) {
	for _, b := range []Band{BandHigh, BandMedium, BandLow} {
		got, ok := ParseBand(b.String())
		if !ok || got != b {
			t.Errorf("ParseBand(%q) = %v, %v", b.String(), got, ok)
		}
	}
	if Band(0).String() != "unspecified" {
		t.Errorf("zero band = %q", Band(0).String())
	}
	if _, ok := ParseBand("HIGH"); ok {
		t.Error("ParseBand must be case sensitive")
	}
}

func BenchmarkEvaluate(b *testing.B) {
	e := NewEvaluator(Interaction{Alpha: 0.3, Beta: 0.3, Gamma: ptr(0.2)}, testThresholds, fixedIDs("bench"))

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		e.Evaluate(0.6, 0.4)
	}
}

func BenchmarkUUIDTraceSource(b *testing.B) {
	var ids UUIDTraceSource

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		ids.NewTraceID()
	}
}
