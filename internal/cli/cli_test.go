package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/crypto/bcrypt"

	"github.com/Doctor0Evil/WordMath/internal/auth"
	"github.com/Doctor0Evil/WordMath/internal/config"
	"github.com/Doctor0Evil/WordMath/internal/features"
	"github.com/Doctor0Evil/WordMath/internal/guard"
	"github.com/Doctor0Evil/WordMath/internal/registry"
	"github.com/Doctor0Evil/WordMath/internal/storage"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeConfig writes DefaultConfig after mutate to a temp wordmath.yaml.
func writeConfig(t *testing.T, mutate func(*config.Config)) string {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	path := filepath.Join(t.TempDir(), "wordmath.yaml")
	if err := config.WriteFile(path, &cfg); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestRootCommand_Structure(t *testing.T) {
	cmd := NewRootCommand()
	if cmd.Use != "wordmath" {
		t.Errorf("expected 'wordmath', got %q", cmd.Use)
	}
	if cmd.Short == "" {
		t.Error("expected non-empty short description")
	}
	if !cmd.SilenceUsage || !cmd.SilenceErrors {
		t.Error("usage and errors should be silenced")
	}

	want := map[string]bool{"serve": false, "assess": false, "validate": false, "init": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("%s command not registered", name)
		}
	}

	for _, flag := range []string{"config", "log-level", "log-format"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("expected persistent flag --%s", flag)
		}
	}
}

func TestAssess_WorkedExample(t *testing.T) {
	path := writeConfig(t, nil)

	out, err := run(t, "assess", "--config", path, "--log-format", "json",
		"--tokens", "a,a,b,c", "--message", "1,0", "--topic", "0,1")
	if err != nil {
		t.Fatalf("assess: %v", err)
	}

	var got assessOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got.Y != 0.5 || got.Z != 0.5 || got.F != 0.5 {
		t.Errorf("expected y=z=f=0.5, got y=%v z=%v f=%v", got.Y, got.Z, got.F)
	}
	if got.RiskBand != "medium" {
		t.Errorf("expected medium, got %s", got.RiskBand)
	}
	if got.Triggers == nil || len(got.Triggers) != 0 {
		t.Errorf("expected empty trigger list, got %#v", got.Triggers)
	}
	if got.Action != "rewrite" || got.ShouldBlock || !got.ShouldRewrite {
		t.Errorf("unexpected action %s block=%v rewrite=%v", got.Action, got.ShouldBlock, got.ShouldRewrite)
	}
	if len(got.TraceID) != 32 {
		t.Errorf("expected 32 char trace id, got %q", got.TraceID)
	}
	if got.LogError != "" {
		t.Errorf("unexpected log error %q", got.LogError)
	}
}

func TestAssess_BothTriggers(t *testing.T) {
	path := writeConfig(t, nil)

	out, err := run(t, "assess", "--config", path,
		"--tokens", "x,x", "--message", "1,0", "--topic", "-1,0")
	if err != nil {
		t.Fatalf("assess: %v", err)
	}

	var got assessOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got.RiskBand != "high" || got.Action != "block" {
		t.Errorf("expected high/block, got %s/%s", got.RiskBand, got.Action)
	}
	want := []string{"REPEAT_TRIGGER", "DRIFT_TRIGGER"}
	if strings.Join(got.Triggers, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got.Triggers)
	}
}

func TestAssess_ShapeMismatch(t *testing.T) {
	path := writeConfig(t, nil)

	out, err := run(t, "assess", "--config", path,
		"--tokens", "a", "--message", "1,0", "--topic", "1")
	if !errors.Is(err, features.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	if out != "" {
		t.Errorf("expected no output, got %q", out)
	}
}

func TestAssess_AppendsLogWhenEnabled(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "scores.jsonl")
	path := writeConfig(t, func(c *config.Config) {
		c.Logging.EnableJSONLogs = true
		c.Experiment.SaveScores = true
		c.Experiment.OutputPath = logPath
	})

	if _, err := run(t, "assess", "--config", path,
		"--tokens", "a,a,b,c", "--message", "1,0", "--topic", "0,1"); err != nil {
		t.Fatalf("assess: %v", err)
	}

	f, err := os.Open(logPath)
	if err != nil {
		t.Fatalf("log not written: %v", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"risk_band": "medium"`) {
		t.Errorf("unexpected line %s", lines[0])
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		path := writeConfig(t, nil)
		out, err := run(t, "validate", "--config", path)
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		if !strings.HasPrefix(out, "OK (") || !strings.Contains(out, path) {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		doc := "thresholds:\n  high_risk_max: 2\nscoring:\n  variant: cubic\n"
		if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
			t.Fatal(err)
		}

		out, err := run(t, "validate", "--config", path)
		if err == nil {
			t.Fatal("expected error for invalid config")
		}
		var verrs config.ValidationErrors
		if !errors.As(err, &verrs) {
			t.Fatalf("expected ValidationErrors, got %T", err)
		}
		for _, field := range []string{"high_risk_max", "variant"} {
			if !strings.Contains(out, field) {
				t.Errorf("expected %s in output:\n%s", field, out)
			}
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := run(t, "validate", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
		if err == nil {
			t.Fatal("expected error for missing explicit config")
		}
	})
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "wordmath.yaml")

	out, err := run(t, "init", path)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("expected path in output, got %q", out)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if *cfg != config.DefaultConfig() {
		t.Errorf("written config differs from defaults: %+v", cfg)
	}

	if _, err := run(t, "init", path); err == nil {
		t.Error("expected refusal to overwrite")
	}
	if _, err := run(t, "init", "--force", path); err != nil {
		t.Errorf("--force should overwrite: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseLevel(tt.in); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestUseConsole(t *testing.T) {
	regular, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer regular.Close()

	tests := []struct {
		name   string
		format string
		f      *os.File
		want   bool
	}{
		{"text forces console", "text", regular, true},
		{"json forces json", "json", nil, false},
		{"auto on regular file", "auto", regular, false},
		{"auto without file", "auto", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := useConsole(tt.format, tt.f); got != tt.want {
				t.Errorf("useConsole(%q) = %v, want %v", tt.format, got, tt.want)
			}
		})
	}
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("WORDMATH_TEST_STR", "9090")
	t.Setenv("WORDMATH_TEST_INT", "42")
	t.Setenv("WORDMATH_TEST_BAD_INT", "forty")
	t.Setenv("WORDMATH_TEST_FLOAT", "2.5")

	if got := envOrDefault("WORDMATH_TEST_STR", "8080"); got != "9090" {
		t.Errorf("expected 9090, got %s", got)
	}
	if got := envOrDefault("WORDMATH_TEST_UNSET", "8080"); got != "8080" {
		t.Errorf("expected default, got %s", got)
	}
	if got := envOrDefaultInt("WORDMATH_TEST_INT", 1); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	if got := envOrDefaultInt("WORDMATH_TEST_BAD_INT", 7); got != 7 {
		t.Errorf("unparseable value should fall back, got %d", got)
	}
	if got := envOrDefaultFloat("WORDMATH_TEST_FLOAT", 0); got != 2.5 {
		t.Errorf("expected 2.5, got %v", got)
	}
}

func TestReloader_CallsReloadOnChange(t *testing.T) {
	path := writeConfig(t, nil)

	var calls atomic.Int32
	reloaded := make(chan struct{}, 8)
	rl, err := newReloader(path, 10*time.Millisecond, func() error {
		calls.Add(1)
		reloaded <- struct{}{}
		return nil
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("newReloader: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rl.Run(ctx) }()

	// Unrelated files in the same directory are ignored.
	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Fatalf("unrelated write triggered %d reloads", n)
	}

	cfg := config.DefaultConfig()
	cfg.Thresholds.HighRiskMax = 0.4
	if err := config.WriteFile(path, &cfg); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("reload was not called")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestNewReloader_MissingDirectory(t *testing.T) {
	_, err := newReloader(filepath.Join(t.TempDir(), "gone", "wordmath.yaml"), 0, func() error { return nil }, zap.NewNop())
	if err == nil {
		t.Error("expected error watching a missing directory")
	}
}

func TestReloadDefault(t *testing.T) {
	path := writeConfig(t, nil)
	initial := config.DefaultConfig()

	build := func(name string, c config.Config) (*guard.Guard, error) {
		return guard.New(c, guard.WithProfile(name))
	}
	def, err := build("", initial)
	if err != nil {
		t.Fatal(err)
	}
	reg := registry.New(def, registry.Options{Build: build})
	reload := reloadDefault(&rootOptions{}, path, initial, build, reg, zap.NewNop())

	cfg := config.DefaultConfig()
	cfg.Thresholds.HighRiskMax = 0.6
	if err := config.WriteFile(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if err := reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := reg.Default().Config().Thresholds.HighRiskMax; got != 0.6 {
		t.Errorf("expected reloaded high_risk_max 0.6, got %v", got)
	}

	// A broken file keeps the previous guard.
	current := reg.Default()
	if err := os.WriteFile(path, []byte("scoring:\n  variant: cubic\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := reload(); err == nil {
		t.Error("expected error for invalid config")
	}
	if reg.Default() != current {
		t.Error("default guard replaced by an invalid config")
	}
}

func TestOpenSinks(t *testing.T) {
	t.Setenv("CLICKHOUSE_DSN", "")

	t.Run("no sinks falls back to log writer", func(t *testing.T) {
		t.Setenv("WORDMATH_SQLITE_PATH", "")
		w, err := openSinks(context.Background(), config.DefaultConfig(), zap.NewNop())
		if err != nil {
			t.Fatal(err)
		}
		defer w.Close()
		if _, ok := w.(*storage.LogWriter); !ok {
			t.Errorf("expected *storage.LogWriter, got %T", w)
		}
	})

	t.Run("jsonl and sqlite", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("WORDMATH_SQLITE_PATH", filepath.Join(dir, "decisions.db"))
		cfg := config.DefaultConfig()
		cfg.Logging.EnableJSONLogs = true
		cfg.Experiment.SaveScores = true
		cfg.Experiment.OutputPath = filepath.Join(dir, "scores.jsonl")

		w, err := openSinks(context.Background(), cfg, zap.NewNop())
		if err != nil {
			t.Fatal(err)
		}
		defer w.Close()
		multi, ok := w.(*storage.MultiWriter)
		if !ok {
			t.Fatalf("expected *storage.MultiWriter, got %T", w)
		}
		if multi.Len() != 2 {
			t.Errorf("expected 2 sinks, got %d", multi.Len())
		}
	})

	t.Run("unwritable jsonl path", func(t *testing.T) {
		t.Setenv("WORDMATH_SQLITE_PATH", "")
		blocker := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(blocker, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		cfg := config.DefaultConfig()
		cfg.Logging.EnableJSONLogs = true
		cfg.Experiment.SaveScores = true
		cfg.Experiment.OutputPath = filepath.Join(blocker, "scores.jsonl")

		if _, err := openSinks(context.Background(), cfg, zap.NewNop()); err == nil {
			t.Error("expected error opening jsonl under a regular file")
		}
	})
}

func TestBuildAuthenticator(t *testing.T) {
	const key = "wmk_cli_test_key_0123456789abcdef"
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("no sources", func(t *testing.T) {
		t.Setenv("WORDMATH_API_KEY_HASHES", "")
		a, err := buildAuthenticator(nil, zap.NewNop())
		if err != nil {
			t.Fatal(err)
		}
		if a != nil {
			t.Errorf("expected nil authenticator, got %T", a)
		}
	})

	t.Run("malformed env", func(t *testing.T) {
		t.Setenv("WORDMATH_API_KEY_HASHES", "nonsense")
		if _, err := buildAuthenticator(nil, zap.NewNop()); err == nil {
			t.Error("expected error for malformed key list")
		}
	})

	t.Run("env keys", func(t *testing.T) {
		t.Setenv("WORDMATH_API_KEY_HASHES", key[:12]+":"+string(hash)+":strict")
		a, err := buildAuthenticator(nil, zap.NewNop())
		if err != nil {
			t.Fatal(err)
		}
		p, err := a.Authenticate(context.Background(), key)
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if p.Profile != "strict" {
			t.Errorf("expected profile strict, got %q", p.Profile)
		}
		if _, err := a.Authenticate(context.Background(), key[:12]+"wrong"); !errors.Is(err, auth.ErrInvalidAPIKey) {
			t.Errorf("expected ErrInvalidAPIKey, got %v", err)
		}
	})
}
