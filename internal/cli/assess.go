package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Doctor0Evil/WordMath/internal/engine"
	"github.com/Doctor0Evil/WordMath/internal/guard"
)

type assessOutput struct {
	Y             float64  `json:"y"`
	Z             float64  `json:"z"`
	F             float64  `json:"f"`
	RiskBand      string   `json:"risk_band"`
	Triggers      []string `json:"triggers"`
	TraceID       string   `json:"trace_id"`
	Action        string   `json:"action"`
	ShouldBlock   bool     `json:"should_block"`
	ShouldRewrite bool     `json:"should_rewrite"`
	LogError      string   `json:"log_error,omitempty"`
}

func newAssessCommand(root *rootOptions) *cobra.Command {
	var (
		tokens  []string
		message []float64
		topic   []float64
	)

	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Score one message and print the decision as JSON",
		Example: `  wordmath assess --tokens a,a,b,c --message 1,0 --topic 0,1
  wordmath assess --config strict.yaml --tokens x,x --message 1,0 --topic -1,0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := root.load()
			if err != nil {
				return err
			}
			logger := mustBuildLogger(cfg.Logging.Level, cfg.Logging.Format)
			defer logger.Sync() //nolint:errcheck // best-effort flush

			g, err := guard.New(*cfg, guard.WithLogger(logger))
			if err != nil {
				return err
			}
			defer g.Close()

			d, err := g.Assess(cmd.Context(), tokens, message, topic)
			out := newAssessOutput(d)
			var logErr *guard.LogError
			switch {
			case errors.As(err, &logErr):
				out.LogError = logErr.Error()
			case err != nil:
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("assess: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&tokens, "tokens", nil, "message tokens, comma separated")
	cmd.Flags().Float64SliceVar(&message, "message", nil, "message embedding, comma separated")
	cmd.Flags().Float64SliceVar(&topic, "topic", nil, "topic embedding, comma separated")
	return cmd
}

func newAssessOutput(d engine.Decision) assessOutput {
	return assessOutput{
		Y:             d.Y,
		Z:             d.Z,
		F:             d.F,
		RiskBand:      d.Band.String(),
		Triggers:      d.TriggerNames(),
		TraceID:       d.TraceID,
		Action:        guard.Decide(d).String(),
		ShouldBlock:   guard.ShouldBlock(d),
		ShouldRewrite: guard.ShouldRewrite(d),
	}
}
