// Package cli implements the wordmath command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/Doctor0Evil/WordMath/internal/config"
)

type rootOptions struct {
	configFile string
	logLevel   string
	logFormat  string
}

// NewRootCommand builds the wordmath command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "wordmath",
		Short: "Score token and embedding signals into risk decisions",
		Long: `wordmath turns token repetition and topic drift into a risk score,
a band and a set of triggers, and tells the caller whether to allow,
rewrite or block the message.

Run "wordmath serve" for the HTTP and gRPC API, or "wordmath assess" for a
one-shot decision on the command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "",
		"config file (default: ./wordmath.yaml or ~/.config/wordmath/wordmath.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "",
		"log format (auto, text, json)")

	cmd.AddCommand(
		newServeCommand(opts),
		newAssessCommand(opts),
		newValidateCommand(opts),
		newInitCommand(),
	)
	return cmd
}

// Execute runs the root command with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// load reads the config and applies the log flags on top of it. The returned
// path is empty when no file was found.
func (o *rootOptions) load() (*config.Config, string, error) {
	l := config.NewLoader().WithConfigFile(o.configFile)
	cfg, err := l.Load()
	if err != nil {
		return nil, "", err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	return cfg, l.ConfigFile(), nil
}
