package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Doctor0Evil/WordMath/internal/config"
)

func newValidateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, path, err := root.load()
			out := cmd.OutOrStdout()
			if err != nil {
				var verrs config.ValidationErrors
				if errors.As(err, &verrs) {
					for _, e := range verrs {
						fmt.Fprintf(out, "  - %s\n", e.Error())
					}
				}
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if path == "" {
				path = "environment"
			}
			fmt.Fprintf(out, "OK (%s)\n", path)
			return nil
		},
	}
}
