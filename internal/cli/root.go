// Package cli implements the escape command line client.
package cli

import (
	"io"
	"log/slog"

	"github.com/ashureev/escape-labs/internal/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	scenariosDir string
	scenario     string
	provider     string
	verbose      bool
}

// config loads the environment configuration and applies flag overrides.
func (o *rootOptions) config() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o.scenariosDir != "" {
		cfg.Scenario.Dir = o.scenariosDir
	}
	if o.scenario != "" {
		cfg.Scenario.Name = o.scenario
	}
	if o.provider != "" {
		cfg.LLM.Provider = o.provider
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// logger writes text logs to w. Only warnings show unless --verbose is set.
func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewRootCmd builds the escape command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "escape",
		Short:         "Data-science escape room",
		Long:          "Play, check and serve the persona of data-science escape room scenarios.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.scenariosDir, "scenarios-dir", "", "Scenarios directory (default: $SCENARIOS_DIR or ./scenarios)")
	root.PersistentFlags().StringVarP(&opts.scenario, "scenario", "s", "", "Scenario name (default: $SCENARIO)")
	root.PersistentFlags().StringVar(&opts.provider, "provider", "", "Persona provider: gemini or grpc (default: $LLM_PROVIDER)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log debug output to stderr")

	root.AddCommand(
		newPlayCmd(opts),
		newCheckCmd(opts),
		newScenariosCmd(opts),
		newPersonaCmd(opts),
	)
	return root
}
