// Package cmd wires the parley CLI: the serve command plus operational
// helpers for inspecting quotas, the capability graph and the audit
// trail.
package cmd

import (
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/observability"
)

var (
	cfgFile      string
	verbose      bool
	outputFormat string

	// Build metadata stamped by main.
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo records the build metadata shown by the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Request admission and adaptive dispatch for conversational backends",
	Long: `Parley sits in front of a conversational assistant backend. It admits
or rejects each turn against per-caller sliding-window quotas, classifies
the message against the capability set, and dispatches it directly, with
a clarifying question, or up the escalation path.

Use the subcommands to perform specific operations.`,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Start with telemetry disabled so config loading never emits
	// metrics to stdout. serve initializes the real system later.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(func() {
		observability.InitCLILogger("parley", verbose)
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config, ., /etc/parley)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, json)")
}

// loadConfig reads the effective configuration for a command run.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}
