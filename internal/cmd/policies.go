package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/internal/output"
)

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "Show the effective quota policies",
	Long:  "Show the quota policies the server would enforce with the current configuration, most specific pattern first.",
	RunE:  runPolicies,
}

func init() {
	rootCmd.AddCommand(policiesCmd)
}

func runPolicies(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	table, err := cfg.PolicyTable()
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	policies := table.Policies()
	if format == output.FormatJSON {
		rendered, err := output.FormatValue(policies)
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	}

	fmt.Println(output.FormatPolicies(policies))
	return nil
}
