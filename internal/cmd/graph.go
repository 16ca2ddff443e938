package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/core/dispatch"
	"github.com/parleyhq/parley/internal/output"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Show the capability graph",
	Long: `Validate and show the configured capability graph.

The command fails when the graph is invalid: an unknown root, an
escalation edge to a missing node, or a cycle in the escalation paths.
With --file, a standalone graph YAML is validated instead of the main
config.`,
	RunE: runGraph,
}

func init() {
	rootCmd.AddCommand(graphCmd)

	graphCmd.Flags().String("file", "", "validate a standalone graph YAML file instead of the config")
}

func runGraph(cmd *cobra.Command, args []string) error {
	file, err := cmd.Flags().GetString("file")
	if err != nil {
		return err
	}

	var graph *dispatch.Graph
	if file != "" {
		graph, err = dispatch.LoadGraphFile(file)
	} else {
		var cfg *config.Config
		cfg, err = loadConfig()
		if err == nil {
			graph, err = cfg.Graph()
		}
	}
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	nodes := graph.Nodes()
	if format == output.FormatJSON {
		rendered, err := output.FormatValue(nodes)
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	}

	fmt.Println(output.FormatGraph(nodes, graph.Root().ID))
	return nil
}
