package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/internal/output"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <message>",
	Short: "Classify a message against the capability set",
	Long: `Run the configured classifier over a single message and show the
per-label evidence. Useful for tuning keyword rules and capability
descriptions without a running server.`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	message := strings.TrimSpace(args[0])
	if message == "" {
		return fmt.Errorf("message must not be empty")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	classifier, err := buildClassifier(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	result := classifier.Classify(cmd.Context(), message)

	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	if format == output.FormatJSON {
		rendered, err := output.FormatValue(result)
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	}

	fmt.Println(output.FormatClassification(result))
	return nil
}
