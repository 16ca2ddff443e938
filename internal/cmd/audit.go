package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/internal/core/store"
	"github.com/parleyhq/parley/internal/output"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent audit events",
	Long:  "Show recent admission and dispatch decisions from the audit store, newest first.",
	RunE:  runAudit,
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old audit events",
	RunE:  runAuditPrune,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditPruneCmd)

	auditCmd.Flags().String("caller", "", "filter events by caller")
	auditCmd.Flags().Int("limit", 50, "maximum number of events")

	auditPruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "delete events older than this age")
}

func openAuditStore(ctx context.Context) (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func runAudit(cmd *cobra.Command, args []string) error {
	caller, err := cmd.Flags().GetString("caller")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := openAuditStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() // nolint:errcheck // best-effort cleanup

	events, err := st.Recent(ctx, caller, limit)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	if format == output.FormatJSON {
		rendered, err := output.FormatValue(events)
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	}

	fmt.Println(output.FormatAuditEvents(events))
	return nil
}

func runAuditPrune(cmd *cobra.Command, args []string) error {
	olderThan, err := cmd.Flags().GetDuration("older-than")
	if err != nil {
		return err
	}
	if olderThan <= 0 {
		return fmt.Errorf("older-than must be positive")
	}

	ctx := cmd.Context()
	st, err := openAuditStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() // nolint:errcheck // best-effort cleanup

	removed, err := st.Prune(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return err
	}

	fmt.Printf("Pruned %d audit events\n", removed)
	return nil
}
