package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single detector pass and print its report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appOptions{notifications: true})
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.engine.Scan(ctx)
		if err != nil {
			return err
		}
		a.logger.Info("scan finished",
			zap.Int("processed", report.Processed),
			zap.Int("breaches", report.Breaches),
			zap.Int("failed", report.Failed),
		)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}
