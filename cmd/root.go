package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "sla-engine",
	Short:         "Helpdesk SLA engine: due dates, breach detection and SLA reporting",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(calendarCmd)
}
