package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/sla-engine/internal/calendar"
	"github.com/spec-kit/sla-engine/internal/clock"
	"github.com/spec-kit/sla-engine/internal/repository"
)

var (
	calendarEntity   string
	calendarStart    string
	calendarDuration time.Duration
	calendarAt       string
)

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Inspect an entity's business-hours calendar",
}

var calendarDueCmd = &cobra.Command{
	Use:   "due",
	Short: "Add a business duration to a start instant using the entity calendar",
	RunE:  runCalendarDue,
}

var calendarCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether an instant is business time for the entity",
	RunE:  runCalendarCheck,
}

func init() {
	calendarCmd.PersistentFlags().StringVar(&calendarEntity, "entity", "", "entity id")
	_ = calendarCmd.MarkPersistentFlagRequired("entity")
	calendarDueCmd.Flags().StringVar(&calendarStart, "start", "", "start instant, RFC3339 (default now)")
	calendarDueCmd.Flags().DurationVar(&calendarDuration, "duration", 4*time.Hour, "business duration to add")
	calendarCheckCmd.Flags().StringVar(&calendarAt, "at", "", "instant to test, RFC3339 (default now)")
	calendarCmd.AddCommand(calendarDueCmd, calendarCheckCmd)
}

func parseInstant(flag, raw string) (time.Time, error) {
	if raw == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s: %w", flag, err)
	}
	return t, nil
}

// entityCalendar resolves the --entity calendar straight from Postgres.
func entityCalendar(ctx context.Context) (*calendar.Calendar, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	defer func() { _ = logger.Sync() }()

	pg, err := connectPostgres(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer pg.Close()

	provider := calendar.NewProvider(
		repository.NewBusinessHoursRepository(pg.Pool),
		repository.NewEntityRepository(pg.Pool),
		clock.Real{},
		logger.Named("calendar"),
		calendar.ProviderConfig{
			DefaultLocation: cfg.SLA.Location(),
			Horizon:         cfg.SLA.MaxHorizon,
		},
	)
	return provider.ForEntity(ctx, calendarEntity)
}

func runCalendarCheck(cmd *cobra.Command, _ []string) error {
	at, err := parseInstant("at", calendarAt)
	if err != nil {
		return err
	}
	cal, err := entityCalendar(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s business_time=%t\n",
		at.In(cal.Location()).Format(time.RFC3339), cal.IsBusinessTime(at))
	return nil
}

func runCalendarDue(cmd *cobra.Command, _ []string) error {
	start, err := parseInstant("start", calendarStart)
	if err != nil {
		return err
	}
	cal, err := entityCalendar(cmd.Context())
	if err != nil {
		return err
	}

	due, capped := cal.AddBusinessDuration(start, calendarDuration)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "timezone:     %s\n", cal.Location())
	fmt.Fprintf(out, "unrestricted: %t\n", cal.IsUnrestricted())
	fmt.Fprintf(out, "start:        %s\n", start.In(cal.Location()).Format(time.RFC3339))
	fmt.Fprintf(out, "due:          %s\n", due.In(cal.Location()).Format(time.RFC3339))
	if capped {
		fmt.Fprintln(out, "warning: result capped at the calculation horizon")
	}
	return nil
}
