package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/seed"
)

var (
	seedFile   string
	seedDryRun bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load entities, business hours and SLA rules from a YAML file",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "path to the seed YAML document")
	seedCmd.Flags().BoolVar(&seedDryRun, "dry-run", false, "validate the document without writing")
	_ = seedCmd.MarkFlagRequired("file")
}

func runSeed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	f, err := os.Open(seedFile)
	if err != nil {
		return err
	}
	defer f.Close()

	plan, err := seed.Parse(f)
	if err != nil {
		return fmt.Errorf("%s: %w", seedFile, err)
	}
	if seedDryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %d entities, %d calendars, %d rules\n",
			len(plan.Entities), len(plan.Calendars), len(plan.Rules))
		return nil
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	pg, err := connectPostgres(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pg.Close()

	pool := pg.Pool
	store := repositoryStore{
		entities: repository.NewEntityRepository(pool),
		hours:    repository.NewBusinessHoursRepository(pool),
		rules:    repository.NewSLARuleRepository(pool),
	}
	if err := seed.Apply(ctx, plan, store); err != nil {
		return err
	}
	logger.Info("seed applied",
		zap.String("file", seedFile),
		zap.Int("entities", len(plan.Entities)),
		zap.Int("calendars", len(plan.Calendars)),
		zap.Int("rules", len(plan.Rules)),
	)
	return nil
}

// repositoryStore writes a seed plan through the Postgres repositories.
type repositoryStore struct {
	entities repository.EntityRepository
	hours    repository.BusinessHoursRepository
	rules    repository.SLARuleRepository
}

func (s repositoryStore) UpsertEntity(ctx context.Context, entity *domain.Entity) error {
	return s.entities.Upsert(ctx, entity)
}

func (s repositoryStore) ReplaceHours(ctx context.Context, entityID *string, entries []domain.BusinessHoursEntry) error {
	return s.hours.Replace(ctx, entityID, entries)
}

func (s repositoryStore) UpsertRule(ctx context.Context, rule *domain.SLARule) error {
	return s.rules.Upsert(ctx, rule)
}
