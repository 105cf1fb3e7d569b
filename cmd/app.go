package cmd

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/calendar"
	"github.com/spec-kit/sla-engine/internal/clock"
	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/notify"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/persistence"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/service"
	"github.com/spec-kit/sla-engine/internal/sla"
	"github.com/spec-kit/sla-engine/internal/worker"
)

// app holds the process-wide wiring shared by the subcommands.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	postgres  *persistence.Postgres
	redis     *persistence.Redis
	telemetry *observability.Metrics

	entities repository.EntityRepository
	hours    repository.BusinessHoursRepository
	rules    repository.SLARuleRepository
	tickets  repository.TicketRepository
	history  repository.TicketHistoryRepository

	calendars  *calendar.Provider
	dispatcher events.Dispatcher
	kafka      *notify.KafkaPublisher
	engine     *sla.Engine
}

type appOptions struct {
	// notifications registers the email, note and Kafka subscribers; it needs Redis.
	notifications bool
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger.With(zap.String("service", cfg.App.Name)), nil
}

func connectPostgres(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*persistence.Postgres, error) {
	return persistence.NewPostgres(ctx, cfg.Postgres, logger)
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	pg, err := connectPostgres(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	pool := pg.Pool

	a := &app{
		cfg:        cfg,
		logger:     logger,
		postgres:   pg,
		telemetry:  observability.NewMetrics(prometheus.DefaultRegisterer),
		entities:   repository.NewEntityRepository(pool),
		hours:      repository.NewBusinessHoursRepository(pool),
		rules:      repository.NewSLARuleRepository(pool),
		tickets:    repository.NewTicketRepository(pool),
		history:    repository.NewTicketHistoryRepository(pool),
		dispatcher: events.NewInMemoryDispatcher(),
	}

	clk := clock.Real{}
	a.calendars = calendar.NewProvider(a.hours, a.entities, clk, logger.Named("calendar"), calendar.ProviderConfig{
		DefaultLocation: cfg.SLA.Location(),
		Horizon:         cfg.SLA.MaxHorizon,
		CacheTTL:        cfg.SLA.CalendarTTL,
	})

	if opts.notifications {
		a.redis = persistence.NewRedis(ctx, cfg.Redis, logger)
		notifications := service.NewNotificationService(
			a.dispatcher,
			notify.NewRedisDeduper(a.redis.Client, cfg.Notification.DedupPrefix, cfg.Notification.DedupTTL, clk),
			notify.NewRedisEmailQueue(a.redis.Client, cfg.Notification.EmailQueueKey),
			repository.NewTicketMessageRepository(pool),
			clk,
			logger.Named("notifications"),
			cfg.Notification,
		)
		if cfg.Kafka.Enabled() {
			a.kafka = notify.NewKafkaPublisher(cfg.Kafka, logger.Named("kafka"))
		}
		worker.StartNotificationWorker(a.dispatcher, notifications, a.kafka, logger)
	}

	a.engine = sla.NewEngine(sla.Dependencies{
		Tickets:   a.tickets,
		Rules:     a.rules,
		Calendars: a.calendars,
		Outbox:    repository.NewOutboxRepository(pool),
		Emitter:   events.NewSLAEmitter(a.dispatcher),
		Metrics:   repository.NewResponseMetricRepository(pool),
		Clock:     clk,
		Logger:    logger.Named("sla"),
		Telemetry: a.telemetry,
	}, sla.Config{
		MaxHorizon: cfg.SLA.MaxHorizon,
		Detector: sla.DetectorConfig{
			WarningLead:  cfg.SLA.WarningLead,
			WarningRatio: cfg.SLA.WarningRatio,
		},
		Scheduler: sla.SchedulerConfig{
			Interval:      cfg.SLA.ScanInterval,
			Workers:       cfg.SLA.ScanWorkers,
			TicketTimeout: cfg.SLA.TicketTimeout,
			OutboxBatch:   cfg.SLA.OutboxBatch,
		},
	})
	return a, nil
}

// Close releases connections in reverse order of acquisition.
func (a *app) Close() {
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.logger.Warn("close kafka publisher", zap.Error(err))
		}
	}
	a.redis.Close()
	a.postgres.Close()
	_ = a.logger.Sync()
}
