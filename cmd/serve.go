package cmd

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/sla-engine/internal/api/http"
	"github.com/spec-kit/sla-engine/internal/api/http/handlers"
	"github.com/spec-kit/sla-engine/internal/auth"
	"github.com/spec-kit/sla-engine/internal/clock"
	"github.com/spec-kit/sla-engine/internal/persistence"
)

const (
	shutdownTimeout = 15 * time.Second
	staleScanFactor = 3
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the SLA read API and run the periodic detector",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appOptions{notifications: true})
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, logger := a.cfg, a.logger

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, a.postgres.Pool, logger); err != nil {
			return err
		}
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, time.Hour)
	if cfg.Auth.Disabled {
		logger.Warn("api authentication disabled")
	}

	deps := map[string]handlers.Pinger{"postgres": a.postgres, "redis": a.redis}
	if cfg.SLA.SchedulerOn {
		deps["sla_scheduler"] = handlers.SchedulerProbe{
			Monitor: a.engine,
			MaxAge:  staleScanFactor * cfg.SLA.ScanInterval,
			Clock:   clock.Real{},
		}
	}

	server := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(server, logger, a.telemetry, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(server, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		SLA:            handlers.NewSLAHandler(a.engine, a.history),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, cfg.Auth.Disabled),
	})

	scheduler := a.engine.Scheduler()
	if cfg.SLA.SchedulerOn {
		scheduler.Start(ctx)
	}

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.App.Addr()))
		listenErr <- server.Listen(cfg.App.Addr())
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-listenErr:
		logger.Error("fiber listen", zap.Error(err))
	}

	scheduler.Stop()
	if shutdownErr := server.ShutdownWithTimeout(shutdownTimeout); shutdownErr != nil {
		logger.Warn("http shutdown", zap.Error(shutdownErr))
	}
	return err
}
