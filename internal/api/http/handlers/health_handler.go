package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/clock"
	"github.com/spec-kit/sla-engine/internal/sla"
)

const readinessTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	deps        map[string]Pinger
}

// NewHealthHandler returns a handler whose readiness requires every named dependency.
func NewHealthHandler(serviceName, version string, deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, deps: deps}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports service readiness by checking dependencies.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	depStatus := fiber.Map{}
	ready := true
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			depStatus[name] = err.Error()
			ready = false
		} else {
			depStatus[name] = "ok"
		}
	}

	if ready {
		return c.JSON(fiber.Map{
			"status":       "ready",
			"dependencies": depStatus,
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "one or more dependencies unavailable",
			"details": depStatus,
		},
	})
}

// SchedulerProbe fails readiness once the detector has gone MaxAge without
// starting a scan. Before the first scan it reports healthy.
type SchedulerProbe struct {
	Monitor interface{ Monitoring() sla.MonitoringSnapshot }
	MaxAge  time.Duration
	Clock   clock.Clock
}

// Ping implements Pinger.
func (p SchedulerProbe) Ping(context.Context) error {
	snap := p.Monitor.Monitoring()
	if snap.LastCheckAt == nil {
		return nil
	}
	if age := p.Clock.Now().Sub(*snap.LastCheckAt); age > p.MaxAge {
		return fmt.Errorf("last sla scan started %s ago", age.Truncate(time.Second))
	}
	return nil
}
