package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/clock"
	"github.com/spec-kit/sla-engine/internal/domain"
)

// DefaultCacheTTL is how long a resolved calendar is reused.
const DefaultCacheTTL = time.Minute

// HoursSource lists business-hours entries, active or not.
type HoursSource interface {
	ListByEntity(ctx context.Context, entityID string) ([]domain.BusinessHoursEntry, error)
	ListGlobal(ctx context.Context) ([]domain.BusinessHoursEntry, error)
}

// EntitySource resolves the entity owning a calendar.
type EntitySource interface {
	GetByID(ctx context.Context, id string) (*domain.Entity, error)
}

// ProviderConfig tunes calendar resolution.
type ProviderConfig struct {
	DefaultLocation *time.Location
	Horizon         time.Duration
	CacheTTL        time.Duration
}

type cachedCalendar struct {
	cal       *Calendar
	expiresAt time.Time
}

// Provider resolves per-entity calendars. Entity entries own the calendar
// whenever the entity has any; otherwise global entries apply; otherwise
// every instant is business time.
type Provider struct {
	hours    HoursSource
	entities EntitySource
	clock    clock.Clock
	logger   *zap.Logger
	cfg      ProviderConfig

	mu    sync.Mutex
	cache map[string]cachedCalendar
}

// NewProvider builds a caching calendar provider.
func NewProvider(hours HoursSource, entities EntitySource, clk clock.Clock, logger *zap.Logger, cfg ProviderConfig) *Provider {
	if cfg.DefaultLocation == nil {
		cfg.DefaultLocation = time.UTC
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = DefaultHorizon
	}
	if cfg.CacheTTL < 0 {
		cfg.CacheTTL = 0
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		hours:    hours,
		entities: entities,
		clock:    clk,
		logger:   logger,
		cfg:      cfg,
		cache:    make(map[string]cachedCalendar),
	}
}

// ForEntity returns the calendar for an entity. Missing or invalid hours
// configuration degrades to an unrestricted calendar; only source failures
// are returned as errors.
func (p *Provider) ForEntity(ctx context.Context, entityID string) (*Calendar, error) {
	now := p.clock.Now()
	p.mu.Lock()
	if cached, ok := p.cache[entityID]; ok && now.Before(cached.expiresAt) {
		p.mu.Unlock()
		return cached.cal, nil
	}
	p.mu.Unlock()

	cal, err := p.resolve(ctx, entityID)
	if err != nil {
		return nil, err
	}

	if p.cfg.CacheTTL > 0 {
		p.mu.Lock()
		p.cache[entityID] = cachedCalendar{cal: cal, expiresAt: now.Add(p.cfg.CacheTTL)}
		p.mu.Unlock()
	}
	return cal, nil
}

// Invalidate drops the cached calendar for an entity, or all entries when entityID is empty.
func (p *Provider) Invalidate(entityID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entityID == "" {
		p.cache = make(map[string]cachedCalendar)
		return
	}
	delete(p.cache, entityID)
}

func (p *Provider) resolve(ctx context.Context, entityID string) (*Calendar, error) {
	loc, err := p.location(ctx, entityID)
	if err != nil {
		return nil, err
	}

	entries, err := p.hours.ListByEntity(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("list business hours for entity %s: %w", entityID, err)
	}
	source := "entity"
	if len(entries) == 0 {
		entries, err = p.hours.ListGlobal(ctx)
		if err != nil {
			return nil, fmt.Errorf("list global business hours: %w", err)
		}
		source = "global"
	}

	cal, problems := New(loc, entries, p.cfg.Horizon)
	for _, problem := range problems {
		p.logger.Warn("skipping invalid business hours entry",
			zap.String("entity_id", entityID),
			zap.String("source", source),
			zap.Error(problem))
	}
	if cal.IsUnrestricted() {
		p.logger.Warn("no active business hours, treating every instant as business time",
			zap.String("entity_id", entityID),
			zap.String("source", source),
			zap.Int("entries", len(entries)))
	}
	return cal, nil
}

func (p *Provider) location(ctx context.Context, entityID string) (*time.Location, error) {
	if p.entities == nil {
		return p.cfg.DefaultLocation, nil
	}
	entity, err := p.entities.GetByID(ctx, entityID)
	if errors.Is(err, domain.ErrNotFound) {
		p.logger.Warn("entity not found, using default timezone",
			zap.String("entity_id", entityID),
			zap.String("timezone", p.cfg.DefaultLocation.String()))
		return p.cfg.DefaultLocation, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load entity %s: %w", entityID, err)
	}
	loc := entity.Location(p.cfg.DefaultLocation)
	if entity.Timezone != "" && loc.String() != entity.Timezone {
		p.logger.Warn("unknown entity timezone, using default",
			zap.String("entity_id", entityID),
			zap.String("timezone", entity.Timezone))
	}
	return loc, nil
}
