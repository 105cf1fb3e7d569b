// Package seed loads entities, business hours and SLA rules from a YAML
// document and writes them through the repositories.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/sla-engine/internal/calendar"
	"github.com/spec-kit/sla-engine/internal/domain"
)

// namespace derives stable ids for documents that omit them, so re-seeding
// the same file updates rows instead of duplicating them.
var namespace = uuid.MustParse("6f1c3c52-6a0e-4a8e-9c59-1f0e3b6e9a11")

// Document is the YAML layout accepted by the seed command.
type Document struct {
	GlobalHours []HoursSpec  `yaml:"global_business_hours"`
	Entities    []EntitySpec `yaml:"entities"`
	Rules       []RuleSpec   `yaml:"rules"`
}

// EntitySpec declares a tenant and, optionally, its own calendar.
type EntitySpec struct {
	ID       string      `yaml:"id"`
	Name     string      `yaml:"name"`
	Timezone string      `yaml:"timezone"`
	Active   *bool       `yaml:"active"`
	Hours    []HoursSpec `yaml:"business_hours"`
}

// HoursSpec is one weekly interval. Day accepts 0-6 (Sunday=0) or a day name.
type HoursSpec struct {
	Day    string `yaml:"day"`
	Start  string `yaml:"start"`
	End    string `yaml:"end"`
	Active *bool  `yaml:"active"`
}

// RuleSpec declares an SLA rule. Entity references an entity of the same
// document by name or id; empty means global.
type RuleSpec struct {
	ID                string `yaml:"id"`
	Entity            string `yaml:"entity"`
	Name              string `yaml:"name"`
	Priority          string `yaml:"priority"`
	ResponseMinutes   *int   `yaml:"response_minutes"`
	ResolutionMinutes *int   `yaml:"resolution_minutes"`
	EscalationMinutes *int   `yaml:"escalation_minutes"`
	BusinessHoursOnly bool   `yaml:"business_hours_only"`
	Conditions        any    `yaml:"conditions"`
	Active            *bool  `yaml:"active"`
}

// CalendarPlan replaces one weekly calendar; a nil EntityID is the global one.
type CalendarPlan struct {
	EntityID *string
	Entries  []domain.BusinessHoursEntry
}

// Plan is a validated document ready to be applied.
type Plan struct {
	Entities  []domain.Entity
	Calendars []CalendarPlan
	Rules     []domain.SLARule
}

// Store is the persistence the seed writes through.
type Store interface {
	UpsertEntity(ctx context.Context, entity *domain.Entity) error
	ReplaceHours(ctx context.Context, entityID *string, entries []domain.BusinessHoursEntry) error
	UpsertRule(ctx context.Context, rule *domain.SLARule) error
}

// Parse decodes and validates a seed document. All problems are reported together.
func Parse(r io.Reader) (*Plan, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode seed document: %w", err)
	}
	return doc.Plan()
}

// Plan validates the document and resolves ids and references.
func (d Document) Plan() (*Plan, error) {
	var (
		plan Plan
		errs []error
		refs = map[string]string{}
	)

	if len(d.GlobalHours) > 0 {
		entries, err := hoursEntries(nil, d.GlobalHours, time.UTC)
		if err != nil {
			errs = append(errs, fmt.Errorf("global_business_hours: %w", err))
		}
		plan.Calendars = append(plan.Calendars, CalendarPlan{Entries: entries})
	}

	for i, spec := range d.Entities {
		if strings.TrimSpace(spec.Name) == "" {
			errs = append(errs, fmt.Errorf("entities[%d]: name is required", i))
			continue
		}
		id, err := resolveID(spec.ID, "entity:"+spec.Name)
		if err != nil {
			errs = append(errs, fmt.Errorf("entities[%d]: %w", i, err))
			continue
		}
		loc := time.UTC
		if spec.Timezone != "" {
			if loc, err = time.LoadLocation(spec.Timezone); err != nil {
				errs = append(errs, fmt.Errorf("entities[%d]: timezone: %w", i, err))
				continue
			}
		}
		refs[spec.Name] = id
		refs[id] = id
		plan.Entities = append(plan.Entities, domain.Entity{
			ID:       id,
			Name:     spec.Name,
			Timezone: spec.Timezone,
			IsActive: boolOr(spec.Active, true),
		})
		if len(spec.Hours) > 0 {
			entityID := id
			entries, err := hoursEntries(&entityID, spec.Hours, loc)
			if err != nil {
				errs = append(errs, fmt.Errorf("entities[%d] business_hours: %w", i, err))
			}
			plan.Calendars = append(plan.Calendars, CalendarPlan{EntityID: &entityID, Entries: entries})
		}
	}

	for i, spec := range d.Rules {
		rule, err := ruleFromSpec(spec, refs)
		if err != nil {
			errs = append(errs, fmt.Errorf("rules[%d] %q: %w", i, spec.Name, err))
			continue
		}
		plan.Rules = append(plan.Rules, rule)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Apply writes entities first, then calendars, then rules.
func Apply(ctx context.Context, plan *Plan, store Store) error {
	for i := range plan.Entities {
		if err := store.UpsertEntity(ctx, &plan.Entities[i]); err != nil {
			return fmt.Errorf("upsert entity %s: %w", plan.Entities[i].Name, err)
		}
	}
	for _, cal := range plan.Calendars {
		if err := store.ReplaceHours(ctx, cal.EntityID, cal.Entries); err != nil {
			return fmt.Errorf("replace business hours: %w", err)
		}
	}
	for i := range plan.Rules {
		if err := store.UpsertRule(ctx, &plan.Rules[i]); err != nil {
			return fmt.Errorf("upsert rule %s: %w", plan.Rules[i].Name, err)
		}
	}
	return nil
}

func hoursEntries(entityID *string, specs []HoursSpec, loc *time.Location) ([]domain.BusinessHoursEntry, error) {
	entries := make([]domain.BusinessHoursEntry, 0, len(specs))
	var errs []error
	for i, spec := range specs {
		day, err := parseDay(spec.Day)
		if err != nil {
			errs = append(errs, fmt.Errorf("[%d]: %w", i, err))
			continue
		}
		entries = append(entries, domain.BusinessHoursEntry{
			EntityID:  entityID,
			DayOfWeek: day,
			StartTime: spec.Start,
			EndTime:   spec.End,
			IsActive:  boolOr(spec.Active, true),
		})
	}
	if _, invalid := calendar.New(loc, entries, 0); len(invalid) > 0 {
		errs = append(errs, invalid...)
	}
	return entries, errors.Join(errs...)
}

var dayNames = map[string]int{
	"sun": 0, "sunday": 0,
	"mon": 1, "monday": 1,
	"tue": 2, "tuesday": 2,
	"wed": 3, "wednesday": 3,
	"thu": 4, "thursday": 4,
	"fri": 5, "friday": 5,
	"sat": 6, "saturday": 6,
}

func parseDay(raw string) (int, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if day, ok := dayNames[raw]; ok {
		return day, nil
	}
	day, err := strconv.Atoi(raw)
	if err != nil || day < 0 || day > 6 {
		return 0, fmt.Errorf("day %q must be 0-6 or a weekday name", raw)
	}
	return day, nil
}

var knownPriorities = map[domain.TicketPriority]bool{
	domain.TicketPriorityLow:      true,
	domain.TicketPriorityMedium:   true,
	domain.TicketPriorityHigh:     true,
	domain.TicketPriorityUrgent:   true,
	domain.TicketPriorityCritical: true,
	domain.PriorityAll:            true,
	domain.PriorityDefault:        true,
}

var knownOperators = map[domain.ConditionOperator]bool{
	domain.OpEquals:    true,
	domain.OpNotEquals: true,
	domain.OpIn:        true,
	domain.OpNotIn:     true,
	domain.OpContains:  true,
}

func ruleFromSpec(spec RuleSpec, refs map[string]string) (domain.SLARule, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return domain.SLARule{}, errors.New("name is required")
	}
	priority := domain.TicketPriority(spec.Priority).Normalize()
	if !knownPriorities[priority] {
		return domain.SLARule{}, fmt.Errorf("unknown priority %q", spec.Priority)
	}

	var entityID *string
	if spec.Entity != "" {
		id, ok := refs[spec.Entity]
		if !ok {
			if _, err := uuid.Parse(spec.Entity); err != nil {
				return domain.SLARule{}, fmt.Errorf("unknown entity %q", spec.Entity)
			}
			id = spec.Entity
		}
		entityID = &id
	}

	scope := "global"
	if entityID != nil {
		scope = *entityID
	}
	id, err := resolveID(spec.ID, "rule:"+scope+":"+spec.Name)
	if err != nil {
		return domain.SLARule{}, err
	}

	conditions, err := decodeConditions(spec.Conditions)
	if err != nil {
		return domain.SLARule{}, err
	}

	return domain.SLARule{
		ID:                id,
		EntityID:          entityID,
		Name:              spec.Name,
		Priority:          priority,
		ResponseTime:      minutes(spec.ResponseMinutes),
		ResolutionTime:    minutes(spec.ResolutionMinutes),
		EscalationTime:    minutes(spec.EscalationMinutes),
		BusinessHoursOnly: spec.BusinessHoursOnly,
		Conditions:        conditions,
		IsActive:          boolOr(spec.Active, true),
	}, nil
}

func decodeConditions(raw any) (domain.Conditions, error) {
	if raw == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("conditions: %w", err)
	}
	var conditions domain.Conditions
	if err := json.Unmarshal(encoded, &conditions); err != nil {
		return nil, err
	}
	for _, c := range conditions {
		if c.Field == "" {
			return nil, errors.New("condition field is required")
		}
		if !knownOperators[c.Operator] {
			return nil, fmt.Errorf("condition on %q: unknown operator %q", c.Field, c.Operator)
		}
	}
	return conditions, nil
}

func resolveID(explicit, name string) (string, error) {
	if explicit == "" {
		return uuid.NewSHA1(namespace, []byte(name)).String(), nil
	}
	parsed, err := uuid.Parse(explicit)
	if err != nil {
		return "", fmt.Errorf("id %q is not a uuid", explicit)
	}
	return parsed.String(), nil
}

func minutes(m *int) *time.Duration {
	if m == nil {
		return nil
	}
	d := time.Duration(*m) * time.Minute
	return &d
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
