package seed

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-engine/internal/domain"
)

const sample = `
global_business_hours:
  - {day: 1, start: "09:00", end: "17:00"}
  - {day: 2, start: "09:00", end: "17:00"}
entities:
  - name: Billing
    timezone: America/New_York
    business_hours:
      - {day: monday, start: "08:00", end: "12:00"}
      - {day: mon, start: "13:00", end: "18:00"}
      - {day: saturday, start: "10:00", end: "14:00", active: false}
  - id: 3f9a2c1e-0b7d-4c55-9e0e-2d6f3b1a8c44
    name: Support
rules:
  - name: Billing urgent
    entity: Billing
    priority: URGENT
    response_minutes: 60
    resolution_minutes: 480
    escalation_minutes: 240
    business_hours_only: true
    conditions:
      category: billing
  - name: Global default
    priority: default
    response_minutes: 1440
  - name: Support VIP
    entity: 3f9a2c1e-0b7d-4c55-9e0e-2d6f3b1a8c44
    priority: all
    resolution_minutes: 120
    conditions:
      - {field: tier, operator: in, value: [gold, platinum]}
`

func TestParseSample(t *testing.T) {
	plan, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	require.Len(t, plan.Entities, 2)
	billing := plan.Entities[0]
	assert.Equal(t, "Billing", billing.Name)
	assert.True(t, billing.IsActive)
	assert.Equal(t, "3f9a2c1e-0b7d-4c55-9e0e-2d6f3b1a8c44", plan.Entities[1].ID)

	require.Len(t, plan.Calendars, 2)
	assert.Nil(t, plan.Calendars[0].EntityID)
	assert.Len(t, plan.Calendars[0].Entries, 2)
	require.NotNil(t, plan.Calendars[1].EntityID)
	assert.Equal(t, billing.ID, *plan.Calendars[1].EntityID)
	assert.Equal(t, 1, plan.Calendars[1].Entries[0].DayOfWeek)
	assert.False(t, plan.Calendars[1].Entries[2].IsActive)

	require.Len(t, plan.Rules, 3)
	urgent := plan.Rules[0]
	assert.Equal(t, domain.TicketPriorityUrgent, urgent.Priority)
	require.NotNil(t, urgent.EntityID)
	assert.Equal(t, billing.ID, *urgent.EntityID)
	assert.Equal(t, time.Hour, *urgent.ResponseTime)
	assert.Equal(t, 4*time.Hour, *urgent.EscalationTime)
	assert.True(t, urgent.BusinessHoursOnly)
	assert.Equal(t, domain.Conditions{{Field: "category", Operator: domain.OpEquals, Value: "billing"}}, urgent.Conditions)

	global := plan.Rules[1]
	assert.Nil(t, global.EntityID)
	assert.Nil(t, global.ResolutionTime)

	vip := plan.Rules[2]
	require.Len(t, vip.Conditions, 1)
	assert.Equal(t, domain.OpIn, vip.Conditions[0].Operator)
}

func TestParseIsDeterministic(t *testing.T) {
	first, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	second, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, first.Entities[0].ID, second.Entities[0].ID)
	assert.Equal(t, first.Rules[0].ID, second.Rules[0].ID)
	assert.NotEqual(t, first.Rules[0].ID, first.Rules[1].ID)
}

func TestParseReportsEveryProblem(t *testing.T) {
	doc := `
entities:
  - name: Broken
    timezone: Mars/Olympus
  - name: Hours
    business_hours:
      - {day: funday, start: "09:00", end: "17:00"}
      - {day: 2, start: "17:00", end: "09:00"}
rules:
  - name: Bad priority
    priority: whenever
  - name: Bad entity
    entity: Nowhere
    priority: low
  - name: Bad operator
    priority: low
    conditions:
      - {field: tier, operator: like, value: gold}
`
	_, err := Parse(strings.NewReader(doc))
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"timezone", "funday", "unknown priority", "unknown entity", "unknown operator"} {
		assert.Contains(t, msg, want)
	}
	assert.Contains(t, msg, "business_hours")
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader("rulez: []\n"))
	assert.Error(t, err)
}

func TestParseEmptyDocument(t *testing.T) {
	plan, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, plan.Entities)
	assert.Empty(t, plan.Rules)
}

type recordingStore struct {
	order  []string
	failOn string
}

func (s *recordingStore) UpsertEntity(_ context.Context, e *domain.Entity) error {
	s.order = append(s.order, "entity:"+e.Name)
	if s.failOn == e.Name {
		return errors.New("db down")
	}
	return nil
}

func (s *recordingStore) ReplaceHours(_ context.Context, entityID *string, _ []domain.BusinessHoursEntry) error {
	if entityID == nil {
		s.order = append(s.order, "hours:global")
	} else {
		s.order = append(s.order, "hours:entity")
	}
	return nil
}

func (s *recordingStore) UpsertRule(_ context.Context, r *domain.SLARule) error {
	s.order = append(s.order, "rule:"+r.Name)
	return nil
}

func TestApplyOrder(t *testing.T) {
	plan, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	store := &recordingStore{}
	require.NoError(t, Apply(context.Background(), plan, store))
	assert.Equal(t, []string{
		"entity:Billing", "entity:Support",
		"hours:global", "hours:entity",
		"rule:Billing urgent", "rule:Global default", "rule:Support VIP",
	}, store.order)

	failing := &recordingStore{failOn: "Billing"}
	err = Apply(context.Background(), plan, failing)
	assert.ErrorContains(t, err, "upsert entity Billing")
	assert.Len(t, failing.order, 1)
}
