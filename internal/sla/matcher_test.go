package sla

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-engine/internal/domain"
)

var ruleEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func rule(id string, entityID *string, priority domain.TicketPriority, conditions domain.Conditions, age int) domain.SLARule {
	return domain.SLARule{
		ID:           id,
		EntityID:     entityID,
		Name:         id,
		Priority:     priority,
		ResponseTime: hours(4),
		Conditions:   conditions,
		IsActive:     true,
		CreatedAt:    ruleEpoch.Add(time.Duration(age) * time.Hour),
	}
}

func TestMatchPrefersConditionedRule(t *testing.T) {
	e := ptr("E")
	rules := []domain.SLARule{
		rule("plain", e, "high", nil, 5),
		rule("billing", e, "high", domain.Conditions{{Field: "category", Operator: domain.OpEquals, Value: "billing"}}, 1),
	}
	m := NewMatcher()

	got := m.Match(rules, "E", "high", map[string]any{"category": "billing"})
	require.NotNil(t, got)
	assert.Equal(t, "billing", got.ID)

	got = m.Match(rules, "E", "high", map[string]any{"category": "hardware"})
	require.NotNil(t, got)
	assert.Equal(t, "plain", got.ID)
}

func TestMatchPrecedenceTiers(t *testing.T) {
	e := ptr("E")
	other := ptr("other")
	all := []domain.SLARule{
		rule("global-default", nil, domain.PriorityDefault, nil, 0),
		rule("entity-default", e, domain.PriorityDefault, nil, 0),
		rule("global-all", nil, domain.PriorityAll, nil, 0),
		rule("global-exact", nil, "high", nil, 0),
		rule("entity-all", e, domain.PriorityAll, nil, 0),
		rule("entity-exact", e, "high", nil, 0),
		rule("other-entity", other, "high", nil, 9),
	}
	m := NewMatcher()

	expected := []string{"entity-exact", "entity-all", "global-exact", "global-all", "entity-default", "global-default"}
	for i, want := range expected {
		rules := all[:len(all)-1-i]
		rules = append(append([]domain.SLARule{}, rules...), all[len(all)-1])
		got := m.Match(rules, "E", "HIGH ", nil)
		require.NotNil(t, got, want)
		assert.Equal(t, want, got.ID)
	}

	assert.Nil(t, m.Match([]domain.SLARule{all[len(all)-1]}, "E", "high", nil))
}

func TestMatchTieBreaks(t *testing.T) {
	e := ptr("E")
	m := NewMatcher()

	older := rule("a-older", e, "low", nil, 1)
	newer := rule("b-newer", e, "low", nil, 2)
	got := m.Match([]domain.SLARule{newer, older}, "E", "low", nil)
	require.NotNil(t, got)
	assert.Equal(t, "b-newer", got.ID)

	same1 := rule("rule-1", e, "low", nil, 3)
	same2 := rule("rule-2", e, "low", nil, 3)
	got = m.Match([]domain.SLARule{same2, same1}, "E", "low", nil)
	require.NotNil(t, got)
	assert.Equal(t, "rule-2", got.ID)
}

func TestMatchIgnoresInactiveAndIsDeterministic(t *testing.T) {
	e := ptr("E")
	inactive := rule("inactive", e, "urgent", nil, 10)
	inactive.IsActive = false
	rules := []domain.SLARule{
		inactive,
		rule("r1", e, "urgent", nil, 1),
		rule("r2", e, "urgent", domain.Conditions{{Field: "channel", Operator: domain.OpIn, Value: []any{"email", "chat"}}}, 2),
		rule("r3", e, "urgent", domain.Conditions{{Field: "channel", Operator: domain.OpNotEquals, Value: "phone"}}, 3),
		rule("r4", nil, "urgent", nil, 4),
	}
	attrs := map[string]any{"channel": "chat"}
	m := NewMatcher()
	first := m.Match(rules, "E", "urgent", attrs)
	require.NotNil(t, first)
	assert.Equal(t, "r3", first.ID)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]domain.SLARule{}, rules...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := m.Match(shuffled, "E", "urgent", attrs)
		require.NotNil(t, got)
		assert.Equal(t, first.ID, got.ID)
	}

	assert.Nil(t, m.Match(nil, "E", "urgent", attrs))
}

func TestConditionOperators(t *testing.T) {
	attrs := map[string]any{
		"category": "billing",
		"tags":     []any{"vip", "refund"},
		"seats":    float64(25),
		"subject":  "Invoice overdue",
	}
	tests := []struct {
		name string
		cond domain.Condition
		want bool
	}{
		{"equals", domain.Condition{Field: "category", Operator: domain.OpEquals, Value: "billing"}, true},
		{"equals is case sensitive", domain.Condition{Field: "category", Operator: domain.OpEquals, Value: "Billing"}, false},
		{"numeric equality", domain.Condition{Field: "seats", Operator: domain.OpEquals, Value: "25"}, true},
		{"not equals", domain.Condition{Field: "category", Operator: domain.OpNotEquals, Value: "sales"}, true},
		{"in", domain.Condition{Field: "category", Operator: domain.OpIn, Value: []any{"sales", "billing"}}, true},
		{"in string slice", domain.Condition{Field: "category", Operator: domain.OpIn, Value: []string{"sales"}}, false},
		{"not in", domain.Condition{Field: "category", Operator: domain.OpNotIn, Value: []any{"sales"}}, true},
		{"contains substring", domain.Condition{Field: "subject", Operator: domain.OpContains, Value: "overdue"}, true},
		{"contains list member", domain.Condition{Field: "tags", Operator: domain.OpContains, Value: "vip"}, true},
		{"contains missing member", domain.Condition{Field: "tags", Operator: domain.OpContains, Value: "spam"}, false},
		{"missing field", domain.Condition{Field: "region", Operator: domain.OpEquals, Value: "eu"}, false},
		{"missing field not equals", domain.Condition{Field: "region", Operator: domain.OpNotEquals, Value: "eu"}, false},
		{"unknown operator", domain.Condition{Field: "category", Operator: "regex", Value: ".*"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evaluate(tt.cond, attrs))
		})
	}
}
