package sla

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// Precedence tiers, lowest wins.
const (
	tierEntityExact = iota + 1
	tierEntityAll
	tierGlobalExact
	tierGlobalAll
	tierEntityDefault
	tierGlobalDefault
)

// Matcher selects the single SLA rule that applies to a ticket. It is pure:
// the same rules and attributes always select the same rule.
type Matcher struct{}

// NewMatcher returns a matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Match returns the best active rule for the ticket or nil when no rule
// applies. Rules of other entities are ignored. Within the best tier, rules
// with more conditions win, then the most recently created, then the greater id.
func (m *Matcher) Match(rules []domain.SLARule, entityID string, priority domain.TicketPriority, attrs map[string]any) *domain.SLARule {
	priority = priority.Normalize()
	var (
		best     *domain.SLARule
		bestTier int
	)
	for i := range rules {
		rule := &rules[i]
		if !rule.IsActive {
			continue
		}
		tier := ruleTier(rule, entityID, priority)
		if tier == 0 {
			continue
		}
		if best != nil && tier > bestTier {
			continue
		}
		if !conditionsHold(rule.Conditions, attrs) {
			continue
		}
		if best == nil || tier < bestTier || outranks(rule, best) {
			best = rule
			bestTier = tier
		}
	}
	if best == nil {
		return nil
	}
	picked := *best
	return &picked
}

func ruleTier(rule *domain.SLARule, entityID string, priority domain.TicketPriority) int {
	rulePriority := rule.Priority.Normalize()
	switch {
	case rule.EntityID != nil && *rule.EntityID == entityID:
		switch {
		case rulePriority == priority:
			return tierEntityExact
		case rulePriority == domain.PriorityAll:
			return tierEntityAll
		case rulePriority == domain.PriorityDefault:
			return tierEntityDefault
		}
	case rule.EntityID == nil:
		switch {
		case rulePriority == priority:
			return tierGlobalExact
		case rulePriority == domain.PriorityAll:
			return tierGlobalAll
		case rulePriority == domain.PriorityDefault:
			return tierGlobalDefault
		}
	}
	return 0
}

func outranks(a, b *domain.SLARule) bool {
	if len(a.Conditions) != len(b.Conditions) {
		return len(a.Conditions) > len(b.Conditions)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func conditionsHold(conditions domain.Conditions, attrs map[string]any) bool {
	for _, cond := range conditions {
		if !evaluate(cond, attrs) {
			return false
		}
	}
	return true
}

func evaluate(cond domain.Condition, attrs map[string]any) bool {
	actual, ok := attrs[cond.Field]
	if !ok || actual == nil {
		return false
	}
	switch cond.Operator {
	case domain.OpEquals, "":
		return looseEqual(actual, cond.Value)
	case domain.OpNotEquals:
		return !looseEqual(actual, cond.Value)
	case domain.OpIn:
		return inList(actual, cond.Value)
	case domain.OpNotIn:
		return !inList(actual, cond.Value)
	case domain.OpContains:
		if list, isList := asList(actual); isList {
			return inList(cond.Value, list)
		}
		return strings.Contains(scalarString(actual), scalarString(cond.Value))
	default:
		return false
	}
}

func inList(actual, candidates any) bool {
	list, ok := asList(candidates)
	if !ok {
		return looseEqual(actual, candidates)
	}
	for _, candidate := range list {
		if looseEqual(actual, candidate) {
			return true
		}
	}
	return false
}

func asList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// looseEqual compares scalars numerically when both sides are numbers and by
// trimmed string form otherwise.
func looseEqual(a, b any) bool {
	as, bs := scalarString(a), scalarString(b)
	if af, err := strconv.ParseFloat(as, 64); err == nil {
		if bf, err := strconv.ParseFloat(bs, 64); err == nil {
			return af == bf
		}
	}
	return as == bs
}

func scalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}
