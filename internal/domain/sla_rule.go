package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// SLARule defines the time budgets for tickets of one priority within an
// entity. A nil EntityID marks a global rule.
type SLARule struct {
	ID                string
	EntityID          *string
	Name              string
	Priority          TicketPriority
	ResponseTime      *time.Duration
	ResolutionTime    *time.Duration
	EscalationTime    *time.Duration
	BusinessHoursOnly bool
	Conditions        Conditions
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsGlobal reports whether the rule applies to every entity.
func (r *SLARule) IsGlobal() bool {
	return r.EntityID == nil
}

// DurationFor returns the configured budget for a dimension.
func (r *SLARule) DurationFor(dim Dimension) *time.Duration {
	switch dim {
	case DimensionResponse:
		return r.ResponseTime
	case DimensionResolution:
		return r.ResolutionTime
	case DimensionEscalation:
		return r.EscalationTime
	default:
		return nil
	}
}

// ConditionOperator is a comparison applied to a ticket attribute.
type ConditionOperator string

const (
	OpEquals    ConditionOperator = "="
	OpNotEquals ConditionOperator = "!="
	OpIn        ConditionOperator = "in"
	OpNotIn     ConditionOperator = "not_in"
	OpContains  ConditionOperator = "contains"
)

// Condition is a single predicate over a ticket attribute.
type Condition struct {
	Field    string            `json:"field" yaml:"field"`
	Operator ConditionOperator `json:"operator" yaml:"operator"`
	Value    any               `json:"value" yaml:"value"`
}

// Conditions is a conjunction of predicates. It decodes from either a list of
// {field, operator, value} objects or a shorthand object of field equalities.
type Conditions []Condition

// UnmarshalJSON accepts both the list and the shorthand object form.
func (c *Conditions) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte(`""`)) {
		*c = nil
		return nil
	}
	switch trimmed[0] {
	case '[':
		var list []Condition
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return fmt.Errorf("decode conditions list: %w", err)
		}
		for i := range list {
			if list[i].Operator == "" {
				list[i].Operator = OpEquals
			}
		}
		*c = list
		return nil
	case '{':
		var shorthand map[string]any
		if err := json.Unmarshal(trimmed, &shorthand); err != nil {
			return fmt.Errorf("decode conditions object: %w", err)
		}
		*c = FromShorthand(shorthand)
		return nil
	default:
		return fmt.Errorf("conditions must be an array or object")
	}
}

// FromShorthand converts {field: value} pairs into equality conditions sorted by field.
func FromShorthand(m map[string]any) Conditions {
	if len(m) == 0 {
		return nil
	}
	fields := make([]string, 0, len(m))
	for field := range m {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	out := make(Conditions, 0, len(fields))
	for _, field := range fields {
		op := OpEquals
		if _, isList := m[field].([]any); isList {
			op = OpIn
		}
		out = append(out, Condition{Field: field, Operator: op, Value: m[field]})
	}
	return out
}
