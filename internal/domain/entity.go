package domain

import "time"

// Entity is a tenant (department or brand) that owns tickets, SLA rules and a
// business-hours calendar.
type Entity struct {
	ID        string
	Name      string
	Timezone  string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Location resolves the entity timezone, falling back when it is empty or unknown.
func (e *Entity) Location(fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	if e == nil || e.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}
