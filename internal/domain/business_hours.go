package domain

// BusinessHoursEntry is one weekly open interval. StartTime and EndTime are
// wall-clock "HH:MM" or "HH:MM:SS" values in the entity's timezone. A nil
// EntityID marks a global entry.
type BusinessHoursEntry struct {
	ID        string
	EntityID  *string
	DayOfWeek int
	StartTime string
	EndTime   string
	IsActive  bool
}
