package domain

import "time"

// MetricType distinguishes response and resolution audit records.
type MetricType string

const (
	MetricTypeResponse   MetricType = "response"
	MetricTypeResolution MetricType = "resolution"
)

// ResponseMetric is an immutable audit record written once per ticket and metric type.
type ResponseMetric struct {
	ID                      string
	TicketID                string
	MetricType              MetricType
	StartTime               time.Time
	EndTime                 time.Time
	DurationMinutes         int
	BusinessDurationMinutes int
	SLATargetMinutes        *int
	WithinSLA               bool
	CreatedAt               time.Time
}
