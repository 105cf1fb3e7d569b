package sla

import (
	"sync"
	"time"
)

// MonitoringSnapshot is the cumulative view of detector activity since start.
type MonitoringSnapshot struct {
	LastCheckAt      *time.Time  `json:"last_check_at,omitempty"`
	LastReport       *ScanReport `json:"last_report,omitempty"`
	Scans            int64       `json:"scans"`
	SkippedTicks     int64       `json:"skipped_ticks"`
	TotalProcessed   int64       `json:"total_processed"`
	TotalWarnings    int64       `json:"total_warnings"`
	TotalBreaches    int64       `json:"total_breaches"`
	TotalEscalations int64       `json:"total_escalations"`
}

// Monitor accumulates scan reports.
type Monitor struct {
	mu   sync.RWMutex
	snap MonitoringSnapshot
}

// NewMonitor returns an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) record(report ScanReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at := report.StartedAt
	m.snap.LastCheckAt = &at
	m.snap.LastReport = &report
	m.snap.Scans++
	m.snap.TotalProcessed += int64(report.Processed)
	m.snap.TotalWarnings += int64(report.Warnings)
	m.snap.TotalBreaches += int64(report.Breaches)
	m.snap.TotalEscalations += int64(report.Escalations)
}

func (m *Monitor) recordSkippedTick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.SkippedTicks++
}

// Snapshot returns a copy of the current totals.
func (m *Monitor) Snapshot() MonitoringSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := m.snap
	if snap.LastReport != nil {
		report := *snap.LastReport
		snap.LastReport = &report
	}
	return snap
}
