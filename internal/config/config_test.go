package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SLA_SCAN_INTERVAL", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.SLA.ScanInterval)
	assert.Equal(t, 0.2, cfg.SLA.WarningRatio)
	assert.Equal(t, 17520*time.Hour, cfg.SLA.MaxHorizon)
	assert.Equal(t, 4, cfg.SLA.ScanWorkers)
	assert.Equal(t, time.UTC, cfg.SLA.Location())
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SLA_SCAN_INTERVAL", "15m")
	t.Setenv("SLA_WARNING_RATIO", "0.15")
	t.Setenv("SLA_WARNING_LEAD", "30m")
	t.Setenv("SLA_DEFAULT_TIMEZONE", "Europe/Berlin")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("KAFKA_SLA_TOPIC", "helpdesk.sla")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.SLA.ScanInterval)
	assert.Equal(t, 0.15, cfg.SLA.WarningRatio)
	assert.Equal(t, 30*time.Minute, cfg.SLA.WarningLead)
	assert.Equal(t, "Europe/Berlin", cfg.SLA.Location().String())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
}

func TestValidateRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"ratio too large", map[string]string{"SLA_WARNING_RATIO": "1.5"}},
		{"zero workers", map[string]string{"SLA_SCAN_WORKERS": "0"}},
		{"unknown timezone", map[string]string{"SLA_DEFAULT_TIMEZONE": "Mars/Olympus"}},
		{"negative interval", map[string]string{"SLA_SCAN_INTERVAL": "-1m"}},
		{"brokers without topic", map[string]string{"KAFKA_BROKERS": "kafka:9092", "KAFKA_SLA_TOPIC": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
