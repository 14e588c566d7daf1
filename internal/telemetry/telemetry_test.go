package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recalld/internal/telemetry"
)

func TestConfigDefaults(t *testing.T) {
	cfg := telemetry.Config{}
	cfg.ApplyDefaults()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, telemetry.ProtocolGRPC, cfg.Protocol)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, "recalld", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Equal(t, 30*time.Second, cfg.MetricInterval)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*telemetry.Config)
		wantErr string
	}{
		{
			name:   "defaults valid",
			mutate: func(*telemetry.Config) {},
		},
		{
			name:    "bad protocol",
			mutate:  func(c *telemetry.Config) { c.Protocol = "udp" },
			wantErr: "telemetry.protocol",
		},
		{
			name:    "sample rate out of range",
			mutate:  func(c *telemetry.Config) { c.SampleRate = 1.5 },
			wantErr: "sample_rate",
		},
		{
			name:    "missing endpoint",
			mutate:  func(c *telemetry.Config) { c.Endpoint = "-" },
			wantErr: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := telemetry.Config{Enabled: true}
			cfg.ApplyDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDisabledTelemetryIsNoop(t *testing.T) {
	tel, err := telemetry.New(context.Background(), telemetry.Config{})
	require.NoError(t, err)

	assert.False(t, tel.Enabled())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	require.NoError(t, tel.ForceFlush(context.Background()))
	require.NoError(t, tel.Shutdown(context.Background()))
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := telemetry.New(context.Background(), telemetry.Config{
		Enabled:  true,
		Protocol: "carrier pigeon",
	})
	require.Error(t, err)
}
