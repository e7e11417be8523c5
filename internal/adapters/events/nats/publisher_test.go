package nats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		cp       string
		expected string
	}{
		{"CP-1", "ocpp.events.CP-1"},
		{"site.a/cp 1", "ocpp.events.site_a/cp_1"},
		{"*", "ocpp.events._"},
		{">", "ocpp.events._"},
		{"", "ocpp.events._"},
		{"unknown_cp", "ocpp.events.unknown_cp"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, Subject("ocpp.events", tt.cp), "cp %q", tt.cp)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "ocpp.events", cfg.Subject)
	assert.Equal(t, -1, cfg.MaxReconnects)
	assert.NotEmpty(t, cfg.URL)
}

func TestNewPublisher_ConnectFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.Timeout = 500 * time.Millisecond

	_, err := NewPublisher(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to NATS")
}

func TestClose_Unconnected(t *testing.T) {
	p := &Publisher{}
	assert.NoError(t, p.Close())
}
