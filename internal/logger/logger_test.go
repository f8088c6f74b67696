package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name        string
		level       string
		development bool
		wantErr     bool
	}{
		{name: "debug development", level: "debug", development: true},
		{name: "info production", level: "info", development: false},
		{name: "warn production", level: "warn", development: false},
		{name: "error development", level: "error", development: true},
		{name: "invalid level", level: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := NewLogger(tt.level, tt.development)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, log)
		})
	}
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	require.NotNil(t, log)

	// Must not panic.
	log.Debugf("debug %d", 1)
	log.Infow("info", "key", "value")
	log.Errorf("error %s", "msg")
}

func TestChildLoggers(t *testing.T) {
	log := NewNopLogger()

	child := log.WithComponent("watcher")
	require.NotNil(t, child)
	assert.NotSame(t, log, child)

	netChild := child.WithNetwork("smartchain")
	require.NotNil(t, netChild)
	assert.NotSame(t, child, netChild)
}

func TestGetDefaultLogger(t *testing.T) {
	first := GetDefaultLogger()
	require.NotNil(t, first)

	second := GetDefaultLogger()
	assert.Same(t, first, second)
}
