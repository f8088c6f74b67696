package common

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{name: "milliseconds", input: "250ms", expected: 250 * time.Millisecond},
		{name: "seconds", input: "30s", expected: 30 * time.Second},
		{name: "minutes", input: "5m", expected: 5 * time.Minute},
		{name: "complex duration", input: "1h30m45s", expected: 1*time.Hour + 30*time.Minute + 45*time.Second},
		{name: "zero duration", input: "0s", expected: 0},
		{name: "missing unit", input: "100", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
		{name: "non-numeric", input: "abcs", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.input))

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, d.Duration)
			}
		})
	}
}

func TestNewDuration(t *testing.T) {
	d := NewDuration(90 * time.Second)
	assert.Equal(t, 90*time.Second, d.Duration)
}

func TestDuration_JSONRoundTrip(t *testing.T) {
	var cfg struct {
		Timeout Duration `json:"timeout"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"timeout":"1h30m"}`), &cfg))
	assert.Equal(t, 90*time.Minute, cfg.Timeout.Duration)

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"timeout":"1h30m0s"}`, string(data))

	require.Error(t, json.Unmarshal([]byte(`{"timeout":"invalid"}`), &cfg))
}

func TestDuration_YAMLUnmarshal(t *testing.T) {
	var cfg struct {
		Timeout Duration `yaml:"timeout"`
	}

	require.NoError(t, yaml.Unmarshal([]byte("timeout: 45s"), &cfg))
	assert.Equal(t, 45*time.Second, cfg.Timeout.Duration)

	require.Error(t, yaml.Unmarshal([]byte("timeout: nonsense"), &cfg))
}

func TestDuration_TOMLUnmarshal(t *testing.T) {
	var cfg struct {
		Timeout Duration `toml:"timeout"`
	}

	_, err := toml.Decode(`timeout = "2m"`, &cfg)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Timeout.Duration)
}
