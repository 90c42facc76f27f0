package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auction-lab/src/config"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 300, cfg.Market.DurationSeconds)
	assert.Equal(t, 1, cfg.Market.TickSeconds)
	assert.Equal(t, 0.1, cfg.Market.UnwindPenalty)
	assert.Equal(t, int64(10000), cfg.Market.DefaultPriceCents)

	assert.Equal(t, 2, cfg.Traders.Noise.Count)
	assert.True(t, cfg.Traders.BookInitializer.Enabled)
	assert.False(t, cfg.Traders.Informed.Enabled)

	require.Len(t, cfg.Session.SlotTemplate, 2)
	assert.Equal(t, config.RoleInformed, cfg.Session.SlotTemplate[0].Role)
	assert.Equal(t, int64(20), cfg.Session.SlotTemplate[0].Goal)
	assert.Equal(t, config.RoleSpeculator, cfg.Session.SlotTemplate[1].Role)

	assert.False(t, cfg.Treatments.Enabled)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
market:
  duration_seconds: 120
  unwind_penalty: 0.25
traders:
  noise:
    count: 6
  informed:
    enabled: true
    goal: -30
session:
  slot_template:
    - role: INFORMED
      goal: -30
    - role: SPECULATOR
      goal: 0
    - role: SPECULATOR
      goal: 0
treatments:
  enabled: true
  sequence:
    - noise_count: 0
      duration_seconds: 60
    - informed_enabled: false
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 120, cfg.Market.DurationSeconds)
	assert.Equal(t, 0.25, cfg.Market.UnwindPenalty)

	// untouched keys keep defaults
	assert.Equal(t, 1, cfg.Market.TickSeconds)
	assert.Equal(t, int64(10000), cfg.Market.DefaultPriceCents)

	assert.Equal(t, 6, cfg.Traders.Noise.Count)
	assert.True(t, cfg.Traders.Informed.Enabled)
	assert.Equal(t, int64(-30), cfg.Traders.Informed.Goal)

	require.Len(t, cfg.Session.SlotTemplate, 3)
	assert.Equal(t, int64(-30), cfg.Session.SlotTemplate[0].Goal)

	assert.True(t, cfg.Treatments.Enabled)
	require.Len(t, cfg.Treatments.Sequence, 2)
	require.NotNil(t, cfg.Treatments.Sequence[0].NoiseCount)
	assert.Equal(t, 0, *cfg.Treatments.Sequence[0].NoiseCount)
	require.NotNil(t, cfg.Treatments.Sequence[0].DurationSeconds)
	assert.Equal(t, 60, *cfg.Treatments.Sequence[0].DurationSeconds)
	assert.Nil(t, cfg.Treatments.Sequence[0].InformedEnabled)
	require.NotNil(t, cfg.Treatments.Sequence[1].InformedEnabled)
	assert.False(t, *cfg.Treatments.Sequence[1].InformedEnabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"zero duration", "market:\n  duration_seconds: 0\n"},
		{"negative tick", "market:\n  tick_seconds: -1\n"},
		{"penalty too large", "market:\n  unwind_penalty: 1.5\n"},
		{"zero default price", "market:\n  default_price_cents: 0\n"},
		{"informed zero goal", "session:\n  slot_template:\n    - role: INFORMED\n      goal: 0\n"},
		{"speculator nonzero goal", "session:\n  slot_template:\n    - role: SPECULATOR\n      goal: 5\n"},
		{"unknown role", "session:\n  slot_template:\n    - role: WIZARD\n      goal: 1\n"},
		{"noise zero amount", "traders:\n  noise:\n    max_amount: 0\n"},
		{"noise negative offset", "traders:\n  noise:\n    max_offset_cents: -1\n"},
		{"noise zero think", "traders:\n  noise:\n    think_min_ms: 0\n"},
		{"informed zero clip", "traders:\n  informed:\n    enabled: true\n    clip_amount: 0\n"},
		{"spoofing zero amount", "traders:\n  spoofing:\n    count: 1\n    amount: 0\n"},
		{"bookinit zero levels", "traders:\n  book_initializer:\n    levels: 0\n"},
		{"bad treatment slots", "treatments:\n  sequence:\n    - slot_template:\n        - role: INFORMED\n          goal: 0\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tc.yaml))
			assert.Error(t, err)
		})
	}
}
