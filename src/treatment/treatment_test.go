package treatment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auction-lab/src/config"
	"auction-lab/src/treatment"
)

func intPtr(v int) *int           { return &v }
func boolPtr(v bool) *bool        { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestForIndex(t *testing.T) {
	m := treatment.NewManager(config.TreatmentsConfig{
		Enabled: true,
		Sequence: []config.TreatmentOverride{
			{NoiseCount: intPtr(5)},
			{NoiseCount: intPtr(0)},
		},
	})

	ov := m.ForIndex(0)
	require.NotNil(t, ov)
	assert.Equal(t, 5, *ov.NoiseCount)

	ov = m.ForIndex(1)
	require.NotNil(t, ov)
	assert.Equal(t, 0, *ov.NoiseCount)

	// past the end of the sequence falls back to base parameters
	assert.Nil(t, m.ForIndex(2))
	assert.Nil(t, m.ForIndex(-1))
}

func TestForIndexDisabled(t *testing.T) {
	m := treatment.NewManager(config.TreatmentsConfig{
		Enabled:  false,
		Sequence: []config.TreatmentOverride{{NoiseCount: intPtr(5)}},
	})
	assert.Nil(t, m.ForIndex(0))
}

func TestApplyNilOverride(t *testing.T) {
	base := config.Config{}
	base.Traders.Noise.Count = 3

	out := treatment.Apply(base, nil)
	assert.Equal(t, base, out)
}

func TestApplyMergesSparseFields(t *testing.T) {
	base := config.Config{}
	base.Traders.Noise.Count = 3
	base.Traders.Informed.Enabled = true
	base.Traders.Spoofing.Count = 1
	base.Market.DurationSeconds = 300
	base.Market.UnwindPenalty = 0.1
	base.Session.SlotTemplate = []config.SlotSpec{{Role: config.RoleInformed, Goal: 20}}

	out := treatment.Apply(base, &config.TreatmentOverride{
		NoiseCount:      intPtr(7),
		InformedEnabled: boolPtr(false),
		DurationSeconds: intPtr(120),
		UnwindPenalty:   floatPtr(0.2),
	})

	assert.Equal(t, 7, out.Traders.Noise.Count)
	assert.False(t, out.Traders.Informed.Enabled)
	assert.Equal(t, 120, out.Market.DurationSeconds)
	assert.Equal(t, 0.2, out.Market.UnwindPenalty)

	// untouched fields keep base values
	assert.Equal(t, 1, out.Traders.Spoofing.Count)
	assert.Equal(t, base.Session.SlotTemplate, out.Session.SlotTemplate)

	// base itself is never mutated
	assert.Equal(t, 3, base.Traders.Noise.Count)
	assert.True(t, base.Traders.Informed.Enabled)
}

func TestApplySlotTemplateCopied(t *testing.T) {
	base := config.Config{}
	base.Session.SlotTemplate = []config.SlotSpec{{Role: config.RoleSpeculator, Goal: 0}}

	ov := &config.TreatmentOverride{
		SlotTemplate: []config.SlotSpec{
			{Role: config.RoleInformed, Goal: -20},
			{Role: config.RoleSpeculator, Goal: 0},
		},
	}
	out := treatment.Apply(base, ov)

	require.Len(t, out.Session.SlotTemplate, 2)
	assert.Equal(t, int64(-20), out.Session.SlotTemplate[0].Goal)

	// mutating the override afterwards must not leak into the result
	ov.SlotTemplate[0].Goal = 99
	assert.Equal(t, int64(-20), out.Session.SlotTemplate[0].Goal)
}
