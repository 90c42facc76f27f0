package treatment

import (
	"github.com/rs/zerolog/log"

	"auction-lab/src/config"
)

// Manager hands out sequenced per-market parameter overrides. A user's
// 0-based market index selects the override; indexes past the end of the
// sequence (or a disabled manager) fall back to the base parameters.
type Manager struct {
	enabled  bool
	sequence []config.TreatmentOverride
}

func NewManager(cfg config.TreatmentsConfig) *Manager {
	return &Manager{
		enabled:  cfg.Enabled,
		sequence: cfg.Sequence,
	}
}

func (m *Manager) ForIndex(marketIndex int) *config.TreatmentOverride {
	if m == nil || !m.enabled {
		return nil
	}
	if marketIndex < 0 || marketIndex >= len(m.sequence) {
		return nil
	}
	return &m.sequence[marketIndex]
}

// Apply merges an override over a copy of the base configuration. The base
// is never mutated; nil fields keep their base values.
func Apply(base config.Config, ov *config.TreatmentOverride) config.Config {
	if ov == nil {
		return base
	}

	out := base

	if ov.NoiseCount != nil {
		out.Traders.Noise.Count = *ov.NoiseCount
	}
	if ov.InformedEnabled != nil {
		out.Traders.Informed.Enabled = *ov.InformedEnabled
	}
	if ov.SpoofingCount != nil {
		out.Traders.Spoofing.Count = *ov.SpoofingCount
	}
	if ov.ManipulatorCount != nil {
		out.Traders.Manipulator.Count = *ov.ManipulatorCount
	}
	if ov.DurationSeconds != nil {
		out.Market.DurationSeconds = *ov.DurationSeconds
	}
	if ov.UnwindPenalty != nil {
		out.Market.UnwindPenalty = *ov.UnwindPenalty
	}
	if len(ov.SlotTemplate) > 0 {
		out.Session.SlotTemplate = append([]config.SlotSpec(nil), ov.SlotTemplate...)
	}

	log.Debug().
		Bool("noise_override", ov.NoiseCount != nil).
		Bool("informed_override", ov.InformedEnabled != nil).
		Bool("slots_override", len(ov.SlotTemplate) > 0).
		Msg("Treatment override applied")

	return out
}
