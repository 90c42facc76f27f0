package config

import "fmt"

const (
	RoleInformed   = "INFORMED"
	RoleSpeculator = "SPECULATOR"
)

func (c *Config) Validate() error {
	if c.Market.DurationSeconds <= 0 {
		return fmt.Errorf("market.duration_seconds must be positive, got %d", c.Market.DurationSeconds)
	}
	if c.Market.TickSeconds <= 0 {
		return fmt.Errorf("market.tick_seconds must be positive, got %d", c.Market.TickSeconds)
	}
	if c.Market.UnwindPenalty < 0 || c.Market.UnwindPenalty >= 1 {
		return fmt.Errorf("market.unwind_penalty must be in [0,1), got %f", c.Market.UnwindPenalty)
	}
	if c.Market.DefaultPriceCents <= 0 {
		return fmt.Errorf("market.default_price_cents must be positive, got %d", c.Market.DefaultPriceCents)
	}

	if err := validateTraders(&c.Traders); err != nil {
		return err
	}

	if len(c.Session.SlotTemplate) == 0 {
		return fmt.Errorf("session.slot_template must contain at least one slot")
	}
	if err := validateSlots(c.Session.SlotTemplate); err != nil {
		return err
	}

	for i, t := range c.Treatments.Sequence {
		if len(t.SlotTemplate) > 0 {
			if err := validateSlots(t.SlotTemplate); err != nil {
				return fmt.Errorf("treatments.sequence[%d]: %w", i, err)
			}
		}
	}

	return nil
}

// validateTraders checks the settings of every agent kind that will
// actually be instantiated. Zeroed sections for disabled kinds are fine.
func validateTraders(t *TradersConfig) error {
	if t.Noise.Count > 0 {
		if t.Noise.MaxAmount <= 0 {
			return fmt.Errorf("traders.noise.max_amount must be positive, got %d", t.Noise.MaxAmount)
		}
		if t.Noise.MaxOffsetCents < 0 {
			return fmt.Errorf("traders.noise.max_offset_cents must be non-negative, got %d", t.Noise.MaxOffsetCents)
		}
		if t.Noise.ThinkMinMs <= 0 {
			return fmt.Errorf("traders.noise.think_min_ms must be positive, got %d", t.Noise.ThinkMinMs)
		}
	}
	if t.Informed.Enabled {
		if t.Informed.ClipAmount <= 0 {
			return fmt.Errorf("traders.informed.clip_amount must be positive, got %d", t.Informed.ClipAmount)
		}
		if t.Informed.ThinkMinMs <= 0 {
			return fmt.Errorf("traders.informed.think_min_ms must be positive, got %d", t.Informed.ThinkMinMs)
		}
	}
	if t.Spoofing.Count > 0 {
		if t.Spoofing.Amount <= 0 {
			return fmt.Errorf("traders.spoofing.amount must be positive, got %d", t.Spoofing.Amount)
		}
		if t.Spoofing.OffsetCents <= 0 {
			return fmt.Errorf("traders.spoofing.offset_cents must be positive, got %d", t.Spoofing.OffsetCents)
		}
	}
	if t.Manipulator.Count > 0 && t.Manipulator.Amount <= 0 {
		return fmt.Errorf("traders.manipulator.amount must be positive, got %d", t.Manipulator.Amount)
	}
	if t.SimpleOrder.Count > 0 && t.SimpleOrder.Amount <= 0 {
		return fmt.Errorf("traders.simple_order.amount must be positive, got %d", t.SimpleOrder.Amount)
	}
	if t.BookInitializer.Enabled {
		if t.BookInitializer.Levels <= 0 {
			return fmt.Errorf("traders.book_initializer.levels must be positive, got %d", t.BookInitializer.Levels)
		}
		if t.BookInitializer.AmountPerLevel <= 0 {
			return fmt.Errorf("traders.book_initializer.amount_per_level must be positive, got %d", t.BookInitializer.AmountPerLevel)
		}
	}
	return nil
}

func validateSlots(slots []SlotSpec) error {
	for i, s := range slots {
		switch s.Role {
		case RoleInformed:
			if s.Goal == 0 {
				return fmt.Errorf("slot_template[%d]: informed slot needs a non-zero goal", i)
			}
		case RoleSpeculator:
			if s.Goal != 0 {
				return fmt.Errorf("slot_template[%d]: speculator slot must have goal 0", i)
			}
		default:
			return fmt.Errorf("slot_template[%d]: unknown role %q", i, s.Role)
		}
	}
	return nil
}
