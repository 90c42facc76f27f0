package config

import "github.com/spf13/viper"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")

	v.SetDefault("market.duration_seconds", 300)
	v.SetDefault("market.tick_seconds", 1)
	v.SetDefault("market.unwind_penalty", 0.1)
	v.SetDefault("market.default_price_cents", 10000)
	v.SetDefault("market.snapshot_depth", 10)

	v.SetDefault("traders.noise.count", 2)
	v.SetDefault("traders.noise.think_min_ms", 500)
	v.SetDefault("traders.noise.think_max_ms", 3000)
	v.SetDefault("traders.noise.max_offset_cents", 200)
	v.SetDefault("traders.noise.max_amount", 5)

	v.SetDefault("traders.informed.enabled", false)
	v.SetDefault("traders.informed.goal", 20)
	v.SetDefault("traders.informed.think_min_ms", 1000)
	v.SetDefault("traders.informed.think_max_ms", 5000)
	v.SetDefault("traders.informed.clip_amount", 2)

	v.SetDefault("traders.spoofing.count", 0)
	v.SetDefault("traders.spoofing.offset_cents", 500)
	v.SetDefault("traders.spoofing.amount", 50)
	v.SetDefault("traders.spoofing.hold_ms", 4000)

	v.SetDefault("traders.manipulator.count", 0)
	v.SetDefault("traders.manipulator.burst_size", 3)
	v.SetDefault("traders.manipulator.amount", 10)
	v.SetDefault("traders.manipulator.think_ms", 6000)

	v.SetDefault("traders.simple_order.count", 0)
	v.SetDefault("traders.simple_order.interval_ms", 2000)
	v.SetDefault("traders.simple_order.amount", 1)

	v.SetDefault("traders.book_initializer.enabled", true)
	v.SetDefault("traders.book_initializer.levels", 5)
	v.SetDefault("traders.book_initializer.amount_per_level", 10)
	v.SetDefault("traders.book_initializer.step_cents", 100)

	v.SetDefault("session.slot_template", []map[string]any{
		{"role": "INFORMED", "goal": 20},
		{"role": "SPECULATOR", "goal": 0},
	})

	v.SetDefault("treatments.enabled", false)
	v.SetDefault("treatments.sequence", []map[string]any{})
}
