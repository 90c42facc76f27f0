package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Market     MarketConfig     `mapstructure:"market"`
	Traders    TradersConfig    `mapstructure:"traders"`
	Session    SessionConfig    `mapstructure:"session"`
	Treatments TreatmentsConfig `mapstructure:"treatments"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type MarketConfig struct {
	DurationSeconds   int     `mapstructure:"duration_seconds"`
	TickSeconds       int     `mapstructure:"tick_seconds"`
	UnwindPenalty     float64 `mapstructure:"unwind_penalty"`
	DefaultPriceCents int64   `mapstructure:"default_price_cents"`
	SnapshotDepth     int     `mapstructure:"snapshot_depth"`
}

type NoiseConfig struct {
	Count          int   `mapstructure:"count"`
	ThinkMinMs     int   `mapstructure:"think_min_ms"`
	ThinkMaxMs     int   `mapstructure:"think_max_ms"`
	MaxOffsetCents int64 `mapstructure:"max_offset_cents"`
	MaxAmount      int64 `mapstructure:"max_amount"`
}

type InformedConfig struct {
	Enabled    bool  `mapstructure:"enabled"`
	Goal       int64 `mapstructure:"goal"`
	ThinkMinMs int   `mapstructure:"think_min_ms"`
	ThinkMaxMs int   `mapstructure:"think_max_ms"`
	ClipAmount int64 `mapstructure:"clip_amount"`
}

type SpoofingConfig struct {
	Count       int   `mapstructure:"count"`
	OffsetCents int64 `mapstructure:"offset_cents"`
	Amount      int64 `mapstructure:"amount"`
	HoldMs      int   `mapstructure:"hold_ms"`
}

type ManipulatorConfig struct {
	Count     int   `mapstructure:"count"`
	BurstSize int   `mapstructure:"burst_size"`
	Amount    int64 `mapstructure:"amount"`
	ThinkMs   int   `mapstructure:"think_ms"`
}

type SimpleOrderConfig struct {
	Count      int   `mapstructure:"count"`
	IntervalMs int   `mapstructure:"interval_ms"`
	Amount     int64 `mapstructure:"amount"`
}

type BookInitializerConfig struct {
	Enabled        bool  `mapstructure:"enabled"`
	Levels         int   `mapstructure:"levels"`
	AmountPerLevel int64 `mapstructure:"amount_per_level"`
	StepCents      int64 `mapstructure:"step_cents"`
}

type TradersConfig struct {
	Noise           NoiseConfig           `mapstructure:"noise"`
	Informed        InformedConfig        `mapstructure:"informed"`
	Spoofing        SpoofingConfig        `mapstructure:"spoofing"`
	Manipulator     ManipulatorConfig     `mapstructure:"manipulator"`
	SimpleOrder     SimpleOrderConfig     `mapstructure:"simple_order"`
	BookInitializer BookInitializerConfig `mapstructure:"book_initializer"`
}

// SlotSpec is one required human seat in a not-yet-formed market.
type SlotSpec struct {
	Role string `mapstructure:"role"` // INFORMED or SPECULATOR
	Goal int64  `mapstructure:"goal"` // signed; 0 for speculators
}

type SessionConfig struct {
	SlotTemplate []SlotSpec `mapstructure:"slot_template"`
}

// TreatmentOverride is a sparse patch merged over base parameters for one
// market index. Nil fields leave the base value untouched.
type TreatmentOverride struct {
	NoiseCount       *int       `mapstructure:"noise_count"`
	InformedEnabled  *bool      `mapstructure:"informed_enabled"`
	SpoofingCount    *int       `mapstructure:"spoofing_count"`
	ManipulatorCount *int       `mapstructure:"manipulator_count"`
	DurationSeconds  *int       `mapstructure:"duration_seconds"`
	UnwindPenalty    *float64   `mapstructure:"unwind_penalty"`
	SlotTemplate     []SlotSpec `mapstructure:"slot_template"`
}

type TreatmentsConfig struct {
	Enabled  bool                `mapstructure:"enabled"`
	Sequence []TreatmentOverride `mapstructure:"sequence"`
}

// Load reads an optional yaml file and unmarshals over the defaults. A
// missing file is not an error: the defaults alone are a runnable setup.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
