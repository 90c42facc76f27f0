package traders

import (
	"context"
	"time"

	"github.com/google/uuid"

	"auction-lab/src/config"
	"auction-lab/src/engine"
	"auction-lab/src/market"
)

// BookInitializer seeds a symmetric ladder of resting orders around the
// default price once trading starts, then idles for the rest of the market.
type BookInitializer struct {
	AgentBase
	cfg          config.BookInitializerConfig
	defaultPrice int64
	seeded       bool
}

func NewBookInitializer(mkt *market.Market, cfg config.BookInitializerConfig, defaultPrice int64) *BookInitializer {
	t := &BookInitializer{
		cfg:          cfg,
		defaultPrice: defaultPrice,
	}
	t.AgentBase = newAgentBase("bookinit:"+uuid.New().String(), "book_initializer", RoleSpeculator, 0, mkt)
	return t
}

func (t *BookInitializer) Start() {
	t.runLoop(t.think, t.step)
}

func (t *BookInitializer) think() time.Duration {
	if !t.seeded {
		return 50 * time.Millisecond
	}
	// nothing left to do; wake rarely so Stop is still observed promptly
	return time.Minute
}

func (t *BookInitializer) step(ctx context.Context) error {
	if t.seeded {
		return nil
	}
	t.seeded = true

	step := t.cfg.StepCents
	if step <= 0 {
		step = 100
	}

	for i := 1; i <= t.cfg.Levels; i++ {
		if ctx.Err() != nil {
			return nil
		}
		bidPrice := t.defaultPrice - int64(i)*step
		askPrice := t.defaultPrice + int64(i)*step
		if bidPrice > 0 {
			if _, err := t.submit(engine.SideBid, bidPrice, t.cfg.AmountPerLevel); err != nil {
				return err
			}
		}
		if _, err := t.submit(engine.SideAsk, askPrice, t.cfg.AmountPerLevel); err != nil {
			return err
		}
	}

	t.logger.Info().
		Int("levels", t.cfg.Levels).
		Int64("default_price", t.defaultPrice).
		Msg("Book seeded")
	return nil
}
