package traders

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"auction-lab/src/config"
	"auction-lab/src/engine"
	"auction-lab/src/market"
)

// ManipulatorTrader fires short bursts of aggressive same-side orders to
// push the price, flipping direction between bursts.
type ManipulatorTrader struct {
	AgentBase
	cfg          config.ManipulatorConfig
	defaultPrice int64
	direction    engine.OrderSide
}

func NewManipulatorTrader(mkt *market.Market, cfg config.ManipulatorConfig, defaultPrice int64) *ManipulatorTrader {
	t := &ManipulatorTrader{
		cfg:          cfg,
		defaultPrice: defaultPrice,
		direction:    engine.SideBid,
	}
	t.AgentBase = newAgentBase("manipulator:"+uuid.New().String(), "manipulator", RoleSpeculator, 0, mkt)
	return t
}

func (t *ManipulatorTrader) Start() {
	t.runLoop(t.think, t.step)
}

func (t *ManipulatorTrader) think() time.Duration {
	think := time.Duration(t.cfg.ThinkMs) * time.Millisecond
	if think <= 0 {
		think = 6 * time.Second
	}
	return think
}

func (t *ManipulatorTrader) step(ctx context.Context) error {
	burst := t.cfg.BurstSize
	if burst <= 0 {
		burst = 1
	}

	side := t.direction
	t.direction = side.Opposite()

	for i := 0; i < burst; i++ {
		if ctx.Err() != nil {
			return nil
		}

		ref := t.referencePrice(t.defaultPrice)

		// walk the price with each shot to drag the mid along
		price := ref + int64(i+1)
		if side == engine.SideAsk {
			price = ref - int64(i+1)
		}
		if price <= 0 {
			price = 1
		}

		if _, err := t.submit(side, price, t.cfg.Amount); err != nil {
			return err
		}

		// brief stagger inside the burst
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(50+rand.Intn(100)) * time.Millisecond):
		}
	}
	return nil
}
