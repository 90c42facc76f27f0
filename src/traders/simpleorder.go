package traders

import (
	"context"
	"time"

	"github.com/google/uuid"

	"auction-lab/src/config"
	"auction-lab/src/engine"
	"auction-lab/src/market"
)

// SimpleOrderTrader places one small order per fixed interval, alternating
// sides, one tick inside the working mid. Used as deterministic background
// flow in calibration runs.
type SimpleOrderTrader struct {
	AgentBase
	cfg          config.SimpleOrderConfig
	defaultPrice int64
	nextSide     engine.OrderSide
}

func NewSimpleOrderTrader(mkt *market.Market, cfg config.SimpleOrderConfig, defaultPrice int64) *SimpleOrderTrader {
	t := &SimpleOrderTrader{
		cfg:          cfg,
		defaultPrice: defaultPrice,
		nextSide:     engine.SideBid,
	}
	t.AgentBase = newAgentBase("simple:"+uuid.New().String(), "simple_order", RoleSpeculator, 0, mkt)
	return t
}

func (t *SimpleOrderTrader) Start() {
	t.runLoop(t.think, t.step)
}

func (t *SimpleOrderTrader) think() time.Duration {
	interval := time.Duration(t.cfg.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return interval
}

func (t *SimpleOrderTrader) step(ctx context.Context) error {
	ref := t.referencePrice(t.defaultPrice)

	side := t.nextSide
	t.nextSide = side.Opposite()

	price := ref - 1
	if side == engine.SideAsk {
		price = ref + 1
	}
	if price <= 0 {
		price = 1
	}

	amount := t.cfg.Amount
	if amount <= 0 {
		amount = 1
	}

	_, err := t.submit(side, price, amount)
	return err
}
