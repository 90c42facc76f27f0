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

// NoiseTrader submits random liquidity around the working mid on a
// stochastic think time. It keeps at most a handful of resting orders and
// occasionally cancels its oldest one.
type NoiseTrader struct {
	AgentBase
	cfg          config.NoiseConfig
	defaultPrice int64

	resting []string // order ids, oldest first
}

func NewNoiseTrader(mkt *market.Market, cfg config.NoiseConfig, defaultPrice int64) *NoiseTrader {
	t := &NoiseTrader{
		cfg:          cfg,
		defaultPrice: defaultPrice,
	}
	t.AgentBase = newAgentBase("noise:"+uuid.New().String(), "noise", RoleSpeculator, 0, mkt)
	return t
}

func (t *NoiseTrader) Start() {
	t.runLoop(t.think, t.step)
}

// think draws uniformly from the configured window.
func (t *NoiseTrader) think() time.Duration {
	span := t.cfg.ThinkMaxMs - t.cfg.ThinkMinMs
	if span <= 0 {
		return time.Duration(t.cfg.ThinkMinMs) * time.Millisecond
	}
	return time.Duration(t.cfg.ThinkMinMs+rand.Intn(span)) * time.Millisecond
}

func (t *NoiseTrader) step(ctx context.Context) error {
	// roughly one cancel per five placements once orders are resting
	if len(t.resting) > 0 && rand.Intn(5) == 0 {
		oldest := t.resting[0]
		t.resting = t.resting[1:]
		t.cancelOrder(oldest)
		return nil
	}

	ref := t.referencePrice(t.defaultPrice)

	side := engine.SideBid
	if rand.Intn(2) == 1 {
		side = engine.SideAsk
	}

	offset := rand.Int63n(t.cfg.MaxOffsetCents + 1)
	price := ref - offset
	if side == engine.SideAsk {
		price = ref + offset
	}
	if price <= 0 {
		price = 1
	}

	amount := 1 + rand.Int63n(t.cfg.MaxAmount)

	res, err := t.submit(side, price, amount)
	if err != nil {
		return err
	}
	if res != nil && !res.Matched {
		t.resting = append(t.resting, res.Order.ID)
		if len(t.resting) > 10 {
			t.resting = t.resting[1:]
		}
	}
	return nil
}
