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

// SpoofingTrader rests a large order far enough from the mid that it should
// never execute, holds it briefly to distort the visible book, then pulls
// it. Alternates sides.
type SpoofingTrader struct {
	AgentBase
	cfg          config.SpoofingConfig
	defaultPrice int64

	nextSide engine.OrderSide
	openID   string
}

func NewSpoofingTrader(mkt *market.Market, cfg config.SpoofingConfig, defaultPrice int64) *SpoofingTrader {
	t := &SpoofingTrader{
		cfg:          cfg,
		defaultPrice: defaultPrice,
		nextSide:     engine.SideBid,
	}
	t.AgentBase = newAgentBase("spoofing:"+uuid.New().String(), "spoofing", RoleSpeculator, 0, mkt)
	return t
}

func (t *SpoofingTrader) Start() {
	t.runLoop(t.think, t.step)
}

func (t *SpoofingTrader) think() time.Duration {
	hold := time.Duration(t.cfg.HoldMs) * time.Millisecond
	if hold <= 0 {
		hold = 4 * time.Second
	}
	// jitter so placements do not phase-lock with other agents
	return hold + time.Duration(rand.Intn(500))*time.Millisecond
}

// step alternates: pull the open spoof, or place a fresh one on the next
// side.
func (t *SpoofingTrader) step(ctx context.Context) error {
	if t.openID != "" {
		t.cancelOrder(t.openID)
		t.openID = ""
		return nil
	}

	ref := t.referencePrice(t.defaultPrice)

	side := t.nextSide
	t.nextSide = side.Opposite()

	price := ref - t.cfg.OffsetCents
	if side == engine.SideAsk {
		price = ref + t.cfg.OffsetCents
	}
	if price <= 0 {
		price = 1
	}

	res, err := t.submit(side, price, t.cfg.Amount)
	if err != nil {
		return err
	}
	if res != nil && !res.Matched {
		t.openID = res.Order.ID
	}
	return nil
}
