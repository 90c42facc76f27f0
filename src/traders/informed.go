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

// InformedTrader works a private signed goal down over the market's life.
// Positive goals accumulate shares, negative goals shed them. Think time
// shortens as the remaining goal grows relative to time left (urgency).
type InformedTrader struct {
	AgentBase
	cfg          config.InformedConfig
	defaultPrice int64
	deadline     time.Time
	lifetime     time.Duration
}

func NewInformedTrader(mkt *market.Market, cfg config.InformedConfig, defaultPrice int64, lifetime time.Duration) *InformedTrader {
	t := &InformedTrader{
		cfg:          cfg,
		defaultPrice: defaultPrice,
		deadline:     time.Now().Add(lifetime),
		lifetime:     lifetime,
	}
	t.AgentBase = newAgentBase("informed:"+uuid.New().String(), "informed", RoleInformed, cfg.Goal, mkt)
	return t
}

func (t *InformedTrader) Start() {
	t.runLoop(t.think, t.step)
}

// remainingGoal is how much position is still missing, signed toward the
// goal.
func (t *InformedTrader) remainingGoal() int64 {
	return t.goal - t.Position()
}

// think scales the configured window down by urgency: the closer the
// deadline and the larger the leftover goal, the faster the next action.
// Pure function of agent state, independent of the loop primitive.
func (t *InformedTrader) think() time.Duration {
	minD := time.Duration(t.cfg.ThinkMinMs) * time.Millisecond
	maxD := time.Duration(t.cfg.ThinkMaxMs) * time.Millisecond
	if maxD <= minD {
		return minD
	}

	left := time.Until(t.deadline)
	if left <= 0 {
		return minD
	}
	timeFrac := float64(left) / float64(t.lifetime)
	if timeFrac > 1 {
		timeFrac = 1
	}

	goalFrac := 1.0
	if t.goal != 0 {
		goalFrac = float64(abs64(t.remainingGoal())) / float64(abs64(t.goal))
		if goalFrac > 1 {
			goalFrac = 1
		}
	}

	// urgent when little time and much goal remain
	scale := timeFrac * (1 - goalFrac/2)
	return minD + time.Duration(scale*float64(maxD-minD))
}

func (t *InformedTrader) step(ctx context.Context) error {
	remaining := t.remainingGoal()
	if remaining == 0 {
		return nil
	}

	amount := t.cfg.ClipAmount
	if amount <= 0 {
		amount = 1
	}
	if abs64(remaining) < amount {
		amount = abs64(remaining)
	}

	ref := t.referencePrice(t.defaultPrice)

	// cross the spread to execute: buyers lift the ask, sellers hit the bid
	var side engine.OrderSide
	var price int64
	if remaining > 0 {
		side = engine.SideBid
		if ask, _, ok := t.mkt.Book().BestAsk(); ok {
			price = ask
		} else {
			price = ref + 1 + rand.Int63n(3)
		}
	} else {
		side = engine.SideAsk
		if bid, _, ok := t.mkt.Book().BestBid(); ok {
			price = bid
		} else {
			price = ref - 1 - rand.Int63n(3)
		}
	}
	if price <= 0 {
		price = 1
	}

	_, err := t.submit(side, price, amount)
	return err
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
