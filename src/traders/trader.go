package traders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"auction-lab/src/engine"
	"auction-lab/src/market"
)

type Role string

const (
	RoleInformed   Role = "INFORMED"
	RoleSpeculator Role = "SPECULATOR"
)

// Trader is one agent (algorithmic or human) owned by exactly one market
// for its lifetime.
type Trader interface {
	market.InventoryHolder
	Kind() string
	Role() Role
	Goal() int64
	Cash() float64
	Start()
	Stop()
}

type Fill struct {
	Side      engine.OrderSide
	Amount    int64
	Price     float64
	Timestamp int64
}

// AgentBase carries the state every trader shares: identity, inventory,
// fill history, a non-owning handle to its market, and the stop plumbing.
// The concrete agents embed it and supply a think/step pair.
type AgentBase struct {
	id   string
	kind string
	role Role
	goal int64

	mkt *market.Market

	mu     sync.Mutex
	cash   float64
	shares int64
	fills  []Fill

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger zerolog.Logger
}

func newAgentBase(id, kind string, role Role, goal int64, mkt *market.Market) AgentBase {
	ctx, cancel := context.WithCancel(context.Background())
	return AgentBase{
		id:     id,
		kind:   kind,
		role:   role,
		goal:   goal,
		mkt:    mkt,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With().
			Str("market_id", mkt.ID).
			Str("trader_id", id).
			Str("kind", kind).
			Logger(),
	}
}

func (a *AgentBase) TraderID() string { return a.id }
func (a *AgentBase) Kind() string     { return a.kind }
func (a *AgentBase) Role() Role       { return a.role }
func (a *AgentBase) Goal() int64      { return a.goal }

func (a *AgentBase) Position() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.shares
}

func (a *AgentBase) Cash() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash
}

func (a *AgentBase) Fills() []Fill {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Fill, len(a.fills))
	copy(out, a.fills)
	return out
}

func (a *AgentBase) ApplyFill(side engine.OrderSide, amount int64, price float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if side == engine.SideBid {
		a.shares += amount
		a.cash -= price * float64(amount)
	} else {
		a.shares -= amount
		a.cash += price * float64(amount)
	}
	a.fills = append(a.fills, Fill{
		Side:      side,
		Amount:    amount,
		Price:     price,
		Timestamp: time.Now().UnixMilli(),
	})
}

// TransientAgentError wraps one failed or panicking agent step. It is
// contained at the loop boundary: the loop logs it and continues next tick,
// and no other agent or the market lifecycle is affected.
type TransientAgentError struct {
	TraderID string
	Cause    any
}

func (e *TransientAgentError) Error() string {
	return fmt.Sprintf("agent %s step failed: %v", e.TraderID, e.Cause)
}

// runLoop is the shared sleep-then-act loop: think computes the next delay
// as a pure function of agent state, step does one action. A step error or
// panic is logged and the loop continues next tick; only cancellation
// exits.
func (a *AgentBase) runLoop(think func() time.Duration, step func(ctx context.Context) error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			delay := think()
			timer := time.NewTimer(delay)
			select {
			case <-a.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			if err := a.safeStep(step); err != nil {
				if a.ctx.Err() != nil {
					return
				}
				a.logger.Warn().Err(err).Msg("Agent step failed, continuing")
			}
		}
	}()
}

// safeStep runs one step with panic containment. A panicking step must not
// take down the loop goroutine, the market, or the process.
func (a *AgentBase) safeStep(step func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TransientAgentError{TraderID: a.id, Cause: r}
		}
	}()
	return step(a.ctx)
}

// Stop is cooperative and idempotent: cancel the context and wait for the
// loop to observe it.
func (a *AgentBase) Stop() {
	a.stopOnce.Do(func() {
		a.cancel()
	})
	a.wg.Wait()
}

// submit routes through the market's order API; an inactive market is not
// an agent failure.
func (a *AgentBase) submit(side engine.OrderSide, price, amount int64) (*market.SubmitResult, error) {
	res, err := a.mkt.SubmitOrder(a.id, side, price, amount)
	if err != nil {
		if _, inactive := err.(*market.InactiveError); inactive {
			return nil, nil
		}
		return nil, err
	}
	return res, nil
}

func (a *AgentBase) cancelOrder(orderID string) {
	if err := a.mkt.CancelOrder(a.id, orderID); err != nil {
		switch err.(type) {
		case *market.InactiveError, *market.NotFoundError:
			// already closed or already gone
		default:
			a.logger.Warn().Err(err).Str("order_id", orderID).Msg("Cancel failed")
		}
	}
}

// referencePrice is the working mid: book mid when both sides rest, else
// the configured default.
func (a *AgentBase) referencePrice(defaultPrice int64) int64 {
	if mid, ok := a.mkt.Book().MidPrice(); ok {
		return int64(mid)
	}
	return defaultPrice
}
