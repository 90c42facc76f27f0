package traders

import (
	"context"
	"time"

	"github.com/google/uuid"

	"auction-lab/src/engine"
	"auction-lab/src/market"
)

// MarketView is the state handed to an external decision collaborator.
type MarketView struct {
	MarketID   string
	BestBid    int64
	BestAsk    int64
	MidPrice   float64
	Position   int64
	Cash       float64
	RecentTxns []*engine.Transaction
}

// Action is one decision returned by a Decider: place an order, cancel one,
// or hold (empty Side and CancelID).
type Action struct {
	Side     engine.OrderSide
	Price    int64
	Amount   int64
	CancelID string
}

// Decider is the collaborator interface for model-driven agents. Its
// internals (prompting, inference, etc.) live outside this process's core.
type Decider interface {
	Decide(ctx context.Context, view MarketView) (*Action, error)
}

// AgenticTrader consults an injected Decider each tick. Without one it
// idles; the engine must function with the collaborator entirely absent.
type AgenticTrader struct {
	AgentBase
	decider Decider
	thinkMs int
}

func NewAgenticTrader(mkt *market.Market, decider Decider, thinkMs int) *AgenticTrader {
	t := &AgenticTrader{
		decider: decider,
		thinkMs: thinkMs,
	}
	t.AgentBase = newAgentBase("agentic:"+uuid.New().String(), "agentic", RoleSpeculator, 0, mkt)
	return t
}

func (t *AgenticTrader) Start() {
	t.runLoop(t.think, t.step)
}

func (t *AgenticTrader) think() time.Duration {
	if t.thinkMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(t.thinkMs) * time.Millisecond
}

func (t *AgenticTrader) step(ctx context.Context) error {
	if t.decider == nil {
		return nil
	}

	view := MarketView{
		MarketID:   t.mkt.ID,
		Position:   t.Position(),
		Cash:       t.Cash(),
		RecentTxns: t.mkt.Transactions(10),
	}
	if bid, _, ok := t.mkt.Book().BestBid(); ok {
		view.BestBid = bid
	}
	if ask, _, ok := t.mkt.Book().BestAsk(); ok {
		view.BestAsk = ask
	}
	if mid, ok := t.mkt.Book().MidPrice(); ok {
		view.MidPrice = mid
	}

	action, err := t.decider.Decide(ctx, view)
	if err != nil {
		return err
	}
	if action == nil {
		return nil
	}

	if action.CancelID != "" {
		t.cancelOrder(action.CancelID)
		return nil
	}
	if action.Side == "" {
		return nil
	}

	_, err = t.submit(action.Side, action.Price, action.Amount)
	return err
}
