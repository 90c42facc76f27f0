package traders

import (
	"auction-lab/src/engine"
	"auction-lab/src/market"
)

// HumanTrader is the passive shell behind a connected participant. All of
// its actions arrive over the websocket path; it runs no loop of its own.
type HumanTrader struct {
	AgentBase
	Username string
}

func NewHumanTrader(id, username string, role Role, goal int64, mkt *market.Market) *HumanTrader {
	t := &HumanTrader{Username: username}
	t.AgentBase = newAgentBase(id, "human", role, goal, mkt)
	return t
}

func (t *HumanTrader) Start() {
	// driven externally
}

// Submit forwards a participant order through the market's serialized
// order path.
func (t *HumanTrader) Submit(side engine.OrderSide, price, amount int64) (*market.SubmitResult, error) {
	return t.mkt.SubmitOrder(t.id, side, price, amount)
}

func (t *HumanTrader) Cancel(orderID string) error {
	return t.mkt.CancelOrder(t.id, orderID)
}
