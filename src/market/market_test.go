package market_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auction-lab/src/engine"
	"auction-lab/src/market"
)

// fakeHolder is a minimal inventory holder tracking signed position and cash.
type fakeHolder struct {
	id    string
	mu    sync.Mutex
	pos   int64
	cash  float64
	fills int
}

func (h *fakeHolder) TraderID() string { return h.id }

func (h *fakeHolder) Position() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos
}

func (h *fakeHolder) ApplyFill(side engine.OrderSide, amount int64, price float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fills++
	if side == engine.SideBid {
		h.pos += amount
		h.cash -= float64(amount) * price
	} else {
		h.pos -= amount
		h.cash += float64(amount) * price
	}
}

// fakeSubscriber records events; failAfter > 0 makes Deliver start erroring
// after that many deliveries.
type fakeSubscriber struct {
	mu        sync.Mutex
	events    []market.Event
	failAfter int
}

func (s *fakeSubscriber) Deliver(ev market.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && len(s.events) >= s.failAfter {
		return errors.New("subscriber gone")
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeSubscriber) kinds() []market.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]market.EventKind, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Kind)
	}
	return out
}

func testConfig() market.Config {
	return market.Config{
		Duration:      time.Hour,
		Tick:          time.Second,
		UnwindPenalty: 0.1,
		DefaultPrice:  10000,
	}
}

func newTradingMarket(t *testing.T, holders ...*fakeHolder) *market.Market {
	t.Helper()
	m := market.New("m-test", testConfig())
	for _, h := range holders {
		m.AttachHolder(h)
	}
	m.Start()
	t.Cleanup(m.Stop)
	return m
}

func TestSubmitBeforeStart(t *testing.T) {
	m := market.New("m-test", testConfig())
	m.AttachHolder(&fakeHolder{id: "t1"})

	_, err := m.SubmitOrder("t1", engine.SideBid, 10000, 5)

	var inactive *market.InactiveError
	require.ErrorAs(t, err, &inactive)
	assert.Equal(t, "m-test", inactive.MarketID)
	assert.Equal(t, market.StateInitialized, m.State())
}

func TestSubmitValidation(t *testing.T) {
	m := newTradingMarket(t, &fakeHolder{id: "t1"})

	cases := []struct {
		name   string
		side   engine.OrderSide
		price  int64
		amount int64
	}{
		{"bad side", engine.OrderSide("SELL"), 10000, 5},
		{"zero price", engine.SideBid, 0, 5},
		{"negative price", engine.SideBid, -100, 5},
		{"zero amount", engine.SideBid, 10000, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.SubmitOrder("t1", tc.side, tc.price, tc.amount)
			var verr *market.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestSubmitUnknownTrader(t *testing.T) {
	m := newTradingMarket(t, &fakeHolder{id: "t1"})

	_, err := m.SubmitOrder("nobody", engine.SideBid, 10000, 5)

	var nf *market.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "trader", nf.Kind)
}

func TestSubmitRestingOrder(t *testing.T) {
	h := &fakeHolder{id: "t1"}
	m := newTradingMarket(t, h)

	res, err := m.SubmitOrder("t1", engine.SideBid, 10000, 5)
	require.NoError(t, err)

	assert.False(t, res.Matched)
	assert.Empty(t, res.Transactions)
	assert.Equal(t, engine.StatusActive, res.Order.GetStatus())
	assert.Equal(t, int64(0), h.Position())
}

func TestSubmitMatchSettlesBothLegs(t *testing.T) {
	buyer := &fakeHolder{id: "buyer"}
	seller := &fakeHolder{id: "seller"}
	m := newTradingMarket(t, buyer, seller)

	_, err := m.SubmitOrder("buyer", engine.SideBid, 10000, 10)
	require.NoError(t, err)

	res, err := m.SubmitOrder("seller", engine.SideAsk, 9900, 10)
	require.NoError(t, err)

	require.True(t, res.Matched)
	require.Len(t, res.Transactions, 1)

	tx := res.Transactions[0]
	assert.Equal(t, 9950.0, tx.Price)
	assert.Equal(t, int64(10), tx.Amount)

	assert.Equal(t, int64(10), buyer.Position())
	assert.Equal(t, int64(-10), seller.Position())
	assert.Equal(t, 0.0, buyer.cash+seller.cash)

	assert.Equal(t, 1, m.TransactionCount())
	recent := m.Transactions(5)
	require.Len(t, recent, 1)
	assert.Equal(t, tx.ID, recent[0].ID)
}

func TestCancelOrder(t *testing.T) {
	m := newTradingMarket(t, &fakeHolder{id: "t1"}, &fakeHolder{id: "t2"})

	res, err := m.SubmitOrder("t1", engine.SideBid, 10000, 5)
	require.NoError(t, err)

	require.NoError(t, m.CancelOrder("t1", res.Order.ID))
	assert.Equal(t, engine.StatusCancelled, res.Order.GetStatus())

	var nf *market.NotFoundError
	assert.ErrorAs(t, m.CancelOrder("t1", res.Order.ID), &nf)
	assert.ErrorAs(t, m.CancelOrder("t1", "no-such-order"), &nf)
}

func TestCancelOtherTradersOrder(t *testing.T) {
	m := newTradingMarket(t, &fakeHolder{id: "t1"}, &fakeHolder{id: "t2"})

	res, err := m.SubmitOrder("t1", engine.SideBid, 10000, 5)
	require.NoError(t, err)

	var verr *market.ValidationError
	assert.ErrorAs(t, m.CancelOrder("t2", res.Order.ID), &verr)

	// still resting
	price, _, ok := m.Book().BestBid()
	require.True(t, ok)
	assert.Equal(t, int64(10000), price)
}

func TestExpiryUnwindsInventory(t *testing.T) {
	holder := &fakeHolder{id: "t1", pos: 5}
	m := market.New("m-unwind", market.Config{
		Duration:      10 * time.Millisecond,
		Tick:          5 * time.Millisecond,
		UnwindPenalty: 0.1,
		DefaultPrice:  10000,
	})
	m.AttachHolder(holder)
	m.Start()
	defer m.Stop()

	require.Eventually(t, m.IsFinished, time.Second, 5*time.Millisecond)

	assert.Equal(t, market.StateFinished, m.State())
	assert.False(t, m.IsActive())
	assert.Equal(t, int64(0), holder.Position())

	// empty book falls back to the default price; long unwound at 0.9*mid
	txs := m.Transactions(10)
	require.Len(t, txs, 1)
	assert.Equal(t, 9000.0, txs[0].Price)
	assert.Equal(t, int64(5), txs[0].Amount)
}

func TestExpiryUnwindShortPaysDouble(t *testing.T) {
	holder := &fakeHolder{id: "t1", pos: -4}
	m := market.New("m-unwind-short", market.Config{
		Duration:      10 * time.Millisecond,
		Tick:          5 * time.Millisecond,
		UnwindPenalty: 0.1,
		DefaultPrice:  10000,
	})
	m.AttachHolder(holder)
	m.Start()
	defer m.Stop()

	require.Eventually(t, m.IsFinished, time.Second, 5*time.Millisecond)

	assert.Equal(t, int64(0), holder.Position())
	txs := m.Transactions(10)
	require.Len(t, txs, 1)
	assert.Equal(t, 12000.0, txs[0].Price)
	assert.Equal(t, int64(4), txs[0].Amount)
}

func TestLifecycleEvents(t *testing.T) {
	sub := &fakeSubscriber{}
	m := market.New("m-events", market.Config{
		Duration:      10 * time.Millisecond,
		Tick:          5 * time.Millisecond,
		UnwindPenalty: 0.1,
		DefaultPrice:  10000,
	})
	m.Subscribe("sub1", sub)
	m.Start()
	defer m.Stop()

	require.Eventually(t, m.IsFinished, time.Second, 5*time.Millisecond)

	kinds := sub.kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, market.EventTradingStarted, kinds[0])
	assert.Equal(t, market.EventClosure, kinds[len(kinds)-1])
	assert.Contains(t, kinds, market.EventStopTrading)
}

// closureObserver records what the market reports at the instant the
// CLOSURE event is delivered.
type closureObserver struct {
	mkt                *market.Market
	sawClosure         atomic.Bool
	finishedAtDelivery atomic.Bool
	stateAtDelivery    atomic.Value
}

func (s *closureObserver) Deliver(ev market.Event) error {
	if ev.Kind == market.EventClosure {
		s.finishedAtDelivery.Store(s.mkt.IsFinished())
		s.stateAtDelivery.Store(s.mkt.State())
		s.sawClosure.Store(true)
	}
	return nil
}

func TestClosureBroadcastPrecedesFinished(t *testing.T) {
	m := market.New("m-closure", market.Config{
		Duration:      10 * time.Millisecond,
		Tick:          5 * time.Millisecond,
		UnwindPenalty: 0.1,
		DefaultPrice:  10000,
	})
	obs := &closureObserver{mkt: m}
	m.Subscribe("obs", obs)
	m.Start()
	defer m.Stop()

	require.Eventually(t, m.IsFinished, time.Second, 5*time.Millisecond)

	require.True(t, obs.sawClosure.Load())
	assert.False(t, obs.finishedAtDelivery.Load(),
		"finished must flip only after the closure broadcast")
	assert.Equal(t, market.StateClosing, obs.stateAtDelivery.Load())
}

func TestFailedSubscriberRemoved(t *testing.T) {
	good := &fakeSubscriber{}
	bad := &fakeSubscriber{failAfter: 1}
	m := newTradingMarket(t, &fakeHolder{id: "t1"})
	m.Subscribe("good", good)
	m.Subscribe("bad", bad)

	assert.Equal(t, 2, m.SubscriberCount())

	// first broadcast reaches both; second errors on bad and drops it
	_, err := m.SubmitOrder("t1", engine.SideBid, 10000, 1)
	require.NoError(t, err)
	_, err = m.SubmitOrder("t1", engine.SideBid, 9900, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, m.SubscriberCount())
	assert.Len(t, good.kinds(), 2)
}

func TestStopIdempotent(t *testing.T) {
	m := market.New("m-stop", testConfig())
	m.Start()
	m.Stop()
	m.Stop()
	assert.False(t, m.IsActive())
}

func TestConcurrentSubmissions(t *testing.T) {
	holders := []*fakeHolder{{id: "t1"}, {id: "t2"}, {id: "t3"}, {id: "t4"}}
	m := newTradingMarket(t, holders...)

	var wg sync.WaitGroup
	for i, h := range holders {
		wg.Add(1)
		go func(idx int, id string) {
			defer wg.Done()
			side := engine.SideBid
			if idx%2 == 0 {
				side = engine.SideAsk
			}
			for j := 0; j < 20; j++ {
				_, err := m.SubmitOrder(id, side, 10000, 1)
				assert.NoError(t, err)
			}
		}(i, h.id)
	}
	wg.Wait()

	// every crossing pair settled; book never left crossed
	bid, _, hasBid := m.Book().BestBid()
	ask, _, hasAsk := m.Book().BestAsk()
	if hasBid && hasAsk {
		assert.Less(t, bid, ask)
	}

	var net int64
	for _, h := range holders {
		net += h.Position()
	}
	assert.Equal(t, int64(0), net)
}
