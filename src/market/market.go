package market

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"auction-lab/src/engine"
)

type State string

const (
	StateInitialized State = "INITIALIZED"
	StateTrading     State = "TRADING"
	StateClosing     State = "CLOSING"
	StateFinished    State = "FINISHED"
)

// InventoryHolder is the market's view of an attached trader: enough to
// credit fills and to unwind leftover positions at closure. Traders hold a
// non-owning handle back to the market; the market never owns them.
type InventoryHolder interface {
	TraderID() string
	Position() int64
	ApplyFill(side engine.OrderSide, amount int64, price float64)
}

type Config struct {
	Duration      time.Duration
	Tick          time.Duration
	UnwindPenalty float64 // longs unwound at mid*(1-p), shorts at mid*(1+2p)
	DefaultPrice  int64   // cents, mid fallback for an empty book
}

// Market is the lifecycle state machine owning one order book and one
// transaction log. All order admission is serialized behind orderMu: each
// admitted order observes the book state left by every prior order.
type Market struct {
	ID        string
	cfg       Config
	StartTime time.Time

	book  *engine.OrderBook
	txMu  sync.RWMutex
	txLog []*engine.Transaction

	orderMu sync.Mutex

	active         atomic.Bool
	tradingStarted atomic.Bool
	closing        atomic.Bool
	finished       atomic.Bool

	subs *subscriberSet

	holdersMu sync.RWMutex
	holders   map[string]InventoryHolder

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger zerolog.Logger
}

func New(id string, cfg Config) *Market {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	return &Market{
		ID:      id,
		cfg:     cfg,
		book:    engine.NewOrderBook(id),
		txLog:   make([]*engine.Transaction, 0),
		subs:    newSubscriberSet(),
		holders: make(map[string]InventoryHolder),
		done:    make(chan struct{}),
		logger:  log.With().Str("market_id", id).Logger(),
	}
}

func (m *Market) Book() *engine.OrderBook { return m.book }

func (m *Market) State() State {
	switch {
	case m.finished.Load():
		return StateFinished
	case m.closing.Load():
		return StateClosing
	case m.tradingStarted.Load():
		return StateTrading
	default:
		return StateInitialized
	}
}

func (m *Market) IsActive() bool       { return m.active.Load() }
func (m *Market) TradingStarted() bool { return m.tradingStarted.Load() }
func (m *Market) IsFinished() bool     { return m.finished.Load() }

func (m *Market) Subscribe(id string, sub Subscriber) { m.subs.add(id, sub) }
func (m *Market) Unsubscribe(id string)               { m.subs.remove(id) }
func (m *Market) SubscriberCount() int                { return m.subs.count() }

func (m *Market) AttachHolder(h InventoryHolder) {
	m.holdersMu.Lock()
	defer m.holdersMu.Unlock()
	m.holders[h.TraderID()] = h
}

func (m *Market) holderSnapshot() []InventoryHolder {
	m.holdersMu.RLock()
	defer m.holdersMu.RUnlock()
	out := make([]InventoryHolder, 0, len(m.holders))
	for _, h := range m.holders {
		out = append(out, h)
	}
	return out
}

func (m *Market) holder(traderID string) (InventoryHolder, bool) {
	m.holdersMu.RLock()
	defer m.holdersMu.RUnlock()
	h, ok := m.holders[traderID]
	return h, ok
}

// Start enters TRADING and launches the lifecycle loop. Calling it twice is
// a no-op.
func (m *Market) Start() {
	if !m.tradingStarted.CompareAndSwap(false, true) {
		return
	}
	m.StartTime = time.Now()
	m.active.Store(true)

	m.logger.Info().
		Dur("duration", m.cfg.Duration).
		Msg("Trading started")

	m.subs.broadcast(Event{
		Kind:      EventTradingStarted,
		MarketID:  m.ID,
		Timestamp: time.Now().UnixMilli(),
	})

	m.wg.Add(1)
	go m.run()
}

// run is the lifecycle timer: a fixed tick compared against the configured
// duration. Per-tick failures are logged and contained; the loop exits only
// on expiry or Stop.
func (m *Market) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			elapsed := time.Since(m.StartTime)
			remaining := m.cfg.Duration - elapsed
			if remaining > 0 {
				m.subs.broadcast(Event{
					Kind:             EventTimeRemaining,
					MarketID:         m.ID,
					Timestamp:        time.Now().UnixMilli(),
					RemainingSeconds: int64(remaining.Seconds()),
				})
				continue
			}
			m.close()
			return
		}
	}
}

// close halts trading, unwinds inventory, and finishes the market.
func (m *Market) close() {
	m.active.Store(false)
	m.closing.Store(true)

	m.subs.broadcast(Event{
		Kind:      EventStopTrading,
		MarketID:  m.ID,
		Timestamp: time.Now().UnixMilli(),
	})

	txs := m.unwindInventory()

	// closure is broadcast first, then the market flips to finished:
	// a subscriber acting on the closure event observes CLOSING, and
	// anyone polling sees finished only once the event is out
	m.subs.broadcast(Event{
		Kind:         EventClosure,
		MarketID:     m.ID,
		Timestamp:    time.Now().UnixMilli(),
		Transactions: txs,
	})

	m.finished.Store(true)
	m.closing.Store(false)

	m.logger.Info().
		Int("unwind_transactions", len(txs)).
		Int("total_transactions", m.TransactionCount()).
		Msg("Market closed")
}

// unwindInventory synthesizes one closing counter-order per non-zero
// position, priced away from mid in the direction that costs the holder.
// Longs are sold at mid*(1-penalty); shorts are bought in at
// mid*(1+2*penalty). The asymmetry is deliberate and preserved.
func (m *Market) unwindInventory() []*engine.Transaction {
	m.orderMu.Lock()
	defer m.orderMu.Unlock()

	mid, ok := m.book.MidPrice()
	if !ok {
		mid = float64(m.cfg.DefaultPrice)
	}

	var txs []*engine.Transaction
	for _, h := range m.holderSnapshot() {
		pos := h.Position()
		if pos == 0 {
			continue
		}

		var price float64
		var holderSide engine.OrderSide
		if pos > 0 {
			price = mid * (1 - m.cfg.UnwindPenalty)
			holderSide = engine.SideAsk
		} else {
			price = mid * (1 + 2*m.cfg.UnwindPenalty)
			holderSide = engine.SideBid
		}
		amount := pos
		if amount < 0 {
			amount = -amount
		}

		cents := int64(math.Round(price))
		closing := engine.NewOrder(h.TraderID(), m.ID, holderSide, cents, amount)
		counter := engine.NewOrder("liquidator:"+m.ID, m.ID, holderSide.Opposite(), cents, amount)
		closing.Fill(amount)
		counter.Fill(amount)

		match := engine.Match{Price: price, Amount: amount}
		if holderSide == engine.SideBid {
			match.Bid, match.Ask = closing, counter
		} else {
			match.Bid, match.Ask = counter, closing
		}

		tx := engine.NewTransaction(m.ID, match)
		m.appendTransaction(tx)
		txs = append(txs, tx)

		h.ApplyFill(holderSide, amount, price)

		m.logger.Info().
			Str("trader_id", h.TraderID()).
			Int64("position", pos).
			Float64("price", price).
			Msg("Forced inventory unwind")
	}
	return txs
}

type SubmitResult struct {
	Order        *engine.Order
	Matched      bool
	Matches      []engine.Match
	Transactions []*engine.Transaction
}

// SubmitOrder validates, admits, and (when crossing) clears one order under
// the per-market lock. Concurrent submissions are processed strictly one at
// a time in lock acquisition order.
func (m *Market) SubmitOrder(traderID string, side engine.OrderSide, price, amount int64) (*SubmitResult, error) {
	if !m.active.Load() {
		return nil, &InactiveError{MarketID: m.ID}
	}
	if side != engine.SideBid && side != engine.SideAsk {
		return nil, &ValidationError{Message: "Invalid order: side must be BID or ASK"}
	}
	if price <= 0 {
		return nil, &ValidationError{Message: "Invalid order: price must be positive"}
	}
	if amount <= 0 {
		return nil, &ValidationError{Message: "Invalid order: amount must be positive"}
	}
	if _, ok := m.holder(traderID); !ok {
		return nil, &NotFoundError{Kind: "trader", ID: traderID}
	}

	m.orderMu.Lock()
	defer m.orderMu.Unlock()

	order := engine.NewOrder(traderID, m.ID, side, price, amount)
	matchable := m.book.Place(order)

	result := &SubmitResult{Order: order}

	if matchable {
		matches := m.book.Clear()
		result.Matched = len(matches) > 0
		result.Matches = matches
		for _, match := range matches {
			tx := engine.NewTransaction(m.ID, match)
			m.appendTransaction(tx)
			result.Transactions = append(result.Transactions, tx)
			m.settleMatch(match)
		}
	}

	ev := Event{
		Kind:         EventAddedOrder,
		MarketID:     m.ID,
		Timestamp:    time.Now().UnixMilli(),
		Order:        order,
		Transactions: result.Transactions,
	}
	if result.Matched {
		ev.Kind = EventFilledOrder
	}
	m.subs.broadcast(ev)

	m.logger.Debug().
		Str("order_id", order.ID).
		Str("trader_id", traderID).
		Str("side", string(side)).
		Int64("price", price).
		Int64("amount", amount).
		Bool("matched", result.Matched).
		Int("matches", len(result.Matches)).
		Msg("Order processed")

	return result, nil
}

// settleMatch credits both legs of one match to their holders. Signed
// inventory change nets to zero across the two legs.
func (m *Market) settleMatch(match engine.Match) {
	if h, ok := m.holder(match.Bid.TraderID); ok {
		h.ApplyFill(engine.SideBid, match.Amount, match.Price)
	}
	if h, ok := m.holder(match.Ask.TraderID); ok {
		h.ApplyFill(engine.SideAsk, match.Amount, match.Price)
	}
}

// CancelOrder follows the same single-writer discipline as SubmitOrder.
// Unknown ids produce a NotFoundError, never a panic.
func (m *Market) CancelOrder(traderID, orderID string) error {
	if !m.active.Load() {
		return &InactiveError{MarketID: m.ID}
	}

	m.orderMu.Lock()
	defer m.orderMu.Unlock()

	order, exists := m.book.GetOrder(orderID)
	if !exists {
		return &NotFoundError{Kind: "order", ID: orderID}
	}
	if order.TraderID != traderID {
		return &ValidationError{Message: "Invalid cancel: order belongs to another trader"}
	}

	if !m.book.Cancel(orderID) {
		return &NotFoundError{Kind: "order", ID: orderID}
	}

	m.subs.broadcast(Event{
		Kind:      EventCancelledOrder,
		MarketID:  m.ID,
		Timestamp: time.Now().UnixMilli(),
		Order:     order,
	})

	return nil
}

func (m *Market) appendTransaction(tx *engine.Transaction) {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.txLog = append(m.txLog, tx)
}

// Transactions returns the most recent n log entries, oldest first.
func (m *Market) Transactions(n int) []*engine.Transaction {
	m.txMu.RLock()
	defer m.txMu.RUnlock()

	if n <= 0 || n > len(m.txLog) {
		n = len(m.txLog)
	}
	out := make([]*engine.Transaction, n)
	copy(out, m.txLog[len(m.txLog)-n:])
	return out
}

func (m *Market) TransactionCount() int {
	m.txMu.RLock()
	defer m.txMu.RUnlock()
	return len(m.txLog)
}

// Stop halts the lifecycle loop without waiting for expiry. Idempotent;
// used by trader-manager cleanup.
func (m *Market) Stop() {
	m.stopOnce.Do(func() {
		m.active.Store(false)
		close(m.done)
	})
	m.wg.Wait()
}
