package engine

import (
	"sync"

	"github.com/google/btree"
)

type PriceLevel struct {
	Price  int64
	Orders []*Order // fifo ordering for time priority
}

func (p *PriceLevel) totalRemaining() int64 {
	var total int64
	for _, o := range p.Orders {
		total += o.Remaining()
	}
	return total
}

type bidLevelItem struct {
	Level *PriceLevel
}

// descending: highest bid first, so tree.Min() is the best bid
func (p *bidLevelItem) Less(than btree.Item) bool {
	other := than.(*bidLevelItem)
	return p.Level.Price > other.Level.Price
}

type askLevelItem struct {
	Level *PriceLevel
}

// ascending: lowest ask first, so tree.Min() is the best ask
func (p *askLevelItem) Less(than btree.Item) bool {
	other := than.(*askLevelItem)
	return p.Level.Price < other.Level.Price
}

// OrderBook is one market's resting orders: price levels in two btrees plus
// a flat id index. Invariant: every resting order is in exactly one level
// and in the index; an emptied level is deleted from its tree.
type OrderBook struct {
	MarketID string
	Bids     *btree.BTree // sorted descending (highest first)
	Asks     *btree.BTree // sorted ascending (lowest first)
	Orders   map[string]*Order
	mu       sync.RWMutex
}

func NewOrderBook(marketID string) *OrderBook {
	return &OrderBook{
		MarketID: marketID,
		Bids:     btree.New(32),
		Asks:     btree.New(32),
		Orders:   make(map[string]*Order),
	}
}

func (ob *OrderBook) itemFor(side OrderSide, level *PriceLevel) btree.Item {
	if side == SideBid {
		return &bidLevelItem{Level: level}
	}
	return &askLevelItem{Level: level}
}

func (ob *OrderBook) treeFor(side OrderSide) *btree.BTree {
	if side == SideBid {
		return ob.Bids
	}
	return ob.Asks
}

func levelOf(item btree.Item) *PriceLevel {
	switch it := item.(type) {
	case *bidLevelItem:
		return it.Level
	case *askLevelItem:
		return it.Level
	}
	return nil
}

// bestLevelLocked assumes ob.mu is held. tree.Min() is the best price on
// either side because the bid tree sorts descending.
func (ob *OrderBook) bestLevelLocked(side OrderSide) *PriceLevel {
	tree := ob.treeFor(side)
	if tree.Len() == 0 {
		return nil
	}
	item := tree.Min()
	if item == nil {
		return nil
	}
	return levelOf(item)
}

// Place admits an order: status coerced to ACTIVE, appended at the tail of
// its price level (time priority). Returns true when the order crosses the
// opposite side's best price and a Clear call would produce a match.
func (ob *OrderBook) Place(order *Order) bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	order.SetStatus(StatusActive)
	ob.Orders[order.ID] = order

	tree := ob.treeFor(order.Side)
	probe := ob.itemFor(order.Side, &PriceLevel{Price: order.Price})

	var level *PriceLevel
	if existing := tree.Get(probe); existing != nil {
		level = levelOf(existing)
	} else {
		level = &PriceLevel{Price: order.Price, Orders: make([]*Order, 0)}
		tree.ReplaceOrInsert(ob.itemFor(order.Side, level))
	}
	level.Orders = append(level.Orders, order)

	// matchable only against the opposite side
	opposite := ob.bestLevelLocked(order.Side.Opposite())
	if opposite == nil {
		return false
	}
	if order.Side == SideBid {
		return order.Price >= opposite.Price
	}
	return order.Price <= opposite.Price
}

// Clear drains every cross: while best bid >= best ask, the oldest order on
// each best level is paired and filled at the midpoint of the two crossing
// limit prices. The midpoint convention is deliberate and must not be
// replaced by resting-order pricing. One call may drain multiple levels.
func (ob *OrderBook) Clear() []Match {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	var matches []Match

	for {
		bidLevel := ob.bestLevelLocked(SideBid)
		askLevel := ob.bestLevelLocked(SideAsk)
		if bidLevel == nil || askLevel == nil {
			break
		}
		if bidLevel.Price < askLevel.Price {
			break
		}
		if len(bidLevel.Orders) == 0 || len(askLevel.Orders) == 0 {
			// edge case: an emptied level that survived a concurrent removal
			ob.dropLevelIfEmptyLocked(SideBid, bidLevel)
			ob.dropLevelIfEmptyLocked(SideAsk, askLevel)
			continue
		}

		bid := bidLevel.Orders[0]
		ask := askLevel.Orders[0]

		amount := bid.Remaining()
		if ask.Remaining() < amount {
			amount = ask.Remaining()
		}
		if amount <= 0 {
			ob.removeFilledHeadLocked(SideBid, bidLevel)
			ob.removeFilledHeadLocked(SideAsk, askLevel)
			continue
		}

		price := float64(bidLevel.Price+askLevel.Price) / 2.0

		bid.Fill(amount)
		ask.Fill(amount)

		matches = append(matches, Match{Bid: bid, Ask: ask, Price: price, Amount: amount})

		ob.removeFilledHeadLocked(SideBid, bidLevel)
		ob.removeFilledHeadLocked(SideAsk, askLevel)
	}

	return matches
}

// removeFilledHeadLocked pops the level head when it is fully executed and
// keeps both halves of the book invariant (level membership + id index).
func (ob *OrderBook) removeFilledHeadLocked(side OrderSide, level *PriceLevel) {
	if len(level.Orders) == 0 {
		ob.dropLevelIfEmptyLocked(side, level)
		return
	}
	head := level.Orders[0]
	if !head.IsFilled() {
		return
	}
	level.Orders = level.Orders[1:]
	delete(ob.Orders, head.ID)
	ob.dropLevelIfEmptyLocked(side, level)
}

func (ob *OrderBook) dropLevelIfEmptyLocked(side OrderSide, level *PriceLevel) {
	if len(level.Orders) > 0 {
		return
	}
	ob.treeFor(side).Delete(ob.itemFor(side, level))
}

// Cancel removes a resting order. Returns false on an unknown id; both the
// level and the index are updated together or not at all.
func (ob *OrderBook) Cancel(orderID string) bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	order, exists := ob.Orders[orderID]
	if !exists {
		return false
	}

	tree := ob.treeFor(order.Side)
	item := tree.Get(ob.itemFor(order.Side, &PriceLevel{Price: order.Price}))
	if item == nil {
		delete(ob.Orders, orderID)
		return false
	}

	level := levelOf(item)
	for i, o := range level.Orders {
		if o.ID == orderID {
			level.Orders = append(level.Orders[:i], level.Orders[i+1:]...)
			break
		}
	}
	ob.dropLevelIfEmptyLocked(order.Side, level)

	delete(ob.Orders, orderID)
	order.SetStatus(StatusCancelled)
	return true
}

func (ob *OrderBook) GetOrder(orderID string) (*Order, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	order, exists := ob.Orders[orderID]
	return order, exists
}

func (ob *OrderBook) BestBid() (price int64, amount int64, ok bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	level := ob.bestLevelLocked(SideBid)
	if level == nil || len(level.Orders) == 0 {
		return 0, 0, false
	}
	return level.Price, level.totalRemaining(), true
}

func (ob *OrderBook) BestAsk() (price int64, amount int64, ok bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	level := ob.bestLevelLocked(SideAsk)
	if level == nil || len(level.Orders) == 0 {
		return 0, 0, false
	}
	return level.Price, level.totalRemaining(), true
}

// Spread returns best ask minus best bid; ok=false when either side is empty.
func (ob *OrderBook) Spread() (float64, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	bid := ob.bestLevelLocked(SideBid)
	ask := ob.bestLevelLocked(SideAsk)
	if bid == nil || ask == nil {
		return 0, false
	}
	return float64(ask.Price - bid.Price), true
}

// MidPrice returns the midpoint of best bid and best ask; ok=false when
// either side is empty.
func (ob *OrderBook) MidPrice() (float64, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	bid := ob.bestLevelLocked(SideBid)
	ask := ob.bestLevelLocked(SideAsk)
	if bid == nil || ask == nil {
		return 0, false
	}
	return float64(bid.Price+ask.Price) / 2.0, true
}

type LevelInfo struct {
	Price  int64
	Amount int64
}

// Snapshot aggregates resting amounts per level, best-first each side, for
// display and broadcast only.
func (ob *OrderBook) Snapshot(depth int) (bids []LevelInfo, asks []LevelInfo) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	bids = make([]LevelInfo, 0, depth)
	asks = make([]LevelInfo, 0, depth)

	count := 0
	ob.Bids.Ascend(func(item btree.Item) bool {
		if count >= depth {
			return false
		}
		level := levelOf(item)
		bids = append(bids, LevelInfo{Price: level.Price, Amount: level.totalRemaining()})
		count++
		return true
	})

	count = 0
	ob.Asks.Ascend(func(item btree.Item) bool {
		if count >= depth {
			return false
		}
		level := levelOf(item)
		asks = append(asks, LevelInfo{Price: level.Price, Amount: level.totalRemaining()})
		count++
		return true
	})

	return bids, asks
}

// Size is the count of resting orders across both sides.
func (ob *OrderBook) Size() int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return len(ob.Orders)
}
