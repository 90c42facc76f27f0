package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type OrderSide string

const (
	SideBid OrderSide = "BID"
	SideAsk OrderSide = "ASK"
)

func (s OrderSide) Opposite() OrderSide {
	if s == SideBid {
		return SideAsk
	}
	return SideBid
}

type OrderStatus string

const (
	StatusBuffered  OrderStatus = "BUFFERED"
	StatusActive    OrderStatus = "ACTIVE"
	StatusExecuted  OrderStatus = "EXECUTED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// edge case: prices stored as int64 in cents to avoid floating-point drift
// inside the book; execution prices may land on half cents (see Clear) and
// are carried as float64 on Match/Transaction only.
type Order struct {
	ID        string
	TraderID  string
	MarketID  string
	Side      OrderSide
	Price     int64 // cents, immutable after creation
	Amount    int64
	Filled    int64 // atomic
	Status    OrderStatus
	Timestamp int64
	statusMu  sync.Mutex
}

func NewOrder(traderID, marketID string, side OrderSide, price, amount int64) *Order {
	return &Order{
		ID:        uuid.New().String(),
		TraderID:  traderID,
		MarketID:  marketID,
		Side:      side,
		Price:     price,
		Amount:    amount,
		Status:    StatusBuffered,
		Timestamp: time.Now().UnixMilli(),
	}
}

func (o *Order) FilledAmount() int64 {
	return atomic.LoadInt64(&o.Filled)
}

func (o *Order) Remaining() int64 {
	return o.Amount - atomic.LoadInt64(&o.Filled)
}

func (o *Order) IsFilled() bool {
	return atomic.LoadInt64(&o.Filled) >= o.Amount
}

func (o *Order) Fill(amount int64) {
	newFilled := atomic.AddInt64(&o.Filled, amount)

	o.statusMu.Lock()
	if newFilled >= o.Amount {
		o.Status = StatusExecuted
	}
	o.statusMu.Unlock()
}

func (o *Order) GetStatus() OrderStatus {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	return o.Status
}

func (o *Order) SetStatus(status OrderStatus) {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	o.Status = status
}

// Match pairs one bid and one ask popped by Clear. Price is the midpoint of
// the two crossing limit prices, a convention the experiments depend on.
type Match struct {
	Bid    *Order
	Ask    *Order
	Price  float64 // cents, may be a half cent
	Amount int64
}

type Transaction struct {
	ID         string
	MarketID   string
	BidOrderID string
	AskOrderID string
	Price      float64 // cents
	Amount     int64
	Timestamp  int64
}

func NewTransaction(marketID string, m Match) *Transaction {
	return &Transaction{
		ID:         uuid.New().String(),
		MarketID:   marketID,
		BidOrderID: m.Bid.ID,
		AskOrderID: m.Ask.ID,
		Price:      m.Price,
		Amount:     m.Amount,
		Timestamp:  time.Now().UnixMilli(),
	}
}
