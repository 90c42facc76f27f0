package models

type JoinRequest struct {
	Username string `json:"username"`
}

type JoinResponse struct {
	Ready      bool   `json:"ready"`
	Current    int    `json:"current,omitempty"`
	Required   int    `json:"required,omitempty"`
	WaitingFor int    `json:"waiting_for,omitempty"`
	MarketID   string `json:"market_id,omitempty"`
	TraderID   string `json:"trader_id,omitempty"`
	Role       string `json:"role,omitempty"`
	Goal       int64  `json:"goal,omitempty"`
}

type LeaveRequest struct {
	Username string `json:"username"`
}

type LeaveResponse struct {
	Username string `json:"username"`
	Removed  bool   `json:"removed"`
}

type SubmitOrderRequest struct {
	MarketID string `json:"market_id"`
	TraderID string `json:"trader_id"`
	Side     string `json:"side"`  // BID or ASK
	Price    int64  `json:"price"` // cents
	Amount   int64  `json:"amount"`
}

type SubmitOrderResponse struct {
	OrderID      string            `json:"order_id"`
	Status       string            `json:"status"`
	Matched      bool              `json:"matched"`
	Transactions []TransactionInfo `json:"transactions,omitempty"`
}

type TransactionInfo struct {
	TransactionID string  `json:"transaction_id"`
	BidOrderID    string  `json:"bid_order_id"`
	AskOrderID    string  `json:"ask_order_id"`
	Price         float64 `json:"price"` // cents, may be a half cent (midpoint rule)
	Amount        int64   `json:"amount"`
	Timestamp     int64   `json:"timestamp"` // unix ms
}

type CancelOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type MarketStatusResponse struct {
	MarketID       string         `json:"market_id"`
	State          string         `json:"state"`
	ActiveUsers    int            `json:"active_users"`
	TradingStarted bool           `json:"trading_started"`
	IsFinished     bool           `json:"is_finished"`
	AgentCounts    map[string]int `json:"agent_counts"`
}

type PriceLevelInfo struct {
	Price  int64 `json:"price"`  // cents
	Amount int64 `json:"amount"` // aggregated resting amount at this price
}

type SnapshotResponse struct {
	MarketID     string            `json:"market_id"`
	Timestamp    int64             `json:"timestamp"` // unix ms
	Bids         []PriceLevelInfo  `json:"bids"`      // best (highest) first
	Asks         []PriceLevelInfo  `json:"asks"`      // best (lowest) first
	Transactions []TransactionInfo `json:"transactions"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	LiveMarkets   int    `json:"live_markets"`
	FormingPools  int    `json:"forming_pools"`
}

type MetricsResponse struct {
	ParticipantsJoined int64   `json:"participants_joined"`
	MarketsCreated     int64   `json:"markets_created"`
	OrdersReceived     int64   `json:"orders_received"`
	OrdersMatched      int64   `json:"orders_matched"`
	OrdersCancelled    int64   `json:"orders_cancelled"`
	TradesExecuted     int64   `json:"trades_executed"`
	LatencyP50Ms       float64 `json:"latency_p50_ms"`
	LatencyP99Ms       float64 `json:"latency_p99_ms"`
	ThroughputPerSec   float64 `json:"throughput_orders_per_sec"`
}

// WSMessage is the closed inbound message set on the participant socket.
type WSMessage struct {
	Kind    string `json:"kind"` // submit_order | cancel_order | snapshot | ping
	Side    string `json:"side,omitempty"`
	Price   int64  `json:"price,omitempty"`
	Amount  int64  `json:"amount,omitempty"`
	OrderID string `json:"order_id,omitempty"`
}

// WSReply is what the socket sends back for a direct request; broadcast
// market events use WSEvent instead.
type WSReply struct {
	Kind     string               `json:"kind"`
	OK       bool                 `json:"ok"`
	Error    string               `json:"error,omitempty"`
	Order    *SubmitOrderResponse `json:"order,omitempty"`
	Snapshot *SnapshotResponse    `json:"snapshot,omitempty"`
}

type WSEvent struct {
	Kind             string            `json:"kind"`
	MarketID         string            `json:"market_id"`
	Timestamp        int64             `json:"timestamp"`
	OrderID          string            `json:"order_id,omitempty"`
	Side             string            `json:"side,omitempty"`
	Price            int64             `json:"price,omitempty"`
	Amount           int64             `json:"amount,omitempty"`
	Transactions     []TransactionInfo `json:"transactions,omitempty"`
	RemainingSeconds int64             `json:"remaining_seconds,omitempty"`
}
