package handlers

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"auction-lab/src/config"
	"auction-lab/src/engine"
	"auction-lab/src/market"
	"auction-lab/src/models"
	"auction-lab/src/registry"
	"auction-lab/src/session"
)

type Handler struct {
	Sessions  *session.Manager
	Reg       *registry.Registry
	Cfg       *config.Config
	StartTime time.Time

	ParticipantsJoined int64
	OrdersReceived     int64
	OrdersMatched      int64
	OrdersCancelled    int64
	TradesExecuted     int64

	marketsSeen   map[string]struct{}
	marketsSeenMu sync.Mutex
	marketsTotal  int64

	latencies    []time.Duration
	latenciesMu  sync.RWMutex
	maxLatencies int
}

func NewHandler(sessions *session.Manager, reg *registry.Registry, cfg *config.Config) *Handler {
	return &Handler{
		Sessions:     sessions,
		Reg:          reg,
		Cfg:          cfg,
		StartTime:    time.Now(),
		marketsSeen:  make(map[string]struct{}),
		latencies:    make([]time.Duration, 0, 10000),
		maxLatencies: 10000,
	}
}

func (h *Handler) Join(c *fiber.Ctx) error {
	var req models.JoinRequest
	if err := c.BodyParser(&req); err != nil {
		log.Warn().
			Err(err).
			Str("ip", c.IP()).
			Msg("Invalid join request: malformed JSON")
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request: malformed JSON",
		})
	}
	if req.Username == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request: username is required",
		})
	}

	result, err := h.Sessions.Join(req.Username)
	if err != nil {
		log.Error().
			Err(err).
			Str("username", req.Username).
			Msg("Join failed")
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error: "Internal server error",
		})
	}

	atomic.AddInt64(&h.ParticipantsJoined, 1)
	if result.Ready {
		h.noteMarket(result.MarketID)
	}

	log.Info().
		Str("username", req.Username).
		Bool("ready", result.Ready).
		Str("market_id", result.MarketID).
		Str("ip", c.IP()).
		Msg("Join processed")

	return c.Status(fiber.StatusOK).JSON(joinResponse(result))
}

func (h *Handler) JoinStatus(c *fiber.Ctx) error {
	username := c.Params("username")

	result, ok := h.Sessions.Status(username)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "No session for user",
		})
	}
	return c.Status(fiber.StatusOK).JSON(joinResponse(result))
}

func (h *Handler) Leave(c *fiber.Ctx) error {
	var req models.LeaveRequest
	if err := c.BodyParser(&req); err != nil || req.Username == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request: username is required",
		})
	}

	removed := h.Sessions.Leave(req.Username)

	log.Info().
		Str("username", req.Username).
		Bool("removed", removed).
		Msg("Leave processed")

	return c.Status(fiber.StatusOK).JSON(models.LeaveResponse{
		Username: req.Username,
		Removed:  removed,
	})
}

func (h *Handler) SubmitOrder(c *fiber.Ctx) error {
	var req models.SubmitOrderRequest
	if err := c.BodyParser(&req); err != nil {
		log.Warn().
			Err(err).
			Str("ip", c.IP()).
			Msg("Invalid order request: malformed JSON")
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request: malformed JSON",
		})
	}

	if err := validateSubmitOrderRequest(&req); err != nil {
		log.Warn().
			Err(err).
			Str("market_id", req.MarketID).
			Str("trader_id", req.TraderID).
			Str("ip", c.IP()).
			Msg("Invalid order request")
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: err.Error(),
		})
	}

	mgr, ok := h.Reg.Get(req.MarketID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Market not found",
		})
	}
	if !mgr.Exists(req.TraderID) {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Trader not found",
		})
	}

	atomic.AddInt64(&h.OrdersReceived, 1)
	start := time.Now()

	result, err := mgr.Market().SubmitOrder(req.TraderID, engine.OrderSide(req.Side), req.Price, req.Amount)

	h.recordLatency(time.Since(start))

	if err != nil {
		return h.orderError(c, err)
	}

	if result.Matched {
		atomic.AddInt64(&h.OrdersMatched, 1)
	}
	atomic.AddInt64(&h.TradesExecuted, int64(len(result.Transactions)))

	log.Info().
		Str("order_id", result.Order.ID).
		Str("market_id", req.MarketID).
		Str("trader_id", req.TraderID).
		Str("side", req.Side).
		Int64("price", req.Price).
		Int64("amount", req.Amount).
		Bool("matched", result.Matched).
		Msg("Order processed")

	status := string(result.Order.GetStatus())
	code := fiber.StatusCreated
	if result.Matched {
		code = fiber.StatusOK
	}
	return c.Status(code).JSON(models.SubmitOrderResponse{
		OrderID:      result.Order.ID,
		Status:       status,
		Matched:      result.Matched,
		Transactions: txInfos(result.Transactions),
	})
}

func (h *Handler) CancelOrder(c *fiber.Ctx) error {
	orderID := c.Params("id")
	marketID := c.Query("market_id")
	traderID := c.Query("trader_id")

	if marketID == "" || traderID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request: market_id and trader_id query params are required",
		})
	}

	mgr, ok := h.Reg.Get(marketID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Market not found",
		})
	}

	if err := mgr.Market().CancelOrder(traderID, orderID); err != nil {
		return h.orderError(c, err)
	}

	atomic.AddInt64(&h.OrdersCancelled, 1)

	log.Info().
		Str("order_id", orderID).
		Str("market_id", marketID).
		Str("ip", c.IP()).
		Msg("Order cancelled")

	return c.Status(fiber.StatusOK).JSON(models.CancelOrderResponse{
		OrderID: orderID,
		Status:  "CANCELLED",
	})
}

// orderError maps the engine's error taxonomy onto HTTP statuses. Failures
// stay structured; nothing here is allowed to panic the request path.
func (h *Handler) orderError(c *fiber.Ctx, err error) error {
	var verr *market.ValidationError
	var nferr *market.NotFoundError
	var inerr *market.InactiveError

	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: verr.Error()})
	case errors.As(err, &nferr):
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{Error: nferr.Error()})
	case errors.As(err, &inerr):
		return c.Status(fiber.StatusConflict).JSON(models.ErrorResponse{Error: inerr.Error()})
	default:
		log.Error().Err(err).Msg("Unexpected order error")
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{Error: "Internal server error"})
	}
}

func (h *Handler) MarketStatus(c *fiber.Ctx) error {
	marketID := c.Params("id")

	mgr, ok := h.Reg.Get(marketID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Market not found",
		})
	}

	mkt := mgr.Market()
	return c.Status(fiber.StatusOK).JSON(models.MarketStatusResponse{
		MarketID:       marketID,
		State:          string(mkt.State()),
		ActiveUsers:    mkt.SubscriberCount(),
		TradingStarted: mkt.TradingStarted(),
		IsFinished:     mkt.IsFinished(),
		AgentCounts:    mgr.AgentCounts(),
	})
}

func (h *Handler) Snapshot(c *fiber.Ctx) error {
	marketID := c.Params("id")

	mgr, ok := h.Reg.Get(marketID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Market not found",
		})
	}

	return c.Status(fiber.StatusOK).JSON(h.buildSnapshot(mgr.Market()))
}

func (h *Handler) buildSnapshot(mkt *market.Market) models.SnapshotResponse {
	depth := h.Cfg.Market.SnapshotDepth
	if depth <= 0 {
		depth = 10
	}

	bids, asks := mkt.Book().Snapshot(depth)

	out := models.SnapshotResponse{
		MarketID:     mkt.ID,
		Timestamp:    time.Now().UnixMilli(),
		Bids:         make([]models.PriceLevelInfo, 0, len(bids)),
		Asks:         make([]models.PriceLevelInfo, 0, len(asks)),
		Transactions: txInfos(mkt.Transactions(20)),
	}
	for _, l := range bids {
		out.Bids = append(out.Bids, models.PriceLevelInfo{Price: l.Price, Amount: l.Amount})
	}
	for _, l := range asks {
		out.Asks = append(out.Asks, models.PriceLevelInfo{Price: l.Price, Amount: l.Amount})
	}
	return out
}

func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(models.HealthResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.StartTime).Seconds()),
		LiveMarkets:   h.Reg.Count(),
		FormingPools:  h.Sessions.PoolCount(),
	})
}

func (h *Handler) Metrics(c *fiber.Ctx) error {
	p50, p99 := h.latencyPercentiles()

	return c.Status(fiber.StatusOK).JSON(models.MetricsResponse{
		ParticipantsJoined: atomic.LoadInt64(&h.ParticipantsJoined),
		MarketsCreated:     atomic.LoadInt64(&h.marketsTotal),
		OrdersReceived:     atomic.LoadInt64(&h.OrdersReceived),
		OrdersMatched:      atomic.LoadInt64(&h.OrdersMatched),
		OrdersCancelled:    atomic.LoadInt64(&h.OrdersCancelled),
		TradesExecuted:     atomic.LoadInt64(&h.TradesExecuted),
		LatencyP50Ms:       p50,
		LatencyP99Ms:       p99,
		ThroughputPerSec:   h.throughput(),
	})
}

func (h *Handler) noteMarket(marketID string) {
	h.marketsSeenMu.Lock()
	defer h.marketsSeenMu.Unlock()
	if _, seen := h.marketsSeen[marketID]; !seen {
		h.marketsSeen[marketID] = struct{}{}
		atomic.AddInt64(&h.marketsTotal, 1)
	}
}

func (h *Handler) recordLatency(latency time.Duration) {
	h.latenciesMu.Lock()
	defer h.latenciesMu.Unlock()

	h.latencies = append(h.latencies, latency)
	// edge case: maintain a rolling window by dropping the oldest samples
	if len(h.latencies) > h.maxLatencies {
		h.latencies = h.latencies[len(h.latencies)-h.maxLatencies:]
	}
}

func (h *Handler) latencyPercentiles() (p50, p99 float64) {
	h.latenciesMu.RLock()
	defer h.latenciesMu.RUnlock()

	if len(h.latencies) == 0 {
		return 0, 0
	}

	sorted := make([]time.Duration, len(h.latencies))
	copy(sorted, h.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := func(f float64) int {
		i := int(float64(len(sorted)) * f)
		if i >= len(sorted) {
			i = len(sorted) - 1
		}
		return i
	}
	p50 = float64(sorted[idx(0.50)].Nanoseconds()) / 1e6
	p99 = float64(sorted[idx(0.99)].Nanoseconds()) / 1e6
	return p50, p99
}

func (h *Handler) throughput() float64 {
	uptime := time.Since(h.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&h.OrdersReceived)) / uptime
}

func joinResponse(r *session.JoinResult) models.JoinResponse {
	return models.JoinResponse{
		Ready:      r.Ready,
		Current:    r.Current,
		Required:   r.Required,
		WaitingFor: r.WaitingFor,
		MarketID:   r.MarketID,
		TraderID:   r.TraderID,
		Role:       r.Role,
		Goal:       r.Goal,
	}
}

func txInfos(txs []*engine.Transaction) []models.TransactionInfo {
	out := make([]models.TransactionInfo, 0, len(txs))
	for _, tx := range txs {
		out = append(out, models.TransactionInfo{
			TransactionID: tx.ID,
			BidOrderID:    tx.BidOrderID,
			AskOrderID:    tx.AskOrderID,
			Price:         tx.Price,
			Amount:        tx.Amount,
			Timestamp:     tx.Timestamp,
		})
	}
	return out
}

func validateSubmitOrderRequest(req *models.SubmitOrderRequest) error {
	if req.MarketID == "" {
		return &market.ValidationError{Message: "Invalid order: market_id is required"}
	}
	if req.TraderID == "" {
		return &market.ValidationError{Message: "Invalid order: trader_id is required"}
	}
	if req.Side != string(engine.SideBid) && req.Side != string(engine.SideAsk) {
		return &market.ValidationError{Message: "Invalid order: side must be BID or ASK"}
	}
	if req.Price <= 0 {
		return &market.ValidationError{Message: "Invalid order: price must be positive"}
	}
	if req.Amount <= 0 {
		return &market.ValidationError{Message: "Invalid order: amount must be positive"}
	}
	return nil
}
