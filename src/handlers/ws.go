package handlers

import (
	"errors"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"auction-lab/src/engine"
	"auction-lab/src/market"
	"auction-lab/src/models"
	"auction-lab/src/traders"
)

// wsSubscriber adapts one participant socket to the market's broadcast
// interface. Deliveries are non-blocking: a slow consumer loses events
// rather than stalling the market, and a closed socket reports an error so
// the broadcast loop unsubscribes it.
type wsSubscriber struct {
	mu     sync.Mutex
	out    chan any
	closed bool
}

func newWSSubscriber() *wsSubscriber {
	return &wsSubscriber{out: make(chan any, 256)}
}

func (s *wsSubscriber) Deliver(ev market.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("subscriber closed")
	}
	select {
	case s.out <- wsEventFrom(ev):
	default:
		// drop rather than block the broadcast
	}
	return nil
}

func (s *wsSubscriber) send(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.out <- v:
	default:
	}
}

func (s *wsSubscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}

func wsEventFrom(ev market.Event) models.WSEvent {
	out := models.WSEvent{
		Kind:             string(ev.Kind),
		MarketID:         ev.MarketID,
		Timestamp:        ev.Timestamp,
		Transactions:     txInfos(ev.Transactions),
		RemainingSeconds: ev.RemainingSeconds,
	}
	if ev.Order != nil {
		out.OrderID = ev.Order.ID
		out.Side = string(ev.Order.Side)
		out.Price = ev.Order.Price
		out.Amount = ev.Order.Amount
	}
	return out
}

// wsAction handles one inbound message kind.
type wsAction func(h *Handler, human *traders.HumanTrader, mkt *market.Market, msg models.WSMessage) models.WSReply

// wsDispatch is the closed message-kind set, built once at startup. No
// string-assembled method lookup: an unknown kind is an error reply, never
// a dynamic call.
var wsDispatch = map[string]wsAction{
	"submit_order": (*Handler).wsSubmitOrder,
	"cancel_order": (*Handler).wsCancelOrder,
	"snapshot":     (*Handler).wsSnapshot,
	"ping":         (*Handler).wsPing,
}

func (h *Handler) wsSubmitOrder(human *traders.HumanTrader, mkt *market.Market, msg models.WSMessage) models.WSReply {
	if msg.Side != string(engine.SideBid) && msg.Side != string(engine.SideAsk) {
		return models.WSReply{Kind: "submit_order", OK: false, Error: "Invalid order: side must be BID or ASK"}
	}

	result, err := human.Submit(engine.OrderSide(msg.Side), msg.Price, msg.Amount)
	if err != nil {
		return models.WSReply{Kind: "submit_order", OK: false, Error: err.Error()}
	}
	return models.WSReply{
		Kind: "submit_order",
		OK:   true,
		Order: &models.SubmitOrderResponse{
			OrderID:      result.Order.ID,
			Status:       string(result.Order.GetStatus()),
			Matched:      result.Matched,
			Transactions: txInfos(result.Transactions),
		},
	}
}

func (h *Handler) wsCancelOrder(human *traders.HumanTrader, mkt *market.Market, msg models.WSMessage) models.WSReply {
	if err := human.Cancel(msg.OrderID); err != nil {
		return models.WSReply{Kind: "cancel_order", OK: false, Error: err.Error()}
	}
	return models.WSReply{Kind: "cancel_order", OK: true}
}

func (h *Handler) wsSnapshot(human *traders.HumanTrader, mkt *market.Market, msg models.WSMessage) models.WSReply {
	snap := h.buildSnapshot(mkt)
	return models.WSReply{Kind: "snapshot", OK: true, Snapshot: &snap}
}

func (h *Handler) wsPing(human *traders.HumanTrader, mkt *market.Market, msg models.WSMessage) models.WSReply {
	return models.WSReply{Kind: "pong", OK: true}
}

// UpgradeGuard rejects plain HTTP requests on the websocket route.
func UpgradeGuard(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// ParticipantSocket is the human broadcast/heartbeat path: one socket per
// connected participant, subscribed to its market's events.
func (h *Handler) ParticipantSocket() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		marketID := c.Params("marketId")
		traderID := c.Params("traderId")

		mgr, ok := h.Reg.Get(marketID)
		if !ok {
			_ = c.WriteJSON(models.ErrorResponse{Error: "Market not found"})
			_ = c.Close()
			return
		}
		trader, ok := mgr.GetTrader(traderID)
		if !ok {
			_ = c.WriteJSON(models.ErrorResponse{Error: "Trader not found"})
			_ = c.Close()
			return
		}
		human, ok := trader.(*traders.HumanTrader)
		if !ok {
			_ = c.WriteJSON(models.ErrorResponse{Error: "Trader is not a participant"})
			_ = c.Close()
			return
		}

		mkt := mgr.Market()
		sub := newWSSubscriber()
		mkt.Subscribe(traderID, sub)

		log.Info().
			Str("market_id", marketID).
			Str("trader_id", traderID).
			Str("username", human.Username).
			Msg("Participant connected")

		defer func() {
			mkt.Unsubscribe(traderID)
			sub.close()
			log.Info().
				Str("market_id", marketID).
				Str("trader_id", traderID).
				Msg("Participant disconnected")
		}()

		// single writer: market events and request replies share one pump
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for v := range sub.out {
				if err := c.WriteJSON(v); err != nil {
					return
				}
			}
		}()

		for {
			var msg models.WSMessage
			if err := c.ReadJSON(&msg); err != nil {
				break
			}

			action, known := wsDispatch[msg.Kind]
			if !known {
				sub.send(models.WSReply{Kind: msg.Kind, OK: false, Error: "Unknown message kind"})
				continue
			}

			reply := action(h, human, mkt, msg)
			sub.send(reply)
		}

		sub.close()
		select {
		case <-writerDone:
		case <-time.After(2 * time.Second):
		}
	})
}
