package market

import (
	"sync"

	"github.com/rs/zerolog/log"

	"auction-lab/src/engine"
)

type EventKind string

const (
	EventTradingStarted EventKind = "TRADING_STARTED"
	EventStopTrading    EventKind = "STOP_TRADING"
	EventClosure        EventKind = "CLOSURE"
	EventAddedOrder     EventKind = "ADDED_ORDER"
	EventFilledOrder    EventKind = "FILLED_ORDER"
	EventCancelledOrder EventKind = "CANCELLED_ORDER"
	EventTimeRemaining  EventKind = "TIME_REMAINING"
)

// Event is the closed message set broadcast to subscribers. Only the fields
// relevant to a Kind are populated.
type Event struct {
	Kind             EventKind
	MarketID         string
	Timestamp        int64
	Order            *engine.Order
	Transactions     []*engine.Transaction
	RemainingSeconds int64
}

// Subscriber receives market events. A delivery error drops the subscriber.
type Subscriber interface {
	Deliver(Event) error
}

type subscriberSet struct {
	mu   sync.RWMutex
	subs map[string]Subscriber
}

func newSubscriberSet() *subscriberSet {
	return &subscriberSet{subs: make(map[string]Subscriber)}
}

func (s *subscriberSet) add(id string, sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[id] = sub
}

func (s *subscriberSet) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

func (s *subscriberSet) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// broadcast iterates a snapshot of the set so connect/disconnect during
// delivery cannot invalidate the iteration. Failed subscribers are removed
// after the loop, never mid-iteration, and one failure does not block the
// remaining deliveries.
func (s *subscriberSet) broadcast(ev Event) {
	s.mu.RLock()
	snapshot := make(map[string]Subscriber, len(s.subs))
	for id, sub := range s.subs {
		snapshot[id] = sub
	}
	s.mu.RUnlock()

	var failed []string
	for id, sub := range snapshot {
		if err := sub.Deliver(ev); err != nil {
			log.Warn().
				Str("market_id", ev.MarketID).
				Str("subscriber_id", id).
				Str("event", string(ev.Kind)).
				Err(err).
				Msg("Subscriber delivery failed, dropping subscriber")
			failed = append(failed, id)
		}
	}

	for _, id := range failed {
		s.remove(id)
	}
}
