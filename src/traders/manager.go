package traders

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"auction-lab/src/config"
	"auction-lab/src/market"
)

// ConflictError rejects a duplicate informed-role registration at
// construction time.
type ConflictError struct {
	MarketID string
}

func (e *ConflictError) Error() string {
	return "informed role already held in market " + e.MarketID
}

// Manager instantiates and owns the set of agents attached to one market.
// It derives agent counts from configuration, wires every agent in as an
// inventory holder, and tears the whole ensemble down in Cleanup.
type Manager struct {
	mkt *market.Market

	mu           sync.RWMutex
	traders      map[string]Trader
	informedHeld bool

	agentCounts map[string]int

	cleanupOnce sync.Once
	logger      zerolog.Logger
}

// NewManager builds the algorithmic roster from cfg. Humans are added
// afterwards, one per converted waiting user.
func NewManager(mkt *market.Market, cfg config.Config, decider Decider) (*Manager, error) {
	m := &Manager{
		mkt:         mkt,
		traders:     make(map[string]Trader),
		agentCounts: make(map[string]int),
		logger:      log.With().Str("market_id", mkt.ID).Logger(),
	}

	defaultPrice := cfg.Market.DefaultPriceCents
	duration := time.Duration(cfg.Market.DurationSeconds) * time.Second

	if cfg.Traders.BookInitializer.Enabled {
		if err := m.register(NewBookInitializer(mkt, cfg.Traders.BookInitializer, defaultPrice)); err != nil {
			return nil, err
		}
	}
	for i := 0; i < cfg.Traders.Noise.Count; i++ {
		if err := m.register(NewNoiseTrader(mkt, cfg.Traders.Noise, defaultPrice)); err != nil {
			return nil, err
		}
	}
	if cfg.Traders.Informed.Enabled {
		if err := m.register(NewInformedTrader(mkt, cfg.Traders.Informed, defaultPrice, duration)); err != nil {
			return nil, err
		}
	}
	for i := 0; i < cfg.Traders.Spoofing.Count; i++ {
		if err := m.register(NewSpoofingTrader(mkt, cfg.Traders.Spoofing, defaultPrice)); err != nil {
			return nil, err
		}
	}
	for i := 0; i < cfg.Traders.Manipulator.Count; i++ {
		if err := m.register(NewManipulatorTrader(mkt, cfg.Traders.Manipulator, defaultPrice)); err != nil {
			return nil, err
		}
	}
	for i := 0; i < cfg.Traders.SimpleOrder.Count; i++ {
		if err := m.register(NewSimpleOrderTrader(mkt, cfg.Traders.SimpleOrder, defaultPrice)); err != nil {
			return nil, err
		}
	}
	if decider != nil {
		if err := m.register(NewAgenticTrader(mkt, decider, 5000)); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// register enforces the informed-role lock: at most one algorithmic
// informed trader per market.
func (m *Manager) register(t Trader) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.Role() == RoleInformed && t.Kind() != "human" {
		if m.informedHeld {
			return &ConflictError{MarketID: m.mkt.ID}
		}
		m.informedHeld = true
	}

	m.traders[t.TraderID()] = t
	m.agentCounts[t.Kind()]++
	m.mkt.AttachHolder(t)
	return nil
}

// AddHuman converts one waiting user into a human trader bound to this
// market.
func (m *Manager) AddHuman(username string, role Role, goal int64) *HumanTrader {
	id := "human:" + uuid.New().String()
	t := NewHumanTrader(id, username, role, goal, m.mkt)

	m.mu.Lock()
	m.traders[id] = t
	m.agentCounts["human"]++
	m.mu.Unlock()

	m.mkt.AttachHolder(t)
	return t
}

func (m *Manager) GetTrader(id string) (Trader, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.traders[id]
	return t, ok
}

func (m *Manager) Exists(id string) bool {
	_, ok := m.GetTrader(id)
	return ok
}

func (m *Manager) AgentCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int, len(m.agentCounts))
	for k, v := range m.agentCounts {
		out[k] = v
	}
	return out
}

func (m *Manager) Market() *market.Market { return m.mkt }

// Start launches the market lifecycle and every agent loop.
func (m *Manager) Start() {
	m.mkt.Start()

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.traders {
		t.Start()
	}

	m.logger.Info().
		Int("traders", len(m.traders)).
		Msg("Trader ensemble started")
}

// Cleanup stops the market and every owned agent, then awaits teardown
// with a bounded wait. Idempotent; a stuck or already-stopped agent never
// blocks sibling teardown past the bound.
func (m *Manager) Cleanup() {
	m.cleanupOnce.Do(func() {
		m.mkt.Stop()

		m.mu.RLock()
		snapshot := make([]Trader, 0, len(m.traders))
		for _, t := range m.traders {
			snapshot = append(snapshot, t)
		}
		m.mu.RUnlock()

		done := make(chan struct{})
		go func() {
			for _, t := range snapshot {
				t.Stop()
			}
			close(done)
		}()

		select {
		case <-done:
			m.logger.Info().Int("traders", len(snapshot)).Msg("Cleanup complete")
		case <-time.After(5 * time.Second):
			m.logger.Warn().Msg("Cleanup timed out waiting for agent loops")
		}
	})
}

// RoleFromString maps a configured slot role onto the trader role set.
func RoleFromString(s string) (Role, error) {
	switch s {
	case string(RoleInformed):
		return RoleInformed, nil
	case string(RoleSpeculator):
		return RoleSpeculator, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}
