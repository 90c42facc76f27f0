package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"auction-lab/src/config"
	"auction-lab/src/market"
	"auction-lab/src/registry"
	"auction-lab/src/traders"
	"auction-lab/src/treatment"
)

// WaitingUser exists only while its pool is forming; it is converted to a
// human trader and discarded when the pool fills.
type WaitingUser struct {
	Username string
	JoinedAt time.Time
}

// Pool is a multiset of slots plus the waiting users occupying some of
// them. Occupants is parallel to Slots; nil marks an open seat.
type Pool struct {
	ID        string
	Slots     []config.SlotSpec
	Occupants []*WaitingUser
}

func newPool(template []config.SlotSpec) *Pool {
	return &Pool{
		ID:        uuid.New().String(),
		Slots:     append([]config.SlotSpec(nil), template...),
		Occupants: make([]*WaitingUser, len(template)),
	}
}

func (p *Pool) occupied() int {
	n := 0
	for _, o := range p.Occupants {
		if o != nil {
			n++
		}
	}
	return n
}

func (p *Pool) full() bool {
	return p.occupied() == len(p.Slots)
}

// openSlotForMagnitude finds an open seat whose goal magnitude matches.
// Matching is by magnitude, never by template identity: a config change
// mid-run must not orphan a user whose magnitude still exists somewhere in
// the new template.
func (p *Pool) openSlotForMagnitude(mag int64) int {
	for i, slot := range p.Slots {
		if p.Occupants[i] != nil {
			continue
		}
		if abs64(slot.Goal) == mag {
			return i
		}
	}
	return -1
}

// firstOpenSlot is the seat a brand-new user takes; taking it fixes their
// permanent magnitude.
func (p *Pool) firstOpenSlot() int {
	for i := range p.Slots {
		if p.Occupants[i] == nil {
			return i
		}
	}
	return -1
}

// JoinResult is either a waiting status (Ready=false) or the user's seat in
// a formed market.
type JoinResult struct {
	Ready      bool
	Current    int
	Required   int
	WaitingFor int

	MarketID string
	TraderID string
	Role     string
	Goal     int64
}

type assignment struct {
	MarketID string
	TraderID string
	Role     string
	Goal     int64
}

// seatlessPool is the waitingIn value for users parked without a seat.
const seatlessPool = ""

// Manager is the cohort/slot allocator: it turns a stream of arriving
// participants into complete markets while preserving each participant's
// role/goal magnitude across repeated sessions.
type Manager struct {
	mu sync.Mutex

	cfg        config.Config
	treatments *treatment.Manager
	reg        *registry.Registry
	decider    traders.Decider

	pools []*Pool

	// permanent goal magnitudes outlive any single market
	magnitudes map[string]int64

	// 0-based count of markets each user has already entered
	marketIndex map[string]int

	// username -> forming pool id (at most one membership at a time).
	// seatlessPool marks a returning user whose magnitude has no slot in
	// the current template.
	waitingIn map[string]string

	// username -> marketID while the market is live
	activeIn map[string]string

	// last ready assignment per username, for status polling
	assignments map[string]assignment

	logger zerolog.Logger
}

func NewManager(cfg config.Config, tm *treatment.Manager, reg *registry.Registry) *Manager {
	return &Manager{
		cfg:         cfg,
		treatments:  tm,
		reg:         reg,
		magnitudes:  make(map[string]int64),
		marketIndex: make(map[string]int),
		waitingIn:   make(map[string]string),
		activeIn:    make(map[string]string),
		assignments: make(map[string]assignment),
		logger:      log.With().Str("component", "session").Logger(),
	}
}

// SetDecider wires the optional model-driven trading collaborator into
// subsequently formed markets.
func (m *Manager) SetDecider(d traders.Decider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decider = d
}

// UpdateConfig swaps the base parameters used for every pool opened from
// now on. Already-forming pools keep the slots they were seeded with;
// permanent magnitudes keep returning users stable across the change.
func (m *Manager) UpdateConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.logger.Info().Msg("Session configuration updated")
	return nil
}

// Magnitude returns the permanent goal magnitude recorded for a user.
func (m *Manager) Magnitude(username string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mag, ok := m.magnitudes[username]
	return mag, ok
}

// Join allocates a seat for one participant:
//  1. returning users reuse their permanent magnitude, so the same human
//     always gets the same role/goal size even after the template changes;
//  2. existing non-full pools are searched for a compatible open slot;
//  3. otherwise a new pool is opened from the current template
//     (treatment-adjusted for this user's market index);
//  4. when the pool fills, the market and its trader ensemble are built
//     atomically and every waiting user becomes a human trader.
func (m *Manager) Join(username string) (*JoinResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepFinishedLocked()
	m.removeMembershipLocked(username)

	mag, returning := m.magnitudes[username]

	pool, slotIdx := m.findSeatLocked(username, mag, returning)
	if pool == nil {
		// no compatible seat anywhere, not even in a fresh pool: the
		// user's magnitude is gone from the current template. Reported as
		// a waiting status, not an error; the seatless membership keeps
		// Status answering with the same shape until the user leaves or a
		// template change seats them.
		m.waitingIn[username] = seatlessPool
		m.logger.Warn().
			Str("username", username).
			Int64("magnitude", mag).
			Msg("No slot matches user's permanent magnitude in current template")
		return &JoinResult{Ready: false, WaitingFor: 1}, nil
	}

	occupant := &WaitingUser{Username: username, JoinedAt: time.Now()}
	pool.Occupants[slotIdx] = occupant
	m.waitingIn[username] = pool.ID

	if !returning {
		m.magnitudes[username] = abs64(pool.Slots[slotIdx].Goal)
	}

	m.logger.Info().
		Str("username", username).
		Str("pool_id", pool.ID).
		Str("role", pool.Slots[slotIdx].Role).
		Int64("goal", pool.Slots[slotIdx].Goal).
		Int("occupied", pool.occupied()).
		Int("required", len(pool.Slots)).
		Msg("Participant seated")

	if !pool.full() {
		return &JoinResult{
			Ready:      false,
			Current:    pool.occupied(),
			Required:   len(pool.Slots),
			WaitingFor: len(pool.Slots) - pool.occupied(),
		}, nil
	}

	if err := m.formMarketLocked(pool, username); err != nil {
		// seat stays taken; the pool will retry forming on the next join
		pool.Occupants[slotIdx] = nil
		delete(m.waitingIn, username)
		return nil, err
	}

	a := m.assignments[username]
	return &JoinResult{
		Ready:    true,
		MarketID: a.MarketID,
		TraderID: a.TraderID,
		Role:     a.Role,
		Goal:     a.Goal,
	}, nil
}

// findSeatLocked implements steps 2 and 3 of the allocation: search the
// forming pools, then open a new one from the current (treatment-adjusted)
// template.
func (m *Manager) findSeatLocked(username string, mag int64, returning bool) (*Pool, int) {
	for _, pool := range m.pools {
		if pool.full() {
			continue
		}
		if returning {
			if i := pool.openSlotForMagnitude(mag); i >= 0 {
				return pool, i
			}
		} else {
			if i := pool.firstOpenSlot(); i >= 0 {
				return pool, i
			}
		}
	}

	template := m.cfg.Session.SlotTemplate
	if ov := m.treatments.ForIndex(m.marketIndex[username]); ov != nil && len(ov.SlotTemplate) > 0 {
		template = ov.SlotTemplate
	}

	pool := newPool(template)
	var idx int
	if returning {
		idx = pool.openSlotForMagnitude(mag)
		if idx < 0 {
			return nil, -1
		}
	} else {
		idx = pool.firstOpenSlot()
	}

	m.pools = append(m.pools, pool)
	m.logger.Info().
		Str("pool_id", pool.ID).
		Int("slots", len(pool.Slots)).
		Msg("Pool opened")
	return pool, idx
}

// formMarketLocked builds the market and its trader ensemble atomically
// once a pool is full, converts every waiting user to a human trader, and
// discards the pool. fillingUser's market index selects the treatment
// override for the ensemble.
func (m *Manager) formMarketLocked(pool *Pool, fillingUser string) error {
	effective := treatment.Apply(m.cfg, m.treatments.ForIndex(m.marketIndex[fillingUser]))

	marketID := uuid.New().String()
	mkt := market.New(marketID, market.Config{
		Duration:      time.Duration(effective.Market.DurationSeconds) * time.Second,
		Tick:          time.Duration(effective.Market.TickSeconds) * time.Second,
		UnwindPenalty: effective.Market.UnwindPenalty,
		DefaultPrice:  effective.Market.DefaultPriceCents,
	})

	mgr, err := traders.NewManager(mkt, effective, m.decider)
	if err != nil {
		return err
	}

	for i, occupant := range pool.Occupants {
		slot := pool.Slots[i]

		role, rerr := traders.RoleFromString(slot.Role)
		if rerr != nil {
			return rerr
		}

		// sign comes from the slot, magnitude from the permanent record
		goal := m.magnitudes[occupant.Username]
		if slot.Goal < 0 {
			goal = -goal
		}
		if role == traders.RoleSpeculator {
			goal = 0
		}

		human := mgr.AddHuman(occupant.Username, role, goal)

		m.assignments[occupant.Username] = assignment{
			MarketID: marketID,
			TraderID: human.TraderID(),
			Role:     string(role),
			Goal:     goal,
		}
		delete(m.waitingIn, occupant.Username)
		m.activeIn[occupant.Username] = marketID
		m.marketIndex[occupant.Username]++
	}

	m.reg.Register(mgr)
	mgr.Start()
	m.removePoolLocked(pool.ID)

	m.logger.Info().
		Str("market_id", marketID).
		Str("pool_id", pool.ID).
		Int("humans", len(pool.Occupants)).
		Msg("Pool filled, market formed")

	return nil
}

// Status reports the same shape Join does, for participants polling while
// they wait.
func (m *Manager) Status(username string) (*JoinResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if marketID, ok := m.activeIn[username]; ok {
		if a, ok := m.assignments[username]; ok && a.MarketID == marketID {
			return &JoinResult{
				Ready:    true,
				MarketID: a.MarketID,
				TraderID: a.TraderID,
				Role:     a.Role,
				Goal:     a.Goal,
			}, true
		}
	}

	if poolID, ok := m.waitingIn[username]; ok {
		if poolID == seatlessPool {
			return &JoinResult{Ready: false, WaitingFor: 1}, true
		}
		for _, pool := range m.pools {
			if pool.ID == poolID {
				return &JoinResult{
					Ready:      false,
					Current:    pool.occupied(),
					Required:   len(pool.Slots),
					WaitingFor: len(pool.Slots) - pool.occupied(),
				}, true
			}
		}
	}

	return nil, false
}

// Leave removes a user from a still-forming pool. The permanent magnitude
// is kept; rejoining later restores the same role/goal size.
func (m *Manager) Leave(username string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeMembershipLocked(username)
}

// removeMembershipLocked enforces at-most-one membership: any prior waiting
// seat is vacated and a stale active record dropped.
func (m *Manager) removeMembershipLocked(username string) bool {
	removed := false

	if poolID, ok := m.waitingIn[username]; ok {
		for _, pool := range m.pools {
			if pool.ID != poolID {
				continue
			}
			for i, occupant := range pool.Occupants {
				if occupant != nil && occupant.Username == username {
					pool.Occupants[i] = nil
				}
			}
		}
		delete(m.waitingIn, username)
		removed = true
	}

	if _, ok := m.activeIn[username]; ok {
		delete(m.activeIn, username)
		removed = true
	}

	return removed
}

func (m *Manager) removePoolLocked(poolID string) {
	for i, pool := range m.pools {
		if pool.ID == poolID {
			m.pools = append(m.pools[:i], m.pools[i+1:]...)
			return
		}
	}
}

// sweepFinishedLocked garbage-collects finished markets and releases their
// participants for re-entry.
func (m *Manager) sweepFinishedLocked() {
	if m.reg.SweepFinished() == 0 {
		return
	}
	for username, marketID := range m.activeIn {
		if _, ok := m.reg.Get(marketID); !ok {
			delete(m.activeIn, username)
		}
	}
}

// PoolCount reports forming pools; used by the admin status surface.
func (m *Manager) PoolCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pools)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
