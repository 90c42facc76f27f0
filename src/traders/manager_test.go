package traders

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auction-lab/src/config"
	"auction-lab/src/engine"
	"auction-lab/src/market"
)

func managerConfig() config.Config {
	cfg := config.Config{}
	cfg.Market.DurationSeconds = 60
	cfg.Market.TickSeconds = 1
	cfg.Market.UnwindPenalty = 0.1
	cfg.Market.DefaultPriceCents = 10000
	return cfg
}

func newTestMarket() *market.Market {
	return market.New("m-test", market.Config{
		Duration:      time.Minute,
		Tick:          time.Second,
		UnwindPenalty: 0.1,
		DefaultPrice:  10000,
	})
}

func TestRosterFromConfig(t *testing.T) {
	cfg := managerConfig()
	cfg.Traders.BookInitializer.Enabled = true
	cfg.Traders.BookInitializer.Levels = 3
	cfg.Traders.BookInitializer.AmountPerLevel = 10
	cfg.Traders.BookInitializer.StepCents = 100
	cfg.Traders.Noise.Count = 3
	cfg.Traders.Noise.ThinkMinMs = 500
	cfg.Traders.Noise.ThinkMaxMs = 1000
	cfg.Traders.Noise.MaxOffsetCents = 200
	cfg.Traders.Noise.MaxAmount = 5
	cfg.Traders.Informed.Enabled = true
	cfg.Traders.Informed.Goal = 20
	cfg.Traders.Informed.ClipAmount = 2
	cfg.Traders.Spoofing.Count = 1
	cfg.Traders.Manipulator.Count = 2

	mgr, err := NewManager(newTestMarket(), cfg, nil)
	require.NoError(t, err)
	defer mgr.Cleanup()

	counts := mgr.AgentCounts()
	assert.Equal(t, 1, counts["book_initializer"])
	assert.Equal(t, 3, counts["noise"])
	assert.Equal(t, 1, counts["informed"])
	assert.Equal(t, 1, counts["spoofing"])
	assert.Equal(t, 2, counts["manipulator"])
	assert.Equal(t, 0, counts["human"])
	assert.Equal(t, 0, counts["agentic"])
}

func TestEmptyRoster(t *testing.T) {
	mgr, err := NewManager(newTestMarket(), managerConfig(), nil)
	require.NoError(t, err)
	defer mgr.Cleanup()

	assert.Empty(t, mgr.AgentCounts())
}

func TestInformedRoleLock(t *testing.T) {
	cfg := managerConfig()
	cfg.Traders.Informed.Enabled = true
	cfg.Traders.Informed.Goal = 20
	cfg.Traders.Informed.ClipAmount = 2

	mkt := newTestMarket()
	mgr, err := NewManager(mkt, cfg, nil)
	require.NoError(t, err)
	defer mgr.Cleanup()

	second := NewInformedTrader(mkt, cfg.Traders.Informed, 10000, time.Minute)
	err = mgr.register(second)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, mkt.ID, conflict.MarketID)
}

func TestHumanInformedBypassesLock(t *testing.T) {
	cfg := managerConfig()
	cfg.Traders.Informed.Enabled = true
	cfg.Traders.Informed.Goal = 20
	cfg.Traders.Informed.ClipAmount = 2

	mgr, err := NewManager(newTestMarket(), cfg, nil)
	require.NoError(t, err)
	defer mgr.Cleanup()

	// the lock guards the algorithmic role only; a human informed sits
	// alongside the agent
	human := mgr.AddHuman("alice", RoleInformed, 20)
	require.NotNil(t, human)
	assert.True(t, strings.HasPrefix(human.TraderID(), "human:"))
	assert.Equal(t, 1, mgr.AgentCounts()["human"])
	assert.True(t, mgr.Exists(human.TraderID()))
}

func TestHumanSubmitAndCancel(t *testing.T) {
	mgr, err := NewManager(newTestMarket(), managerConfig(), nil)
	require.NoError(t, err)
	defer mgr.Cleanup()

	human := mgr.AddHuman("alice", RoleSpeculator, 0)
	mgr.Start()

	res, err := human.Submit(engine.SideBid, 10000, 5)
	require.NoError(t, err)
	assert.False(t, res.Matched)

	require.NoError(t, human.Cancel(res.Order.ID))
}

func TestCleanupStopsEverything(t *testing.T) {
	cfg := managerConfig()
	cfg.Traders.Noise.Count = 2
	cfg.Traders.Noise.ThinkMinMs = 10
	cfg.Traders.Noise.ThinkMaxMs = 20
	cfg.Traders.Noise.MaxOffsetCents = 100
	cfg.Traders.Noise.MaxAmount = 2

	mkt := newTestMarket()
	mgr, err := NewManager(mkt, cfg, nil)
	require.NoError(t, err)

	mgr.Start()
	require.True(t, mkt.TradingStarted())

	mgr.Cleanup()
	assert.False(t, mkt.IsActive())

	// idempotent
	mgr.Cleanup()
}

func TestRoleFromString(t *testing.T) {
	role, err := RoleFromString("INFORMED")
	require.NoError(t, err)
	assert.Equal(t, RoleInformed, role)

	role, err = RoleFromString("SPECULATOR")
	require.NoError(t, err)
	assert.Equal(t, RoleSpeculator, role)

	_, err = RoleFromString("wizard")
	assert.Error(t, err)
}
