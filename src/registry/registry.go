package registry

import (
	"sync"

	"github.com/rs/zerolog/log"

	"auction-lab/src/traders"
)

// Registry is the process-owned index of live markets and their trader
// managers. It is created by main and passed by reference; nothing in the
// engine reaches for package-level state.
type Registry struct {
	mu       sync.RWMutex
	managers map[string]*traders.Manager
}

func New() *Registry {
	return &Registry{managers: make(map[string]*traders.Manager)}
}

func (r *Registry) Register(mgr *traders.Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.managers[mgr.Market().ID] = mgr
}

func (r *Registry) Get(marketID string) (*traders.Manager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mgr, ok := r.managers[marketID]
	return mgr, ok
}

// List returns a copy so callers never iterate the live map.
func (r *Registry) List() []*traders.Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*traders.Manager, 0, len(r.managers))
	for _, mgr := range r.managers {
		out = append(out, mgr)
	}
	return out
}

func (r *Registry) Remove(marketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.managers, marketID)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.managers)
}

// SweepFinished garbage-collects finished markets: their ensembles are
// cleaned up and dropped from the index. Returns the number removed.
func (r *Registry) SweepFinished() int {
	finished := make([]*traders.Manager, 0)
	r.mu.RLock()
	for _, mgr := range r.managers {
		if mgr.Market().IsFinished() {
			finished = append(finished, mgr)
		}
	}
	r.mu.RUnlock()

	for _, mgr := range finished {
		mgr.Cleanup()
		r.Remove(mgr.Market().ID)
		log.Info().
			Str("market_id", mgr.Market().ID).
			Msg("Finished market garbage-collected")
	}
	return len(finished)
}
