package panel

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/libraryops/patron-blocks/pkg/logger"
)

type registryEntry struct {
	panel    *Panel
	owner    string
	lastSeen time.Time
}

// Registry holds the open panels of the API, keyed by panel id. Panels idle for
// longer than the TTL are closed by Sweep.
type Registry struct {
	mu     sync.Mutex
	panels map[string]*registryEntry
	ttl    time.Duration
	now    func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		panels: make(map[string]*registryEntry),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Add stores p for owner and returns its id.
func (r *Registry) Add(owner string, p *Panel) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panels[p.ID()] = &registryEntry{panel: p, owner: owner, lastSeen: r.now()}
	openPanels.Set(float64(len(r.panels)))
	return p.ID()
}

// Get returns the panel with id if owner opened it.
func (r *Registry) Get(id, owner string) (*Panel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.panels[id]
	if !ok {
		return nil, ErrPanelNotFound
	}
	if e.owner != owner {
		return nil, ErrNotOwner
	}
	e.lastSeen = r.now()
	return e.panel, nil
}

// Remove closes and forgets the panel with id.
func (r *Registry) Remove(id, owner string) error {
	r.mu.Lock()
	e, ok := r.panels[id]
	if !ok {
		r.mu.Unlock()
		return ErrPanelNotFound
	}
	if e.owner != owner {
		r.mu.Unlock()
		return ErrNotOwner
	}
	delete(r.panels, id)
	openPanels.Set(float64(len(r.panels)))
	r.mu.Unlock()

	e.panel.Close()
	return nil
}

// Len returns the number of open panels.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.panels)
}

// Sweep closes panels idle for longer than the TTL and returns how many it closed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var stale []*Panel
	for id, e := range r.panels {
		if e.lastSeen.Before(cutoff) {
			stale = append(stale, e.panel)
			delete(r.panels, id)
		}
	}
	openPanels.Set(float64(len(r.panels)))
	r.mu.Unlock()

	for _, p := range stale {
		p.Close()
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				logger.Log.Debug("Closed idle panels", zap.Int("count", n))
			}
		}
	}
}
