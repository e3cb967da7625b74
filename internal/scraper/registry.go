package scraper

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry maps plugin names to implementations and answers routing
// queries. It is an explicitly constructed instance passed to callers;
// there is no package-level registry.
type Registry struct {
	mu       sync.RWMutex
	scrapers map[string]Scraper
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{scrapers: make(map[string]Scraper)}
}

// Register adds a plugin. Disabled plugins are registered too so they can
// be listed and diagnosed; routing skips them.
func (r *Registry) Register(s Scraper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrapers[s.Name()] = s

	if !s.Enabled() {
		zap.L().Info("scraper: registered disabled plugin",
			zap.String("scraper", s.Name()),
		)
	}
}

// Get returns a plugin by name, or nil.
func (r *Registry) Get(name string) Scraper {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scrapers[name]
}

// List returns all registered plugin names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.scrapers))
	for name := range r.scrapers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HandlersFor returns the enabled plugins that can handle the URL,
// highest priority first. Ties break on name for determinism.
func (r *Registry) HandlersFor(url string) []Scraper {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Scraper
	for _, s := range r.scrapers {
		if !s.Enabled() || !s.CanHandle(url) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority() != out[j].Priority() {
			return out[i].Priority() > out[j].Priority()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}
