package sources

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"route-aggregator/internal/clients"
	"route-aggregator/internal/config"
)

// Descriptor is the operator view of one registered source.
type Descriptor struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Public       bool                   `json:"public"`
	Configured   bool                   `json:"configured"`
	Disabled     bool                   `json:"disabled"`
	Enabled      bool                   `json:"enabled"`
	Capabilities Capabilities           `json:"capabilities"`
	TimeoutMs    int                    `json:"timeoutMs"`
	RateLimit    config.RateLimitConfig `json:"rateLimit"`
}

// Timeout returns the per-call timeout of the source.
func (d Descriptor) Timeout() time.Duration {
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

type registered struct {
	adapter    Adapter
	descriptor Descriptor
}

// Registry holds every known source and answers which of them take part in quoting.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]registered
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]registered)}
}

// Register adds or replaces a source. Enabled is derived from the descriptor: credentials present
// or public, and not disabled.
func (r *Registry) Register(adapter Adapter, d Descriptor) {
	d.ID = adapter.ID()
	d.Capabilities = adapter.Capabilities()
	d.Enabled = (d.Configured || d.Public) && !d.Disabled

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[d.ID] = registered{adapter: adapter, descriptor: d}
}

// Enabled returns the enabled adapters ordered by id.
func (r *Registry) Enabled() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapters := make([]Adapter, 0, len(r.sources))
	for _, s := range r.sources {
		if s.descriptor.Enabled {
			adapters = append(adapters, s.adapter)
		}
	}
	sort.Slice(adapters, func(i, j int) bool { return adapters[i].ID() < adapters[j].ID() })
	return adapters
}

// Get returns an enabled adapter.
func (r *Registry) Get(id string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sources[id]
	if !ok || !s.descriptor.Enabled {
		return nil, false
	}
	return s.adapter, true
}

// Descriptor returns the descriptor of a registered source, enabled or not.
func (r *Registry) Descriptor(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sources[id]
	return s.descriptor, ok
}

// Describe lists every registered source ordered by id.
func (r *Registry) Describe() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, s.descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Build registers every known source from configuration. Sources without credentials that are not
// public get the Unconfigured variant.
func Build(cfg *config.Config, logger *logrus.Logger) *Registry {
	reg := NewRegistry()
	memoTTL := time.Duration(cfg.Snapshot.TTLSeconds) * time.Second
	defaultTimeout := time.Duration(cfg.Quote.SourceTimeoutMs) * time.Millisecond

	add := func(id, name string, public bool, adapter func(config.SourceConfig) Adapter, caps func() Capabilities) {
		sc := cfg.Source(id)
		d := Descriptor{
			Name:       name,
			Public:     public,
			Configured: sc.APIKey != "",
			Disabled:   sc.Disabled,
			TimeoutMs:  int(sc.Timeout(defaultTimeout) / time.Millisecond),
			RateLimit:  sc.RateLimit,
		}
		if d.RateLimit.MaxRequests == 0 {
			d.RateLimit = cfg.RateLimit
		}

		var a Adapter
		if d.Configured || d.Public {
			a = adapter(sc)
		} else {
			a = NewUnconfigured(id, caps())
		}
		reg.Register(a, d)

		d, _ = reg.Descriptor(id)
		logger.WithFields(logrus.Fields{
			"source":     id,
			"enabled":    d.Enabled,
			"configured": d.Configured,
			"public":     d.Public,
			"timeout_ms": d.TimeoutMs,
		}).Info("Quote source registered")
	}

	for _, spec := range AggregatorSpecs {
		spec := spec
		add(spec.ID, spec.Name, spec.Public,
			func(sc config.SourceConfig) Adapter { return NewAggregatorAdapter(spec, sc, memoTTL) },
			func() Capabilities { return NewAggregatorAdapter(spec, config.SourceConfig{}, memoTTL).Capabilities() },
		)
	}

	add("skip", "Skip Go", true,
		func(sc config.SourceConfig) Adapter { return NewSkipAdapter(sc, memoTTL) },
		func() Capabilities { return NewSkipAdapter(config.SourceConfig{}, memoTTL).Capabilities() },
	)

	add("oneclick", "NEAR Intents 1Click", true,
		func(sc config.SourceConfig) Adapter {
			api := clients.NewOneClickClient(sc.APIKey, sc.BaseURL, sc.Timeout(15*time.Second))
			return NewOneClickAdapter(api, memoTTL)
		},
		func() Capabilities { return NewOneClickAdapter(nil, memoTTL).Capabilities() },
	)
	return reg
}
