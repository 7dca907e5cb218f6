package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"route-aggregator/internal/metrics"
	"route-aggregator/internal/types"
	"route-aggregator/internal/utils"
)

// DefaultSnapshotTTL bounds how long a quoted route stays executable.
const DefaultSnapshotTTL = 5 * time.Minute

// Snapshot validation failures. Messages are returned to callers verbatim.
var (
	ErrSnapshotNotFound = errors.New("Route snapshot not found")
	ErrSnapshotExpired  = errors.New("Route snapshot expired")
	ErrSnapshotMismatch = errors.New("Execution parameters do not match quoted route")
	ErrSnapshotInUse    = errors.New("Route execution already in progress")
)

// RouteSnapshot captures the economic terms a route was quoted under.
type RouteSnapshot struct {
	RouteID   string          `json:"routeId"`
	Provider  string          `json:"provider"`
	Kind      types.RouteKind `json:"type"`
	FromChain string          `json:"fromChain"`
	ToChain   string          `json:"toChain"`
	FromToken string          `json:"fromToken"`
	ToToken   string          `json:"toToken"`
	AmountIn  string          `json:"amountIn"`
	AmountOut string          `json:"amountOut"`
	CreatedAt time.Time       `json:"createdAt"`
}

// SnapshotStore binds execution requests to previously quoted routes.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]RouteSnapshot
	claimed   map[string]bool
	ttl       time.Duration
	interval  time.Duration
	logger    *logrus.Logger
	now       func() time.Time

	runMu     sync.Mutex
	isRunning bool
	done      chan struct{}
	stopped   chan struct{}
}

// NewSnapshotStore creates a store. Zero ttl or interval fall back to defaults.
func NewSnapshotStore(ttl, janitorInterval time.Duration, logger *logrus.Logger) *SnapshotStore {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	if janitorInterval <= 0 {
		janitorInterval = 30 * time.Second
	}
	return &SnapshotStore{
		snapshots: make(map[string]RouteSnapshot),
		claimed:   make(map[string]bool),
		ttl:       ttl,
		interval:  janitorInterval,
		logger:    logger,
		now:       time.Now,
	}
}

// Store upserts the snapshot of a route; the last write for a routeId wins.
func (s *SnapshotStore) Store(route types.Route) {
	snap := RouteSnapshot{
		RouteID:   route.RouteID,
		Provider:  route.Provider,
		Kind:      route.Kind,
		FromChain: utils.NormalizeChain(route.FromChain),
		ToChain:   utils.NormalizeChain(route.ToChain),
		FromToken: utils.NormalizeToken(route.FromToken),
		ToToken:   utils.NormalizeToken(route.ToToken),
		AmountIn:  route.AmountIn,
		AmountOut: route.EffectiveAmountOut(),
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.snapshots[route.RouteID] = snap
	n := len(s.snapshots)
	s.mu.Unlock()

	metrics.SnapshotsActive.Set(float64(n))
}

// Validate checks an execution request against the stored snapshot. Recipient and slippage
// may change between quote and execution and are not compared. An expired snapshot is removed.
func (s *SnapshotStore) Validate(req types.ExecutionRequest) (*RouteSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validateLocked(req)
}

// Claim validates like Validate and reserves the snapshot for one execution. Until Release or
// Invalidate, further claims on the route fail with ErrSnapshotInUse.
func (s *SnapshotStore) Claim(req types.ExecutionRequest) (*RouteSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.validateLocked(req)
	if err != nil {
		return nil, err
	}
	if s.claimed[snap.RouteID] {
		metrics.SnapshotValidations.WithLabelValues("in_use").Inc()
		return nil, ErrSnapshotInUse
	}
	s.claimed[snap.RouteID] = true
	return snap, nil
}

// Release returns a claimed snapshot to the store so the route can be executed again.
func (s *SnapshotStore) Release(routeID string) {
	s.mu.Lock()
	delete(s.claimed, routeID)
	s.mu.Unlock()
}

func (s *SnapshotStore) validateLocked(req types.ExecutionRequest) (*RouteSnapshot, error) {
	snap, ok := s.snapshots[req.RouteID]
	if !ok {
		metrics.SnapshotValidations.WithLabelValues("not_found").Inc()
		return nil, ErrSnapshotNotFound
	}
	if s.now().Sub(snap.CreatedAt) > s.ttl {
		delete(s.snapshots, req.RouteID)
		delete(s.claimed, req.RouteID)
		metrics.SnapshotsActive.Set(float64(len(s.snapshots)))
		metrics.SnapshotValidations.WithLabelValues("expired").Inc()
		return nil, ErrSnapshotExpired
	}

	if snap.FromChain != utils.NormalizeChain(req.FromChain) ||
		snap.ToChain != utils.NormalizeChain(req.ToChain) ||
		snap.FromToken != utils.NormalizeToken(req.FromToken) ||
		snap.ToToken != utils.NormalizeToken(req.ToToken) ||
		!utils.SameAmount(snap.AmountIn, req.AmountIn) {
		metrics.SnapshotValidations.WithLabelValues("mismatch").Inc()
		return nil, ErrSnapshotMismatch
	}

	metrics.SnapshotValidations.WithLabelValues("ok").Inc()
	return &snap, nil
}

// Get returns a live snapshot.
func (s *SnapshotStore) Get(routeID string) (*RouteSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[routeID]
	if !ok || s.now().Sub(snap.CreatedAt) > s.ttl {
		return nil, false
	}
	return &snap, true
}

// Invalidate removes a snapshot once its route has been turned into a payload.
func (s *SnapshotStore) Invalidate(routeID string) {
	s.mu.Lock()
	delete(s.snapshots, routeID)
	delete(s.claimed, routeID)
	n := len(s.snapshots)
	s.mu.Unlock()
	metrics.SnapshotsActive.Set(float64(n))
}

// Len returns the number of held snapshots, expired ones included until evicted.
func (s *SnapshotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// EvictExpired drops every snapshot older than the TTL and returns how many were removed.
func (s *SnapshotStore) EvictExpired() int {
	now := s.now()
	s.mu.Lock()
	removed := 0
	for id, snap := range s.snapshots {
		if now.Sub(snap.CreatedAt) > s.ttl {
			delete(s.snapshots, id)
			delete(s.claimed, id)
			removed++
		}
	}
	n := len(s.snapshots)
	s.mu.Unlock()

	metrics.SnapshotsActive.Set(float64(n))
	return removed
}

// Start runs the eviction loop until Stop is called or ctx is done.
func (s *SnapshotStore) Start(ctx context.Context) {
	s.runMu.Lock()
	if s.isRunning {
		s.runMu.Unlock()
		return
	}
	s.isRunning = true
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})
	done, stopped := s.done, s.stopped
	s.runMu.Unlock()

	ticker := time.NewTicker(s.interval)
	go func() {
		defer close(stopped)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.runMu.Lock()
				if s.done == done {
					s.isRunning = false
				}
				s.runMu.Unlock()
				return
			case <-done:
				return
			case <-ticker.C:
				if n := s.EvictExpired(); n > 0 {
					s.logger.WithField("evicted", n).Debug("expired route snapshots evicted")
				}
			}
		}
	}()

	s.logger.WithFields(logrus.Fields{
		"ttl":      s.ttl.String(),
		"interval": s.interval.String(),
	}).Info("✅ Snapshot janitor started")
}

// Stop ends the eviction loop and waits for it to exit.
func (s *SnapshotStore) Stop() {
	s.runMu.Lock()
	if !s.isRunning {
		s.runMu.Unlock()
		return
	}
	s.isRunning = false
	close(s.done)
	stopped := s.stopped
	s.runMu.Unlock()

	<-stopped
	s.logger.Info("🛑 Snapshot janitor stopped")
}
