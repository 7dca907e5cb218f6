package services

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"route-aggregator/internal/config"
	"route-aggregator/internal/events"
	"route-aggregator/internal/metrics"
	"route-aggregator/internal/types"
)

// HealthState is the circuit state of a source.
type HealthState string

const (
	HealthHealthy     HealthState = "healthy"
	HealthDegraded    HealthState = "degraded"
	HealthCircuitOpen HealthState = "circuit_open"
)

// HealthStatus is a read-only view of one source's health.
type HealthStatus struct {
	SourceID            string      `json:"sourceId"`
	State               HealthState `json:"state"`
	Healthy             bool        `json:"healthy"`
	ConsecutiveFailures int         `json:"consecutiveFailures"`
	FastFailStreak      int         `json:"authOrThrottleFailures"`
	CircuitOpenUntil    *time.Time  `json:"circuitOpenUntil,omitempty"`
	AvgLatencyMs        int64       `json:"avgLatencyMs"`
	TotalSuccesses      int64       `json:"totalSuccesses"`
	TotalFailures       int64       `json:"totalFailures"`
	LastFailureReason   string      `json:"lastFailureReason,omitempty"`
	LastFailureClass    string      `json:"lastFailureClass,omitempty"`
	LastFailureAt       *time.Time  `json:"lastFailureAt,omitempty"`
	LastSuccessAt       *time.Time  `json:"lastSuccessAt,omitempty"`
}

type sourceHealth struct {
	mu               sync.Mutex
	consecutive      int
	fastFail         int
	circuitOpenUntil time.Time
	latencies        []time.Duration
	successes        int64
	failures         int64
	lastReason       string
	lastClass        types.FailureClass
	lastFailure      time.Time
	lastSuccess      time.Time
	probing          bool
}

// HealthTracker is a per-source circuit breaker. Generic failures degrade a source after
// several occurrences; auth and throttle failures open the circuit after a short streak.
type HealthTracker struct {
	mu        sync.RWMutex
	sources   map[string]*sourceHealth
	cfg       config.HealthConfig
	publisher events.Publisher
	logger    *logrus.Logger
	now       func() time.Time
}

// NewHealthTracker creates a tracker; zero config values fall back to the defaults.
func NewHealthTracker(cfg config.HealthConfig, publisher events.Publisher, logger *logrus.Logger) *HealthTracker {
	def := config.Default().Health
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.FastFailThreshold <= 0 {
		cfg.FastFailThreshold = def.FastFailThreshold
	}
	if cfg.CooldownSeconds <= 0 {
		cfg.CooldownSeconds = def.CooldownSeconds
	}
	if cfg.LatencyCeilingMs <= 0 {
		cfg.LatencyCeilingMs = def.LatencyCeilingMs
	}
	if cfg.LatencyWindow <= 0 {
		cfg.LatencyWindow = def.LatencyWindow
	}
	if cfg.ProbeIntervalSeconds <= 0 {
		cfg.ProbeIntervalSeconds = def.ProbeIntervalSeconds
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &HealthTracker{
		sources:   make(map[string]*sourceHealth),
		cfg:       cfg,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (t *HealthTracker) get(sourceID string) *sourceHealth {
	t.mu.RLock()
	h, ok := t.sources[sourceID]
	t.mu.RUnlock()
	if ok {
		return h
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok = t.sources[sourceID]; !ok {
		h = &sourceHealth{}
		t.sources[sourceID] = h
	}
	return h
}

func (t *HealthTracker) lookup(sourceID string) (*sourceHealth, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.sources[sourceID]
	return h, ok
}

// RecordSuccess resets failure counters, closes any open circuit and records latency.
func (t *HealthTracker) RecordSuccess(sourceID string, latency time.Duration) {
	h := t.get(sourceID)
	h.mu.Lock()
	h.consecutive = 0
	h.fastFail = 0
	h.circuitOpenUntil = time.Time{}
	h.probing = false
	h.successes++
	h.lastSuccess = t.now()
	h.pushLatency(latency, t.cfg.LatencyWindow)
	healthy := t.healthyLocked(h, t.now())
	h.mu.Unlock()

	t.observe(sourceID, healthy, false, 0)
}

// RecordFailure counts a failure. Auth and throttle failures accumulate a separate streak that
// opens the circuit for the cooldown once it reaches the fast-fail threshold; other classes reset it.
func (t *HealthTracker) RecordFailure(sourceID, reason string, class types.FailureClass) {
	if class == "" {
		class = types.FailureUnknown
	}
	now := t.now()
	h := t.get(sourceID)

	h.mu.Lock()
	h.consecutive++
	h.failures++
	h.probing = false
	h.lastReason = reason
	h.lastClass = class
	h.lastFailure = now

	opened := false
	if class.FastFail() {
		h.fastFail++
		if h.fastFail >= t.cfg.FastFailThreshold {
			h.circuitOpenUntil = now.Add(time.Duration(t.cfg.CooldownSeconds) * time.Second)
			h.fastFail = 0
			opened = true
		}
	} else {
		h.fastFail = 0
	}
	until := h.circuitOpenUntil
	consecutive := h.consecutive
	healthy := t.healthyLocked(h, now)
	h.mu.Unlock()

	t.observe(sourceID, healthy, opened || until.After(now), consecutive)

	if opened {
		t.logger.WithFields(logrus.Fields{
			"source": sourceID,
			"class":  class,
			"until":  until.Format(time.RFC3339),
		}).Warn("🔴 source circuit opened")
		t.publisher.Publish(events.SubjectCircuitOpened, events.CircuitOpened{
			Source:    sourceID,
			Reason:    reason,
			Class:     string(class),
			Until:     until,
			Timestamp: now,
		})
	}
}

// IsHealthy reports whether a source may be called. Sources without history are healthy.
// An expired circuit is closed here.
func (t *HealthTracker) IsHealthy(sourceID string) bool {
	h, ok := t.lookup(sourceID)
	if !ok {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return t.healthyLocked(h, t.now())
}

// Admit is IsHealthy plus the half-open probe: a source that is unhealthy only because of
// accumulated failures or slow responses gets a single trial call once the probe interval
// has passed since its last failure. The trial's outcome is recorded normally.
func (t *HealthTracker) Admit(sourceID string) bool {
	h, ok := t.lookup(sourceID)
	if !ok {
		return true
	}
	now := t.now()
	h.mu.Lock()
	defer h.mu.Unlock()

	if t.healthyLocked(h, now) {
		return true
	}
	if h.circuitOpenUntil.After(now) || h.probing {
		return false
	}
	last := h.lastFailure
	if h.lastSuccess.After(last) {
		last = h.lastSuccess
	}
	if now.Sub(last) >= time.Duration(t.cfg.ProbeIntervalSeconds)*time.Second {
		h.probing = true
		t.logger.WithField("source", sourceID).Info("🟡 half-open probe admitted")
		return true
	}
	return false
}

func (t *HealthTracker) healthyLocked(h *sourceHealth, now time.Time) bool {
	if !h.circuitOpenUntil.IsZero() {
		if now.Before(h.circuitOpenUntil) {
			return false
		}
		h.circuitOpenUntil = time.Time{}
	}
	if h.consecutive >= t.cfg.FailureThreshold {
		return false
	}
	if avg := h.avgLatency(); avg > time.Duration(t.cfg.LatencyCeilingMs)*time.Millisecond {
		return false
	}
	return true
}

func (h *sourceHealth) pushLatency(latency time.Duration, window int) {
	h.latencies = append(h.latencies, latency)
	if over := len(h.latencies) - window; over > 0 {
		h.latencies = append(h.latencies[:0], h.latencies[over:]...)
	}
}

func (h *sourceHealth) avgLatency() time.Duration {
	if len(h.latencies) == 0 {
		return 0
	}
	var sum time.Duration
	for _, l := range h.latencies {
		sum += l
	}
	return sum / time.Duration(len(h.latencies))
}

func (t *HealthTracker) observe(sourceID string, healthy, open bool, consecutive int) {
	metrics.SourceHealthy.WithLabelValues(sourceID).Set(metrics.BoolGauge(healthy))
	metrics.SourceCircuitOpen.WithLabelValues(sourceID).Set(metrics.BoolGauge(open))
	metrics.SourceConsecutiveFailures.WithLabelValues(sourceID).Set(float64(consecutive))
}

// Status returns the health view of one source.
func (t *HealthTracker) Status(sourceID string) HealthStatus {
	h, ok := t.lookup(sourceID)
	if !ok {
		return HealthStatus{SourceID: sourceID, State: HealthHealthy, Healthy: true}
	}
	return t.status(sourceID, h)
}

// Statuses returns every tracked source ordered by id.
func (t *HealthTracker) Statuses() []HealthStatus {
	t.mu.RLock()
	ids := make([]string, 0, len(t.sources))
	for id := range t.sources {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	sort.Strings(ids)
	out := make([]HealthStatus, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.Status(id))
	}
	return out
}

func (t *HealthTracker) status(sourceID string, h *sourceHealth) HealthStatus {
	now := t.now()
	h.mu.Lock()
	defer h.mu.Unlock()

	healthy := t.healthyLocked(h, now)
	st := HealthStatus{
		SourceID:            sourceID,
		Healthy:             healthy,
		ConsecutiveFailures: h.consecutive,
		FastFailStreak:      h.fastFail,
		AvgLatencyMs:        h.avgLatency().Milliseconds(),
		TotalSuccesses:      h.successes,
		TotalFailures:       h.failures,
		LastFailureReason:   h.lastReason,
		LastFailureClass:    string(h.lastClass),
	}
	switch {
	case !h.circuitOpenUntil.IsZero():
		until := h.circuitOpenUntil
		st.CircuitOpenUntil = &until
		st.State = HealthCircuitOpen
	case !healthy || h.consecutive > 0:
		st.State = HealthDegraded
	default:
		st.State = HealthHealthy
	}
	if !h.lastFailure.IsZero() {
		at := h.lastFailure
		st.LastFailureAt = &at
	}
	if !h.lastSuccess.IsZero() {
		at := h.lastSuccess
		st.LastSuccessAt = &at
	}
	return st
}
