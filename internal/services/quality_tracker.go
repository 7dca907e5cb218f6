package services

import (
	"math"
	"sort"
	"sync"
	"time"

	"route-aggregator/internal/metrics"
)

const (
	qualityHistoryCap   = 20
	qualityLatencyScale = 10 * time.Second
	qualityRouteTarget  = 5.0
)

// QualityMetrics is the advisory quality view of one source.
type QualityMetrics struct {
	SourceID         string    `json:"sourceId"`
	Samples          int       `json:"samples"`
	SuccessRate      float64   `json:"successRate"`
	AvgLatencyMs     float64   `json:"avgLatencyMs"`
	AvgRoutes        float64   `json:"avgRoutes"`
	QualityScore     float64   `json:"qualityScore"`
	LastSampleOutput string    `json:"lastSampleOutput,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type qualityRecord struct {
	mu           sync.Mutex
	latencies    []time.Duration
	routeCounts  []int
	outcomes     []bool
	sampleOutput string
	updatedAt    time.Time
}

// QualityTracker keeps rolling latency, route-count and success histories per source.
// Its score is for operators; admission is gated by the HealthTracker only.
type QualityTracker struct {
	mu      sync.RWMutex
	records map[string]*qualityRecord
	now     func() time.Time
}

// NewQualityTracker creates an empty tracker.
func NewQualityTracker() *QualityTracker {
	return &QualityTracker{
		records: make(map[string]*qualityRecord),
		now:     time.Now,
	}
}

func (q *QualityTracker) get(sourceID string) *qualityRecord {
	q.mu.RLock()
	r, ok := q.records[sourceID]
	q.mu.RUnlock()
	if ok {
		return r
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if r, ok = q.records[sourceID]; !ok {
		r = &qualityRecord{}
		q.records[sourceID] = r
	}
	return r
}

// RecordSuccess records a successful call and the number of routes it produced.
func (q *QualityTracker) RecordSuccess(sourceID string, latency time.Duration, routeCount int, sampleOutput string) {
	r := q.get(sourceID)
	r.mu.Lock()
	r.latencies = pushCapped(r.latencies, latency)
	r.routeCounts = pushCapped(r.routeCounts, routeCount)
	r.outcomes = pushCapped(r.outcomes, true)
	if sampleOutput != "" {
		r.sampleOutput = sampleOutput
	}
	r.updatedAt = q.now()
	m := r.metrics(sourceID)
	r.mu.Unlock()

	metrics.SourceQualityScore.WithLabelValues(sourceID).Set(m.QualityScore)
}

// RecordFailure records a failed call's latency.
func (q *QualityTracker) RecordFailure(sourceID string, latency time.Duration) {
	r := q.get(sourceID)
	r.mu.Lock()
	r.latencies = pushCapped(r.latencies, latency)
	r.outcomes = pushCapped(r.outcomes, false)
	r.updatedAt = q.now()
	m := r.metrics(sourceID)
	r.mu.Unlock()

	metrics.SourceQualityScore.WithLabelValues(sourceID).Set(m.QualityScore)
}

// Quality returns the metrics of a source, or false when it has no samples.
func (q *QualityTracker) Quality(sourceID string) (*QualityMetrics, bool) {
	q.mu.RLock()
	r, ok := q.records[sourceID]
	q.mu.RUnlock()
	if !ok {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outcomes) == 0 {
		return nil, false
	}
	m := r.metrics(sourceID)
	return &m, true
}

// All returns the metrics of every sampled source ordered by id.
func (q *QualityTracker) All() []QualityMetrics {
	q.mu.RLock()
	ids := make([]string, 0, len(q.records))
	for id := range q.records {
		ids = append(ids, id)
	}
	q.mu.RUnlock()

	sort.Strings(ids)
	out := make([]QualityMetrics, 0, len(ids))
	for _, id := range ids {
		if m, ok := q.Quality(id); ok {
			out = append(out, *m)
		}
	}
	return out
}

func (r *qualityRecord) metrics(sourceID string) QualityMetrics {
	m := QualityMetrics{
		SourceID:         sourceID,
		Samples:          len(r.outcomes),
		LastSampleOutput: r.sampleOutput,
		UpdatedAt:        r.updatedAt,
	}

	if n := len(r.outcomes); n > 0 {
		ok := 0
		for _, success := range r.outcomes {
			if success {
				ok++
			}
		}
		m.SuccessRate = float64(ok) / float64(n)
	}

	var avgLatency time.Duration
	if n := len(r.latencies); n > 0 {
		var sum time.Duration
		for _, l := range r.latencies {
			sum += l
		}
		avgLatency = sum / time.Duration(n)
		m.AvgLatencyMs = float64(avgLatency) / float64(time.Millisecond)
	}

	if n := len(r.routeCounts); n > 0 {
		sum := 0
		for _, c := range r.routeCounts {
			sum += c
		}
		m.AvgRoutes = float64(sum) / float64(n)
	}

	latencyScore := math.Max(0, 1-float64(avgLatency)/float64(qualityLatencyScale))
	routeScore := math.Min(1, m.AvgRoutes/qualityRouteTarget)
	m.QualityScore = 0.5*m.SuccessRate + 0.3*latencyScore + 0.2*routeScore
	return m
}

func pushCapped[T any](history []T, v T) []T {
	history = append(history, v)
	if over := len(history) - qualityHistoryCap; over > 0 {
		history = append(history[:0], history[over:]...)
	}
	return history
}
