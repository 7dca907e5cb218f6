package services

import (
	"log"
	"sync"
	"time"

	"route-aggregator/internal/sources"
)

// SourceDescriber lists every registered source, enabled or not.
type SourceDescriber interface {
	Describe() []sources.Descriptor
}

// StatusReport is the operator view of all sources at one instant.
type StatusReport struct {
	Sources         []sources.Descriptor `json:"sources"`
	Health          []HealthStatus       `json:"health"`
	RateLimits      []RateLimitStatus    `json:"rateLimits"`
	Quality         []QualityMetrics     `json:"quality"`
	SnapshotsActive int                  `json:"snapshotsActive"`
	GeneratedAt     time.Time            `json:"generatedAt"`
}

// MonitoringService assembles status reports and pushes them to subscribers on an interval.
type MonitoringService struct {
	registry  SourceDescriber
	health    *HealthTracker
	limiter   *RateLimiter
	quality   *QualityTracker
	snapshots *SnapshotStore
	interval  time.Duration
	now       func() time.Time

	mu          sync.Mutex
	subscribers map[string]chan StatusReport

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewMonitoringService creates the monitor. A non-positive interval defaults to 5 seconds.
func NewMonitoringService(
	registry SourceDescriber,
	health *HealthTracker,
	limiter *RateLimiter,
	quality *QualityTracker,
	snapshots *SnapshotStore,
	interval time.Duration,
) *MonitoringService {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &MonitoringService{
		registry:    registry,
		health:      health,
		limiter:     limiter,
		quality:     quality,
		snapshots:   snapshots,
		interval:    interval,
		now:         time.Now,
		subscribers: make(map[string]chan StatusReport),
	}
}

// Report builds a fresh status report. Health is listed for every registered source,
// including those never called.
func (m *MonitoringService) Report() StatusReport {
	descs := m.registry.Describe()
	health := make([]HealthStatus, 0, len(descs))
	for _, d := range descs {
		health = append(health, m.health.Status(d.ID))
	}
	return StatusReport{
		Sources:         descs,
		Health:          health,
		RateLimits:      m.limiter.Statuses(),
		Quality:         m.quality.All(),
		SnapshotsActive: m.snapshots.Len(),
		GeneratedAt:     m.now(),
	}
}

// Subscribe registers a receiver of periodic reports. The channel holds only the latest report.
func (m *MonitoringService) Subscribe(id string) <-chan StatusReport {
	ch := make(chan StatusReport, 1)
	m.mu.Lock()
	m.subscribers[id] = ch
	m.mu.Unlock()
	return ch
}

// Unsubscribe removes a receiver and closes its channel.
func (m *MonitoringService) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		delete(m.subscribers, id)
		close(ch)
	}
}

// SubscriberCount returns the number of connected receivers.
func (m *MonitoringService) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers)
}

// broadcast delivers a report without blocking; a slow receiver's stale report is replaced.
func (m *MonitoringService) broadcast(r StatusReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- r:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- r:
		default:
		}
	}
}

// Start launches the reporting loop.
func (m *MonitoringService) Start() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})

	log.Printf("🚀 Starting monitoring service (interval %s)...", m.interval)
	m.wg.Add(1)
	go m.loop(m.stopCh)
}

// Stop ends the reporting loop and waits for it to exit.
func (m *MonitoringService) Stop() {
	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.runMu.Unlock()

	m.wg.Wait()
	log.Println("✅ Monitoring service stopped")
}

func (m *MonitoringService) loop(stopCh <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if m.SubscriberCount() == 0 {
				continue
			}
			m.broadcast(m.Report())
		}
	}
}
