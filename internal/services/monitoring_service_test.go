package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"route-aggregator/internal/config"
	"route-aggregator/internal/sources"
	"route-aggregator/internal/types"
)

type staticDescriber []sources.Descriptor

func (d staticDescriber) Describe() []sources.Descriptor { return d }

func newTestMonitor(interval time.Duration) (*MonitoringService, *HealthTracker) {
	logger := quietLogger()
	health := NewHealthTracker(config.HealthConfig{}, &recordingPublisher{}, logger)
	descs := staticDescriber{
		{ID: "lifi", Public: true, Enabled: true},
		{ID: "zerox", Configured: false},
	}
	m := NewMonitoringService(descs, health, NewRateLimiter(), NewQualityTracker(), NewSnapshotStore(0, 0, logger), interval)
	return m, health
}

func TestMonitoringReportCoversEverySource(t *testing.T) {
	m, health := newTestMonitor(time.Second)
	health.RecordFailure("zerox", "401", types.FailureAuth)

	r := m.Report()
	require.Len(t, r.Sources, 2)
	require.Len(t, r.Health, 2)
	assert.True(t, r.Health[0].Healthy)
	assert.Equal(t, "zerox", r.Health[1].SourceID)
	assert.Equal(t, 1, r.Health[1].ConsecutiveFailures)
	assert.Empty(t, r.Quality)
	assert.Zero(t, r.SnapshotsActive)
}

func TestMonitoringPushesToSubscribers(t *testing.T) {
	m, _ := newTestMonitor(10 * time.Millisecond)
	ch := m.Subscribe("client-1")
	m.Start()
	defer m.Stop()

	select {
	case r := <-ch:
		assert.Len(t, r.Sources, 2)
	case <-time.After(time.Second):
		t.Fatal("no report pushed")
	}

	m.Unsubscribe("client-1")
	assert.Zero(t, m.SubscriberCount())
	_, open := <-ch
	assert.False(t, open)
}

func TestMonitoringBroadcastKeepsLatest(t *testing.T) {
	m, _ := newTestMonitor(time.Hour)
	ch := m.Subscribe("slow")

	first := StatusReport{SnapshotsActive: 1}
	second := StatusReport{SnapshotsActive: 2}
	m.broadcast(first)
	m.broadcast(second)

	got := <-ch
	assert.Equal(t, 2, got.SnapshotsActive)
}
