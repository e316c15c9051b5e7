package exporters

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/panocam/internal/events"
	"github.com/smazurov/panocam/internal/metrics"
)

type mockEventBus struct {
	mu        sync.Mutex
	events    []events.Event
	published chan struct{}
}

func newMockEventBus() *mockEventBus {
	return &mockEventBus{
		published: make(chan struct{}, 100),
	}
}

func (m *mockEventBus) Publish(ev events.Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	select {
	case m.published <- struct{}{}:
	default:
	}
}

func (m *mockEventBus) getEvents() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]events.Event, len(m.events))
	copy(result, m.events)
	return result
}

func newTestExporter(bus EventPublisher) (*StatsExporter, *atomic.Uint64) {
	var frames atomic.Uint64
	exporter := NewStatsExporter(bus)
	exporter.interval = 10 * time.Millisecond
	exporter.snapshot = func() metrics.Stats {
		return metrics.Stats{VideoFrames: frames.Load(), DroppedFrames: 1}
	}
	return exporter, &frames
}

func TestStatsExporterPublishesChanges(t *testing.T) {
	mock := newMockEventBus()
	exporter, frames := newTestExporter(mock)
	frames.Store(42)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exporter.Start(ctx)

	select {
	case <-mock.published:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for stats publish")
	}
	exporter.Stop()

	evts := mock.getEvents()
	stats, ok := evts[0].(events.FrameStatsEvent)
	if !ok {
		t.Fatalf("expected FrameStatsEvent, got %T", evts[0])
	}
	if stats.VideoFrames != 42 || stats.DroppedFrames != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestStatsExporterSkipsUnchanged(t *testing.T) {
	mock := newMockEventBus()
	exporter, frames := newTestExporter(mock)
	frames.Store(1)

	exporter.Start(t.Context())
	time.Sleep(60 * time.Millisecond)
	exporter.Stop()

	if n := len(mock.getEvents()); n != 1 {
		t.Errorf("published %d events for constant stats, want 1", n)
	}
}

func TestStatsExporterStopIdempotent(t *testing.T) {
	mock := newMockEventBus()
	exporter, frames := newTestExporter(mock)

	exporter.Stop()
	exporter.Start(context.Background())
	frames.Store(5)
	time.Sleep(30 * time.Millisecond)

	exporter.Stop()
	exporter.Stop()

	countAfterStop := len(mock.getEvents())
	frames.Store(6)
	time.Sleep(30 * time.Millisecond)

	if got := len(mock.getEvents()); got != countAfterStop {
		t.Errorf("events published after stop: got %d, want %d", got, countAfterStop)
	}
	if countAfterStop == 0 {
		t.Error("expected events while running")
	}
}
