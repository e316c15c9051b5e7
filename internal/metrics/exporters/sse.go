package exporters

import (
	"context"
	"sync"
	"time"

	"github.com/smazurov/panocam/internal/events"
	"github.com/smazurov/panocam/internal/metrics"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// StatsExporter periodically publishes pipeline counters as FrameStatsEvent.
type StatsExporter struct {
	eventBus EventPublisher
	interval time.Duration
	snapshot func() metrics.Stats

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStatsExporter creates an exporter publishing once per second.
func NewStatsExporter(eventBus EventPublisher) *StatsExporter {
	return &StatsExporter{
		eventBus: eventBus,
		interval: time.Second,
		snapshot: metrics.Snapshot,
	}
}

// Start begins the export loop.
func (s *StatsExporter) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the export loop and waits for it. Safe to call repeatedly.
func (s *StatsExporter) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *StatsExporter) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var last metrics.Stats
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.snapshot()
			if stats == last {
				continue
			}
			last = stats
			s.eventBus.Publish(events.FrameStatsEvent{
				VideoFrames:    stats.VideoFrames,
				AudioFrames:    stats.AudioFrames,
				DroppedFrames:  stats.DroppedFrames,
				RecordedFrames: stats.RecordedFrames,
				Timestamp:      time.Now().UTC().Format(time.RFC3339),
			})
		}
	}
}
