package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"FlowCast/internal/domain/models"
)

type collectorMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newCollectorMetrics() *collectorMetrics {
	return &collectorMetrics{errors: make(map[string]int)}
}

func (m *collectorMetrics) RecordForecast(string, bool)   {}
func (m *collectorMetrics) RecordIngest(string)           {}
func (m *collectorMetrics) RecordRegime(string, float64)  {}
func (m *collectorMetrics) RecordLatency(string, float64) {}

func (m *collectorMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

func (m *collectorMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

// scriptedStream fails its first read loop, then serves a snapshot from the
// second one.
type scriptedStream struct {
	mu         sync.Mutex
	reads      int
	reconnects int
	connected  bool
	snap       models.IndicatorSnapshot
}

func (s *scriptedStream) Connect(context.Context) error   { s.connected = true; return nil }
func (s *scriptedStream) Subscribe(context.Context) error { return nil }
func (s *scriptedStream) Close() error                    { s.connected = false; return nil }
func (s *scriptedStream) IsConnected() bool               { return s.connected }

func (s *scriptedStream) Reconnect(context.Context) error {
	s.mu.Lock()
	s.reconnects++
	s.mu.Unlock()
	return nil
}

func (s *scriptedStream) Read(context.Context) (<-chan *models.IndicatorSnapshot, <-chan error) {
	s.mu.Lock()
	s.reads++
	n := s.reads
	s.mu.Unlock()

	snaps := make(chan *models.IndicatorSnapshot, 1)
	errs := make(chan error, 1)
	if n == 1 {
		errs <- fmt.Errorf("read failed")
		close(snaps)
		close(errs)
		return snaps, errs
	}
	snap := s.snap
	snaps <- &snap
	return snaps, errs
}

func (s *scriptedStream) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *scriptedStream) reconnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

func TestCollectorReacquiresStreamAfterReadFailure(t *testing.T) {
	st := &scriptedStream{snap: models.IndicatorSnapshot{
		VIX:        33,
		Spread:     140,
		ObservedAt: time.Now().UTC(),
	}}
	state := NewIndicatorState()
	m := newCollectorMetrics()
	c := NewIndicatorCollector(st, state, nil, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		vix, spread := state.Latest(time.Minute)
		if vix != nil && spread != nil {
			if *vix != 33 || *spread != 140 {
				t.Fatalf("unexpected snapshot: vix=%v spread=%v", *vix, *spread)
			}
			if st.reconnectCount() != 1 {
				t.Fatalf("expected one reconnect, got %d", st.reconnectCount())
			}
			if st.readCount() < 2 {
				t.Fatalf("fresh channels were never acquired after the reconnect")
			}
			if m.errorCount("stream") > 1 {
				t.Fatalf("stream error recorded %d times for one failure", m.errorCount("stream"))
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("collector never recovered after a stream read failure")
}

func TestIndicatorStateLatestMaxAge(t *testing.T) {
	state := NewIndicatorState()
	state.Set(models.IndicatorSnapshot{
		VIX:        22,
		Spread:     110,
		ObservedAt: time.Now().Add(-time.Hour),
	})
	if vix, spread := state.Latest(time.Minute); vix != nil || spread != nil {
		t.Fatalf("stale snapshot should not be served")
	}
	if vix, _ := state.Latest(0); vix == nil {
		t.Fatalf("zero maxAge disables the staleness check")
	}
}
