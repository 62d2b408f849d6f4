package usecase

import (
	"context"
	"sync"
	"time"

	"FlowCast/internal/domain/models"
	drepo "FlowCast/internal/domain/repository"
	domsvc "FlowCast/internal/domain/service"
)

// IndicatorState holds the latest observed market indicators shared between
// the collector goroutine and request-path regime detection.
type IndicatorState struct {
	mu   sync.RWMutex
	snap models.IndicatorSnapshot
	set  bool
}

func NewIndicatorState() *IndicatorState { return &IndicatorState{} }

// Set records a new snapshot.
func (s *IndicatorState) Set(snap models.IndicatorSnapshot) {
	s.mu.Lock()
	s.snap = snap
	s.set = true
	s.mu.Unlock()
}

// Latest returns pointers to the current VIX and spread, nil for components
// never observed or older than maxAge. Callers treat nil as "synthesize".
func (s *IndicatorState) Latest(maxAge time.Duration) (vix, spread *float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return nil, nil
	}
	if maxAge > 0 && time.Since(s.snap.ObservedAt) > maxAge {
		return nil, nil
	}
	if s.snap.VIX > 0 {
		v := s.snap.VIX
		vix = &v
	}
	if s.snap.Spread > 0 {
		sp := s.snap.Spread
		spread = &sp
	}
	return vix, spread
}

// IndicatorCollector consumes the market indicator stream, keeps the shared
// state current, and refreshes the regime gauge on every tick.
type IndicatorCollector struct {
	stream   drepo.IndicatorStream
	fetcher  drepo.IndicatorFetcher
	state    *IndicatorState
	detector domsvc.RegimeDetector
	metrics  drepo.Metrics
}

// NewIndicatorCollector creates a new IndicatorCollector instance.
func NewIndicatorCollector(stream drepo.IndicatorStream, state *IndicatorState, detector domsvc.RegimeDetector, metrics drepo.Metrics) *IndicatorCollector {
	return &IndicatorCollector{stream: stream, state: state, detector: detector, metrics: metrics}
}

// SetFetcher enables REST quote polling while the stream is down.
func (c *IndicatorCollector) SetFetcher(f drepo.IndicatorFetcher) { c.fetcher = f }

// IsConnected returns true if the indicator stream is connected.
func (c *IndicatorCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *IndicatorCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	snapCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, snapCh, errCh)
	return nil
}

// reconnectRetryDelay spaces stream reconnect attempts after a failure.
const reconnectRetryDelay = 5 * time.Second

func (c *IndicatorCollector) consume(ctx context.Context, snapCh <-chan *models.IndicatorSnapshot, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				// the stream's read goroutine exited and closed its channels;
				// reconnect and pick up fresh ones
				snapCh, errCh = c.restart(ctx)
				if snapCh == nil {
					return
				}
				continue
			}
			if err != nil {
				c.metrics.RecordError("stream")
				c.pollFallback(ctx)
			}
		case snap, ok := <-snapCh:
			if !ok {
				snapCh, errCh = c.restart(ctx)
				if snapCh == nil {
					return
				}
				continue
			}
			if snap == nil {
				continue
			}
			c.state.Set(*snap)
			if c.detector != nil {
				var vix, spread *float64
				if snap.VIX > 0 {
					vix = &snap.VIX
				}
				if snap.Spread > 0 {
					spread = &snap.Spread
				}
				cls := c.detector.Detect(vix, spread)
				c.metrics.RecordRegime(string(cls.Regime), cls.Confidence)
			}
		}
	}
}

// restart reconnects the stream after its read loop has terminated and
// re-acquires a fresh channel pair. Returns nil channels once ctx ends.
func (c *IndicatorCollector) restart(ctx context.Context) (<-chan *models.IndicatorSnapshot, <-chan error) {
	for {
		if ctx.Err() != nil {
			return nil, nil
		}
		if err := c.stream.Reconnect(ctx); err != nil {
			c.metrics.RecordError("reconnect")
			c.pollFallback(ctx)
			select {
			case <-ctx.Done():
				return nil, nil
			case <-time.After(reconnectRetryDelay):
			}
			continue
		}
		return c.stream.Read(ctx)
	}
}

// pollFallback refreshes the shared state from the REST quote endpoint so a
// stream outage does not immediately degrade detection to synthesis.
func (c *IndicatorCollector) pollFallback(ctx context.Context) {
	if c.fetcher == nil {
		return
	}
	snap, err := c.fetcher.Snapshot(ctx)
	if err != nil {
		c.metrics.RecordError("fetch")
		return
	}
	c.state.Set(*snap)
}

func (c *IndicatorCollector) Stop() error { return c.stream.Close() }

// Shutdown closes the stream.
func (c *IndicatorCollector) Shutdown(ctx context.Context) error {
	return c.stream.Close()
}
