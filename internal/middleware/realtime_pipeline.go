package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FlowCast/internal/domain/models"
	domrepo "FlowCast/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, t *models.Transaction) error
}

// BatchProc is implemented by processors that support batched writes.
type BatchProc interface {
	ProcessBatch(ctx context.Context, txns []*models.Transaction) error
}

// IngestPipeline sits between the ingestion surface and the backend.
// It validates, throttles per organization, optionally transforms, and
// buffers when downstream is unavailable.
type IngestPipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	maxRPS   int
	bufSize  int
	bufCh    chan *models.Transaction
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time // per-org last accepted time
	// simple format transform hook (optional)
	transform func(*models.Transaction) *models.Transaction
	// metrics
	bufDepthGauge func(int)
	throttleWarn  func(string)
}

type PipelineOption func(*IngestPipeline)

// WithMaxRPS sets the max transactions per second per organization.
func WithMaxRPS(n int) PipelineOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform sets a transformation hook to normalize transactions.
func WithTransform(fn func(*models.Transaction) *models.Transaction) PipelineOption {
	return func(p *IngestPipeline) { p.transform = fn }
}

// NewIngestPipeline creates a new pipeline.
func NewIngestPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *IngestPipeline {
	p := &IngestPipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   100,  // default throttle per org
		bufSize:  1000, // default buffer
		bufCh:    make(chan *models.Transaction, 1000),
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufSize != cap(p.bufCh) {
		p.bufCh = make(chan *models.Transaction, p.bufSize)
	}
	// metrics hooks using domain metrics if available
	p.bufDepthGauge = func(n int) { p.metrics.RecordLatency("pipeline_buffer_depth", float64(n)) }
	p.throttleWarn = func(org string) { p.metrics.RecordError("pipeline_throttle_" + org) }
	return p
}

// Start launches background flushing of buffered transactions.
func (p *IngestPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case t := <-p.bufCh:
				if t == nil {
					continue
				}
				if err := p.proc.Process(ctx, t); err != nil {
					// exponential backoff with cap
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- t:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *IngestPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates, throttles, and forwards the transaction downstream,
// buffering on errors.
func (p *IngestPipeline) Process(ctx context.Context, t *models.Transaction) error {
	start := time.Now()
	if err := validateTransaction(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		t = p.transform(t)
		if err := validateTransaction(t); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.allow(t.OrganizationID, start) {
		// throttled; record and drop silently
		p.metrics.RecordError("pipeline_throttle")
		if p.throttleWarn != nil {
			p.throttleWarn(t.OrganizationID)
		}
		return nil
	}

	if err := p.proc.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		// buffer non-blocking
		select {
		case p.bufCh <- t:
			if p.bufDepthGauge != nil {
				p.bufDepthGauge(len(p.bufCh))
			}
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// ProcessBatch validates each transaction, drops the invalid and throttled
// ones, and forwards the rest in one downstream call when the processor
// supports it. It returns the number of transactions accepted.
func (p *IngestPipeline) ProcessBatch(ctx context.Context, txns []*models.Transaction) (int, error) {
	now := time.Now()
	// the throttle charges one slot per organization per batch; a batch
	// counts as a single ingest event
	allowed := make(map[string]bool)
	valid := make([]*models.Transaction, 0, len(txns))
	for _, t := range txns {
		if p.transform != nil && t != nil {
			t = p.transform(t)
		}
		if err := validateTransaction(t); err != nil {
			p.metrics.RecordError("pipeline_validate")
			continue
		}
		ok, seen := allowed[t.OrganizationID]
		if !seen {
			ok = p.allow(t.OrganizationID, now)
			allowed[t.OrganizationID] = ok
		}
		if !ok {
			p.metrics.RecordError("pipeline_throttle")
			if p.throttleWarn != nil {
				p.throttleWarn(t.OrganizationID)
			}
			continue
		}
		valid = append(valid, t)
	}
	if len(valid) == 0 {
		return 0, nil
	}

	start := time.Now()
	var err error
	if bp, ok := p.proc.(BatchProc); ok {
		err = bp.ProcessBatch(ctx, valid)
	} else {
		for _, t := range valid {
			if perr := p.proc.Process(ctx, t); perr != nil && err == nil {
				err = perr
			}
		}
	}
	if err != nil {
		p.metrics.RecordError("pipeline_process_batch")
		for _, t := range valid {
			select {
			case p.bufCh <- t:
			default:
				p.metrics.RecordError("pipeline_buffer_full")
			}
		}
		return 0, fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process_batch", time.Since(start).Seconds())
	return len(valid), nil
}

func validateTransaction(t *models.Transaction) error {
	if t == nil {
		return fmt.Errorf("transaction nil")
	}
	if t.OrganizationID == "" {
		return fmt.Errorf("org_id empty")
	}
	if t.Timestamp <= 0 {
		return fmt.Errorf("timestamp invalid")
	}
	if t.Amount == 0 {
		return fmt.Errorf("zero amount")
	}
	switch t.Direction {
	case models.DirectionInflow:
		if t.Amount < 0 {
			return fmt.Errorf("inflow with negative amount")
		}
	case models.DirectionOutflow:
		if t.Amount > 0 {
			return fmt.Errorf("outflow with positive amount")
		}
	case "":
		// direction is derived from the sign when absent
	default:
		return fmt.Errorf("unknown direction: %s", t.Direction)
	}
	return nil
}

func (p *IngestPipeline) allow(org string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	// simple throttle: ensure at most maxRPS per second
	last := p.lastSeen[org]
	if last.IsZero() {
		p.lastSeen[org] = now
		return true
	}
	if now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[org] = now
	return true
}
