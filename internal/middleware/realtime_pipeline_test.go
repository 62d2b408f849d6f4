package middleware

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"FlowCast/internal/domain/models"
)

type stubMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newStubMetrics() *stubMetrics {
	return &stubMetrics{errors: make(map[string]int)}
}

func (m *stubMetrics) RecordForecast(string, bool)   {}
func (m *stubMetrics) RecordIngest(string)           {}
func (m *stubMetrics) RecordRegime(string, float64)  {}
func (m *stubMetrics) RecordLatency(string, float64) {}

func (m *stubMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

func (m *stubMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

type stubProc struct {
	mu      sync.Mutex
	got     []*models.Transaction
	batches int
	failing bool
}

func (p *stubProc) Process(_ context.Context, t *models.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing {
		return fmt.Errorf("backend down")
	}
	p.got = append(p.got, t)
	return nil
}

func (p *stubProc) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.got)
}

// stubBatchProc additionally accepts whole batches.
type stubBatchProc struct {
	stubProc
}

func (p *stubBatchProc) ProcessBatch(_ context.Context, txns []*models.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing {
		return fmt.Errorf("backend down")
	}
	p.got = append(p.got, txns...)
	p.batches++
	return nil
}

func validTxn(org string, amount float64) *models.Transaction {
	return &models.Transaction{
		OrganizationID: org,
		AccountID:      "acct-1",
		Timestamp:      time.Now().Unix(),
		Amount:         amount,
		Currency:       "USD",
	}
}

func TestValidateTransaction(t *testing.T) {
	cases := []struct {
		name string
		txn  *models.Transaction
		ok   bool
	}{
		{"nil", nil, false},
		{"valid inflow", validTxn("org-1", 100), true},
		{"valid outflow", validTxn("org-1", -100), true},
		{"missing org", &models.Transaction{Timestamp: 1, Amount: 5}, false},
		{"zero amount", &models.Transaction{OrganizationID: "o", Timestamp: 1}, false},
		{"bad timestamp", &models.Transaction{OrganizationID: "o", Amount: 5}, false},
		{"inflow negative", &models.Transaction{OrganizationID: "o", Timestamp: 1, Amount: -5, Direction: models.DirectionInflow}, false},
		{"outflow positive", &models.Transaction{OrganizationID: "o", Timestamp: 1, Amount: 5, Direction: models.DirectionOutflow}, false},
		{"unknown direction", &models.Transaction{OrganizationID: "o", Timestamp: 1, Amount: 5, Direction: "sideways"}, false},
	}
	for _, c := range cases {
		err := validateTransaction(c.txn)
		if c.ok && err != nil {
			t.Fatalf("%s: unexpected error: %v", c.name, err)
		}
		if !c.ok && err == nil {
			t.Fatalf("%s: expected validation error", c.name)
		}
	}
}

func TestProcessForwardsValid(t *testing.T) {
	proc := &stubProc{}
	m := newStubMetrics()
	p := NewIngestPipeline(proc, m)

	if err := p.Process(context.Background(), validTxn("org-1", 500)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proc.count() != 1 {
		t.Fatalf("expected one forwarded transaction, got %d", proc.count())
	}
}

func TestProcessRejectsInvalid(t *testing.T) {
	proc := &stubProc{}
	m := newStubMetrics()
	p := NewIngestPipeline(proc, m)

	if err := p.Process(context.Background(), &models.Transaction{OrganizationID: "o"}); err == nil {
		t.Fatalf("expected validation error")
	}
	if proc.count() != 0 {
		t.Fatalf("invalid transaction must not reach the backend")
	}
	if m.errorCount("pipeline_validate") != 1 {
		t.Fatalf("expected a pipeline_validate error metric")
	}
}

func TestProcessThrottlesPerOrg(t *testing.T) {
	proc := &stubProc{}
	m := newStubMetrics()
	p := NewIngestPipeline(proc, m, WithMaxRPS(1))

	now := time.Now()
	if !p.allow("org-1", now) {
		t.Fatalf("first request should pass")
	}
	if p.allow("org-1", now.Add(10*time.Millisecond)) {
		t.Fatalf("second request within the window should be throttled")
	}
	if !p.allow("org-2", now.Add(10*time.Millisecond)) {
		t.Fatalf("throttling is per organization")
	}
	if !p.allow("org-1", now.Add(2*time.Second)) {
		t.Fatalf("request after the window should pass")
	}
}

func TestProcessBuffersOnDownstreamError(t *testing.T) {
	proc := &stubProc{failing: true}
	m := newStubMetrics()
	p := NewIngestPipeline(proc, m, WithBufferSize(10))

	if err := p.Process(context.Background(), validTxn("org-1", 500)); err == nil {
		t.Fatalf("expected downstream error")
	}
	if len(p.bufCh) != 1 {
		t.Fatalf("failed transaction should be buffered, depth=%d", len(p.bufCh))
	}
}

func TestProcessBatchSkipsInvalidAndCounts(t *testing.T) {
	proc := &stubBatchProc{}
	m := newStubMetrics()
	p := NewIngestPipeline(proc, m)

	txns := []*models.Transaction{
		validTxn("org-1", 100),
		nil,
		{OrganizationID: "org-1"}, // no timestamp, no amount
		validTxn("org-1", -200),
	}
	accepted, err := p.ProcessBatch(context.Background(), txns)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accepted != 2 {
		t.Fatalf("expected 2 accepted, got %d", accepted)
	}
	if proc.count() != 2 {
		t.Fatalf("expected 2 stored, got %d", proc.count())
	}
	if proc.batches != 1 {
		t.Fatalf("batch-capable processor should get one batched call, got %d", proc.batches)
	}
	if m.errorCount("pipeline_validate") != 2 {
		t.Fatalf("expected 2 validation errors, got %d", m.errorCount("pipeline_validate"))
	}
}

func TestProcessBatchFallsBackToPerItem(t *testing.T) {
	proc := &stubProc{}
	m := newStubMetrics()
	p := NewIngestPipeline(proc, m)

	accepted, err := p.ProcessBatch(context.Background(), []*models.Transaction{
		validTxn("org-1", 100),
		validTxn("org-1", 200),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accepted != 2 || proc.count() != 2 {
		t.Fatalf("expected 2 forwarded per-item, got accepted=%d stored=%d", accepted, proc.count())
	}
}

func TestProcessBatchBuffersAllOnError(t *testing.T) {
	proc := &stubBatchProc{}
	proc.failing = true
	m := newStubMetrics()
	p := NewIngestPipeline(proc, m, WithBufferSize(10))

	accepted, err := p.ProcessBatch(context.Background(), []*models.Transaction{
		validTxn("org-1", 100),
		validTxn("org-1", 200),
	})
	if err == nil {
		t.Fatalf("expected downstream error")
	}
	if accepted != 0 {
		t.Fatalf("failed batch accepts nothing, got %d", accepted)
	}
	if len(p.bufCh) != 2 {
		t.Fatalf("both transactions should be buffered for retry, depth=%d", len(p.bufCh))
	}
}

func TestTransformHook(t *testing.T) {
	proc := &stubProc{}
	m := newStubMetrics()
	p := NewIngestPipeline(proc, m, WithTransform(func(t *models.Transaction) *models.Transaction {
		if t.Currency == "" {
			t.Currency = "USD"
		}
		return t
	}))

	txn := validTxn("org-1", 100)
	txn.Currency = ""
	if err := p.Process(context.Background(), txn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proc.got[0].Currency != "USD" {
		t.Fatalf("transform should normalize currency, got %q", proc.got[0].Currency)
	}
}

func TestStartFlushesBuffer(t *testing.T) {
	proc := &stubProc{failing: true}
	m := newStubMetrics()
	p := NewIngestPipeline(proc, m, WithBufferSize(10))

	ctx := context.Background()
	if err := p.Process(ctx, validTxn("org-1", 500)); err == nil {
		t.Fatalf("expected downstream error")
	}

	proc.mu.Lock()
	proc.failing = false
	proc.mu.Unlock()

	p.Start(ctx)
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for proc.count() == 0 {
		select {
		case <-deadline:
			t.Fatalf("buffered transaction was never flushed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestProcessBatchThrottlesPerOrg(t *testing.T) {
	m := newStubMetrics()
	proc := &stubBatchProc{}
	p := NewIngestPipeline(proc, m, WithMaxRPS(1))

	first := []*models.Transaction{validTxn("org-1", 100), validTxn("org-1", 200)}
	n, err := p.ProcessBatch(context.Background(), first)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("first batch: expected 2 accepted, got %d", n)
	}

	second := []*models.Transaction{validTxn("org-1", 300), validTxn("org-2", 400)}
	n, err = p.ProcessBatch(context.Background(), second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("immediate second batch: expected only the new org accepted, got %d", n)
	}
	if m.errorCount("pipeline_throttle") != 1 {
		t.Fatalf("expected 1 throttled transaction, got %d", m.errorCount("pipeline_throttle"))
	}
	if proc.count() != 3 {
		t.Fatalf("expected 3 transactions forwarded, got %d", proc.count())
	}
}
