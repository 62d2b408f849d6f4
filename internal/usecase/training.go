package usecase

import (
	"context"
	"fmt"
	"time"

	"FlowCast/internal/domain/models"
	domrepo "FlowCast/internal/domain/repository"
	domsvc "FlowCast/internal/domain/service"
	pkgcache "FlowCast/pkg/cache"
	applogger "FlowCast/pkg/logger"
	"FlowCast/pkg/queue"
)

// Training requires this many position snapshots before a model fit is
// attempted at all.
const minPositionSnapshots = 30

// TrainMessageType is the queue message type for asynchronous training.
const TrainMessageType = "forecast.train"

// TrainingUseCase fits the steady-state model on an organization's flow
// history, synchronously or via the job queue.
type TrainingUseCase struct {
	features domrepo.FeatureStore
	engine   domsvc.Engine
	metrics  domrepo.Metrics
	queue    queue.QueueService
	cache    pkgcache.Service
	l        *applogger.Logger
}

func NewTrainingUseCase(features domrepo.FeatureStore, engine domsvc.Engine, metrics domrepo.Metrics) *TrainingUseCase {
	return &TrainingUseCase{features: features, engine: engine, metrics: metrics}
}

// SetLogger injects a structured logger.
func (uc *TrainingUseCase) SetLogger(l *applogger.Logger) { uc.l = l }

// SetQueue enables asynchronous training via Enqueue.
func (uc *TrainingUseCase) SetQueue(q queue.QueueService) { uc.queue = q }

// SetCache enables forecast cache invalidation after a successful fit.
func (uc *TrainingUseCase) SetCache(c pkgcache.Service) { uc.cache = c }

// TrainResult is the API-facing shape of a training run.
type TrainResult struct {
	OrganizationID string              `json:"organization_id"`
	Status         string              `json:"status"`
	Rows           int                 `json:"rows"`
	Positions      int                 `json:"positions"`
	LookbackDays   int                 `json:"lookback_days"`
	Metrics        map[float64]float64 `json:"metrics,omitempty"`
	Queued         bool                `json:"queued,omitempty"`
}

// TrainPayload is the queue message payload for async training.
type TrainPayload struct {
	OrganizationID string `json:"organization_id"`
	LookbackDays   int    `json:"lookback_days"`
}

// Train runs a synchronous training pass. Too little history is reported as
// a status, never an error.
func (uc *TrainingUseCase) Train(ctx context.Context, orgID string, lookbackDays int) (*TrainResult, error) {
	if orgID == "" {
		return nil, fmt.Errorf("organization_id required")
	}
	if lookbackDays <= 0 {
		lookbackDays = 180
	}
	start := time.Now()

	positions, err := uc.features.CountPositions(ctx, orgID)
	if err != nil {
		uc.metrics.RecordError("train_positions")
		return nil, fmt.Errorf("train: %w", err)
	}
	if positions < minPositionSnapshots {
		if uc.l != nil {
			uc.l.Warn("training skipped: too few position snapshots",
				applogger.String("org_id", orgID),
				applogger.Int("positions", positions),
			)
		}
		return &TrainResult{
			OrganizationID: orgID,
			Status:         models.TrainingStatusInsufficientData,
			Positions:      positions,
			LookbackDays:   lookbackDays,
		}, nil
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -lookbackDays)
	flows, err := uc.features.GetDailyFlows(ctx, orgID, from, to)
	if err != nil {
		uc.metrics.RecordError("train_flows")
		return nil, fmt.Errorf("train: %w", err)
	}

	report, err := uc.engine.TrainOnData(flows)
	if err != nil {
		uc.metrics.RecordError("train")
		return nil, fmt.Errorf("train: %w", err)
	}

	// a newly fitted model invalidates forecasts served off the old one
	if report.Status == models.TrainingStatusTrained && uc.cache != nil {
		pattern := pkgcache.BuildPattern(pkgcache.GenerateKey("forecast", orgID))
		if derr := uc.cache.DeleteByPattern(ctx, pattern); derr != nil && uc.l != nil {
			uc.l.Warn("forecast cache invalidation failed", applogger.Error(derr))
		}
	}

	uc.metrics.RecordLatency("train", time.Since(start).Seconds())
	if uc.l != nil {
		uc.l.Info("training finished",
			applogger.String("org_id", orgID),
			applogger.String("status", report.Status),
			applogger.Int("rows", report.Rows),
		)
	}
	return &TrainResult{
		OrganizationID: orgID,
		Status:         report.Status,
		Rows:           report.Rows,
		Positions:      positions,
		LookbackDays:   lookbackDays,
		Metrics:        report.Metrics,
	}, nil
}

// Enqueue schedules an asynchronous training run. Falls back to a
// synchronous pass when no queue is wired.
func (uc *TrainingUseCase) Enqueue(ctx context.Context, orgID string, lookbackDays int) (*TrainResult, error) {
	if uc.queue == nil {
		return uc.Train(ctx, orgID, lookbackDays)
	}
	if orgID == "" {
		return nil, fmt.Errorf("organization_id required")
	}
	if lookbackDays <= 0 {
		lookbackDays = 180
	}
	payload := TrainPayload{OrganizationID: orgID, LookbackDays: lookbackDays}
	if err := uc.queue.PublishMessage(ctx, TrainMessageType, payload); err != nil {
		uc.metrics.RecordError("train_enqueue")
		return nil, fmt.Errorf("enqueue training: %w", err)
	}
	return &TrainResult{
		OrganizationID: orgID,
		Status:         "queued",
		LookbackDays:   lookbackDays,
		Queued:         true,
	}, nil
}

// TrainingJob runs queued training messages.
type TrainingJob struct {
	uc *TrainingUseCase
}

func NewTrainingJob(uc *TrainingUseCase) *TrainingJob { return &TrainingJob{uc: uc} }

func (j *TrainingJob) Name() string { return "steady-state-training" }

func (j *TrainingJob) Type() string { return TrainMessageType }

func (j *TrainingJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[TrainPayload](payload)
	if err != nil {
		return fmt.Errorf("training payload: %w", err)
	}
	_, err = j.uc.Train(ctx, p.OrganizationID, p.LookbackDays)
	return err
}

var _ queue.Job = (*TrainingJob)(nil)
