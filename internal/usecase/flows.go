package usecase

import (
	"context"
	"fmt"
	"time"

	"FlowCast/internal/domain/models"
	domrepo "FlowCast/internal/domain/repository"
)

// FlowsUseCase provides business logic for retrieving daily flow aggregates.
type FlowsUseCase struct {
	store domrepo.FeatureStore
}

func NewFlowsUseCase(store domrepo.FeatureStore) *FlowsUseCase {
	return &FlowsUseCase{store: store}
}

type GetFlowsParams struct {
	OrganizationID string
	Days           int
}

type GetFlowsResult struct {
	OrganizationID string             `json:"organization_id"`
	From           time.Time          `json:"from"`
	To             time.Time          `json:"to"`
	Count          int                `json:"count"`
	Flows          []models.DailyFlow `json:"flows"`
}

func (uc *FlowsUseCase) GetFlows(ctx context.Context, p GetFlowsParams) (*GetFlowsResult, error) {
	if p.OrganizationID == "" {
		return nil, fmt.Errorf("organization_id required")
	}
	if p.Days <= 0 {
		p.Days = 90
	}
	if p.Days > 3650 {
		p.Days = 3650
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -p.Days)

	flows, err := uc.store.GetDailyFlows(ctx, p.OrganizationID, from, to)
	if err != nil {
		return nil, fmt.Errorf("get flows: %w", err)
	}

	return &GetFlowsResult{
		OrganizationID: p.OrganizationID,
		From:           from,
		To:             to,
		Count:          len(flows),
		Flows:          flows,
	}, nil
}
