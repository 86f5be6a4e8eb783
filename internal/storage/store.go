package storage

import (
	"context"

	"clonebo/internal/model"
)

// Store persists campaign snapshots: the candidate pool and round history.
type Store interface {
	Init(ctx context.Context) error
	SaveCampaign(ctx context.Context, snapshot model.CampaignSnapshot) error
	GetCampaign(ctx context.Context, id string) (model.CampaignSnapshot, bool, error)
	// ListCampaigns returns summaries ordered by most recent update first.
	ListCampaigns(ctx context.Context) ([]model.CampaignSummary, error)
	DeleteCampaign(ctx context.Context, id string) error
}
