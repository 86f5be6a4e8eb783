package storage

import (
	"context"
	"errors"

	"clonebo/internal/model"
)

// Checkpointer saves controller snapshots into a Store.
type Checkpointer struct {
	store Store
}

func NewCheckpointer(store Store) (*Checkpointer, error) {
	if store == nil {
		return nil, errors.New("checkpoint store is required")
	}
	return &Checkpointer{store: store}, nil
}

func (c *Checkpointer) Checkpoint(ctx context.Context, snapshot model.CampaignSnapshot) error {
	return c.store.SaveCampaign(ctx, Stamp(snapshot))
}
