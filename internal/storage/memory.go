package storage

import (
	"context"
	"errors"
	"sync"

	"clonebo/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	campaigns   map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.campaigns = make(map[string][]byte)
	return nil
}

// SaveCampaign stores an encoded copy so later mutation of snapshot by the
// caller cannot leak into the store.
func (s *MemoryStore) SaveCampaign(_ context.Context, snapshot model.CampaignSnapshot) error {
	if snapshot.ID == "" {
		return errors.New("campaign id is required")
	}
	payload, err := EncodeCampaign(Stamp(snapshot))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errors.New("store is not initialized")
	}
	s.campaigns[snapshot.ID] = payload
	return nil
}

func (s *MemoryStore) GetCampaign(_ context.Context, id string) (model.CampaignSnapshot, bool, error) {
	s.mu.RLock()
	payload, ok := s.campaigns[id]
	s.mu.RUnlock()
	if !ok {
		return model.CampaignSnapshot{}, false, nil
	}
	snapshot, err := DecodeCampaign(payload)
	if err != nil {
		return model.CampaignSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func (s *MemoryStore) ListCampaigns(_ context.Context) ([]model.CampaignSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.CampaignSummary, 0, len(s.campaigns))
	for _, payload := range s.campaigns {
		snapshot, err := DecodeCampaign(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, snapshot.Summary())
	}
	sortSummaries(out)
	return out, nil
}

func (s *MemoryStore) DeleteCampaign(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.campaigns, id)
	return nil
}
