package storage

import (
	"encoding/json"
	"errors"
	"sort"

	"clonebo/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Stamp sets the current schema and codec versions on a snapshot.
func Stamp(snapshot model.CampaignSnapshot) model.CampaignSnapshot {
	snapshot.SchemaVersion = CurrentSchemaVersion
	snapshot.CodecVersion = CurrentCodecVersion
	return snapshot
}

func EncodeCampaign(snapshot model.CampaignSnapshot) ([]byte, error) {
	return json.Marshal(snapshot)
}

func DecodeCampaign(data []byte) (model.CampaignSnapshot, error) {
	var snapshot model.CampaignSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return model.CampaignSnapshot{}, err
	}
	if err := checkVersion(snapshot.VersionedRecord); err != nil {
		return model.CampaignSnapshot{}, err
	}
	return snapshot, nil
}

func EncodeSummary(summary model.CampaignSummary) ([]byte, error) {
	return json.Marshal(summary)
}

func DecodeSummary(data []byte) (model.CampaignSummary, error) {
	var summary model.CampaignSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return model.CampaignSummary{}, err
	}
	return summary, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}

func sortSummaries(summaries []model.CampaignSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].UpdatedAt.Equal(summaries[j].UpdatedAt) {
			return summaries[i].ID < summaries[j].ID
		}
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
}
