package storage

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"clonebo/internal/model"
)

func exportRecords() []model.CandidateRecord {
	fitness := 0.5
	evaluatedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mean, variance, acq := 0.25, 0.125, 0.75
	regions := []model.RegionSpan{
		{Region: model.RegionFR1, Start: 0, End: 1},
		{Region: model.RegionCDR1, Start: 1, End: 3},
	}
	return []model.CandidateRecord{
		{
			ID:            "c-1",
			Sequence:      "ACD",
			Chain:         model.ChainHeavy,
			Scheme:        "anchor",
			Numbering:     []string{"1", "2", "3"},
			Regions:       regions,
			Operation:     "seed",
			OracleFitness: &fitness,
			EvaluatedAt:   &evaluatedAt,
		},
		{
			ID:            "c-2",
			Sequence:      "AED",
			Chain:         model.ChainHeavy,
			Scheme:        "anchor",
			Numbering:     []string{"1", "2", "3"},
			Regions:       regions,
			Round:         1,
			Parent:        "ACD",
			Operation:     "infill",
			ProposalIndex: 2,
			Mean:          &mean,
			Variance:      &variance,
			Acquisition:   &acq,
		},
	}
}

func TestWriteCandidatesJSONLGolden(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCandidatesJSONL(&buf, exportRecords()); err != nil {
		t.Fatalf("write: %v", err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "candidates", buf.Bytes())
}

func TestReadCandidatesJSONL(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCandidatesJSONL(&buf, exportRecords()); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf.WriteString("\n")

	records, err := ReadCandidatesJSONL(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	candidate, err := model.CandidateFromRecord(records[1])
	if err != nil {
		t.Fatalf("rebuild candidate: %v", err)
	}
	if candidate.Provenance.ParentSequence != "ACD" || candidate.Prediction == nil || candidate.Prediction.Acquisition != 0.75 {
		t.Fatalf("unexpected candidate: %+v", candidate)
	}
	if candidate.Numbered.RegionOf(2) != model.RegionCDR1 {
		t.Fatalf("expected CDR1 at index 2, got %s", candidate.Numbered.RegionOf(2))
	}
}

func TestReadCandidatesJSONLReportsLine(t *testing.T) {
	_, err := ReadCandidatesJSONL(strings.NewReader("{\"id\":\"c-1\"}\nnot json\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line 2 error, got %v", err)
	}
}
