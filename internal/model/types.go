package model

import (
	"fmt"
	"time"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Sequence is a raw, unvalidated amino-acid string.
type Sequence = string

type Chain string

const (
	ChainHeavy Chain = "H"
	ChainLight Chain = "L"
)

type Region string

const (
	RegionFR1  Region = "FR1"
	RegionCDR1 Region = "CDR1"
	RegionFR2  Region = "FR2"
	RegionCDR2 Region = "CDR2"
	RegionFR3  Region = "FR3"
	RegionCDR3 Region = "CDR3"
	RegionFR4  Region = "FR4"
)

// RegionOrder is the N- to C-terminal order of variable-domain regions.
var RegionOrder = []Region{RegionFR1, RegionCDR1, RegionFR2, RegionCDR2, RegionFR3, RegionCDR3, RegionFR4}

// IsCDR reports whether r is a hypervariable region.
func (r Region) IsCDR() bool {
	return r == RegionCDR1 || r == RegionCDR2 || r == RegionCDR3
}

type Position struct {
	Label   string `json:"label"`
	Residue byte   `json:"residue"`
	Region  Region `json:"region"`
}

// RegionSpan is the half-open interval [Start, End) of a region.
type RegionSpan struct {
	Region Region `json:"region"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
}

func (s RegionSpan) Len() int {
	return s.End - s.Start
}

type NumberedSequence struct {
	Sequence  string       `json:"sequence"`
	Scheme    string       `json:"scheme"`
	Chain     Chain        `json:"chain"`
	Positions []Position   `json:"positions"`
	Regions   []RegionSpan `json:"regions"`
}

// Validate checks the numbering invariants: one label per residue and
// contiguous, ordered, non-overlapping regions covering the sequence.
func (n NumberedSequence) Validate() error {
	if len(n.Positions) != len(n.Sequence) {
		return fmt.Errorf("numbering covers %d positions, sequence has %d", len(n.Positions), len(n.Sequence))
	}
	labels := make(map[string]struct{}, len(n.Positions))
	for i, pos := range n.Positions {
		if pos.Label == "" {
			return fmt.Errorf("position %d has no label", i)
		}
		if _, ok := labels[pos.Label]; ok {
			return fmt.Errorf("duplicate numbering label %s", pos.Label)
		}
		labels[pos.Label] = struct{}{}
		if pos.Residue != n.Sequence[i] {
			return fmt.Errorf("position %d residue mismatch", i)
		}
	}
	if len(n.Regions) == 0 {
		return fmt.Errorf("numbering has no regions")
	}
	cursor := 0
	for _, span := range n.Regions {
		if span.Start != cursor || span.End <= span.Start {
			return fmt.Errorf("region %s [%d,%d) is not contiguous at %d", span.Region, span.Start, span.End, cursor)
		}
		for i := span.Start; i < span.End; i++ {
			if n.Positions[i].Region != span.Region {
				return fmt.Errorf("position %d assigned to %s, span says %s", i, n.Positions[i].Region, span.Region)
			}
		}
		cursor = span.End
	}
	if cursor != len(n.Sequence) {
		return fmt.Errorf("regions end at %d, sequence has %d", cursor, len(n.Sequence))
	}
	return nil
}

// Span returns the span of region r.
func (n NumberedSequence) Span(r Region) (RegionSpan, bool) {
	for _, span := range n.Regions {
		if span.Region == r {
			return span, true
		}
	}
	return RegionSpan{}, false
}

// RegionOf returns the region of residue index i.
func (n NumberedSequence) RegionOf(i int) Region {
	if i < 0 || i >= len(n.Positions) {
		return ""
	}
	return n.Positions[i].Region
}

type Provenance struct {
	Round          int    `json:"round"`
	ParentSequence string `json:"parent_sequence,omitempty"`
	Operation      string `json:"operation"`
	ProposalIndex  int    `json:"proposal_index"`
}

type Prediction struct {
	Mean        float64 `json:"mean"`
	Variance    float64 `json:"variance"`
	Acquisition float64 `json:"acquisition"`
}

type Candidate struct {
	ID            string           `json:"id"`
	Numbered      NumberedSequence `json:"numbered"`
	Provenance    Provenance       `json:"provenance"`
	Prediction    *Prediction      `json:"prediction,omitempty"`
	OracleFitness *float64         `json:"oracle_fitness,omitempty"`
	EvaluatedAt   time.Time        `json:"evaluated_at,omitempty"`
}

// Sequence returns the canonical sequence string, the pool key.
func (c Candidate) Sequence() string {
	return c.Numbered.Sequence
}

func (c Candidate) Evaluated() bool {
	return c.OracleFitness != nil
}

// Fitness returns the oracle fitness, or false if not yet evaluated.
func (c Candidate) Fitness() (float64, bool) {
	if c.OracleFitness == nil {
		return 0, false
	}
	return *c.OracleFitness, true
}

// Round is one iteration of the optimization loop. Rounds are append-only.
// ProposedBatch keeps the raw generator output in proposal order, before
// validation and deduplication.
type Round struct {
	Index            int       `json:"index"`
	Proposed         int       `json:"proposed"`
	ProposedBatch    []string  `json:"proposed_batch,omitempty"`
	Invalid          int       `json:"invalid"`
	Duplicates       int       `json:"duplicates"`
	EncodingFailures int       `json:"encoding_failures"`
	Scored           int       `json:"scored"`
	Selected         []string  `json:"selected"`
	Evaluated        []string  `json:"evaluated"`
	Partial          bool      `json:"partial"`
	ColdStart        bool      `json:"cold_start"`
	Exhausted        bool      `json:"exhausted,omitempty"`
	BestFitness      float64   `json:"best_fitness"`
	RunningBest      float64   `json:"running_best"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

// CandidateRecord is the flat persisted form of a candidate.
type CandidateRecord struct {
	ID            string       `json:"id"`
	Sequence      string       `json:"sequence"`
	Chain         Chain        `json:"chain"`
	Scheme        string       `json:"scheme"`
	Numbering     []string     `json:"numbering"`
	Regions       []RegionSpan `json:"regions"`
	Round         int          `json:"round"`
	Parent        string       `json:"parent,omitempty"`
	Operation     string       `json:"operation"`
	ProposalIndex int          `json:"proposal_index"`
	Mean          *float64     `json:"mean,omitempty"`
	Variance      *float64     `json:"variance,omitempty"`
	Acquisition   *float64     `json:"acquisition,omitempty"`
	OracleFitness *float64     `json:"oracle_fitness,omitempty"`
	EvaluatedAt   *time.Time   `json:"evaluated_at,omitempty"`
}

// ToRecord flattens a candidate for persistence.
func (c Candidate) ToRecord() CandidateRecord {
	labels := make([]string, len(c.Numbered.Positions))
	for i, pos := range c.Numbered.Positions {
		labels[i] = pos.Label
	}
	rec := CandidateRecord{
		ID:            c.ID,
		Sequence:      c.Numbered.Sequence,
		Chain:         c.Numbered.Chain,
		Scheme:        c.Numbered.Scheme,
		Numbering:     labels,
		Regions:       append([]RegionSpan(nil), c.Numbered.Regions...),
		Round:         c.Provenance.Round,
		Parent:        c.Provenance.ParentSequence,
		Operation:     c.Provenance.Operation,
		ProposalIndex: c.Provenance.ProposalIndex,
	}
	if c.Prediction != nil {
		mean, variance, acq := c.Prediction.Mean, c.Prediction.Variance, c.Prediction.Acquisition
		rec.Mean, rec.Variance, rec.Acquisition = &mean, &variance, &acq
	}
	if c.OracleFitness != nil {
		fitness := *c.OracleFitness
		rec.OracleFitness = &fitness
	}
	if !c.EvaluatedAt.IsZero() {
		at := c.EvaluatedAt
		rec.EvaluatedAt = &at
	}
	return rec
}

// CandidateFromRecord rebuilds a candidate from its persisted form.
func CandidateFromRecord(rec CandidateRecord) (Candidate, error) {
	if len(rec.Numbering) != len(rec.Sequence) {
		return Candidate{}, fmt.Errorf("candidate %s: numbering has %d labels for %d residues", rec.ID, len(rec.Numbering), len(rec.Sequence))
	}
	positions := make([]Position, len(rec.Sequence))
	for i := range positions {
		positions[i] = Position{Label: rec.Numbering[i], Residue: rec.Sequence[i]}
	}
	for _, span := range rec.Regions {
		if span.Start < 0 || span.End > len(positions) {
			return Candidate{}, fmt.Errorf("candidate %s: region %s out of range", rec.ID, span.Region)
		}
		for i := span.Start; i < span.End; i++ {
			positions[i].Region = span.Region
		}
	}
	c := Candidate{
		ID: rec.ID,
		Numbered: NumberedSequence{
			Sequence:  rec.Sequence,
			Scheme:    rec.Scheme,
			Chain:     rec.Chain,
			Positions: positions,
			Regions:   append([]RegionSpan(nil), rec.Regions...),
		},
		Provenance: Provenance{
			Round:          rec.Round,
			ParentSequence: rec.Parent,
			Operation:      rec.Operation,
			ProposalIndex:  rec.ProposalIndex,
		},
	}
	if err := c.Numbered.Validate(); err != nil {
		return Candidate{}, fmt.Errorf("candidate %s: %w", rec.ID, err)
	}
	if rec.Mean != nil && rec.Variance != nil {
		pred := Prediction{Mean: *rec.Mean, Variance: *rec.Variance}
		if rec.Acquisition != nil {
			pred.Acquisition = *rec.Acquisition
		}
		c.Prediction = &pred
	}
	if rec.OracleFitness != nil {
		fitness := *rec.OracleFitness
		c.OracleFitness = &fitness
	}
	if rec.EvaluatedAt != nil {
		c.EvaluatedAt = *rec.EvaluatedAt
	}
	return c, nil
}

type CampaignStatus string

const (
	StatusRunning         CampaignStatus = "running"
	StatusConverged       CampaignStatus = "converged"
	StatusBudgetExhausted CampaignStatus = "budget_exhausted"
	StatusCancelled       CampaignStatus = "cancelled"
	StatusFailed          CampaignStatus = "failed"
)

// CampaignSnapshot is the resumable state of a campaign: the pool and the
// round history.
type CampaignSnapshot struct {
	VersionedRecord
	ID             string            `json:"id"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Status         CampaignStatus    `json:"status"`
	TerminalReason string            `json:"terminal_reason,omitempty"`
	OracleCalls    int               `json:"oracle_calls"`
	Config         map[string]any    `json:"config,omitempty"`
	Candidates     []CandidateRecord `json:"candidates"`
	Rounds         []Round           `json:"rounds"`
}

// BestFitness returns the maximum oracle fitness recorded in the snapshot.
func (s CampaignSnapshot) BestFitness() (float64, bool) {
	best, ok := 0.0, false
	for _, rec := range s.Candidates {
		if rec.OracleFitness == nil {
			continue
		}
		if !ok || *rec.OracleFitness > best {
			best, ok = *rec.OracleFitness, true
		}
	}
	return best, ok
}

// CampaignSummary is the listing view of a stored campaign.
type CampaignSummary struct {
	ID          string         `json:"id"`
	Status      CampaignStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Rounds      int            `json:"rounds"`
	OracleCalls int            `json:"oracle_calls"`
	Candidates  int            `json:"candidates"`
	BestFitness *float64       `json:"best_fitness,omitempty"`
}

func (s CampaignSnapshot) Summary() CampaignSummary {
	summary := CampaignSummary{
		ID:          s.ID,
		Status:      s.Status,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		Rounds:      len(s.Rounds),
		OracleCalls: s.OracleCalls,
		Candidates:  len(s.Candidates),
	}
	if best, ok := s.BestFitness(); ok {
		summary.BestFitness = &best
	}
	return summary
}
