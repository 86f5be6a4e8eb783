package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"clonebo/internal/model"
)

// WriteCandidatesJSONL writes one JSON candidate record per line.
func WriteCandidatesJSONL(w io.Writer, records []model.CandidateRecord) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return fmt.Errorf("encode candidate %s: %w", records[i].ID, err)
		}
	}
	return bw.Flush()
}

// ReadCandidatesJSONL reads records written by WriteCandidatesJSONL. Blank
// lines are skipped.
func ReadCandidatesJSONL(r io.Reader) ([]model.CandidateRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var out []model.CandidateRecord
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec model.CandidateRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
