// Package validate turns raw proposals into numbered antibody sequences or
// rejects them.
package validate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"clonebo/internal/model"
	"clonebo/internal/numbering"
)

// DefaultAlphabet is the 20 standard amino acids.
const DefaultAlphabet = "ACDEFGHIKLMNPQRSTVWY"

var ErrInvalidSequence = errors.New("invalid sequence")

// InvalidSequenceError reports a malformed or unalignable sequence. It is
// always recoverable: callers drop the candidate.
type InvalidSequenceError struct {
	Sequence string
	Reason   string
	Err      error
}

func (e *InvalidSequenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid sequence: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid sequence: %s", e.Reason)
}

func (e *InvalidSequenceError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidSequence, e.Err}
	}
	return []error{ErrInvalidSequence}
}

type Validator struct {
	alphabet  [256]bool
	symbols   string
	minLength int
	maxLength int
	numberer  numbering.Numberer
}

func NewValidator(alphabet string, minLength, maxLength int, numberer numbering.Numberer) (*Validator, error) {
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}
	if numberer == nil {
		return nil, errors.New("numberer is required")
	}
	if minLength <= 0 {
		return nil, fmt.Errorf("min length must be > 0")
	}
	if maxLength < minLength {
		return nil, fmt.Errorf("max length %d below min length %d", maxLength, minLength)
	}
	v := &Validator{
		symbols:   strings.ToUpper(alphabet),
		minLength: minLength,
		maxLength: maxLength,
		numberer:  numberer,
	}
	for i := 0; i < len(v.symbols); i++ {
		v.alphabet[v.symbols[i]] = true
	}
	return v, nil
}

func (v *Validator) Alphabet() string {
	return v.symbols
}

// Canonical normalizes a raw sequence: surrounding whitespace removed and
// upper-cased. The canonical form is the pool key.
func Canonical(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Validate checks raw against the alphabet and length limits and numbers it.
// Identical input always yields an identical result.
func (v *Validator) Validate(raw model.Sequence) (model.NumberedSequence, error) {
	seq := Canonical(raw)
	if seq == "" {
		return model.NumberedSequence{}, &InvalidSequenceError{Sequence: raw, Reason: "empty sequence"}
	}
	for i := 0; i < len(seq); i++ {
		if !v.alphabet[seq[i]] {
			return model.NumberedSequence{}, &InvalidSequenceError{
				Sequence: seq,
				Reason:   fmt.Sprintf("symbol %q at position %d outside alphabet", seq[i], i+1),
			}
		}
	}
	if len(seq) < v.minLength {
		return model.NumberedSequence{}, &InvalidSequenceError{Sequence: seq, Reason: fmt.Sprintf("length %d below minimum %d", len(seq), v.minLength)}
	}
	if len(seq) > v.maxLength {
		return model.NumberedSequence{}, &InvalidSequenceError{Sequence: seq, Reason: fmt.Sprintf("length %d above maximum %d", len(seq), v.maxLength)}
	}

	numbered, err := v.numberer.Number(seq)
	if err != nil {
		return model.NumberedSequence{}, &InvalidSequenceError{Sequence: seq, Reason: "numbering " + v.numberer.Scheme(), Err: err}
	}
	if err := numbered.Validate(); err != nil {
		return model.NumberedSequence{}, &InvalidSequenceError{Sequence: seq, Reason: "numbering invariant", Err: err}
	}
	return numbered, nil
}

// Result is the outcome of validating one entry of a batch.
type Result struct {
	Index    int
	Numbered model.NumberedSequence
	Err      error
}

// ValidateBatch validates raws in parallel with at most workers goroutines.
// Results are indexed by input position regardless of completion order.
func (v *Validator) ValidateBatch(ctx context.Context, raws []string, workers int) ([]Result, error) {
	results := make([]Result, len(raws))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, raw := range raws {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			numbered, err := v.Validate(raw)
			results[i] = Result{Index: i, Numbered: numbered, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
