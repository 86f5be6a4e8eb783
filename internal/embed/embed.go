// Package embed converts numbered sequences into fixed-size feature vectors
// for the surrogate model.
package embed

import (
	"context"
	"errors"
	"fmt"

	"clonebo/internal/model"
)

var ErrEncoding = errors.New("encoding failed")

// EncodingError reports that a sequence could not be represented. It is
// raised instead of truncating input.
type EncodingError struct {
	Sequence string
	Reason   string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding failed: %s", e.Reason)
}

func (e *EncodingError) Unwrap() error {
	return ErrEncoding
}

// Embedder maps a numbered sequence to a vector of length Dim. Embed must
// not mutate its input and must be deterministic.
type Embedder interface {
	Dim() int
	Embed(ctx context.Context, seq model.NumberedSequence) ([]float64, error)
}

// OneHotEmbedder encodes each position as a one-hot block over the
// alphabet, zero-padded to MaxLength positions.
type OneHotEmbedder struct {
	alphabet  string
	index     [256]int
	maxLength int
}

func NewOneHotEmbedder(alphabet string, maxLength int) (*OneHotEmbedder, error) {
	if alphabet == "" {
		return nil, errors.New("alphabet is required")
	}
	if maxLength <= 0 {
		return nil, errors.New("max length must be > 0")
	}
	e := &OneHotEmbedder{alphabet: alphabet, maxLength: maxLength}
	for i := range e.index {
		e.index[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		if e.index[alphabet[i]] >= 0 {
			return nil, fmt.Errorf("duplicate alphabet symbol %q", alphabet[i])
		}
		e.index[alphabet[i]] = i
	}
	return e, nil
}

func (e *OneHotEmbedder) Dim() int {
	return e.maxLength * len(e.alphabet)
}

func (e *OneHotEmbedder) Embed(_ context.Context, seq model.NumberedSequence) ([]float64, error) {
	if len(seq.Sequence) > e.maxLength {
		return nil, &EncodingError{
			Sequence: seq.Sequence,
			Reason:   fmt.Sprintf("length %d exceeds context length %d", len(seq.Sequence), e.maxLength),
		}
	}
	width := len(e.alphabet)
	vec := make([]float64, e.Dim())
	for i := 0; i < len(seq.Sequence); i++ {
		j := e.index[seq.Sequence[i]]
		if j < 0 {
			return nil, &EncodingError{Sequence: seq.Sequence, Reason: fmt.Sprintf("symbol %q not in alphabet", seq.Sequence[i])}
		}
		vec[i*width+j] = 1
	}
	return vec, nil
}
