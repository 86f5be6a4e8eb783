package embed

import (
	"context"
	"errors"
	"fmt"

	"clonebo/internal/model"
)

// VectorSource is a model that exposes per-sequence representations, such
// as the generative model service.
type VectorSource interface {
	Embed(ctx context.Context, raw string) ([]float64, error)
}

// RemoteEmbedder takes representations from a VectorSource and enforces a
// fixed dimensionality and context length.
type RemoteEmbedder struct {
	source    VectorSource
	dim       int
	maxLength int
}

func NewRemoteEmbedder(source VectorSource, dim, maxLength int) (*RemoteEmbedder, error) {
	if source == nil {
		return nil, errors.New("vector source is required")
	}
	if dim <= 0 {
		return nil, errors.New("embedding dimension must be > 0")
	}
	if maxLength <= 0 {
		return nil, errors.New("max length must be > 0")
	}
	return &RemoteEmbedder{source: source, dim: dim, maxLength: maxLength}, nil
}

func (e *RemoteEmbedder) Dim() int {
	return e.dim
}

func (e *RemoteEmbedder) Embed(ctx context.Context, seq model.NumberedSequence) ([]float64, error) {
	if len(seq.Sequence) > e.maxLength {
		return nil, &EncodingError{
			Sequence: seq.Sequence,
			Reason:   fmt.Sprintf("length %d exceeds context length %d", len(seq.Sequence), e.maxLength),
		}
	}
	vec, err := e.source.Embed(ctx, seq.Sequence)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, &EncodingError{Sequence: seq.Sequence, Reason: err.Error()}
	}
	if len(vec) != e.dim {
		return nil, &EncodingError{
			Sequence: seq.Sequence,
			Reason:   fmt.Sprintf("representation has dimension %d, want %d", len(vec), e.dim),
		}
	}
	return vec, nil
}
