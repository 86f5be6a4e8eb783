// Package generative adapts protein language models that sample and score
// antibody sequences.
package generative

import (
	"context"
	"errors"
)

var ErrNoContext = errors.New("sampling without context requires a length")

// SampleRequest asks for N sequences. With a Context, the residues at the
// Mask indices are infilled and every other residue is kept; without one,
// sequences of Length residues are sampled unconditionally. Higher
// Temperature moves samples further from the context.
type SampleRequest struct {
	Context     string  `json:"context,omitempty"`
	Mask        []int   `json:"mask,omitempty"`
	N           int     `json:"n"`
	Length      int     `json:"length,omitempty"`
	Temperature float64 `json:"temperature"`
}

// Model is the generative sequence model collaborator.
type Model interface {
	Name() string
	Sample(ctx context.Context, req SampleRequest) ([]string, error)
	ScoreLikelihood(ctx context.Context, raw string) (float64, error)
}
