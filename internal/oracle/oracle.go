// Package oracle adapts the expensive fitness measurement: a wet-lab assay
// service or an in-process synthetic landscape.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

const (
	KindSynthetic = "synthetic"
	KindHTTP      = "http"
)

var ErrTimeout = errors.New("oracle timed out")

// TimeoutError reports a batch that was only partially evaluated before the
// deadline. The accompanying result map holds the Returned sequences.
type TimeoutError struct {
	Requested int
	Returned  int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("oracle timed out: %d of %d sequences returned", e.Returned, e.Requested)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// Oracle scores a batch of sequences. On timeout it returns the results it
// has together with a *TimeoutError. Sequences absent from the map were not
// evaluated.
type Oracle interface {
	Name() string
	Evaluate(ctx context.Context, batch []string) (map[string]float64, error)
}

func Kinds() []string {
	out := []string{KindSynthetic, KindHTTP}
	sort.Strings(out)
	return out
}
