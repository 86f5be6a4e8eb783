// Package numbering assigns positional labels and framework/CDR region
// boundaries to antibody variable-domain sequences.
package numbering

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"clonebo/internal/model"
)

var (
	ErrUnalignable    = errors.New("sequence cannot be aligned to numbering scheme")
	ErrSchemeNotFound = errors.New("numbering scheme not found")
)

// Numberer is the numbering/annotation collaborator.
type Numberer interface {
	Scheme() string
	Number(raw string) (model.NumberedSequence, error)
}

var schemeRegistry = struct {
	mu sync.RWMutex
	m  map[string]Numberer
}{m: map[string]Numberer{}}

func init() {
	for _, n := range []Numberer{AnchorNumberer{}, IMGTNumberer{}} {
		if err := Register(n); err != nil {
			panic(err)
		}
	}
}

// Register makes a numberer resolvable by its scheme id.
func Register(n Numberer) error {
	if n == nil {
		return errors.New("numberer is required")
	}
	if n.Scheme() == "" {
		return errors.New("numbering scheme id is required")
	}
	schemeRegistry.mu.Lock()
	defer schemeRegistry.mu.Unlock()
	if _, ok := schemeRegistry.m[n.Scheme()]; ok {
		return fmt.Errorf("numbering scheme already registered: %s", n.Scheme())
	}
	schemeRegistry.m[n.Scheme()] = n
	return nil
}

// Resolve returns the numberer registered for scheme.
func Resolve(scheme string) (Numberer, error) {
	schemeRegistry.mu.RLock()
	defer schemeRegistry.mu.RUnlock()
	n, ok := schemeRegistry.m[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSchemeNotFound, scheme)
	}
	return n, nil
}

// Schemes lists registered scheme ids in sorted order.
func Schemes() []string {
	schemeRegistry.mu.RLock()
	defer schemeRegistry.mu.RUnlock()
	out := make([]string, 0, len(schemeRegistry.m))
	for name := range schemeRegistry.m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
