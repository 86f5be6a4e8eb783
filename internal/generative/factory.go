package generative

import (
	"fmt"
	"log/slog"
	"sort"
	"time"
)

const (
	KindSubstitution = "substitution"
	KindRemote       = "remote"
)

// Options selects and configures a Model adapter.
type Options struct {
	Kind string
	// Seed drives the substitution model.
	Seed int64
	// Forbidden residues are never introduced by the substitution model.
	Forbidden         string
	URL               string
	Timeout           time.Duration
	RequestsPerSecond float64
	Logger            *slog.Logger
}

func New(opts Options) (Model, error) {
	switch opts.Kind {
	case "", KindSubstitution:
		return NewSubstitutionModel(opts.Seed, opts.Forbidden), nil
	case KindRemote:
		return NewRemoteModel(RemoteOptions{
			BaseURL:           opts.URL,
			Timeout:           opts.Timeout,
			RequestsPerSecond: opts.RequestsPerSecond,
			Logger:            opts.Logger,
		})
	default:
		return nil, fmt.Errorf("unsupported generative model kind: %s", opts.Kind)
	}
}

func Kinds() []string {
	out := []string{KindSubstitution, KindRemote}
	sort.Strings(out)
	return out
}
