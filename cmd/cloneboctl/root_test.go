package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clonebo/internal/config"
	"clonebo/internal/model"
)

func TestRootCommand(t *testing.T) {
	cmd := newRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "cloneboctl", cmd.Use)
	assert.True(t, cmd.SilenceUsage)
	assert.True(t, cmd.SilenceErrors)
}

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"run", "campaigns", "top", "rounds", "export", "delete", "validate"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			require.NotNil(t, sub)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := newRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	for _, name := range []string{"store", "db-path", "trace"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestRunCommandFlags(t *testing.T) {
	cmd := newRootCommand()
	run, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	cfg := run.Flags().Lookup("config")
	require.NotNil(t, cfg)
	assert.Equal(t, "c", cfg.Shorthand)
	for _, name := range []string{"seed-seq", "seed-fitness", "seeds-from", "resume", "budget", "batch-size", "random-seed", "metrics-addr"} {
		assert.NotNil(t, run.Flags().Lookup(name), name)
	}
}

func TestStorageResolution(t *testing.T) {
	fromConfig := config.StorageConfig{Backend: "badger", Path: "data"}
	cases := []struct {
		name     string
		opts     rootOptions
		wantKind string
		wantPath string
	}{
		{"config", rootOptions{}, "badger", "data"},
		{"path flag", rootOptions{DBPath: "other"}, "badger", "other"},
		{"same backend flag", rootOptions{Store: "badger"}, "badger", "data"},
		{"sqlite default path", rootOptions{Store: "sqlite"}, "sqlite", "clonebo.db"},
		{"memory", rootOptions{Store: "memory"}, "memory", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kind, path := tc.opts.storage(fromConfig)
			assert.Equal(t, tc.wantKind, kind)
			assert.Equal(t, tc.wantPath, path)
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitConfig, exitCode(config.Errorf("campaign.batch_size", "too big")))
	assert.Equal(t, exitInterrupt, exitCode(fmt.Errorf("round 3: %w", context.Canceled)))
	assert.Equal(t, exitFailure, exitCode(errors.New("boom")))
}

func TestRoundFlags(t *testing.T) {
	assert.Equal(t, "-", roundFlags(model.Round{}))
	assert.Equal(t, "cold,partial", roundFlags(model.Round{ColdStart: true, Partial: true}))
	assert.Equal(t, "exhausted", roundFlags(model.Round{Exhausted: true}))
}

func TestTracerProviderDisabled(t *testing.T) {
	opts := rootOptions{}
	tp, shutdown, err := opts.tracerProvider(nil)
	require.NoError(t, err)
	assert.Nil(t, tp)
	assert.NoError(t, shutdown(context.Background()))
}
