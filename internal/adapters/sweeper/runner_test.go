package sweeper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cutline/cutline-jobs/config"
)

type sweeperFunc func(ctx context.Context) error

func (f sweeperFunc) Run(ctx context.Context) error { return f(ctx) }

func TestNewRunnerRequiresDirectories(t *testing.T) {
	_, err := NewRunner(RunnerOptions{Config: config.CleanupConfig{TTLSeconds: 1, IntervalSeconds: 1}})
	require.Error(t, err)
}

func TestNewRunnerBuildsService(t *testing.T) {
	r, err := NewRunner(RunnerOptions{Config: config.CleanupConfig{
		TTLSeconds: 60, IntervalSeconds: 60, Directories: []string{t.TempDir()},
	}})
	require.NoError(t, err)
	assert.NotNil(t, r.sweeper)
}

func TestRunnerRunTreatsCancelAsClean(t *testing.T) {
	r, err := NewRunner(RunnerOptions{Sweeper: sweeperFunc(func(context.Context) error {
		return context.Canceled
	})})
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))
}

func TestRunnerRunPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	r, err := NewRunner(RunnerOptions{Sweeper: sweeperFunc(func(context.Context) error { return boom })})
	require.NoError(t, err)
	require.ErrorIs(t, r.Run(context.Background()), boom)
}
