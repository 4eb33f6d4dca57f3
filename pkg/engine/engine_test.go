package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/orderly/pkg/specs"
	"github.com/go-go-golems/orderly/pkg/status"
)

func TestEngineHappyPathCancelIsForcefulShutdown(t *testing.T) {
	dir := t.TempDir()
	cohort := specs.CohortSpec{
		Services: []specs.ServiceSpec{
			{Name: "web", Run: "sleep 5", Check: "true", CheckDelay: 50 * time.Millisecond},
			{Name: "worker", Run: "sleep 5", Check: "true", CheckDelay: 50 * time.Millisecond},
		},
		MaxRestartTokens:       5,
		RestartTokensPerSecond: 0.1,
		StatusFilePath:         filepath.Join(dir, "status"),
	}

	e := New(cohort)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() { done <- e.Run(ctx) }()

	time.Sleep(150 * time.Millisecond)
	phase, err := status.Read(cohort.StatusFilePath)
	require.NoError(t, err)
	assert.Equal(t, status.Running, phase)

	cancel()
	code := <-done
	assert.Equal(t, 1, code, "cancellation is treated as a forceful shutdown")

	finalPhase, err := status.Read(cohort.StatusFilePath)
	require.NoError(t, err)
	assert.Equal(t, status.Exited, finalPhase)
}

func TestEngineStartupFailureExitsNonZero(t *testing.T) {
	dir := t.TempDir()
	cohort := specs.CohortSpec{
		Services: []specs.ServiceSpec{
			{Name: "bad", Run: "true", Check: "false"},
		},
		MaxRestartTokens:       5,
		RestartTokensPerSecond: 0.1,
		StatusFilePath:         filepath.Join(dir, "status"),
	}

	e := New(cohort)
	code := e.Run(context.Background())
	assert.Equal(t, 1, code)

	phase, err := status.Read(cohort.StatusFilePath)
	require.NoError(t, err)
	assert.Equal(t, status.Exited, phase)
}

func TestEngineRestartExhaustionExitsNonZero(t *testing.T) {
	dir := t.TempDir()
	cohort := specs.CohortSpec{
		Services: []specs.ServiceSpec{
			{Name: "flaky", Run: "sleep 1", Check: "true", CheckDelay: 50 * time.Millisecond},
		},
		MaxRestartTokens:       0,
		RestartTokensPerSecond: 0,
		StatusFilePath:         filepath.Join(dir, "status"),
	}

	e := New(cohort)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	code := e.Run(ctx)
	assert.Equal(t, 1, code)
}
