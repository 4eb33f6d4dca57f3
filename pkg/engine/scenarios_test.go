package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/orderly/pkg/specs"
	"github.com/go-go-golems/orderly/pkg/status"
)

func waitForPhase(t *testing.T, path string, want status.Phase, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if got, err := status.Read(path); err == nil && got == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("status file at %s never reached %s", path, want)
}

// TestScenarioS1BasicStartShutdown is spec.md section 8's S1: two
// services logging "<name> <action>" on every invocation, SIGINT once
// both are RUNNING, expecting start-up in declared order and the
// engine's two-pass shutdown: every SHUTDOWN in reverse declared order,
// then every CLEANUP in reverse declared order. RUN is not awaited, so
// the WAIT_STARTED action waits until its service's RUN line is logged
// before logging its own.
func TestScenarioS1BasicStartShutdown(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "actions.log")

	allCommands := func(name string) string {
		return fmt.Sprintf(`if [ "$ORDERLY_ACTION" = "WAIT_STARTED" ]; then until grep -qx "%s RUN" %s; do sleep 0.01; done; fi; echo "%s $ORDERLY_ACTION" >> %s; if [ "$ORDERLY_ACTION" = "RUN" ]; then sleep 5; fi`, name, logFile, name, logFile)
	}

	cohort := specs.CohortSpec{
		Services: []specs.ServiceSpec{
			{Name: "a", Run: allCommands("a"), WaitStarted: allCommands("a"), Check: allCommands("a"), Shutdown: allCommands("a"), Cleanup: allCommands("a"), CheckDelay: time.Hour, ShutdownTimeout: 200 * time.Millisecond},
			{Name: "b", Run: allCommands("b"), WaitStarted: allCommands("b"), Check: allCommands("b"), Shutdown: allCommands("b"), Cleanup: allCommands("b"), CheckDelay: time.Hour, ShutdownTimeout: 200 * time.Millisecond},
		},
		MaxRestartTokens:       5,
		RestartTokensPerSecond: 0.1,
		StatusFilePath:         filepath.Join(dir, "status"),
	}

	e := New(cohort)
	done := make(chan int, 1)
	go func() { done <- e.Run(context.Background()) }()

	waitForPhase(t, cohort.StatusFilePath, status.Running, 2*time.Second)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(3 * time.Second):
		t.Fatal("engine did not exit after SIGINT")
	}

	b, err := os.ReadFile(logFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	assert.Equal(t, []string{
		"a RUN", "a WAIT_STARTED", "a CHECK",
		"b RUN", "b WAIT_STARTED", "b CHECK",
		"b SHUTDOWN", "a SHUTDOWN",
		"b CLEANUP", "a CLEANUP",
	}, lines)
}

// TestScenarioS2WaitStartedTimeout is spec.md section 8's S2: a stuck
// WAIT_STARTED is killed at its timeout, and since RUN was already
// spawned, SHUTDOWN/CLEANUP still run on the way down.
func TestScenarioS2WaitStartedTimeout(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "actions.log")
	logAction := fmt.Sprintf(`echo "sv $ORDERLY_ACTION" >> %s`, logFile)

	cohort := specs.CohortSpec{
		Services: []specs.ServiceSpec{{
			Name:               "sv",
			Run:                logAction + "; sleep 5",
			WaitStarted:        logAction + "; sleep 99999",
			WaitStartedTimeout: 200 * time.Millisecond,
			Shutdown:           logAction,
			Cleanup:            logAction,
		}},
		MaxRestartTokens:       5,
		RestartTokensPerSecond: 0.1,
		StatusFilePath:         filepath.Join(dir, "status"),
	}

	e := New(cohort)
	code := e.Run(context.Background())
	assert.NotEqual(t, 0, code)

	b, err := os.ReadFile(logFile)
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, "sv RUN")
	assert.Contains(t, out, "sv SHUTDOWN")
	assert.Contains(t, out, "sv CLEANUP")
}

// TestScenarioS5ShutdownTimeoutEscalatesToKill is spec.md section 8's
// S5: a SHUTDOWN hook that exits 0 without killing RUN still results in
// RUN being SIGKILLed once ShutdownTimeout elapses.
func TestScenarioS5ShutdownTimeoutEscalatesToKill(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "run.pid")

	cohort := specs.CohortSpec{
		Services: []specs.ServiceSpec{{
			Name:            "sv",
			Run:             fmt.Sprintf(`echo $$ > %s; sleep 30`, pidFile),
			Check:           "true",
			CheckDelay:      time.Hour,
			Shutdown:        "true", // exits 0 immediately, never touches RUN
			ShutdownTimeout: 200 * time.Millisecond,
			Cleanup:         "true",
		}},
		MaxRestartTokens:       5,
		RestartTokensPerSecond: 0.1,
		StatusFilePath:         filepath.Join(dir, "status"),
	}

	e := New(cohort)
	done := make(chan int, 1)
	go func() { done <- e.Run(context.Background()) }()

	waitForPhase(t, cohort.StatusFilePath, status.Running, 2*time.Second)
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("engine did not exit after SIGINT despite SHUTDOWN timeout escalation")
	}
}

// TestScenarioS6RestartBudgetExhaustion is spec.md section 8's S6: a
// service that keeps crashing is restarted up to max_restart_tokens
// times and then the cohort fails.
func TestScenarioS6RestartBudgetExhaustion(t *testing.T) {
	dir := t.TempDir()

	cohort := specs.CohortSpec{
		Services: []specs.ServiceSpec{{
			Name:       "flaky",
			Run:        "sleep 1",
			Check:      "true",
			CheckDelay: time.Hour, // only RUN exiting drives restarts here, never a scheduled re-check
		}},
		MaxRestartTokens:       2,
		RestartTokensPerSecond: 0,
		StatusFilePath:         filepath.Join(dir, "status"),
	}

	e := New(cohort)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	code := e.Run(ctx)

	assert.Equal(t, 1, code)
	assert.Equal(t, 2, e.restartCount["flaky"])
}
