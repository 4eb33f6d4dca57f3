package hook

import (
	"bytes"
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/orderly/pkg/orderlyerr"
	"github.com/go-go-golems/orderly/pkg/specs"
)

func TestInvokerRunSpawnsAndReturnsPID(t *testing.T) {
	inv := New()
	cmd, err := inv.Run("web", "sleep 5", ActionEnv("web", specs.ActionRun, 0), Streams{})
	require.NoError(t, err)
	assert.NotZero(t, cmd.Process.Pid)
	KillPID(cmd.Process.Pid)
	_ = cmd.Wait()
}

func TestInvokeEmptyCmdlineIsNoOp(t *testing.T) {
	inv := New()
	err := inv.Invoke(context.Background(), "web", specs.ActionCheck, "", nil, 0, Streams{})
	assert.NoError(t, err)
}

func TestInvokeSuccess(t *testing.T) {
	inv := New()
	err := inv.Invoke(context.Background(), "web", specs.ActionCheck, "true", nil, 0, Streams{})
	assert.NoError(t, err)
}

func TestInvokeNonZeroExit(t *testing.T) {
	inv := New()
	err := inv.Invoke(context.Background(), "web", specs.ActionCheck, "false", nil, 0, Streams{})
	require.Error(t, err)
	kind, ok := orderlyerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, orderlyerr.KindHookNonZero, kind)
}

func TestInvokeTimeout(t *testing.T) {
	inv := New()
	start := time.Now()
	err := inv.Invoke(context.Background(), "web", specs.ActionCheck, "sleep 30", nil, 100*time.Millisecond, Streams{})
	elapsed := time.Since(start)

	require.Error(t, err)
	kind, ok := orderlyerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, orderlyerr.KindHookTimeout, kind)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestInvokeCapturesStreams(t *testing.T) {
	inv := New()
	var stdout, stderr bytes.Buffer
	err := inv.Invoke(context.Background(), "web", specs.ActionCheck, "echo out; echo err >&2", nil, 0, Streams{Stdout: &stdout, Stderr: &stderr})
	require.NoError(t, err)
	assert.Equal(t, "out\n", stdout.String())
	assert.Equal(t, "err\n", stderr.String())
}

func TestActionEnvOmitsRunPIDWhenZero(t *testing.T) {
	env := ActionEnv("web", specs.ActionRun, 0)
	assert.Equal(t, "web", env[EnvServiceName])
	assert.Equal(t, string(specs.ActionRun), env[EnvAction])
	_, ok := env[EnvRunPID]
	assert.False(t, ok)
}

func TestActionEnvIncludesRunPIDWhenSet(t *testing.T) {
	env := ActionEnv("web", specs.ActionCleanup, 4242)
	assert.Equal(t, "4242", env[EnvRunPID])
}

func TestCohortEnvHasNoServiceName(t *testing.T) {
	env := CohortEnv(specs.ActionRestart)
	assert.Equal(t, string(specs.ActionRestart), env[EnvAction])
	_, ok := env[EnvServiceName]
	assert.False(t, ok)
}

func TestKillPIDReapsProcessGroup(t *testing.T) {
	inv := New()
	cmd, err := inv.Run("web", "sleep 30", ActionEnv("web", specs.ActionRun, 0), Streams{})
	require.NoError(t, err)
	pid := cmd.Process.Pid
	// Reap concurrently, as pkg/actor's monitor goroutine does: KillPID
	// only signals and waits, it never collects the exit status itself.
	reaped := make(chan struct{})
	go func() { _ = cmd.Wait(); close(reaped) }()

	KillPID(pid)
	err = syscall.Kill(pid, 0)
	assert.Error(t, err, "pid should no longer be signalable after KillPID")
	<-reaped
}

func TestTerminateThenKillEscalatesOnStubbornChild(t *testing.T) {
	inv := New()
	cmd, err := inv.Run("web", "trap '' TERM; sleep 30", ActionEnv("web", specs.ActionRun, 0), Streams{})
	require.NoError(t, err)
	pid := cmd.Process.Pid
	reaped := make(chan struct{})
	go func() { _ = cmd.Wait(); close(reaped) }()

	start := time.Now()
	TerminateThenKill(pid, 100*time.Millisecond)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 2*time.Second)
	err = syscall.Kill(pid, 0)
	assert.Error(t, err)
	<-reaped
}

func TestTerminateThenKillIgnoresInvalidPID(t *testing.T) {
	TerminateThenKill(0, time.Second)
	TerminateThenKill(-1, time.Second)
}
