package actor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/orderly/pkg/hook"
	"github.com/go-go-golems/orderly/pkg/orderlyerr"
	"github.com/go-go-golems/orderly/pkg/specs"
)

func newTestActor(spec specs.ServiceSpec) *Actor {
	return New(spec, hook.New(), nil)
}

func TestActorHappyPath(t *testing.T) {
	spec := specs.ServiceSpec{
		Name:  "web",
		Run:   "sleep 5",
		Check: "true",
	}
	a := newTestActor(spec)
	assert.Equal(t, NotStarted, a.Lifecycle())

	require.NoError(t, a.Start())
	assert.Equal(t, Starting, a.Lifecycle())
	assert.NotZero(t, a.RunPID())
	assert.True(t, a.EverSpawned())

	require.NoError(t, a.WaitStarted(context.Background()))
	assert.Equal(t, Starting, a.Lifecycle())

	require.NoError(t, a.Check(context.Background()))
	assert.Equal(t, Running, a.Lifecycle())
	assert.WithinDuration(t, time.Now(), a.LastCheckOKAt(), time.Second)

	require.NoError(t, a.Shutdown(context.Background()))
	assert.Equal(t, ShuttingDown, a.Lifecycle())

	require.NoError(t, a.Cleanup(context.Background()))
	assert.Equal(t, CleanedUp, a.Lifecycle())
}

func TestActorCheckDetectsCrash(t *testing.T) {
	spec := specs.ServiceSpec{
		Name: "flaky",
		Run:  "true", // exits immediately
	}
	a := newTestActor(spec)
	require.NoError(t, a.Start())
	time.Sleep(200 * time.Millisecond) // let the child exit before Check observes it

	err := a.Check(context.Background())
	require.Error(t, err)
	kind, ok := orderlyerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, orderlyerr.KindChildCrashed, kind)
	assert.Equal(t, Failed, a.Lifecycle())
}

func TestActorCheckHookFailure(t *testing.T) {
	spec := specs.ServiceSpec{
		Name:  "bad-check",
		Run:   "sleep 5",
		Check: "false",
	}
	a := newTestActor(spec)
	require.NoError(t, a.Start())

	err := a.Check(context.Background())
	require.Error(t, err)
	kind, ok := orderlyerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, orderlyerr.KindHookNonZero, kind)
	assert.Equal(t, Failed, a.Lifecycle())

	a.KillHard()
}

func TestActorWaitStartedTimeout(t *testing.T) {
	spec := specs.ServiceSpec{
		Name:               "slow-start",
		Run:                "sleep 5",
		WaitStarted:        "sleep 1",
		WaitStartedTimeout: 50 * time.Millisecond,
	}
	a := newTestActor(spec)
	require.NoError(t, a.Start())

	err := a.WaitStarted(context.Background())
	require.Error(t, err)
	kind, ok := orderlyerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, orderlyerr.KindHookTimeout, kind)
	assert.Equal(t, Failed, a.Lifecycle())

	a.KillHard()
}

func TestActorShutdownEscalatesToKill(t *testing.T) {
	spec := specs.ServiceSpec{
		Name:            "stubborn",
		Run:             "trap '' TERM; sleep 30",
		ShutdownTimeout: 100 * time.Millisecond,
	}
	a := newTestActor(spec)
	require.NoError(t, a.Start())
	require.NoError(t, a.Check(context.Background()))

	start := time.Now()
	_ = a.Shutdown(context.Background())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, ShuttingDown, a.Lifecycle())
}

func TestActorKillHardWithoutTerminateTimeoutIsImmediateSIGKILL(t *testing.T) {
	spec := specs.ServiceSpec{
		Name: "stubborn",
		Run:  "trap '' TERM; sleep 30",
	}
	a := newTestActor(spec)
	require.NoError(t, a.Start())

	start := time.Now()
	a.KillHard()
	assert.Less(t, time.Since(start), time.Second, "zero TerminateTimeout should skip SIGTERM and kill immediately")
	assert.Equal(t, ShuttingDown, a.Lifecycle())
}

func TestActorKillHardWithTerminateTimeoutSendsSIGTERMFirst(t *testing.T) {
	spec := specs.ServiceSpec{
		Name:             "graceful",
		Run:              "trap 'exit 0' TERM; sleep 30",
		TerminateTimeout: 2 * time.Second,
	}
	a := newTestActor(spec)
	require.NoError(t, a.Start())

	start := time.Now()
	a.KillHard()
	elapsed := time.Since(start)
	assert.Less(t, elapsed, 2*time.Second, "process exits on SIGTERM well before the escalation timeout")
	assert.Equal(t, ShuttingDown, a.Lifecycle())
}

func TestActorKillHardWithTerminateTimeoutEscalatesOnStubbornChild(t *testing.T) {
	spec := specs.ServiceSpec{
		Name:             "stubborn",
		Run:              "trap '' TERM; sleep 30",
		TerminateTimeout: 200 * time.Millisecond,
	}
	a := newTestActor(spec)
	require.NoError(t, a.Start())

	start := time.Now()
	a.KillHard()
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, ShuttingDown, a.Lifecycle())
}

func TestActorCleanupOwedOnlyIfSpawned(t *testing.T) {
	spec := specs.ServiceSpec{Name: "never-started", Run: "true"}
	a := newTestActor(spec)
	assert.False(t, a.EverSpawned())
}
