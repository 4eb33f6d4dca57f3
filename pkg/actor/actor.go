// Package actor implements the Service Actor (spec.md section 4.2): the
// state machine that drives one ServiceSpec through its lifecycle. The
// Actor never self-initiates a transition; every operation here is called
// by the Supervision Engine, which also guarantees (invariant 3) that at
// most one of these calls is ever in flight for a given Actor at a time.
package actor

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/orderly/pkg/hook"
	"github.com/go-go-golems/orderly/pkg/orderlyerr"
	"github.com/go-go-golems/orderly/pkg/specs"
)

// Lifecycle is the ServiceState.lifecycle enum from spec.md section 3.
type Lifecycle string

const (
	NotStarted   Lifecycle = "NotStarted"
	Starting     Lifecycle = "Starting"
	Running      Lifecycle = "Running"
	ShuttingDown Lifecycle = "ShuttingDown"
	CleanedUp    Lifecycle = "CleanedUp"
	Failed       Lifecycle = "Failed"
)

// Actor owns one ServiceSpec's mutable ServiceState: its lifecycle, the
// pid of its most recent RUN child (kept after that child exits; Done
// reports the exit), and the last successful CHECK time.
//
// Exactly one goroutine per incarnation of the RUN child calls cmd.Wait():
// the monitor goroutine spawned by Start(). Every other operation that
// needs to know whether the RUN child has exited (Check, Shutdown's
// post-SHUTDOWN wait, KillHard) waits on the `done` channel that
// goroutine closes, rather than calling Wait() itself — os/exec forbids
// calling Wait twice on the same *exec.Cmd, and a second call would race
// the kernel's single-consumer wait() semantics for the pid.
type Actor struct {
	Spec specs.ServiceSpec
	inv  *hook.Invoker

	mu            sync.Mutex
	lifecycle     Lifecycle
	runCmd        *exec.Cmd
	runPID        int
	runDone       chan struct{}
	runExitErr    error
	runStartedAt  time.Time
	lastCheckOKAt time.Time
	everSpawned   bool

	streamsFor func(action specs.Action) hook.Streams
}

// New creates an Actor in the NotStarted state.
func New(spec specs.ServiceSpec, inv *hook.Invoker, streamsFor func(action specs.Action) hook.Streams) *Actor {
	if streamsFor == nil {
		streamsFor = func(specs.Action) hook.Streams { return hook.Streams{} }
	}
	return &Actor{Spec: spec, inv: inv, lifecycle: NotStarted, streamsFor: streamsFor}
}

// Lifecycle returns the current state.
func (a *Actor) Lifecycle() Lifecycle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lifecycle
}

// RunPID returns the pid of the current or most recent RUN child, or 0 if
// RUN has never been spawned. It is not cleared when the child exits;
// Done reports whether it has.
func (a *Actor) RunPID() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runPID
}

// EverSpawned reports whether RUN has ever been invoked for this actor in
// this cohort run — used by the Engine to decide whether CLEANUP is owed
// (spec.md section 4.5: "their CLEANUP is still invoked if and only if
// their RUN had been spawned").
func (a *Actor) EverSpawned() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.everSpawned
}

// LastCheckOKAt returns the timestamp of the last successful CHECK.
func (a *Actor) LastCheckOKAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastCheckOKAt
}

// Done returns the channel that closes when the current RUN child's
// monitor goroutine observes its exit, or nil if no RUN child has been
// spawned in the current incarnation. The Engine fans multiple actors'
// Done channels into its own select loop to learn of unexpected exits.
func (a *Actor) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runDone
}

// ExitErr returns the error cmd.Wait() returned for the most recent RUN
// child, valid only after Done() has closed.
func (a *Actor) ExitErr() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runExitErr
}

// RunStartedAt returns when the current (or most recent) RUN child was
// spawned, zero if none ever was.
func (a *Actor) RunStartedAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runStartedAt
}

func (a *Actor) setLifecycle(l Lifecycle) {
	a.mu.Lock()
	prev := a.lifecycle
	a.lifecycle = l
	a.mu.Unlock()
	if prev != l {
		log.Debug().Str("service", a.Spec.Name).Str("from", string(prev)).Str("to", string(l)).Msg("lifecycle transition")
	}
}

// Start requires NotStarted. Spawns the RUN child, records its pid,
// starts its monitor goroutine, and transitions to Starting.
func (a *Actor) Start() error {
	a.mu.Lock()
	if a.lifecycle != NotStarted {
		state := a.lifecycle
		a.mu.Unlock()
		return errors.Errorf("start: service %q not in NotStarted (is %s)", a.Spec.Name, state)
	}
	a.mu.Unlock()

	env := hook.ActionEnv(a.Spec.Name, specs.ActionRun, 0)
	cmd, err := a.inv.Run(a.Spec.Name, a.Spec.Run, env, a.streamsFor(specs.ActionRun))
	if err != nil {
		a.setLifecycle(Failed)
		return err
	}

	done := make(chan struct{})
	a.mu.Lock()
	a.runCmd = cmd
	a.runPID = cmd.Process.Pid
	a.runDone = done
	a.runExitErr = nil
	a.runStartedAt = time.Now()
	a.everSpawned = true
	a.mu.Unlock()

	go func() {
		waitErr := cmd.Wait()
		a.mu.Lock()
		a.runExitErr = waitErr
		a.mu.Unlock()
		close(done)
	}()

	a.setLifecycle(Starting)
	return nil
}

// WaitStarted requires Starting. Invokes WAIT_STARTED with its timeout.
func (a *Actor) WaitStarted(ctx context.Context) error {
	if got := a.Lifecycle(); got != Starting {
		return errors.Errorf("wait_started: service %q not in Starting (is %s)", a.Spec.Name, got)
	}
	env := hook.ActionEnv(a.Spec.Name, specs.ActionWaitStarted, a.RunPID())
	err := a.inv.Invoke(ctx, a.Spec.Name, specs.ActionWaitStarted, a.Spec.WaitStarted, env, a.Spec.WaitStartedTimeout, a.streamsFor(specs.ActionWaitStarted))
	if err != nil {
		a.setLifecycle(Failed)
		return err
	}
	return nil
}

// Check requires Starting or Running. Invokes CHECK with its timeout; on
// success transitions to (or remains) Running and updates LastCheckOKAt.
func (a *Actor) Check(ctx context.Context) error {
	got := a.Lifecycle()
	if got != Starting && got != Running {
		return errors.Errorf("check: service %q not in Starting/Running (is %s)", a.Spec.Name, got)
	}

	if a.runExited() {
		err := orderlyerr.New(orderlyerr.KindChildCrashed, a.Spec.Name, string(specs.ActionCheck), errors.New("RUN child exited"))
		a.setLifecycle(Failed)
		return err
	}

	env := hook.ActionEnv(a.Spec.Name, specs.ActionCheck, a.RunPID())
	if err := a.inv.Invoke(ctx, a.Spec.Name, specs.ActionCheck, a.Spec.Check, env, a.Spec.CheckTimeout, a.streamsFor(specs.ActionCheck)); err != nil {
		a.setLifecycle(Failed)
		return err
	}

	a.mu.Lock()
	a.lastCheckOKAt = time.Now()
	a.mu.Unlock()
	a.setLifecycle(Running)
	return nil
}

// runExited reports whether the current RUN child's Done channel has
// already closed, i.e. it exited without anyone having asked it to.
func (a *Actor) runExited() bool {
	done := a.Done()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// Shutdown requires Running, Starting, or Failed. Failed is included
// because a WAIT_STARTED or CHECK timeout moves an actor straight to
// Failed while its RUN child (a separate process from the hook that
// timed out) is typically still alive; spec.md section 8's S2/S3
// scenarios expect SHUTDOWN/CLEANUP to still tear it down. Invokes
// SHUTDOWN, then waits for the RUN child to exit bounded by
// ShutdownTimeout; on timeout it escalates to SIGKILL on the RUN pid and
// waits again with no further timeout.
func (a *Actor) Shutdown(ctx context.Context) error {
	got := a.Lifecycle()
	if got != Running && got != Starting && got != Failed {
		return nil // already past Running, or never started: nothing to shut down
	}
	if a.RunPID() == 0 {
		return nil // Failed before RUN was ever spawned
	}

	pid := a.RunPID()
	env := hook.ActionEnv(a.Spec.Name, specs.ActionShutdown, pid)
	hookErr := a.inv.Invoke(ctx, a.Spec.Name, specs.ActionShutdown, a.Spec.Shutdown, env, a.Spec.ShutdownTimeout, a.streamsFor(specs.ActionShutdown))
	if hookErr != nil {
		log.Warn().Str("service", a.Spec.Name).Err(hookErr).Msg("shutdown hook failed, falling back to kill")
	}

	a.waitRunExit(pid, a.Spec.ShutdownTimeout)
	a.setLifecycle(ShuttingDown)
	return hookErr
}

// waitRunExit blocks on the RUN child's Done channel, bounded by timeout
// (0 = no timeout for the first wait). On timeout it escalates to
// SIGKILL and waits again unconditionally, matching spec.md section 4.2.
func (a *Actor) waitRunExit(pid int, timeout time.Duration) {
	done := a.Done()
	if done == nil {
		return
	}

	if timeout <= 0 {
		<-done
		return
	}

	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn().Str("service", a.Spec.Name).Int("pid", pid).Msg("shutdown timed out waiting for RUN exit, escalating to SIGKILL")
		hook.KillPID(pid)
		<-done
	}
}

// Cleanup requires ShuttingDown or Failed. Invokes CLEANUP with its
// timeout; transitions to CleanedUp on success, Failed on hook failure.
func (a *Actor) Cleanup(ctx context.Context) error {
	got := a.Lifecycle()
	if got != ShuttingDown && got != Failed {
		return errors.Errorf("cleanup: service %q not in ShuttingDown/Failed (is %s)", a.Spec.Name, got)
	}

	env := hook.ActionEnv(a.Spec.Name, specs.ActionCleanup, 0)
	if err := a.inv.Invoke(ctx, a.Spec.Name, specs.ActionCleanup, a.Spec.Cleanup, env, a.Spec.CleanupTimeout, a.streamsFor(specs.ActionCleanup)); err != nil {
		a.setLifecycle(Failed)
		return err
	}
	a.setLifecycle(CleanedUp)
	return nil
}

// KillHard tears down the RUN pid if live, skipping SHUTDOWN/CLEANUP
// entirely. Used on SIGTERM (spec.md section 4.4). spec.md's §4.2
// wording ("unconditionally sends SIGKILL") is the TerminateTimeout==0
// case; when a service sets -terminate-timeout, this instead gives the
// process that long to exit after SIGTERM before escalating, matching
// original_source/src/main.rs's kill_proc/kill_child_tree.
func (a *Actor) KillHard() {
	pid := a.RunPID()
	done := a.Done()
	if pid == 0 || done == nil {
		return
	}
	if a.Spec.TerminateTimeout > 0 {
		hook.TerminateThenKill(pid, a.Spec.TerminateTimeout)
	} else {
		hook.KillPID(pid)
	}
	<-done
	a.setLifecycle(ShuttingDown)
}

// ResetForRestart returns the actor to NotStarted so the Engine can drive
// it through Start/WaitStarted/Check again after a targeted restart.
func (a *Actor) ResetForRestart() {
	a.setLifecycle(NotStarted)
}
