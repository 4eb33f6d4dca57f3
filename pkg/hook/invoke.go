// Package hook implements the Hook Invoker (spec.md section 4.1): it
// spawns a single hook process for a (service, action) pair with the
// documented environment, captures its exit status, and enforces a
// per-action timeout with escalation to SIGKILL. Grounded on
// pkg/supervise/supervisor.go's startService/terminatePIDGroup and
// cmd/devctl/cmds/wrap_service.go's process-group handling.
package hook

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/orderly/pkg/orderlyerr"
	"github.com/go-go-golems/orderly/pkg/specs"
)

// Env names from spec.md section 4.1/6.
const (
	EnvServiceName = "ORDERLY_SERVICE_NAME"
	EnvAction      = "ORDERLY_ACTION"
	EnvRunPID      = "ORDERLY_RUN_PID"
)

// Streams optionally redirects a hook's stdout/stderr; nil fields inherit
// the invoker's own (matching the original Rust implementation's bare
// std::process::Command default). Grounded on SPEC_FULL.md section 9's
// -log-dir supplement.
type Streams struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Invoker spawns hook processes. It holds no per-service state; the
// Service Actor is the only thing that tracks a hook or RUN pid across
// calls.
type Invoker struct{}

func New() *Invoker { return &Invoker{} }

// Result holds the outcome of a non-RUN action: success, a non-zero exit,
// or a timeout. Invoke itself returns that outcome as a plain error; no
// function in this package returns a Result.
type Result struct {
	Err error // nil on success
}

// Run spawns the RUN command for service, returning its pid immediately
// without waiting, and a *exec.Cmd the caller must eventually Wait() on
// to avoid leaking the child (invariant: "leaking a child is a bug",
// spec.md section 9 Design Notes).
func (inv *Invoker) Run(name string, cmdline string, env map[string]string, streams Streams) (*exec.Cmd, error) {
	cmd := buildCmd(context.Background(), cmdline, env, streams)
	if err := cmd.Start(); err != nil {
		return nil, orderlyerr.New(orderlyerr.KindSpawnFailure, name, string(specs.ActionRun), errors.Wrap(err, "spawn RUN"))
	}
	log.Debug().Str("service", name).Int("pid", cmd.Process.Pid).Msg("RUN spawned")
	return cmd, nil
}

// Invoke runs a blocking hook (WAIT_STARTED, CHECK, SHUTDOWN, CLEANUP, or a
// cohort-level hook) to completion, subject to timeout. A zero timeout
// means "no timeout" per spec.md section 3.
func (inv *Invoker) Invoke(ctx context.Context, name string, action specs.Action, cmdline string, env map[string]string, timeout time.Duration, streams Streams) error {
	if cmdline == "" {
		return nil // absent action is a no-op that succeeds immediately
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := buildCmd(runCtx, cmdline, env, streams)
	if err := cmd.Start(); err != nil {
		return orderlyerr.New(orderlyerr.KindSpawnFailure, name, string(action), errors.Wrap(err, "spawn hook"))
	}

	waitErr := cmd.Wait()

	if runCtx.Err() == context.DeadlineExceeded {
		// exec.CommandContext already SIGKILLs the process leader on
		// context cancellation; escalate to the whole group in case the
		// hook forked, then make sure it's reaped. The leader is already
		// reaped here, so the group is addressed by its id (the leader's
		// pid, via setpgid) rather than looked up with Getpgid.
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		for i := 0; i < 200 && alive(cmd.Process.Pid); i++ {
			time.Sleep(10 * time.Millisecond)
		}
		log.Warn().Str("service", name).Str("action", string(action)).Dur("timeout", timeout).Msg("hook timed out, killed")
		return orderlyerr.New(orderlyerr.KindHookTimeout, name, string(action), errors.Errorf("exceeded %s", timeout))
	}

	if waitErr != nil {
		log.Warn().Str("service", name).Str("action", string(action)).Err(waitErr).Msg("hook exited non-zero")
		return orderlyerr.New(orderlyerr.KindHookNonZero, name, string(action), waitErr)
	}
	return nil
}

func buildCmd(ctx context.Context, cmdline string, env map[string]string, streams Streams) *exec.Cmd {
	// #nosec G204 -- cmdline is the operator-supplied hook script for this action.
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdline)
	cmd.Env = mergeEnv(os.Environ(), env)
	cmd.SysProcAttr = setpgid(nil)
	if streams.Stdout != nil {
		cmd.Stdout = streams.Stdout
	} else {
		cmd.Stdout = os.Stdout
	}
	if streams.Stderr != nil {
		cmd.Stderr = streams.Stderr
	} else {
		cmd.Stderr = os.Stderr
	}
	cmd.Stdin = nil
	return cmd
}

func mergeEnv(base []string, extra map[string]string) []string {
	out := append([]string{}, base...)
	for k, v := range extra {
		out = append(out, k+"="+v)
	}
	return out
}

// ActionEnv builds the environment map for a per-service action per
// spec.md section 4.1: ORDERLY_SERVICE_NAME, ORDERLY_ACTION always;
// ORDERLY_RUN_PID only when a RUN child exists (absent for RUN itself and
// for CLEANUP once the RUN child is gone).
func ActionEnv(serviceName string, action specs.Action, runPID int) map[string]string {
	env := map[string]string{
		EnvServiceName: serviceName,
		EnvAction:      string(action),
	}
	if runPID > 0 {
		env[EnvRunPID] = strconv.Itoa(runPID)
	}
	return env
}

// CohortEnv builds the environment for a cohort-level hook (RESTART,
// FAILURE, START_COMPLETE) per SPEC_FULL.md section 9; these have no
// ORDERLY_SERVICE_NAME since they are not scoped to one service.
func CohortEnv(action specs.Action) map[string]string {
	return map[string]string{EnvAction: string(action)}
}

// KillPID unconditionally SIGKILLs pid's process group (the Actor's
// kill_hard, spec.md section 4.2), waiting for it to be gone.
func KillPID(pid int) {
	_ = killGroup(pid)
	for i := 0; i < 200 && alive(pid); i++ {
		time.Sleep(10 * time.Millisecond)
	}
}

// TerminateThenKill sends SIGTERM to pid's process group, waits up to
// timeout, and escalates to SIGKILL if it's still alive. Supplemented
// from original_source/src/main.rs's kill_child_tree (SPEC_FULL.md
// section 9's TerminateTimeout).
func TerminateThenKill(pid int, timeout time.Duration) {
	if pid <= 0 {
		return
	}
	_ = signalGroup(pid, syscall.SIGTERM)
	deadline := time.Now().Add(timeout)
	for alive(pid) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if alive(pid) {
		KillPID(pid)
	}
}
