// Package engine implements the Supervision Engine (spec.md section
// 4.5): the top-level orchestrator that builds the cohort in declared
// order, drives the startup phase, the steady-state check loop, and the
// shutdown phase, and returns the process exit code. Grounded on
// pkg/supervise/supervisor.go's top-level Run loop for the overall shape
// of "start everything in order, tear down in reverse on signal or
// failure", adapted to dispatch through pkg/bus instead of supervisor.go's
// direct function calls.
//
// The event multiplexer is the select loop in Run: every signal,
// check-cadence timer, and child exit reaches it as a message on pkg/bus.
// Hooks run synchronously on the loop's own goroutine (Check, Shutdown,
// Cleanup and the cohort hooks block until the hook exits or its timeout
// fires). An event that arrives meanwhile waits in its buffered channel
// and is handled after the hook returns; an in-flight hook is not
// abandoned on SIGTERM.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/orderly/pkg/actor"
	"github.com/go-go-golems/orderly/pkg/bus"
	"github.com/go-go-golems/orderly/pkg/diag"
	"github.com/go-go-golems/orderly/pkg/hook"
	"github.com/go-go-golems/orderly/pkg/orderlyerr"
	"github.com/go-go-golems/orderly/pkg/restart"
	"github.com/go-go-golems/orderly/pkg/sigrouter"
	"github.com/go-go-golems/orderly/pkg/specs"
	"github.com/go-go-golems/orderly/pkg/status"
)

// Phase is the CohortState.phase enum from spec.md section 3. It is
// finer-grained than status.Phase (the three strings written to the
// status file): Run writes STARTING when it begins, RUNNING once startup
// succeeds, and EXITED at the end. ShuttingDown has no value of its own
// there; the file keeps its last value (RUNNING, or STARTING if startup
// failed) until EXITED is written.
type Phase string

const (
	PhaseStartingUp   Phase = "StartingUp"
	PhaseRunning      Phase = "Running"
	PhaseShuttingDown Phase = "ShuttingDown"
	PhaseExited       Phase = "Exited"
)

// Engine owns one cohort run end to end.
type Engine struct {
	cohort specs.CohortSpec
	actors []*actor.Actor
	inv    *hook.Invoker
	bucket *restart.Bucket

	b      *bus.Bus
	router *sigrouter.Router
	runCtx context.Context

	phase        Phase
	exitCode     int
	restartCount map[string]int
	startedAt    time.Time
	logFiles     *logFileSet
	cpuTracker   *diag.CPUTracker
}

// New builds an Engine for cohort. cohort should already have its
// defaults resolved: pkg/cliparse.Parse calls WithDefaults on a cohort
// read by pkg/specs.LoadManifest, and for '-- <service-spec>' groups
// resolves its cohort-level knobs through flag defaults directly (see
// WithDefaults' doc comment) plus WithServiceCheckDelays.
func New(cohort specs.CohortSpec) *Engine {
	inv := hook.New()
	lf := newLogFileSet(cohort.LogDir)
	actors := make([]*actor.Actor, len(cohort.Services))
	for i, svc := range cohort.Services {
		actors[i] = actor.New(svc, inv, lf.streamsFor(svc.Name))
	}
	return &Engine{
		cohort:       cohort,
		actors:       actors,
		inv:          inv,
		bucket:       restart.New(cohort.MaxRestartTokens, cohort.RestartTokensPerSecond),
		phase:        PhaseStartingUp,
		restartCount: make(map[string]int, len(actors)),
		logFiles:     lf,
		cpuTracker:   diag.NewCPUTracker(),
	}
}

// Run drives the cohort through startup, steady state, and shutdown,
// blocking until the engine exits. The returned int is the process exit
// code (spec.md section 6: 0 on clean shutdown, non-zero otherwise).
func (e *Engine) Run(ctx context.Context) int {
	e.startedAt = time.Now()
	defer e.logFiles.closeAll()

	_ = status.Write(e.cohort.StatusFilePath, status.Starting)

	b, err := bus.New()
	if err != nil {
		log.Error().Err(err).Msg("failed to create internal event bus")
		return 1
	}
	e.b = b

	sigCh := make(chan bus.SignalEvent, 8)
	checkCh := make(chan bus.CheckDueEvent, 16)
	exitCh := make(chan bus.ChildExitEvent, 16)

	subscribeEnvelope(b, bus.TopicSignals, sigCh)
	subscribeEnvelope(b, bus.TopicCheckTimer, checkCh)
	subscribeEnvelope(b, bus.TopicChildExit, exitCh)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.runCtx = runCtx

	go func() {
		if err := b.Run(runCtx); err != nil {
			log.Error().Err(err).Msg("event bus stopped with error")
		}
	}()

	e.router = sigrouter.New(runCtx, b)
	defer e.router.Stop()

	for _, a := range e.actors {
		e.startCheckTimer(runCtx, a)
	}

	if !e.startupPhase(ctx) {
		e.exitCode = e.failureShutdown(ctx)
		e.finish()
		return e.exitCode
	}

	e.phase = PhaseRunning
	_ = status.Write(e.cohort.StatusFilePath, status.Running)
	e.writeSnapshot()

	for _, a := range e.actors {
		e.watchExit(runCtx, a)
	}

	if e.cohort.OnStartComplete != "" {
		if err := e.invokeCohortHook(ctx, specs.ActionStartComplete, e.cohort.OnStartComplete, e.cohort.OnStartCompleteTimeout); err != nil {
			log.Error().Err(err).Msg("start-complete hook failed, shutting down")
			e.exitCode = e.failureShutdown(ctx)
			e.finish()
			return e.exitCode
		}
	}

runLoop:
	for {
		select {
		case <-ctx.Done():
			e.forcefulShutdown()
			e.exitCode = 1
			break runLoop

		case sig := <-sigCh:
			switch sig.Name {
			case "SIGINT":
				log.Info().Msg("SIGINT received, starting graceful shutdown")
				e.exitCode = e.gracefulShutdown(ctx)
			case "SIGTERM":
				log.Info().Msg("SIGTERM received, killing all RUN children")
				e.forcefulShutdown()
				e.exitCode = 0
			}
			break runLoop

		case ev := <-exitCh:
			if !e.handleUnexpectedExit(ctx, ev) {
				e.exitCode = e.failureShutdown(ctx)
				break runLoop
			}

		case due := <-checkCh:
			if !e.handleCheckDue(ctx, due) {
				e.exitCode = e.failureShutdown(ctx)
				break runLoop
			}
		}
	}

	e.finish()
	return e.exitCode
}

func (e *Engine) finish() {
	e.phase = PhaseExited
	_ = status.Write(e.cohort.StatusFilePath, status.Exited)
	e.writeSnapshot()
}

func (e *Engine) actorByName(name string) *actor.Actor {
	for _, a := range e.actors {
		if a.Spec.Name == name {
			return a
		}
	}
	return nil
}

// startupPhase drives every actor, in declared order, through
// Start/WaitStarted/Check. Any failure aborts the whole cohort (spec.md
// section 4.5: start-up failures are never retried).
func (e *Engine) startupPhase(ctx context.Context) bool {
	for _, a := range e.actors {
		if err := a.Start(); err != nil {
			log.Error().Err(err).Str("service", a.Spec.Name).Msg("failed to start service")
			return false
		}
		if err := a.WaitStarted(ctx); err != nil {
			log.Error().Err(err).Str("service", a.Spec.Name).Msg("wait_started failed")
			return false
		}
		if err := a.Check(ctx); err != nil {
			log.Error().Err(err).Str("service", a.Spec.Name).Msg("initial check failed")
			return false
		}
		e.writeSnapshot()
	}
	return true
}

// shutdownPhase tears the cohort down in two reverse-order passes: every
// still-live actor is asked to Shutdown first — including one that is
// Failed with a RUN child still running, e.g. after a WAIT_STARTED/CHECK
// timeout — then every actor that ever spawned a RUN child (whether or
// not it is still live) gets its Cleanup (spec.md section 4.5: "their
// CLEANUP is still invoked if and only if their RUN had been spawned").
func (e *Engine) shutdownPhase(ctx context.Context) int {
	exitCode := 0

	for i := len(e.actors) - 1; i >= 0; i-- {
		a := e.actors[i]
		switch a.Lifecycle() {
		case actor.Running, actor.Starting, actor.Failed:
			if err := a.Shutdown(ctx); err != nil {
				log.Warn().Err(err).Str("service", a.Spec.Name).Msg("shutdown hook failed")
				exitCode = 1
			}
		}
	}

	for i := len(e.actors) - 1; i >= 0; i-- {
		a := e.actors[i]
		if !a.EverSpawned() || a.Lifecycle() == actor.CleanedUp {
			continue
		}
		if err := a.Cleanup(ctx); err != nil {
			log.Warn().Err(err).Str("service", a.Spec.Name).Msg("cleanup hook failed")
			exitCode = 1
		}
	}

	return exitCode
}

// forcefulShutdown is the SIGTERM fast path (spec.md section 4.4):
// SIGKILL every live RUN child in reverse order, skipping SHUTDOWN and
// CLEANUP entirely.
func (e *Engine) forcefulShutdown() {
	e.phase = PhaseShuttingDown
	for i := len(e.actors) - 1; i >= 0; i-- {
		if a := e.actors[i]; a.RunPID() != 0 {
			a.KillHard()
		}
	}
}

func (e *Engine) gracefulShutdown(ctx context.Context) int {
	e.phase = PhaseShuttingDown
	return e.shutdownPhase(ctx)
}

// failureShutdown runs the cohort-level FAILURE hook (best effort) before
// tearing down normally, and always reports a non-zero exit code.
func (e *Engine) failureShutdown(ctx context.Context) int {
	e.phase = PhaseShuttingDown
	if e.cohort.OnFailure != "" {
		if err := e.invokeCohortHook(ctx, specs.ActionFailure, e.cohort.OnFailure, e.cohort.OnFailureTimeout); err != nil {
			log.Error().Err(err).Msg("failure hook errored")
		}
	}
	e.shutdownPhase(ctx)
	return 1
}

// attemptRestart gates a targeted restart of a on the shared token
// bucket (spec.md section 4.3), then best-effort tears a down and brings
// it back up through the full Start/WaitStarted/Check sequence. A denied
// token or any failed step returns false, which the caller treats as
// cohort-fatal.
func (e *Engine) attemptRestart(ctx context.Context, a *actor.Actor, reason string) bool {
	if !e.bucket.Take() {
		log.Error().Str("service", a.Spec.Name).Str("reason", reason).Msg("restart budget exhausted")
		return false
	}

	e.restartCount[a.Spec.Name]++
	log.Warn().Str("service", a.Spec.Name).Str("reason", reason).
		Int("attempt", e.restartCount[a.Spec.Name]).Msg("restarting service")

	if e.cohort.OnRestart != "" {
		if err := e.invokeCohortHook(ctx, specs.ActionRestart, e.cohort.OnRestart, e.cohort.OnRestartTimeout); err != nil {
			log.Warn().Err(err).Msg("restart hook failed, continuing anyway")
		}
	}

	if l := a.Lifecycle(); l == actor.Running || l == actor.Starting {
		_ = a.Shutdown(ctx)
	}
	if a.EverSpawned() && a.Lifecycle() != actor.CleanedUp {
		_ = a.Cleanup(ctx)
	}
	a.ResetForRestart()

	if err := a.Start(); err != nil {
		log.Error().Err(err).Str("service", a.Spec.Name).Msg("restart: start failed")
		return false
	}
	e.watchExit(e.runCtx, a)

	if err := a.WaitStarted(ctx); err != nil {
		log.Error().Err(err).Str("service", a.Spec.Name).Msg("restart: wait_started failed")
		return false
	}
	if err := a.Check(ctx); err != nil {
		log.Error().Err(err).Str("service", a.Spec.Name).Msg("restart: check failed")
		return false
	}

	e.writeSnapshot()
	return true
}

// handleUnexpectedExit reacts to a RUN child exiting without having been
// asked to. It is a no-op for events that raced a deliberate teardown
// already in progress for that actor.
func (e *Engine) handleUnexpectedExit(ctx context.Context, ev bus.ChildExitEvent) bool {
	a := e.actorByName(ev.Service)
	if a == nil {
		return true
	}
	if l := a.Lifecycle(); l != actor.Running && l != actor.Starting {
		return true
	}
	err := a.Check(ctx) // expected to fail and transition the actor to Failed
	return e.restartOrFail(ctx, a, err, "unexpected RUN exit")
}

// handleCheckDue runs a scheduled CHECK and restarts the service on
// failure.
func (e *Engine) handleCheckDue(ctx context.Context, due bus.CheckDueEvent) bool {
	a := e.actorByName(due.Service)
	if a == nil || a.Lifecycle() != actor.Running {
		return true
	}
	if err := a.Check(ctx); err != nil {
		log.Warn().Err(err).Str("service", a.Spec.Name).Msg("scheduled check failed")
		return e.restartOrFail(ctx, a, err, "check failed")
	}
	e.writeSnapshot()
	return true
}

// restartOrFail consults orderlyerr.Recoverable before handing a failed
// Check off to attemptRestart: a Kind the engine's error design marks
// unrecoverable (e.g. a restart's own re-Start failing with
// KindSpawnFailure surfacing here some other way) is treated the same as
// a denied restart token, cohort-fatal rather than retried.
func (e *Engine) restartOrFail(ctx context.Context, a *actor.Actor, checkErr error, reason string) bool {
	if kind, ok := orderlyerr.KindOf(checkErr); ok && !orderlyerr.Recoverable(kind) {
		log.Error().Str("service", a.Spec.Name).Str("kind", string(kind)).Str("reason", reason).
			Msg("failure kind is not restart-recoverable")
		return false
	}
	return e.attemptRestart(ctx, a, reason)
}

// watchExit spawns a one-shot goroutine per RUN-child incarnation that
// republishes a.Done() onto the bus as a ChildExitEvent, so the engine's
// select loop (not a second Wait() caller) learns of the exit.
func (e *Engine) watchExit(ctx context.Context, a *actor.Actor) {
	done := a.Done()
	if done == nil {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-done:
		}
		e.writeExitInfo(a)
		e.publish(bus.TopicChildExit, bus.EventChildExited, bus.ChildExitEvent{
			Service: a.Spec.Name,
			PID:     a.RunPID(),
		})
	}()
}

// startCheckTimer runs a per-actor ticker at the service's (or cohort
// default) CheckDelay, publishing a CheckDueEvent whenever the actor is
// currently Running. It never calls Check itself, keeping every CHECK
// invocation on the engine's single select loop.
func (e *Engine) startCheckTimer(ctx context.Context, a *actor.Actor) {
	interval := a.Spec.CheckDelay
	if interval <= 0 {
		interval = e.cohort.CheckDelay
	}
	if interval <= 0 {
		interval = specs.DefaultCheckDelay
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if a.Lifecycle() != actor.Running {
					continue
				}
				e.publish(bus.TopicCheckTimer, bus.EventCheckDue, bus.CheckDueEvent{Service: a.Spec.Name})
			}
		}
	}()
}

func (e *Engine) invokeCohortHook(ctx context.Context, action specs.Action, cmdline string, timeout time.Duration) error {
	return e.inv.Invoke(ctx, "", action, cmdline, hook.CohortEnv(action), timeout, hook.Streams{})
}

// writeExitInfo records why a's RUN child went away, for `orderly
// status` to show once the service is no longer live. No-op when no
// log directory was configured.
func (e *Engine) writeExitInfo(a *actor.Actor) {
	if e.cohort.LogDir == "" {
		return
	}
	info := diag.ExitInfo{
		Service:   a.Spec.Name,
		PID:       a.RunPID(),
		StartedAt: a.RunStartedAt(),
		ExitedAt:  time.Now(),
	}
	if err := a.ExitErr(); err != nil {
		info.Error = err.Error()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			info.ExitCode = &code
			if code < 0 {
				if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
					info.Signal = ws.Signal().String()
				}
			}
		}
	} else {
		zero := 0
		info.ExitCode = &zero
	}
	if tail, err := diag.TailLines(diag.LogPath(e.cohort.LogDir, a.Spec.Name), 20, 0); err == nil {
		info.LogTail = tail
	}
	path := diag.ExitInfoPath(e.cohort.LogDir, a.Spec.Name)
	if err := diag.WriteExitInfo(path, info); err != nil {
		log.Warn().Err(err).Str("service", a.Spec.Name).Msg("failed to write exit info")
	}
}

func (e *Engine) writeSnapshot() {
	snapPath := status.SnapshotPath(e.cohort.StatusFilePath)
	if snapPath == "" {
		return
	}
	snap := status.Snapshot{
		Phase:        string(e.phase),
		UpdatedAt:    time.Now(),
		RestartToken: e.bucket.Tokens(),
	}
	livePIDs := make([]int, 0, len(e.actors))
	for _, a := range e.actors {
		if pid := a.RunPID(); pid != 0 {
			livePIDs = append(livePIDs, pid)
		}
	}
	sampled := diag.ReadAllStats(livePIDs, e.cpuTracker)
	for _, a := range e.actors {
		pid := a.RunPID()
		svcSnap := status.ServiceSnapshot{
			Name:      a.Spec.Name,
			Lifecycle: string(a.Lifecycle()),
			PID:       pid,
			Restarts:  e.restartCount[a.Spec.Name],
		}
		if stats, ok := sampled[pid]; ok {
			svcSnap.CPUPercent = stats.CPUPercent
			svcSnap.MemoryMB = stats.MemoryMB
		}
		snap.Services = append(snap.Services, svcSnap)
	}
	e.cpuTracker.CleanupStale(livePIDs)
	if err := status.WriteSnapshot(snapPath, snap); err != nil {
		log.Warn().Err(err).Msg("failed to write status snapshot")
	}
}

// publish wraps payload in an Envelope and puts it on the bus under
// topic, tagged eventType. Mirrors pkg/sigrouter's publish helper.
func (e *Engine) publish(topic, eventType string, payload any) {
	env, err := bus.NewEnvelope(eventType, payload)
	if err != nil {
		log.Error().Err(err).Msg("build event envelope")
		return
	}
	b, err := env.MarshalJSONBytes()
	if err != nil {
		log.Error().Err(err).Msg("marshal event envelope")
		return
	}
	if err := e.b.Publisher.Publish(topic, message.NewMessage(watermill.NewULID(), b)); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("publish event")
	}
}

// subscribeEnvelope wires topic to a bus handler that unmarshals each
// message's Envelope.Payload into a T and forwards it to ch. A full
// channel drops the event rather than blocking the bus's dispatch
// goroutine; the engine's channels are sized generously enough that this
// should never happen in practice.
func subscribeEnvelope[T any](b *bus.Bus, topic string, ch chan T) {
	b.AddHandler(fmt.Sprintf("engine-%s", topic), topic, func(m *message.Message) error {
		var env bus.Envelope
		if err := json.Unmarshal(m.Payload, &env); err != nil {
			m.Ack()
			return nil
		}
		var payload T
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				m.Ack()
				return nil
			}
		}
		select {
		case ch <- payload:
		default:
		}
		m.Ack()
		return nil
	})
}
