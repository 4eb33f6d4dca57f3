package bus

// Topics the Supervision Engine subscribes to. Every event the engine's
// select loop (spec.md section 4.5) reacts to — a signal, a due CHECK
// timer, a reaped child — is published on exactly one of these.
const (
	TopicSignals    = "orderly.signals"
	TopicCheckTimer = "orderly.check_timer"
	TopicChildExit  = "orderly.child_exit"
)

// Event type tags carried in Envelope.Type for messages on the topics
// above.
const (
	EventSignalInterrupt = "signal.interrupt" // SIGINT: graceful shutdown
	EventSignalTerminate = "signal.terminate" // SIGTERM: immediate kill_hard

	EventCheckDue = "check.due" // a service's CHECK interval elapsed

	EventChildExited = "child.exited" // a RUN child's Done channel closed (see ChildExitEvent)
)

// SignalEvent is the payload for TopicSignals messages.
type SignalEvent struct {
	Name string `json:"name"` // "SIGINT" or "SIGTERM"
}

// CheckDueEvent is the payload for TopicCheckTimer messages.
type CheckDueEvent struct {
	Service string `json:"service"`
}

// ChildExitEvent is the payload for TopicChildExit messages, published
// by the Supervision Engine's per-actor exit-watcher goroutine
// (pkg/engine.watchExit) once a RUN child's exit is observed via
// pkg/actor.Actor.Done(). The Signal Router's SIGCHLD handler does not
// publish on this topic; see its own doc comment for why.
type ChildExitEvent struct {
	Service  string `json:"service,omitempty"`
	PID      int    `json:"pid"`
	ExitCode int    `json:"exit_code"`
	Signaled bool   `json:"signaled"`
}
