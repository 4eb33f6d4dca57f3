// Package specs holds the in-memory configuration model the supervision
// engine consumes: ServiceSpec and CohortSpec. Both are immutable once
// built, matching spec section 3's "ServiceSpec — immutable after parse".
package specs

import (
	"time"

	"github.com/pkg/errors"
)

// Action identifies one of the lifecycle hooks a ServiceSpec can declare,
// or one of the cohort-level hooks a CohortSpec can declare.
type Action string

const (
	ActionRun           Action = "RUN"
	ActionWaitStarted   Action = "WAIT_STARTED"
	ActionCheck         Action = "CHECK"
	ActionShutdown      Action = "SHUTDOWN"
	ActionCleanup       Action = "CLEANUP"
	ActionRestart       Action = "RESTART"
	ActionFailure       Action = "FAILURE"
	ActionStartComplete Action = "START_COMPLETE"
)

// ServiceSpec is one cohort member's configuration. Declaration order
// (its index within CohortSpec.Services) is both its start-up order and,
// reversed, its shutdown order.
type ServiceSpec struct {
	Name string

	Run         string
	WaitStarted string
	Check       string
	Shutdown    string
	Cleanup     string

	WaitStartedTimeout time.Duration // 0 means "no timeout"
	CheckTimeout       time.Duration
	ShutdownTimeout    time.Duration
	CleanupTimeout     time.Duration

	// TerminateTimeout bounds how long kill_hard waits after SIGTERM to
	// the RUN process group before escalating to SIGKILL. Zero means
	// immediate SIGKILL, matching spec section 4.2's literal wording;
	// original_source/src/specs.rs calls this terminate_timeout_seconds.
	TerminateTimeout time.Duration

	// CheckDelay overrides the supervisor-level default interval between
	// consecutive successful CHECKs for this service. Zero means "use the
	// cohort default".
	CheckDelay time.Duration
}

// CohortSpec is the supervisor-level configuration: the declared order of
// services plus cohort-wide policy knobs.
type CohortSpec struct {
	Services []ServiceSpec

	MaxRestartTokens       float64
	RestartTokensPerSecond float64
	CheckDelay             time.Duration
	StatusFilePath         string

	// LogDir, if set, redirects each hook invocation's stdout/stderr to a
	// file under this directory instead of inheriting orderly's own
	// (supplemented feature, see SPEC_FULL.md section 9).
	LogDir string

	// Cohort-level lifecycle hooks, supplemented from original_source's
	// main.rs (dropped from spec.md's distillation, reinstated per
	// SPEC_FULL.md section 9).
	OnRestart              string
	OnRestartTimeout       time.Duration
	OnFailure              string
	OnFailureTimeout       time.Duration
	OnStartComplete        string
	OnStartCompleteTimeout time.Duration
}

// DefaultMaxRestartTokens and DefaultRestartTokensPerSecond mirror spec
// section 4.3's documented defaults.
const (
	DefaultMaxRestartTokens       = 5.0
	DefaultRestartTokensPerSecond = 0.1
	// DefaultCheckDelay is this implementation's choice for spec section
	// 9's "implementers should pick a sensible positive default" note.
	DefaultCheckDelay = 5 * time.Second
)

// Validate checks the invariants spec section 3 requires of a CohortSpec
// before it is handed to the engine: non-empty, unique service names, at
// least one service, and a required RUN command per service.
func (c CohortSpec) Validate() error {
	if len(c.Services) == 0 {
		return errors.New("cohort must declare at least one service")
	}
	seen := make(map[string]struct{}, len(c.Services))
	for _, svc := range c.Services {
		if svc.Name == "" {
			return errors.New("service name is required")
		}
		if _, dup := seen[svc.Name]; dup {
			return errors.Errorf("duplicate service name %q", svc.Name)
		}
		seen[svc.Name] = struct{}{}
		if svc.Run == "" {
			return errors.Errorf("service %q missing required run command", svc.Name)
		}
	}
	if c.MaxRestartTokens < 0 {
		return errors.New("max restart tokens must be >= 0")
	}
	if c.RestartTokensPerSecond < 0 {
		return errors.New("restart tokens per second must be >= 0")
	}
	return nil
}

// WithDefaults returns a copy of c with zero-valued policy knobs and
// per-service check delays filled in from the documented defaults. Used
// by the YAML manifest loader, where an omitted field and an explicit
// zero are indistinguishable so zero-means-unset is the only option.
//
// pkg/cliparse calls this only for a -manifest cohort. Its
// '-- <service-spec>' path does not: its flags already default to these
// same constants at the flag.FlagSet level (so an absent flag behaves
// identically to this method), which lets it preserve an explicitly
// passed "-max-restart-tokens 0" or "-restart-tokens-per-second 0"
// instead of silently overwriting it back to the default the way a
// second zero-means-unset pass through WithDefaults would. It calls
// WithServiceCheckDelays directly instead.
func (c CohortSpec) WithDefaults() CohortSpec {
	out := c
	if out.MaxRestartTokens == 0 {
		out.MaxRestartTokens = DefaultMaxRestartTokens
	}
	if out.RestartTokensPerSecond == 0 {
		out.RestartTokensPerSecond = DefaultRestartTokensPerSecond
	}
	if out.CheckDelay == 0 {
		out.CheckDelay = DefaultCheckDelay
	}
	return out.WithServiceCheckDelays()
}

// WithServiceCheckDelays returns a copy of c with each service's
// CheckDelay filled in from the cohort default wherever it was left
// zero — ServiceSpec.CheckDelay's documented meaning for that field,
// independent of whether the cohort-level knobs above were defaulted.
func (c CohortSpec) WithServiceCheckDelays() CohortSpec {
	out := c
	services := make([]ServiceSpec, len(out.Services))
	for i, svc := range out.Services {
		if svc.CheckDelay == 0 {
			svc.CheckDelay = out.CheckDelay
		}
		services[i] = svc
	}
	out.Services = services
	return out
}
