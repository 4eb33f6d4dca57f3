package specs

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// manifest is the on-disk YAML shape for the optional declarative cohort
// manifest described in SPEC_FULL.md section 9, grounded on the teacher's
// pkg/config/config.go loader but reworked around orderly's service model
// instead of devctl's plugin list.
type manifest struct {
	MaxRestartTokens       float64            `yaml:"max_restart_tokens,omitempty"`
	RestartTokensPerSecond float64            `yaml:"restart_tokens_per_second,omitempty"`
	CheckDelaySeconds      float64            `yaml:"check_delay_seconds,omitempty"`
	StatusFile             string             `yaml:"status_file,omitempty"`
	LogDir                 string             `yaml:"log_dir,omitempty"`
	OnRestart              *hookDecl          `yaml:"on_restart,omitempty"`
	OnFailure              *hookDecl          `yaml:"on_failure,omitempty"`
	OnStartComplete        *hookDecl          `yaml:"on_start_complete,omitempty"`
	Services               []serviceManifest  `yaml:"services"`
}

type hookDecl struct {
	Command        string  `yaml:"command"`
	TimeoutSeconds float64 `yaml:"timeout_seconds,omitempty"`
}

type serviceManifest struct {
	Name             string    `yaml:"name"`
	AllCommands      string    `yaml:"all_commands,omitempty"`
	Run              string    `yaml:"run,omitempty"`
	WaitStarted      string    `yaml:"wait_started,omitempty"`
	Check            string    `yaml:"check,omitempty"`
	Shutdown         string    `yaml:"shutdown,omitempty"`
	Cleanup          string    `yaml:"cleanup,omitempty"`
	WaitStartedTimeoutSeconds float64 `yaml:"wait_started_timeout_seconds,omitempty"`
	CheckTimeoutSeconds       float64 `yaml:"check_timeout_seconds,omitempty"`
	ShutdownTimeoutSeconds    float64 `yaml:"shutdown_timeout_seconds,omitempty"`
	CleanupTimeoutSeconds     float64 `yaml:"cleanup_timeout_seconds,omitempty"`
	TerminateTimeoutSeconds   float64 `yaml:"terminate_timeout_seconds,omitempty"`
	CheckDelaySeconds         float64 `yaml:"check_delay_seconds,omitempty"`
}

func secs(f float64) time.Duration {
	if f <= 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

// LoadManifest parses a declarative cohort manifest from path into a
// CohortSpec. Same semantics as the repeated -- <service-spec> -- CLI
// groups: -all-commands (here all_commands) is resolved before any
// explicit per-action field can override it.
func LoadManifest(path string) (CohortSpec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return CohortSpec{}, errors.Wrap(err, "read manifest")
	}
	var m manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return CohortSpec{}, errors.Wrap(err, "parse manifest yaml")
	}

	cohort := CohortSpec{
		MaxRestartTokens:       m.MaxRestartTokens,
		RestartTokensPerSecond: m.RestartTokensPerSecond,
		CheckDelay:             secs(m.CheckDelaySeconds),
		StatusFilePath:         m.StatusFile,
		LogDir:                 m.LogDir,
	}
	if m.OnRestart != nil {
		cohort.OnRestart = m.OnRestart.Command
		cohort.OnRestartTimeout = secs(m.OnRestart.TimeoutSeconds)
	}
	if m.OnFailure != nil {
		cohort.OnFailure = m.OnFailure.Command
		cohort.OnFailureTimeout = secs(m.OnFailure.TimeoutSeconds)
	}
	if m.OnStartComplete != nil {
		cohort.OnStartComplete = m.OnStartComplete.Command
		cohort.OnStartCompleteTimeout = secs(m.OnStartComplete.TimeoutSeconds)
	}

	for _, sm := range m.Services {
		if sm.Name == "" {
			return CohortSpec{}, errors.New("manifest service missing name")
		}
		svc := ServiceSpec{
			Name:               sm.Name,
			Run:                sm.AllCommands,
			WaitStarted:        sm.AllCommands,
			Check:              sm.AllCommands,
			Shutdown:           sm.AllCommands,
			Cleanup:            sm.AllCommands,
			WaitStartedTimeout: secs(sm.WaitStartedTimeoutSeconds),
			CheckTimeout:       secs(sm.CheckTimeoutSeconds),
			ShutdownTimeout:    secs(sm.ShutdownTimeoutSeconds),
			CleanupTimeout:     secs(sm.CleanupTimeoutSeconds),
			TerminateTimeout:   secs(sm.TerminateTimeoutSeconds),
			CheckDelay:         secs(sm.CheckDelaySeconds),
		}
		if sm.Run != "" {
			svc.Run = sm.Run
		}
		if sm.WaitStarted != "" {
			svc.WaitStarted = sm.WaitStarted
		}
		if sm.Check != "" {
			svc.Check = sm.Check
		}
		if sm.Shutdown != "" {
			svc.Shutdown = sm.Shutdown
		}
		if sm.Cleanup != "" {
			svc.Cleanup = sm.Cleanup
		}
		cohort.Services = append(cohort.Services, svc)
	}

	return cohort, nil
}
