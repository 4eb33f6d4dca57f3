// Package cliparse implements the minimal -- boundary argument splitter
// and flag grammar described in spec.md section 6. spec.md treats this as
// an external collaborator the engine merely consumes; SPEC_FULL.md
// section 6 brings it in-repo since a working binary needs one. The
// grammar and flag names follow spec.md's table exactly, including its
// single-dash spelling (-name, -run, -status-file, ...) matching
// original_source/src/main.rs's own arg_idx loop; stdlib flag is used
// instead of pflag because pflag's getopt-style shorthand clustering
// rejects single-dash long flags ("-status-file" parses as shorthands
// -s,-t,-a,...) and would make the documented invocation unusable.
package cliparse

import (
	"flag"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/orderly/pkg/specs"
)

// splitGroups splits args on literal "--" tokens into a leading
// supervisor-flag group and one or more trailing service-spec groups,
// matching "orderly <supervisor-flags>... -- <service-spec> [ -- <service-spec> ]...".
func splitGroups(args []string) (supervisorArgs []string, serviceGroups [][]string) {
	groups := [][]string{{}}
	for _, a := range args {
		if a == "--" {
			groups = append(groups, []string{})
			continue
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], a)
	}
	supervisorArgs = groups[0]
	serviceGroups = groups[1:]
	return
}

// Parse turns a raw argv (excluding the program name) into a validated
// CohortSpec, following spec.md section 6's flag table. SPEC_FULL.md
// section 9 adds -manifest as an alternative to the repeated "--
// <service-spec>" groups, for cohorts too large to comfortably spell out
// on one command line.
func Parse(args []string) (specs.CohortSpec, error) {
	supervisorArgs, serviceGroups := splitGroups(args)

	manifestPath, rest := extractManifestFlag(supervisorArgs)
	if manifestPath != "" {
		if len(serviceGroups) > 0 {
			return specs.CohortSpec{}, errors.New("-manifest cannot be combined with '-- <service-spec>' groups")
		}
		cohort, err := specs.LoadManifest(manifestPath)
		if err != nil {
			return specs.CohortSpec{}, err
		}
		cohort = cohort.WithDefaults()
		if err := cohort.Validate(); err != nil {
			return specs.CohortSpec{}, err
		}
		return cohort, nil
	}

	cohort, err := parseSupervisorFlags(rest)
	if err != nil {
		return specs.CohortSpec{}, err
	}

	if len(serviceGroups) == 0 {
		return specs.CohortSpec{}, errors.New("no service groups declared (expected at least one '-- <service-spec>')")
	}

	for i, g := range serviceGroups {
		if len(g) == 0 {
			continue // trailing "--" with nothing after it
		}
		svc, err := parseServiceGroup(g)
		if err != nil {
			return specs.CohortSpec{}, errors.Wrapf(err, "service group %d", i)
		}
		cohort.Services = append(cohort.Services, svc)
	}

	// cohort-level knobs are already final: parseSupervisorFlags' flags
	// default to the same constants CohortSpec.WithDefaults() would apply,
	// so calling WithDefaults() here would indistinguishably stomp an
	// explicit "-max-restart-tokens 0"/"-restart-tokens-per-second 0"/
	// "-check-delay 0" back to the default. Only the per-service
	// CheckDelay propagation is still needed.
	cohort = cohort.WithServiceCheckDelays()
	if err := cohort.Validate(); err != nil {
		return specs.CohortSpec{}, err
	}
	return cohort, nil
}

// extractManifestFlag pulls a leading "-manifest PATH" or "-manifest=PATH"
// (long form "--manifest" accepted too) out of args, returning the path
// and the remaining args with that flag removed. A dedicated pre-scan
// rather than a flag on the supervisor FlagSet because -manifest
// short-circuits the rest of the supervisor flag grammar entirely.
func extractManifestFlag(args []string) (path string, rest []string) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-manifest" || a == "--manifest":
			if i+1 < len(args) {
				path = args[i+1]
				rest = append(rest, args[:i]...)
				rest = append(rest, args[i+2:]...)
				return path, rest
			}
		case strings.HasPrefix(a, "-manifest=") || strings.HasPrefix(a, "--manifest="):
			eq := strings.IndexByte(a, '=')
			path = a[eq+1:]
			rest = append(rest, args[:i]...)
			rest = append(rest, args[i+1:]...)
			return path, rest
		}
	}
	return "", args
}

func secDuration(f float64) time.Duration {
	if f <= 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

func parseSupervisorFlags(args []string) (specs.CohortSpec, error) {
	fs := flag.NewFlagSet("orderly", flag.ContinueOnError)

	maxTokens := fs.Float64("max-restart-tokens", specs.DefaultMaxRestartTokens, "token-bucket capacity")
	tokensPerSec := fs.Float64("restart-tokens-per-second", specs.DefaultRestartTokensPerSecond, "token refill rate")
	checkDelay := fs.Float64("check-delay", specs.DefaultCheckDelay.Seconds(), "default interval between CHECKs, seconds")
	statusFile := fs.String("status-file", "", "atomic status file location")
	logDir := fs.String("log-dir", "", "redirect hook stdout/stderr under this directory (supplemented feature)")
	onRestart := fs.String("on-restart", "", "cohort-level hook run before a non-initial restart")
	onRestartTimeout := fs.Float64("on-restart-timeout", 0, "seconds")
	onFailure := fs.String("on-failure", "", "cohort-level hook run on unrecoverable shutdown")
	onFailureTimeout := fs.Float64("on-failure-timeout", 0, "seconds")
	startComplete := fs.String("start-complete", "", "cohort-level hook run once after first successful start")
	startCompleteTimeout := fs.Float64("start-complete-timeout", 0, "seconds")
	allCommands := fs.String("all-commands", "", "one script for every cohort-level action, dispatched via ORDERLY_ACTION")

	if err := fs.Parse(args); err != nil {
		return specs.CohortSpec{}, errors.Wrap(err, "parse supervisor flags")
	}

	cohort := specs.CohortSpec{
		MaxRestartTokens:       *maxTokens,
		RestartTokensPerSecond: *tokensPerSec,
		CheckDelay:             secDuration(*checkDelay),
		StatusFilePath:         *statusFile,
		LogDir:                 *logDir,
		OnRestart:              *onRestart,
		OnRestartTimeout:       secDuration(*onRestartTimeout),
		OnFailure:              *onFailure,
		OnFailureTimeout:       secDuration(*onFailureTimeout),
		OnStartComplete:        *startComplete,
		OnStartCompleteTimeout: secDuration(*startCompleteTimeout),
	}
	if *allCommands != "" {
		cohort.OnRestart = *allCommands
		cohort.OnFailure = *allCommands
		cohort.OnStartComplete = *allCommands
	}
	return cohort, nil
}

func parseServiceGroup(args []string) (specs.ServiceSpec, error) {
	fs := flag.NewFlagSet("orderly-service", flag.ContinueOnError)

	name := fs.String("name", "", "required service name")
	allCommands := fs.String("all-commands", "", "one script handling every action for this service")
	run := fs.String("run", "", "RUN command")
	waitStarted := fs.String("wait-started", "", "WAIT_STARTED command")
	check := fs.String("check", "", "CHECK command")
	shutdown := fs.String("shutdown", "", "SHUTDOWN command")
	cleanup := fs.String("cleanup", "", "CLEANUP command")
	waitStartedTimeout := fs.Float64("wait-started-timeout", 0, "seconds")
	checkTimeout := fs.Float64("check-timeout", 0, "seconds")
	shutdownTimeout := fs.Float64("shutdown-timeout", 0, "seconds")
	cleanupTimeout := fs.Float64("cleanup-timeout", 0, "seconds")
	terminateTimeout := fs.Float64("terminate-timeout", 0, "seconds")
	checkDelay := fs.Float64("check-delay", 0, "seconds, overrides supervisor default for this service")

	if err := fs.Parse(args); err != nil {
		return specs.ServiceSpec{}, errors.Wrap(err, "parse service flags")
	}
	if *name == "" {
		return specs.ServiceSpec{}, errors.New("service spec missing required field 'name'")
	}

	svc := specs.ServiceSpec{
		Name:               *name,
		Run:                *allCommands,
		WaitStarted:        *allCommands,
		Check:              *allCommands,
		Shutdown:           *allCommands,
		Cleanup:            *allCommands,
		WaitStartedTimeout: secDuration(*waitStartedTimeout),
		CheckTimeout:       secDuration(*checkTimeout),
		ShutdownTimeout:    secDuration(*shutdownTimeout),
		CleanupTimeout:     secDuration(*cleanupTimeout),
		TerminateTimeout:   secDuration(*terminateTimeout),
		CheckDelay:         secDuration(*checkDelay),
	}
	if *run != "" {
		svc.Run = *run
	}
	if *waitStarted != "" {
		svc.WaitStarted = *waitStarted
	}
	if *check != "" {
		svc.Check = *check
	}
	if *shutdown != "" {
		svc.Shutdown = *shutdown
	}
	if *cleanup != "" {
		svc.Cleanup = *cleanup
	}
	if svc.Run == "" {
		return specs.ServiceSpec{}, errors.Errorf("service %q missing required field 'run' (or 'all-commands')", svc.Name)
	}
	return svc, nil
}
