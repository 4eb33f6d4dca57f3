// Command orderly is the process supervisor described by spec.md: it
// starts a declared cohort of services in order, keeps them healthy
// with periodic CHECKs and a token-bucket-gated restart policy, and
// tears them down in reverse order on SIGINT/SIGTERM or an unrecoverable
// failure.
//
// orderly's primary invocation is not a cobra subcommand: spec.md
// section 6's grammar ("orderly <supervisor-flags> -- <service-spec>
// [-- <service-spec>]...") uses "--" as a repeated group separator,
// which does not fit cobra's single-pass flag parser. Only the
// secondary "orderly status" entry point — a normal, single-purpose
// subcommand — goes through cobra, the way the teacher wires every one
// of its non-primary entry points.
package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/orderly/pkg/cliparse"
	"github.com/go-go-golems/orderly/pkg/engine"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "status":
			runStatusCLI(os.Args[2:])
			return
		case "version", "--version":
			os.Stdout.WriteString("orderly " + version + "\n")
			return
		}
	}
	os.Exit(runSupervise(os.Args[1:]))
}

// runSupervise parses spec.md section 6's flag grammar directly off
// argv and drives the cohort to completion. It deliberately bypasses
// cobra: the grammar's repeated "-- <service-spec>" groups don't fit
// cobra's single-pass flag parser the way "orderly status"'s flags do,
// so there is no cobra.Command here for glazed's logging layer to hang
// off of. initLogger configures zerolog directly instead.
func runSupervise(args []string) int {
	initLogger()

	cohort, err := cliparse.Parse(args)
	if err != nil {
		log.Error().Err(err).Msg("invalid arguments")
		return 2
	}

	e := engine.New(cohort)
	return e.Run(context.Background())
}

// initLogger sets up zerolog the way glazed's logging layer would for a
// cobra command, minus the flag: pretty console output on stderr (always,
// whether or not stderr is a terminal), level from ORDERLY_LOG_LEVEL
// (default info).
func initLogger() {
	level := zerolog.InfoLevel
	if v := os.Getenv("ORDERLY_LOG_LEVEL"); v != "" {
		if parsed, err := zerolog.ParseLevel(v); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
}
