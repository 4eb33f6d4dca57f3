package cliparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/orderly/pkg/specs"
)

func TestParseSingleService(t *testing.T) {
	cohort, err := Parse([]string{
		"-status-file", "/tmp/orderly.status",
		"--", "-name", "web", "-run", "serve.sh", "-check", "curl -f localhost",
	})
	require.NoError(t, err)
	require.Len(t, cohort.Services, 1)

	svc := cohort.Services[0]
	assert.Equal(t, "web", svc.Name)
	assert.Equal(t, "serve.sh", svc.Run)
	assert.Equal(t, "curl -f localhost", svc.Check)
	assert.Equal(t, "/tmp/orderly.status", cohort.StatusFilePath)
	assert.Equal(t, specs.DefaultMaxRestartTokens, cohort.MaxRestartTokens)
}

// TestParseDocumentedInvocationExactly is the exact form spec.md section 6
// documents: single-dash long flags on both sides of the "--" boundary,
// including a multi-character flag name ("-status-file") that a
// getopt-style parser would otherwise misread as a cluster of shorthands.
func TestParseDocumentedInvocationExactly(t *testing.T) {
	cohort, err := Parse([]string{
		"-status-file", "x", "--", "-name", "web", "-run", "s.sh",
	})
	require.NoError(t, err)
	assert.Equal(t, "x", cohort.StatusFilePath)
	require.Len(t, cohort.Services, 1)
	assert.Equal(t, "web", cohort.Services[0].Name)
	assert.Equal(t, "s.sh", cohort.Services[0].Run)
}

func TestParseMultipleServicesPreserveOrder(t *testing.T) {
	cohort, err := Parse([]string{
		"--", "-name", "db", "-run", "db.sh",
		"--", "-name", "web", "-run", "web.sh",
	})
	require.NoError(t, err)
	require.Len(t, cohort.Services, 2)
	assert.Equal(t, "db", cohort.Services[0].Name)
	assert.Equal(t, "web", cohort.Services[1].Name)
}

func TestParseAllCommandsFansOutToEveryAction(t *testing.T) {
	cohort, err := Parse([]string{
		"--", "-name", "web", "-all-commands", "ctl.sh",
	})
	require.NoError(t, err)
	svc := cohort.Services[0]
	assert.Equal(t, "ctl.sh", svc.Run)
	assert.Equal(t, "ctl.sh", svc.WaitStarted)
	assert.Equal(t, "ctl.sh", svc.Check)
	assert.Equal(t, "ctl.sh", svc.Shutdown)
	assert.Equal(t, "ctl.sh", svc.Cleanup)
}

func TestParseExplicitActionOverridesAllCommands(t *testing.T) {
	cohort, err := Parse([]string{
		"--", "-name", "web", "-all-commands", "ctl.sh", "-check", "health.sh",
	})
	require.NoError(t, err)
	assert.Equal(t, "health.sh", cohort.Services[0].Check)
	assert.Equal(t, "ctl.sh", cohort.Services[0].Run)
}

func TestParseMissingRunIsError(t *testing.T) {
	_, err := Parse([]string{"--", "-name", "web"})
	assert.Error(t, err)
}

func TestParseNoServiceGroupsIsError(t *testing.T) {
	_, err := Parse([]string{"-status-file", "/tmp/x"})
	assert.Error(t, err)
}

func TestParseTimeoutsConvertSecondsToDuration(t *testing.T) {
	cohort, err := Parse([]string{
		"--", "-name", "web", "-run", "serve.sh", "-check-timeout", "2.5",
	})
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, cohort.Services[0].CheckTimeout)
}

func TestParseTerminateTimeoutConvertsSecondsToDuration(t *testing.T) {
	cohort, err := Parse([]string{
		"--", "-name", "web", "-run", "serve.sh", "-terminate-timeout", "3",
	})
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cohort.Services[0].TerminateTimeout)
}

// TestParseExplicitZeroRestartTokensIsPreserved is S6's "no refill"/"zero
// capacity" configuration: an explicit 0 must survive, not be conflated
// with an omitted flag and rewritten back to the documented default.
func TestParseExplicitZeroRestartTokensIsPreserved(t *testing.T) {
	cohort, err := Parse([]string{
		"-max-restart-tokens", "0", "-restart-tokens-per-second", "0",
		"--", "-name", "web", "-run", "serve.sh",
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, cohort.MaxRestartTokens)
	assert.Equal(t, 0.0, cohort.RestartTokensPerSecond)
}

func TestParseOmittedRestartTokenFlagsUseDefaults(t *testing.T) {
	cohort, err := Parse([]string{
		"--", "-name", "web", "-run", "serve.sh",
	})
	require.NoError(t, err)
	assert.Equal(t, specs.DefaultMaxRestartTokens, cohort.MaxRestartTokens)
	assert.Equal(t, specs.DefaultRestartTokensPerSecond, cohort.RestartTokensPerSecond)
}

func TestParseManifestRejectsServiceGroups(t *testing.T) {
	_, err := Parse([]string{"-manifest", "/tmp/cohort.yaml", "--", "-name", "web", "-run", "x"})
	assert.Error(t, err)
}

// TestParseDoubleDashLongFlagsStillAccepted confirms stdlib flag's
// leniency: operators used to GNU-style "--name" (as older drafts of this
// tool, and many other CLIs, document) aren't broken by the switch to
// spec.md's single-dash grammar.
func TestParseDoubleDashLongFlagsStillAccepted(t *testing.T) {
	cohort, err := Parse([]string{
		"--", "--name", "web", "--run", "serve.sh",
	})
	require.NoError(t, err)
	assert.Equal(t, "web", cohort.Services[0].Name)
}
