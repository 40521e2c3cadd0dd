package execpolicy

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnrelay/engine/internal/tools"
)

// writePredicate creates an executable predicate script that prints the
// given stdout and exits with the given code.
func writePredicate(t *testing.T, dir, name, stdout string, exitCode int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\nprintf '%s' '" + stdout + "'\nexit " + strconv.Itoa(exitCode) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

// recordingPredicate creates a predicate script that appends its argv[1]
// to a log file before answering, so tests can see what it was asked.
func recordingPredicate(t *testing.T, dir, name, answer, logFile string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\necho \"$1\" >> " + logFile + "\necho " + answer + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestPredicateSet_AllowShortCircuits(t *testing.T) {
	dir := t.TempDir()
	first := writePredicate(t, dir, "first", "allow", 0)
	logFile := filepath.Join(dir, "second.log")
	second := recordingPredicate(t, dir, "second", "deny", logFile)

	set := NewPredicateSet([]string{first, second})
	verdict := set.Consult(context.Background(), []string{"rm", "-rf", "/tmp/x"})

	assert.Equal(t, VerdictAllow, verdict)
	// The second predicate must not have been consulted.
	assert.NoFileExists(t, logFile)
}

func TestPredicateSet_DenyShortCircuits(t *testing.T) {
	dir := t.TempDir()
	first := writePredicate(t, dir, "first", "deny", 0)

	set := NewPredicateSet([]string{first})
	verdict := set.Consult(context.Background(), []string{"ls"})

	assert.Equal(t, VerdictDeny, verdict)
}

func TestPredicateSet_CommandJoinedWithSpaces(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "asked.log")
	program := recordingPredicate(t, dir, "pred", "no-opinion", logFile)

	set := NewPredicateSet([]string{program})
	verdict := set.Consult(context.Background(), []string{"git", "status", "--short"})

	assert.Equal(t, VerdictNoOpinion, verdict)
	asked, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, "git status --short\n", string(asked))
}

func TestPredicateSet_ErrorsAndUnknownOutputAreNoOpinion(t *testing.T) {
	dir := t.TempDir()
	failing := writePredicate(t, dir, "failing", "deny", 1)   // nonzero exit: ignored
	gibberish := writePredicate(t, dir, "gibberish", "maybe", 0)
	missing := filepath.Join(dir, "does-not-exist")

	set := NewPredicateSet([]string{failing, gibberish, missing})
	verdict := set.Consult(context.Background(), []string{"ls"})

	assert.Equal(t, VerdictNoOpinion, verdict)
}

func TestPredicateSet_NoOpinionFallsThroughToNextPredicate(t *testing.T) {
	dir := t.TempDir()
	neutral := writePredicate(t, dir, "neutral", "no-opinion", 0)
	denier := writePredicate(t, dir, "denier", "deny", 0)

	set := NewPredicateSet([]string{neutral, denier})
	verdict := set.Consult(context.Background(), []string{"ls"})

	assert.Equal(t, VerdictDeny, verdict)
}

func TestPredicateSet_EmptySetHasNoOpinion(t *testing.T) {
	assert.Equal(t, VerdictNoOpinion, NewPredicateSet(nil).Consult(context.Background(), []string{"ls"}))

	var nilSet *PredicateSet
	assert.True(t, nilSet.Empty())
}

func TestManager_PredicateDenyOverridesPolicy(t *testing.T) {
	dir := t.TempDir()
	denier := writePredicate(t, dir, "denier", "deny", 0)

	manager := NewExecPolicyManager(NewPolicy())
	manager.SetPredicates(NewPredicateSet([]string{denier}))

	// "never" mode would normally auto-approve everything.
	requirement := manager.EvaluateCommand([]string{"ls"}, "never")
	assert.Equal(t, tools.ApprovalForbidden, requirement)

	eval := manager.GetEvaluation([]string{"ls"}, "never")
	assert.Equal(t, DecisionForbidden, eval.Decision)
	assert.Equal(t, "denied by user predicate", eval.Justification)
}

func TestManager_PredicateAllowSkipsApproval(t *testing.T) {
	dir := t.TempDir()
	allower := writePredicate(t, dir, "allower", "allow", 0)

	manager := NewExecPolicyManager(NewPolicy())
	manager.SetPredicates(NewPredicateSet([]string{allower}))

	// "unless-trusted" would normally prompt for an unknown command.
	requirement := manager.EvaluateCommand([]string{"./custom-build.sh"}, "unless-trusted")
	assert.Equal(t, tools.ApprovalSkip, requirement)
}

func TestVerdict_String(t *testing.T) {
	assert.Equal(t, "allow", VerdictAllow.String())
	assert.Equal(t, "deny", VerdictDeny.String())
	assert.Equal(t, "no-opinion", VerdictNoOpinion.String())
}
