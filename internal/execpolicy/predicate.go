package execpolicy

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// Verdict is the outcome of consulting a single user-defined predicate
// program.
type Verdict int

const (
	// VerdictNoOpinion means the predicate did not decide either way.
	VerdictNoOpinion Verdict = iota
	// VerdictAllow means the predicate approved the command outright.
	VerdictAllow
	// VerdictDeny means the predicate rejected the command outright.
	VerdictDeny
)

// String returns the string representation of a Verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictAllow:
		return "allow"
	case VerdictDeny:
		return "deny"
	default:
		return "no-opinion"
	}
}

// predicateTimeout bounds each predicate program run. A predicate that
// hangs is treated as no-opinion rather than stalling the approval path.
const predicateTimeout = 5 * time.Second

// PredicateSet holds user-defined predicate programs consulted in order
// before the rule-based policy. Each program receives the full command
// joined by single spaces as its first argument and answers on stdout with
// "allow", "deny", or "no-opinion". The first decisive answer wins: a deny
// short-circuits to forbidden, an allow short-circuits to allowed. Program
// errors and unrecognized output count as no-opinion.
type PredicateSet struct {
	programs []string
}

// NewPredicateSet creates a PredicateSet over the given program paths.
func NewPredicateSet(programs []string) *PredicateSet {
	return &PredicateSet{programs: programs}
}

// Empty reports whether there are no predicates to consult.
func (p *PredicateSet) Empty() bool {
	return p == nil || len(p.programs) == 0
}

// Consult runs the predicates in order against cmd and returns the first
// decisive verdict, or VerdictNoOpinion when none decides.
func (p *PredicateSet) Consult(ctx context.Context, cmd []string) Verdict {
	if p.Empty() {
		return VerdictNoOpinion
	}
	joined := strings.Join(cmd, " ")
	for _, program := range p.programs {
		switch runPredicate(ctx, program, joined) {
		case VerdictAllow:
			return VerdictAllow
		case VerdictDeny:
			return VerdictDeny
		}
	}
	return VerdictNoOpinion
}

// runPredicate invokes one predicate program and parses its stdout.
func runPredicate(ctx context.Context, program, joinedCmd string) Verdict {
	runCtx, cancel := context.WithTimeout(ctx, predicateTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, program, joinedCmd)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return VerdictNoOpinion
	}

	switch strings.TrimSpace(strings.ToLower(stdout.String())) {
	case "allow":
		return VerdictAllow
	case "deny":
		return VerdictDeny
	default:
		return VerdictNoOpinion
	}
}

// SetPredicates installs user-defined predicate programs on the manager.
// Predicates are consulted before rule evaluation: a deny makes the command
// forbidden, an allow skips approval entirely, and no-opinion falls through
// to the rule-based policy.
func (m *ExecPolicyManager) SetPredicates(set *PredicateSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predicates = set
}

// consultPredicates returns the predicate verdict for cmd, or
// VerdictNoOpinion when no predicates are configured.
func (m *ExecPolicyManager) consultPredicates(cmd []string) Verdict {
	if m.predicates.Empty() {
		return VerdictNoOpinion
	}
	return m.predicates.Consult(context.Background(), cmd)
}
