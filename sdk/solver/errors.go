package solver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lox/cfrsolve/sdk/game"
)

// Error kinds raised while traversing the game tree. Every one of them aborts
// the solve: a regret table that saw corrupted input cannot be repaired.
var (
	// ErrMalformedGameModel reports a game that answered a query with an
	// impossible value: an empty action set, a non-finite utility or a broken
	// chance distribution.
	ErrMalformedGameModel = errors.New("malformed game model")

	// ErrContractViolation reports answers that contradict each other, such as
	// one information set presenting two different action sets.
	ErrContractViolation = errors.New("interface contract violation")

	// ErrNumericInstability reports a regret or average-strategy accumulator
	// that overflowed or became NaN.
	ErrNumericInstability = errors.New("numeric instability")
)

// TraversalError carries the context of a failure detected during traversal.
// Use errors.Is against the kinds above to classify it.
type TraversalError struct {
	Kind    error
	InfoSet string
	History game.History
	Detail  string
}

func (e *TraversalError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.Error())
	if e.InfoSet != "" {
		fmt.Fprintf(&sb, " at infoset %q", e.InfoSet)
	}
	if e.History != nil {
		fmt.Fprintf(&sb, " (history %s)", e.History.Key())
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	return sb.String()
}

func (e *TraversalError) Unwrap() error { return e.Kind }

func malformed(h game.History, format string, args ...any) error {
	return &TraversalError{Kind: ErrMalformedGameModel, History: h, Detail: fmt.Sprintf(format, args...)}
}

func violation(id string, h game.History, format string, args ...any) error {
	return &TraversalError{Kind: ErrContractViolation, InfoSet: id, History: h, Detail: fmt.Sprintf(format, args...)}
}

func unstable(id string, format string, args ...any) error {
	return &TraversalError{Kind: ErrNumericInstability, InfoSet: id, Detail: fmt.Sprintf(format, args...)}
}
