package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Index   int
	Type    string
	Message string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertions[%d] (%s): %s", e.Index, e.Type, e.Message)
}

// EvaluateAssertions checks every assertion against a finished run and
// returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var msg string
		switch a.Type {
		case AssertExecutedOrder:
			msg = assertExecutedOrder(result.executed(), a.Changes)
		case AssertExecutionCount:
			msg = assertExecutionCount(result.executed(), a.Change, a.Count)
		case AssertFinalLedger:
			msg = assertFinalLedger(result.Trace, a.Ledger)
		case AssertLockFree:
			if result.LockHeld {
				msg = "lock is still held"
			}
		default:
			msg = fmt.Sprintf("unknown assertion type %q", a.Type)
		}
		if msg != "" {
			failures = append(failures, (&AssertionError{Index: i, Type: a.Type, Message: msg}).Error())
		}
	}
	return failures
}

// assertExecutedOrder checks that want appears in executed as a subsequence.
func assertExecutedOrder(executed, want []string) string {
	pos := 0
	for _, id := range executed {
		if pos < len(want) && id == want[pos] {
			pos++
		}
	}
	if pos == len(want) {
		return ""
	}
	return fmt.Sprintf("%s not executed after %s (executed: %s)",
		want[pos], strings.Join(want[:pos], ", "), strings.Join(executed, ", "))
}

func assertExecutionCount(executed []string, id string, want int) string {
	got := 0
	for _, e := range executed {
		if e == id {
			got++
		}
	}
	if got == want {
		return ""
	}
	return fmt.Sprintf("%s executed %d times, want %d", id, got, want)
}

func assertFinalLedger(trace []TraceEvent, want []string) string {
	var got []string
	if len(trace) > 0 {
		got = slices.Clone(trace[len(trace)-1].Ledger)
	}
	want = slices.Clone(want)
	slices.Sort(got)
	slices.Sort(want)
	if slices.Equal(got, want) {
		return ""
	}
	return fmt.Sprintf("ledger holds [%s], want [%s]", strings.Join(got, ", "), strings.Join(want, ", "))
}
