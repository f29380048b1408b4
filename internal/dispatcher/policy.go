package dispatcher

import (
	"fmt"
	"strings"
)

// ValidationPolicy decides what an empty question does to its batch.
type ValidationPolicy int

const (
	// RejectBatch fails the whole call with EMPTY_QUESTION.
	RejectBatch ValidationPolicy = iota
	// IsolateQuery records an error on the offending response only.
	IsolateQuery
)

func (p ValidationPolicy) String() string {
	switch p {
	case RejectBatch:
		return "reject_batch"
	case IsolateQuery:
		return "isolate_query"
	default:
		return fmt.Sprintf("ValidationPolicy(%d)", int(p))
	}
}

// ParsePolicy accepts "reject_batch" and "isolate_query". The empty string
// selects RejectBatch.
func ParsePolicy(s string) (ValidationPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject_batch":
		return RejectBatch, nil
	case "isolate_query":
		return IsolateQuery, nil
	default:
		return RejectBatch, fmt.Errorf("unknown validation policy %q (want reject_batch or isolate_query)", s)
	}
}
