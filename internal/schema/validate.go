package schema

import "strings"

// Violation describes the first structural problem found in a request.
type Violation struct {
	Code ErrorCode
	// Index is the offending query position, or -1 for batch-wide problems.
	Index int
}

// Validate checks the batch-level invariants of a request: at least one query
// and no query with an empty question. A nil query counts as an empty
// question. It returns nil when the request is well formed.
func Validate(req *EnvironmentRequest) *Violation {
	if req == nil || len(req.Queries) == 0 {
		return &Violation{Code: NoQueries, Index: -1}
	}
	for i, q := range req.Queries {
		if IsEmptyQuestion(q) {
			return &Violation{Code: EmptyQuestion, Index: i}
		}
	}
	return nil
}

// IsEmptyQuestion reports whether a query has no usable question text.
func IsEmptyQuestion(q *Query) bool {
	return strings.TrimSpace(q.GetQuestion()) == ""
}
