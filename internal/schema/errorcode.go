package schema

import (
	"fmt"
	"strings"
)

// ErrorCode is the batch-level error vocabulary of GetObservations. Values
// are fixed and part of the wire contract.
type ErrorCode int32

const (
	NoError       ErrorCode = 0
	NoQueries     ErrorCode = 1
	EmptyQuestion ErrorCode = 2
	ScrapeFailed  ErrorCode = 3
)

var errorCodeNames = map[ErrorCode]string{
	NoError:       "NO_ERROR",
	NoQueries:     "NO_QUERIES",
	EmptyQuestion: "EMPTY_QUESTION",
	ScrapeFailed:  "SCRAPE_FAILED",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", int32(c))
}

// ParseErrorCode resolves a code from its wire name (case-insensitive).
func ParseErrorCode(name string) (ErrorCode, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for code, n := range errorCodeNames {
		if n == upper {
			return code, nil
		}
	}
	return NoError, fmt.Errorf("unknown error code %q", name)
}

// MarshalText encodes the code by name.
func (c ErrorCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a code from its name.
func (c *ErrorCode) UnmarshalText(text []byte) error {
	code, err := ParseErrorCode(string(text))
	if err != nil {
		return err
	}
	*c = code
	return nil
}
