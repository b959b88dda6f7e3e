// Package sqlgate approves only read-only SELECT statements before they are
// handed to the warehouse. The check is purely textual.
package sqlgate

import (
	"errors"
	"fmt"
	"strings"
)

// Reason classifies a rejection.
type Reason string

const (
	ReasonForbiddenKeyword Reason = "forbidden_keyword"
	ReasonNotSelect        Reason = "not_select"
)

// ForbiddenKeywords are matched as raw substrings of the lower-cased
// statement, so identifiers such as updated_at are rejected too.
var ForbiddenKeywords = []string{"drop", "delete", "insert", "update", "alter", "truncate"}

var ErrForbidden = errors.New("statement is not allowed")

// Violation is one failed rule. Keyword is set for forbidden keywords.
type Violation struct {
	Reason  Reason
	Keyword string
}

// ForbiddenError reports the first violation found by Check.
type ForbiddenError struct {
	Violation
}

func (e *ForbiddenError) Error() string {
	switch e.Reason {
	case ReasonForbiddenKeyword:
		return "Query contains forbidden keywords."
	case ReasonNotSelect:
		return "Only SELECT statements are allowed."
	default:
		return ErrForbidden.Error()
	}
}

func (e *ForbiddenError) Unwrap() error {
	return ErrForbidden
}

// Inspect returns every violation in sql: at most one forbidden keyword
// (the first in ForbiddenKeywords order) followed by the SELECT prefix rule.
func Inspect(sql string) []Violation {
	normalized := strings.ToLower(strings.TrimSpace(sql))
	var violations []Violation
	for _, keyword := range ForbiddenKeywords {
		if strings.Contains(normalized, keyword) {
			violations = append(violations, Violation{Reason: ReasonForbiddenKeyword, Keyword: keyword})
			break
		}
	}
	if !strings.HasPrefix(normalized, "select") {
		violations = append(violations, Violation{Reason: ReasonNotSelect})
	}
	return violations
}

// Check returns nil when sql may run, or a *ForbiddenError carrying the
// first violation. Forbidden keywords are reported ahead of the prefix rule.
func Check(sql string) error {
	violations := Inspect(sql)
	if len(violations) == 0 {
		return nil
	}
	return &ForbiddenError{Violation: violations[0]}
}

// Describe renders violations for logs.
func Describe(violations []Violation) string {
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		if v.Keyword != "" {
			parts = append(parts, fmt.Sprintf("%s(%s)", v.Reason, v.Keyword))
			continue
		}
		parts = append(parts, string(v.Reason))
	}
	return strings.Join(parts, ",")
}
