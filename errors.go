package siem

import (
	"fmt"
	"strings"
)

// ErrInvalidRegex contextualizes broken regular expressions presented by the user
type ErrInvalidRegex struct {
	Pattern string
	Err     error
}

// Error implements error
func (e ErrInvalidRegex) Error() string {
	return fmt.Sprintf("/%s/ %s", e.Pattern, e.Err)
}

func (e ErrInvalidRegex) Unwrap() error { return e.Err }

// ErrMissingField indicates that a mandatory rule key is absent or empty
type ErrMissingField struct {
	Field string
}

func (e ErrMissingField) Error() string {
	return fmt.Sprintf("rule is missing required field %s", e.Field)
}

// ErrInvalidWindow indicates a window token that is not <N>m or <N>s
type ErrInvalidWindow struct {
	Token string
}

func (e ErrInvalidWindow) Error() string {
	return fmt.Sprintf("invalid window %q, expected <N>m or <N>s", e.Token)
}

// ErrInvalidThreshold indicates a non-positive threshold
type ErrInvalidThreshold struct {
	Value int
}

func (e ErrInvalidThreshold) Error() string {
	return fmt.Sprintf("invalid threshold %d, must be a positive integer", e.Value)
}

// ErrInvalidGroupBy indicates a group_by value that is neither a string nor a list of strings
type ErrInvalidGroupBy struct {
	Err error
}

func (e ErrInvalidGroupBy) Error() string {
	return fmt.Sprintf("group_by must be a field name or a list of field names: %s", e.Err)
}

func (e ErrInvalidGroupBy) Unwrap() error { return e.Err }

// ErrParseYaml indicates YAML parsing error
type ErrParseYaml struct {
	Path  string
	Err   error
	Count int
}

func (e ErrParseYaml) Error() string {
	return fmt.Sprintf("%d - File: %s; Err: %s", e.Count, e.Path, e.Err)
}

func (e ErrParseYaml) Unwrap() error { return e.Err }

// ErrBulkParseYaml is a bulk error handler for dealing with broken rule files
// Some rules are bound to fail, no reason to exit entire application
// Individual errors can be collected and returned at the end
// Caller decides if they should be only reported or it warrants full exit
type ErrBulkParseYaml struct {
	Errs []ErrParseYaml
}

func (e ErrBulkParseYaml) Error() string {
	return fmt.Sprintf("got %d broken yaml files", len(e.Errs))
}

// ErrRule ties a rule validation or compile error to its definition
type ErrRule struct {
	Rule string
	Path string
	Err  error
}

func (e ErrRule) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("rule %s (%s): %s", e.Rule, e.Path, e.Err)
	}
	return fmt.Sprintf("rule %s: %s", e.Rule, e.Err)
}

func (e ErrRule) Unwrap() error { return e.Err }

// ErrBulkRule collects every rule that failed validation
type ErrBulkRule struct {
	Errs []ErrRule
}

func (e ErrBulkRule) Error() string {
	names := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		names[i] = err.Rule
	}
	return fmt.Sprintf("got %d invalid rules: %s", len(e.Errs), strings.Join(names, ", "))
}
