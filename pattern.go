package siem

import (
	"regexp"
	"strconv"
)

// NumMatcher is an atomic pattern for numeric item
type NumMatcher interface {
	// NumMatch implements NumMatcher
	NumMatch(int) bool
}

// StringMatcher is an atomic pattern that could implement literal or regex matchers
type StringMatcher interface {
	// StringMatch implements StringMatcher
	StringMatch(string) bool
}

// ContentPattern is a token for literal content matching
type ContentPattern struct {
	Token string
}

// StringMatch implements StringMatcher
func (c ContentPattern) StringMatch(msg string) bool {
	return msg == c.Token
}

// RegexPattern is for matching messages with regular expresions
// Unanchored, a match anywhere in the value is enough
type RegexPattern struct {
	Re *regexp.Regexp
}

// StringMatch implements StringMatcher
func (r RegexPattern) StringMatch(msg string) bool {
	return r.Re.MatchString(msg)
}

// NewRegexPattern compiles expr into a RegexPattern
func NewRegexPattern(expr string) (*RegexPattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, ErrInvalidRegex{Pattern: expr, Err: err}
	}
	return &RegexPattern{Re: re}, nil
}

// NumPattern matches on numeric value
type NumPattern struct {
	Val int
}

// NumMatch implements NumMatcher
func (n NumPattern) NumMatch(val int) bool {
	return n.Val == val
}

// FieldString binds a StringMatcher to a named event field
// Absent fields never match, not even patterns that accept an empty string
type FieldString struct {
	Field   string
	Pattern StringMatcher
}

// Match implements Matcher
func (f FieldString) Match(s Selector) bool {
	val, ok := s.Select(f.Field)
	if !ok {
		return false
	}
	return f.Pattern.StringMatch(val)
}

// FieldNum binds a NumMatcher to a named event field holding an integer
type FieldNum struct {
	Field   string
	Pattern NumMatcher
}

// Match implements Matcher
func (f FieldNum) Match(s Selector) bool {
	val, ok := s.Select(f.Field)
	if !ok {
		return false
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return false
	}
	return f.Pattern.NumMatch(n)
}
