package siem

// Selector resolves named fields on an arbitrary event
// Rules only see events through this interface for filtering and grouping
type Selector interface {
	// Select implements Selector
	Select(string) (string, bool)
}

// Matcher is a predicate over a single event, used for rule filters
type Matcher interface {
	// Match implements Matcher
	Match(Selector) bool
}
