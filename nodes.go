package siem

// NodeSimpleAnd is a list of matchers connected with logical conjunction
// An empty node matches everything, rules without filters see every event
type NodeSimpleAnd []Matcher

// Match implements Matcher
func (n NodeSimpleAnd) Match(s Selector) bool {
	for _, m := range n {
		if !m.Match(s) {
			return false
		}
	}
	return true
}

// Reduce cleans up unneeded slices
// Static structures can be used if node only holds one or two elements
func (n NodeSimpleAnd) Reduce() Matcher {
	switch len(n) {
	case 1:
		return n[0]
	case 2:
		return NodeAnd{L: n[0], R: n[1]}
	}
	return n
}

// NodeAnd is a two element node connected via logical conjunction
type NodeAnd struct {
	L, R Matcher
}

// Match implements Matcher
func (n NodeAnd) Match(s Selector) bool {
	return n.L.Match(s) && n.R.Match(s)
}
