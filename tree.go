package siem

import (
	"sort"
	"strings"
	"time"

	"github.com/markuskont/go-mini-siem/pkg/event"
)

// GroupSentinel is the group key for events where no group_by field has a value
const GroupSentinel = "unassigned"

// Tree is a compiled threshold rule
type Tree struct {
	// Root selects events for the rule, nil selects everything
	Root Matcher
	Rule *RuleHandle

	GroupBy   GroupBy
	Window    time.Duration
	Threshold int

	// FileListLimit caps Finding.SourceFiles, 0 is DefaultFileListLimit and negative disables the cap
	FileListLimit int
}

// NewTree validates a rule, applies defaults and builds the event filter
func NewTree(r RuleHandle) (*Tree, error) {
	if strings.TrimSpace(r.Reason) == "" {
		return nil, ErrMissingField{Field: "reason"}
	}
	if strings.TrimSpace(r.Severity) == "" {
		return nil, ErrMissingField{Field: "severity"}
	}
	token := r.Window
	if strings.TrimSpace(token) == "" {
		token = DefaultWindow
	}
	window, err := ParseWindow(token)
	if err != nil {
		return nil, err
	}
	threshold := DefaultThreshold
	if r.Threshold != nil {
		if *r.Threshold < 1 {
			return nil, ErrInvalidThreshold{Value: *r.Threshold}
		}
		threshold = *r.Threshold
	}
	group := r.GroupBy
	if len(group) == 0 {
		group = GroupBy{DefaultGroupBy}
	}

	filter := make(NodeSimpleAnd, 0, 3)
	if r.When.Source != "" {
		filter = append(filter, FieldString{
			Field:   "source",
			Pattern: ContentPattern{Token: r.When.Source},
		})
	}
	if r.When.Filter.EventID != nil {
		filter = append(filter, FieldNum{
			Field:   "event_id",
			Pattern: NumPattern{Val: *r.When.Filter.EventID},
		})
	}
	if r.When.Filter.Pattern != "" {
		re, err := NewRegexPattern(r.When.Filter.Pattern)
		if err != nil {
			return nil, err
		}
		filter = append(filter, FieldString{Field: "message", Pattern: re})
	}

	t := &Tree{
		Rule:      &r,
		GroupBy:   group,
		Window:    window,
		Threshold: threshold,
	}
	if len(filter) > 0 {
		t.Root = filter.Reduce()
	}
	return t, nil
}

// Match implements Matcher
func (t Tree) Match(s Selector) bool {
	if t.Root == nil {
		return true
	}
	return t.Root.Match(s)
}

// GroupKey resolves the group of a single event
// First group_by field with a non-empty value wins
func (t Tree) GroupKey(s Selector) string {
	for _, field := range t.GroupBy {
		if val, ok := s.Select(field); ok {
			return val
		}
	}
	return GroupSentinel
}

// Eval runs the rule against the full event set
// Each group is tested with a single window that ends at the latest event of that group
func (t Tree) Eval(events []event.Event) Findings {
	groups := make(map[string][]event.Event)
	for _, e := range events {
		if !t.Match(e) {
			continue
		}
		key := t.GroupKey(e)
		groups[key] = append(groups[key], e)
	}
	if len(groups) == 0 {
		return nil
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Findings, 0)
	for _, key := range keys {
		if f, ok := t.evalGroup(key, groups[key]); ok {
			out = append(out, f)
		}
	}
	return out
}

func (t Tree) evalGroup(key string, group []event.Event) (Finding, bool) {
	sort.SliceStable(group, func(i, j int) bool {
		return group[i].Timestamp.Before(group[j].Timestamp)
	})
	end := group[len(group)-1].Timestamp
	start := end.Add(-t.Window)
	first := sort.Search(len(group), func(i int) bool {
		return !group[i].Timestamp.Before(start)
	})
	windowed := group[first:]
	if len(windowed) < t.Threshold {
		return Finding{}, false
	}

	files := uniqueFiles(windowed)
	limit := t.FileListLimit
	if limit == 0 {
		limit = DefaultFileListLimit
	}
	name := t.name()
	f := Finding{
		ID:                findingID(name, key, end),
		Rule:              name,
		Actor:             key,
		WindowStart:       start,
		WindowEnd:         end,
		Count:             len(windowed),
		ContributingFiles: files,
		SourceFiles:       JoinFiles(files, limit),
	}
	if t.Rule != nil {
		f.Reason = t.Rule.Reason
		f.Severity = t.Rule.Severity
	}
	return f, true
}

func (t Tree) name() string {
	if t.Rule == nil {
		return ""
	}
	return t.Rule.Name()
}

func uniqueFiles(events []event.Event) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, e := range events {
		if e.OriginFile == "" || seen[e.OriginFile] {
			continue
		}
		seen[e.OriginFile] = true
		out = append(out, e.OriginFile)
	}
	sort.Strings(out)
	return out
}
