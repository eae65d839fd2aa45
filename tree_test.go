package siem

import (
	"fmt"
	"testing"
	"time"

	"github.com/markuskont/go-mini-siem/pkg/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func parseRule(t testing.TB, raw string) RuleHandle {
	t.Helper()
	var r Rule
	require.NoError(t, yaml.Unmarshal([]byte(raw), &r))
	return RuleHandle{Rule: r, Path: "rules/test.yml"}
}

func compile(t testing.TB, raw string) *Tree {
	t.Helper()
	tree, err := NewTree(parseRule(t, raw))
	require.NoError(t, err)
	return tree
}

func intp(i int) *int { return &i }

func sshFailures(user, file string, n int, step time.Duration) []event.Event {
	out := make([]event.Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, event.Event{
			Timestamp:  base.Add(time.Duration(i) * step),
			User:       user,
			SrcIP:      "10.0.0.5",
			Source:     event.SourceSSH,
			Message:    fmt.Sprintf("Failed password for %s from 10.0.0.5 port 22 ssh2", user),
			OriginFile: file,
		})
	}
	return out
}

func TestTreeDefaults(t *testing.T) {
	tree := compile(t, `
reason: test
severity: low
`)
	assert.Equal(t, GroupBy{"user"}, tree.GroupBy)
	assert.Equal(t, 10*time.Minute, tree.Window)
	assert.Equal(t, 1, tree.Threshold)
	assert.Nil(t, tree.Root)
	assert.Equal(t, "test", tree.Rule.Name())
}

func TestTreeValidation(t *testing.T) {
	for _, c := range []struct {
		name string
		rule string
		err  interface{}
	}{
		{name: "missing reason", rule: "severity: high", err: ErrMissingField{}},
		{name: "missing severity", rule: "reason: x", err: ErrMissingField{}},
		{name: "bad window unit", rule: "{reason: x, severity: high, window: 10h}", err: ErrInvalidWindow{}},
		{name: "bad window number", rule: "{reason: x, severity: high, window: ten}", err: ErrInvalidWindow{}},
		{name: "zero threshold", rule: "{reason: x, severity: high, threshold: 0}", err: ErrInvalidThreshold{}},
		{name: "broken pattern", rule: "{reason: x, severity: high, when: {filter: {pattern: '(unclosed'}}}", err: ErrInvalidRegex{}},
	} {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewTree(parseRule(t, c.rule))
			require.Error(t, err)
			assert.IsType(t, c.err, err)
		})
	}
}

func TestParseWindow(t *testing.T) {
	for token, want := range map[string]time.Duration{
		"10m": 10 * time.Minute,
		"30s": 30 * time.Second,
		"5M":  5 * time.Minute,
		"0s":  0,
	} {
		got, err := ParseWindow(token)
		require.NoError(t, err, token)
		assert.Equal(t, want, got, token)
	}
	for _, token := range []string{"", "10", "m", "-1m", "1h", "1.5m"} {
		_, err := ParseWindow(token)
		assert.Error(t, err, token)
	}
}

func TestGroupByYaml(t *testing.T) {
	single := parseRule(t, "group_by: host")
	assert.Equal(t, GroupBy{"host"}, single.GroupBy)

	list := parseRule(t, "group_by: [host, user]")
	assert.Equal(t, GroupBy{"host", "user"}, list.GroupBy)

	var r Rule
	err := yaml.Unmarshal([]byte("group_by: {a: b}"), &r)
	assert.Error(t, err)
}

func TestTreeFilter(t *testing.T) {
	tree := compile(t, `
reason: x
severity: high
when:
  source: windows.security
  filter:
    event_id: 4625
    pattern: "logon type: (3|10)"
`)
	match := event.Event{Source: "windows.security", EventID: intp(4625), Message: "failure, logon type: 3"}
	assert.True(t, tree.Match(match))

	for name, e := range map[string]event.Event{
		"wrong source":    {Source: "linux.ssh", EventID: intp(4625), Message: "logon type: 3"},
		"wrong event id":  {Source: "windows.security", EventID: intp(4624), Message: "logon type: 3"},
		"missing id":      {Source: "windows.security", Message: "logon type: 3"},
		"pattern differs": {Source: "windows.security", EventID: intp(4625), Message: "logon type: 2"},
		"case sensitive":  {Source: "windows.security", EventID: intp(4625), Message: "LOGON TYPE: 3"},
		"absent message":  {Source: "windows.security", EventID: intp(4625)},
	} {
		assert.False(t, tree.Match(e), name)
	}
}

func TestAbsentMessageNeverMatches(t *testing.T) {
	tree := compile(t, `{reason: x, severity: low, when: {filter: {pattern: ".*"}}}`)
	assert.False(t, tree.Match(event.Event{User: "bob"}))
	assert.True(t, tree.Match(event.Event{User: "bob", Message: "anything"}))
}

func TestWindowAnchoring(t *testing.T) {
	at := func(minutes ...int) []event.Event {
		out := make([]event.Event, 0)
		for _, m := range minutes {
			out = append(out, event.Event{User: "carol", Timestamp: base.Add(time.Duration(m) * time.Minute)})
		}
		return out
	}
	tree := compile(t, `{reason: x, severity: low, window: 10m, threshold: 2}`)

	// 0 and 9 lie outside [10, 20], a rolling scan would have paired them
	assert.Empty(t, tree.Eval(at(0, 9, 20)))

	findings := tree.Eval(at(0, 9, 10, 20))
	require.Len(t, findings, 1)
	assert.Equal(t, 2, findings[0].Count)
	assert.Equal(t, base.Add(20*time.Minute), findings[0].WindowEnd)
	assert.Equal(t, base.Add(10*time.Minute), findings[0].WindowStart)

	// input order is irrelevant
	findings = tree.Eval(at(20, 0, 15, 9))
	require.Len(t, findings, 1)
	assert.Equal(t, 2, findings[0].Count)
}

func TestGroupingFallback(t *testing.T) {
	tree := compile(t, `{reason: x, severity: low, group_by: [host, user]}`)
	assert.Equal(t, "alice", tree.GroupKey(event.Event{User: "alice"}))
	assert.Equal(t, "ws01", tree.GroupKey(event.Event{Host: "ws01", User: "alice"}))
	assert.Equal(t, GroupSentinel, tree.GroupKey(event.Event{}))

	single := compile(t, `{reason: x, severity: low, group_by: src_ip}`)
	assert.Equal(t, GroupSentinel, single.GroupKey(event.Event{User: "alice"}))

	unknown := compile(t, `{reason: x, severity: low, group_by: no_such_field}`)
	assert.Equal(t, GroupSentinel, unknown.GroupKey(event.Event{User: "alice"}))
}

func TestGroupsOrderedByKey(t *testing.T) {
	tree := compile(t, `{reason: x, severity: low}`)
	events := append(sshFailures("zed", "a.log", 1, time.Second), sshFailures("adam", "b.log", 1, time.Second)...)
	events = append(events, event.Event{Timestamp: base})
	findings := tree.Eval(events)
	require.Len(t, findings, 3)
	assert.Equal(t, []string{"adam", GroupSentinel, "zed"}, []string{
		findings[0].Actor, findings[1].Actor, findings[2].Actor,
	})
}

func TestSSHBruteForceScenario(t *testing.T) {
	events := sshFailures("alice", "auth.log", 5, 30*time.Second)

	tree := compile(t, `
id: ssh-bruteforce
reason: repeated ssh failures
severity: high
when:
  source: linux.ssh
window: 10m
threshold: 3
`)
	findings := tree.Eval(events)
	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, "alice", f.Actor)
	assert.Equal(t, "ssh-bruteforce", f.Rule)
	assert.Equal(t, 5, f.Count)
	assert.Equal(t, base.Add(2*time.Minute), f.WindowEnd)
	assert.Equal(t, "repeated ssh failures", f.Reason)
	assert.Equal(t, "high", f.Severity)
	assert.Equal(t, SeverityHigh, f.Level())
	assert.Equal(t, []string{"auth.log"}, f.ContributingFiles)
	assert.Equal(t, "auth.log", f.SourceFiles)

	tree.Threshold = 6
	assert.Empty(t, tree.Eval(events))
}

func TestEvalDoesNotMutateInput(t *testing.T) {
	events := []event.Event{
		{User: "a", Timestamp: base.Add(time.Minute)},
		{User: "a", Timestamp: base},
	}
	compile(t, `{reason: x, severity: low}`).Eval(events)
	assert.Equal(t, base.Add(time.Minute), events[0].Timestamp)
}

func TestFindingIdempotence(t *testing.T) {
	tree := compile(t, `{id: r1, reason: x, severity: low, when: {source: linux.ssh}}`)
	events := sshFailures("alice", "auth.log", 3, time.Minute)
	first := tree.Eval(events)
	second := tree.Eval(events)
	require.Len(t, first, 1)
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first[0].ID)
}

func TestContributingFiles(t *testing.T) {
	events := []event.Event{
		{User: "a", Timestamp: base, OriginFile: "logs/z.json"},
		{User: "a", Timestamp: base, OriginFile: "logs/a.json"},
		{User: "a", Timestamp: base, OriginFile: "logs/z.json"},
		{User: "a", Timestamp: base},
	}
	tree := compile(t, `{reason: x, severity: low}`)
	findings := tree.Eval(events)
	require.Len(t, findings, 1)
	assert.Equal(t, []string{"logs/a.json", "logs/z.json"}, findings[0].ContributingFiles)
	assert.Equal(t, "logs/a.json;logs/z.json", findings[0].SourceFiles)

	tree.FileListLimit = 6
	findings = tree.Eval(events)
	assert.Equal(t, "z.json", findings[0].SourceFiles)
	assert.Len(t, findings[0].ContributingFiles, 2)
}

func TestJoinFiles(t *testing.T) {
	assert.Equal(t, "", JoinFiles(nil, 10))
	assert.Equal(t, "a;b", JoinFiles([]string{"a", "b"}, 10))
	assert.Equal(t, "b;c", JoinFiles([]string{"a", "b", "c"}, 3))
	assert.Equal(t, "a;b;c", JoinFiles([]string{"a", "b", "c"}, -1))
	assert.Equal(t, "ö", JoinFiles([]string{"äö"}, 1))
}

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, ParseSeverity("CRITICAL"))
	assert.Equal(t, SeverityMedium, ParseSeverity(" medium "))
	assert.Equal(t, SeverityUnknown, ParseSeverity("whatever"))
	assert.True(t, SeverityHigh > SeverityLow)
	assert.Equal(t, "informational", SeverityInformational.String())
}

func BenchmarkTreeEval(b *testing.B) {
	tree := compile(b, `{reason: x, severity: low, when: {source: linux.ssh, filter: {pattern: "Failed password"}}, threshold: 3}`)
	events := make([]event.Event, 0)
	for i := 0; i < 100; i++ {
		events = append(events, sshFailures(fmt.Sprintf("user%d", i), "auth.log", 50, time.Second)...)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tree.Eval(events)
	}
}
