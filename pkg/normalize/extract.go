package normalize

import (
	"regexp"
	"strings"

	"github.com/markuskont/go-mini-siem/pkg/event"
)

// fieldExtractor pulls a single value out of unstructured message text
// The first capture group is the value
type fieldExtractor struct {
	re *regexp.Regexp
}

func (f fieldExtractor) find(msg string) (string, bool) {
	m := f.re.FindStringSubmatch(msg)
	if len(m) < 2 {
		return "", false
	}
	val := strings.TrimSpace(m[1])
	return val, val != ""
}

// extractorChain is an ordered list of strategies, first hit wins
type extractorChain []fieldExtractor

func (c extractorChain) find(msg string) (string, bool) {
	for _, f := range c {
		if val, ok := f.find(msg); ok {
			return val, true
		}
	}
	return "", false
}

func newExtractor(expr string) fieldExtractor {
	return fieldExtractor{re: regexp.MustCompile(expr)}
}

var (
	reSSHFailedPassword = regexp.MustCompile(
		`Failed password for (?:invalid user\s+)?(\S+) from ([0-9a-fA-F:\.]+)`)

	// generic user= comes last, in auth failures it names the target rather than the actor
	sudoActorChain = extractorChain{
		newExtractor(`(?i)\bruser=(\S+)`),                                                // ruser
		newExtractor(`(?i)\blogname=(\S+)`),                                              // logname
		newExtractor(`(?i)^\s*([a-z_][a-z0-9_-]*)\s*:\s*TTY=`),                           // lead
		newExtractor(`(?i)for\s*\[([^\]]+)\]`),                                           // bracket
		newExtractor(`(?i)^\s*sudo(?:\[\d+\])?:\s*([a-z_][a-z0-9_-]*)\s*:`),              // prefix
		newExtractor(`(?i)session opened for user\s+[^\s()]+.*?\sby\s+([^\s()]+)\(uid=`), // session
		newExtractor(`\buser=(\S+)`),                                                     // user
	}
	// keys are case sensitive on purpose, USER= is the target while user= is not
	sudoTargetChain = extractorChain{
		newExtractor(`(?i)session opened for user\s+([^\s()]+)`), // session
		newExtractor(`\bUSER=((?i:[a-z_][a-z0-9_-]*))`),          // USER
	}
	sudoTTY     = newExtractor(`(?i)\btty=(\S+)`)
	sudoCommand = newExtractor(`(?i)\bCOMMAND=(.+)$`)

	reAAQuoted   = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]+)="([^"]*)"`)
	reAAUnquoted = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]+)=([^\s"]+)`)

	reLogonFailureAccount = regexp.MustCompile(
		`(?s)Account For Which Logon Failed:.*?Account Name:[ \t]*([^\r\n]*)`)

	uidNames = map[string]string{
		"0":     "root",
		"33":    "www-data",
		"65534": "nobody",
	}
)

// familyExtractor enriches events of one classified log family
type familyExtractor struct {
	source  string
	extract func(e *event.Event, msg string)
}

// new log families only need a new entry here
var familyExtractors = []familyExtractor{
	{source: event.SourceSSH, extract: extractSSH},
	{source: event.SourceSudo, extract: extractSudo},
	{source: event.SourceAppArmor, extract: extractAppArmor},
	{source: event.SourceWindowsSecurity, extract: extractLogonFailure},
}

// extractFamily runs the extractor of the event's family against msg
// msg is the message with any syslog header removed
func extractFamily(e *event.Event, msg string) {
	for _, f := range familyExtractors {
		if f.source == e.Source {
			f.extract(e, msg)
		}
	}
}

func extractSSH(e *event.Event, msg string) {
	m := reSSHFailedPassword.FindStringSubmatch(msg)
	if m == nil {
		return
	}
	if e.User == "" {
		e.User = m[1]
	}
	e.SrcIP = m[2]
}

func extractSudo(e *event.Event, msg string) {
	fill := func(dst *string, fn func(string) (string, bool)) {
		if *dst != "" {
			return
		}
		if val, ok := fn(msg); ok {
			*dst = val
		}
	}
	fill(&e.User, sudoActorChain.find)
	fill(&e.TargetUser, sudoTargetChain.find)
	fill(&e.TTY, sudoTTY.find)
	fill(&e.Command, sudoCommand.find)
}

// parseKeyValues reads audit style key="value" and key=value tokens
// quoted values win over bare ones
func parseKeyValues(msg string) map[string]string {
	kv := make(map[string]string)
	for _, m := range reAAQuoted.FindAllStringSubmatch(msg, -1) {
		kv[m[1]] = m[2]
	}
	for _, m := range reAAUnquoted.FindAllStringSubmatch(msg, -1) {
		if _, ok := kv[m[1]]; !ok {
			kv[m[1]] = m[2]
		}
	}
	return kv
}

func extractAppArmor(e *event.Event, msg string) {
	kv := parseKeyValues(msg)
	e.AppArmor = &event.AppArmor{
		Action:    kv["apparmor"],
		Operation: kv["operation"],
		Class:     kv["class"],
		Profile:   kv["profile"],
		Name:      kv["name"],
		FSUID:     kv["fsuid"],
		OUID:      kv["ouid"],
	}
	if v := kv["comm"]; v != "" {
		e.Process = v
	}
	if v := kv["pid"]; v != "" {
		e.PID = v
	}
	if e.User != "" {
		return
	}
	uid := e.AppArmor.FSUID
	if uid == "" {
		uid = e.AppArmor.OUID
	}
	if name, ok := uidNames[uid]; ok {
		e.User = name
	}
}

// extractLogonFailure overrides user with the account that failed to log on
// the subject section of 4625 names the requesting service, not the target account
func extractLogonFailure(e *event.Event, msg string) {
	if !e.HasEventID(4625) {
		return
	}
	m := reLogonFailureAccount.FindStringSubmatch(msg)
	if m == nil {
		return
	}
	if user := strings.TrimSpace(m[1]); user != "" {
		e.User = user
	}
}
