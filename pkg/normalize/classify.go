package normalize

import (
	"regexp"
	"strings"

	"github.com/markuskont/go-mini-siem/pkg/event"
)

var (
	reSudoPamFailure = regexp.MustCompile(
		`(?i)pam_unix\(sudo:auth\):\s*(?:authentication failure|conversation failed|auth could not identify password)`)
	reSudoLineFailure = regexp.MustCompile(
		`(?i)^\s*sudo(?:\[\d+\])?:\s+.*?(?:authentication failure|incorrect password)`)
	reAppArmorVerdict = regexp.MustCompile(`(?i)apparmor="(?:DENIED|ALLOWED)"`)
	reSSHFailure      = regexp.MustCompile(`(?i)Failed password`)
)

// classifier assigns a source tag when its predicate holds
type classifier struct {
	tag   string
	match func(*recordState) bool
}

// classifiers are evaluated top to bottom, a record keeps the first tag it matches
var classifiers = []classifier{
	{tag: event.SourceWindowsSecurity, match: eventIDIs(4625)},
	{tag: event.SourcePowerShell, match: eventIDIs(4104)},
	{tag: event.SourceSysmon, match: eventIDIs(1)},
	{tag: event.SourceSudo, match: isSudo},
	{tag: event.SourceAppArmor, match: isAppArmor},
	{tag: event.SourceSSH, match: isSSHFailure},
	{tag: event.SourceJournald, match: func(s *recordState) bool { return s.journal }},
}

func classify(s *recordState) {
	for _, c := range classifiers {
		if s.ev.Source != "" {
			return
		}
		if c.match(s) {
			s.ev.Source = c.tag
		}
	}
}

func eventIDIs(id int) func(*recordState) bool {
	return func(s *recordState) bool { return s.ev.HasEventID(id) }
}

func isSudo(s *recordState) bool {
	return s.identifier == "sudo" ||
		reSudoPamFailure.MatchString(s.body) ||
		reSudoLineFailure.MatchString(s.body)
}

func isAppArmor(s *recordState) bool {
	return reAppArmorVerdict.MatchString(s.body)
}

// isSSHFailure needs both a daemon hint and a failed password message
func isSSHFailure(s *recordState) bool {
	hint := strings.Contains(s.unit, "sshd") || strings.Contains(s.identifier, "sshd")
	return hint && reSSHFailure.MatchString(s.body)
}
