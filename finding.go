package siem

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultFileListLimit caps the joined contributing file list in characters
const DefaultFileListLimit = 200

// FileListSeparator joins contributing files for display
const FileListSeparator = ";"

// Severity is an ordinal view of the verbatim severity string
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityInformational
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityUnknown:       "unknown",
	SeverityInformational: "informational",
	SeverityLow:           "low",
	SeverityMedium:        "medium",
	SeverityHigh:          "high",
	SeverityCritical:      "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseSeverity maps a rule severity string to its ordinal, case-insensitively
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "informational", "info":
		return SeverityInformational
	case "low":
		return SeverityLow
	case "medium":
		return SeverityMedium
	case "high":
		return SeverityHigh
	case "critical":
		return SeverityCritical
	}
	return SeverityUnknown
}

// Finding is emitted when a rule's anchored window for one group reaches the threshold
type Finding struct {
	ID       string `json:"id"`
	Rule     string `json:"rule"`
	Actor    string `json:"actor"`
	Reason   string `json:"reason"`
	Severity string `json:"severity"`

	WindowEnd   time.Time `json:"window_end"`
	WindowStart time.Time `json:"window_start"`
	Count       int       `json:"count"`

	// sorted and deduplicated, never truncated
	ContributingFiles []string `json:"contributing_files"`
	// display form of ContributingFiles, trailing part kept when over limit
	SourceFiles string `json:"source_files"`
}

// Level returns the ordinal severity of the finding
func (f Finding) Level() Severity {
	return ParseSeverity(f.Severity)
}

// Findings is an ordered finding collection
type Findings []Finding

// findingID is stable for identical rule, group and window end
func findingID(rule, actor string, end time.Time) string {
	name := strings.Join([]string{rule, actor, end.UTC().Format(time.RFC3339Nano)}, "\x00")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// JoinFiles joins files and keeps only the trailing limit characters
// A non-positive limit disables truncation
func JoinFiles(files []string, limit int) string {
	joined := strings.Join(files, FileListSeparator)
	if limit <= 0 {
		return joined
	}
	runes := []rune(joined)
	if len(runes) <= limit {
		return joined
	}
	return string(runes[len(runes)-limit:])
}
