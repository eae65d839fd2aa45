package event

import (
	"strconv"
	"strings"
	"time"
)

// RawRecord is a single record as produced by ingestion
// Field names and value types depend entirely on the source file
type RawRecord struct {
	Fields     map[string]interface{}
	OriginFile string
}

// Get returns a field value if the key exists and is not nil
func (r RawRecord) Get(key string) (interface{}, bool) {
	if r.Fields == nil {
		return nil, false
	}
	val, ok := r.Fields[key]
	if !ok || val == nil {
		return nil, false
	}
	return val, true
}

// Has reports key presence, regardless of value
func (r RawRecord) Has(key string) bool {
	if r.Fields == nil {
		return false
	}
	_, ok := r.Fields[key]
	return ok
}

// TimestampOrigin records which resolution stage produced Event.Timestamp
type TimestampOrigin int

const (
	TimestampNative TimestampOrigin = iota
	TimestampMtime
	TimestampClock
)

func (t TimestampOrigin) String() string {
	switch t {
	case TimestampNative:
		return "native"
	case TimestampMtime:
		return "mtime"
	case TimestampClock:
		return "clock"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (t TimestampOrigin) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// AppArmor holds mandatory access control details parsed from audit lines
type AppArmor struct {
	Action    string `json:"action,omitempty"`
	Operation string `json:"operation,omitempty"`
	Class     string `json:"class,omitempty"`
	Profile   string `json:"profile,omitempty"`
	Name      string `json:"name,omitempty"`
	FSUID     string `json:"fsuid,omitempty"`
	OUID      string `json:"ouid,omitempty"`
}

// Event is the canonical, fixed schema record shared by all log families
// Empty string fields are absent. Timestamp is always set after normalization.
type Event struct {
	Timestamp       time.Time       `json:"timestamp"`
	TimestampOrigin TimestampOrigin `json:"timestamp_origin"`

	EventID    *int   `json:"event_id,omitempty"`
	User       string `json:"user,omitempty"`
	TargetUser string `json:"target_user,omitempty"`
	Host       string `json:"host,omitempty"`
	Message    string `json:"message,omitempty"`
	Source     string `json:"source,omitempty"`
	SrcIP      string `json:"src_ip,omitempty"`
	TTY        string `json:"tty,omitempty"`
	Command    string `json:"command,omitempty"`
	Process    string `json:"process,omitempty"`
	PID        string `json:"pid,omitempty"`

	AppArmor *AppArmor `json:"apparmor,omitempty"`

	OriginFile string `json:"origin_file"`
}

// HasEventID is a nil-safe comparison against the numeric event identifier
func (e Event) HasEventID(id int) bool {
	return e.EventID != nil && *e.EventID == id
}

// Select resolves a canonical field name to its string representation
// Second return value is false when the field is unknown or absent
func (e Event) Select(key string) (string, bool) {
	var val string
	switch strings.ToLower(key) {
	case "timestamp":
		if e.Timestamp.IsZero() {
			return "", false
		}
		val = e.Timestamp.Format(time.RFC3339Nano)
	case "event_id":
		if e.EventID == nil {
			return "", false
		}
		val = strconv.Itoa(*e.EventID)
	case "user":
		val = e.User
	case "target_user":
		val = e.TargetUser
	case "host":
		val = e.Host
	case "message":
		val = e.Message
	case "source":
		val = e.Source
	case "src_ip":
		val = e.SrcIP
	case "tty":
		val = e.TTY
	case "command":
		val = e.Command
	case "process":
		val = e.Process
	case "pid":
		val = e.PID
	case "origin_file":
		val = e.OriginFile
	default:
		val = e.selectAppArmor(key)
	}
	return val, val != ""
}

func (e Event) selectAppArmor(key string) string {
	key = strings.ToLower(key)
	if e.AppArmor == nil || !strings.HasPrefix(key, "apparmor.") {
		return ""
	}
	switch strings.TrimPrefix(key, "apparmor.") {
	case "action":
		return e.AppArmor.Action
	case "operation":
		return e.AppArmor.Operation
	case "class":
		return e.AppArmor.Class
	case "profile":
		return e.AppArmor.Profile
	case "name":
		return e.AppArmor.Name
	case "fsuid":
		return e.AppArmor.FSUID
	case "ouid":
		return e.AppArmor.OUID
	}
	return ""
}

// Source channel tags assigned during classification
const (
	SourceWindowsSecurity = "windows.security"
	SourcePowerShell      = "powershell.4104"
	SourceSysmon          = "sysmon.1"
	SourceSudo            = "linux.sudo"
	SourceAppArmor        = "linux.apparmor"
	SourceSSH             = "linux.ssh"
	SourceJournald        = "linux.journald"
)
