package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/markuskont/go-mini-siem/pkg/event"
	"github.com/markuskont/go-mini-siem/utils"
)

const (
	fieldJournalRealtime = "__REALTIME_TIMESTAMP"
	fieldTimeCreated     = "TimeCreated"
)

var (
	reDigits      = regexp.MustCompile(`\d+`)
	reAllDigits   = regexp.MustCompile(`^\d+$`)
	reDotNetEpoch = regexp.MustCompile(`/Date\((\d+)(?:[+-]\d{4})?\)/`)

	// nested TimeCreated objects from PowerShell exports, most precise first
	timeCreatedKeys = []string{"SystemTime", "Value", "Display"}
	genericTimeKeys = []string{"@timestamp", "timestamp", "time", "date"}
)

// timestampResolver is one native resolution stage, stages run in order and first success wins
type timestampResolver func(event.RawRecord) (time.Time, bool)

var timestampResolvers = []timestampResolver{
	journalTimestamp,
	timeCreatedTimestamp,
	genericTimestamp,
}

func resolveTimestamp(r event.RawRecord) (time.Time, bool) {
	for _, fn := range timestampResolvers {
		if ts, ok := fn(r); ok {
			return ts, true
		}
	}
	return time.Time{}, false
}

// journalTimestamp decodes journald epoch microseconds
func journalTimestamp(r event.RawRecord) (time.Time, bool) {
	val, ok := r.Get(fieldJournalRealtime)
	if !ok {
		return time.Time{}, false
	}
	s, ok := utils.Stringify(val)
	if !ok {
		return time.Time{}, false
	}
	us, err := strconv.ParseInt(reDigits.FindString(s), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMicro(us).UTC(), true
}

func timeCreatedTimestamp(r event.RawRecord) (time.Time, bool) {
	val, ok := r.Get(fieldTimeCreated)
	if !ok {
		return time.Time{}, false
	}
	if nested, ok := val.(map[string]interface{}); ok {
		val = nil
		for _, key := range timeCreatedKeys {
			if v, ok := utils.GetField(key, nested); ok {
				if _, ok := utils.Stringify(v); ok {
					val = v
					break
				}
			}
		}
	}
	s, ok := utils.Stringify(val)
	if !ok {
		return time.Time{}, false
	}
	if m := reDotNetEpoch.FindStringSubmatch(s); m != nil {
		if ms, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
	}
	return parseLenient(s)
}

func genericTimestamp(r event.RawRecord) (time.Time, bool) {
	for _, key := range genericTimeKeys {
		val, ok := r.Get(key)
		if !ok {
			continue
		}
		s, ok := utils.Stringify(val)
		if !ok {
			continue
		}
		if ts, ok := parseLenient(s); ok {
			return ts, true
		}
	}
	return time.Time{}, false
}

// parseLenient accepts bare epochs and free text dates, discarding any zone information
func parseLenient(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if reAllDigits.MatchString(s) && len(s) >= 10 {
		return parseEpoch(s)
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return naive(ts), true
	}
	ts, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return naive(ts), true
}

// parseEpoch guesses precision from digit count: seconds, millis, micros or nanos
func parseEpoch(s string) (time.Time, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	switch l := len(s); {
	case l <= 10:
		return time.Unix(n, 0).UTC(), true
	case l <= 13:
		return time.UnixMilli(n).UTC(), true
	case l <= 16:
		return time.UnixMicro(n).UTC(), true
	default:
		return time.Unix(0, n).UTC(), true
	}
}

// naive keeps the wall clock reading and drops the zone
func naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
