package normalize

import (
	"regexp"
	"strings"

	"github.com/markuskont/go-mini-siem/pkg/event"
	"github.com/markuskont/go-mini-siem/pkg/metrics"
	"github.com/markuskont/go-mini-siem/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const mtimeCacheSize = 1024

var (
	eventIDKeys = []string{"EventID", "Id", "event_id"}
	hostKeys    = []string{"Computer", "MachineName", "_HOSTNAME", "Hostname", "ComputerName"}
	// raw is the single column produced by line based ingestion
	messageKeys = []string{"Message", "msg", "MESSAGE", "raw"}

	// BSD syslog or RFC3339 header in raw text lines, used to recover the program name
	reSyslogProgram = regexp.MustCompile(
		`^(?:<\d+>)?(?:[A-Z][a-z]{2}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2}|\d{4}-\d{2}-\d{2}T\S+)\s+\S+\s+([\w./-]+?)(?:\[(\d+)\])?:\s`)
)

// recordState is scratch space for a record that is being normalized
type recordState struct {
	ev         *event.Event
	body       string // message without a leading syslog timestamp and host
	identifier string
	unit       string
	journal    bool
}

// Normalizer maps raw records of any supported family onto the canonical event schema
type Normalizer struct {
	clock   Clock
	fs      afero.Fs
	mtimes  *mtimeCache
	metrics *metrics.Run
	log     logrus.FieldLogger
}

// Option configures a Normalizer
type Option func(*Normalizer)

// WithClock replaces the wall clock used for the last timestamp fallback
func WithClock(c Clock) Option {
	return func(n *Normalizer) { n.clock = c }
}

// WithFs sets the filesystem used for origin file modification times
func WithFs(fs afero.Fs) Option {
	return func(n *Normalizer) { n.fs = fs }
}

// WithMetrics enables run counters
func WithMetrics(m *metrics.Run) Option {
	return func(n *Normalizer) { n.metrics = m }
}

// WithLogger sets the logger, logrus standard logger is used by default
func WithLogger(l logrus.FieldLogger) Option {
	return func(n *Normalizer) { n.log = l }
}

// New instanciates a Normalizer
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		clock: systemClock{},
		fs:    afero.NewOsFs(),
		log:   logrus.StandardLogger(),
	}
	for _, fn := range opts {
		fn(n)
	}
	n.mtimes = newMtimeCache(n.fs, mtimeCacheSize)
	return n
}

// Normalize converts every record into exactly one event
// Malformed fields degrade to absent values, a single record never fails the batch
func (n *Normalizer) Normalize(records []event.RawRecord) []event.Event {
	out := make([]event.Event, len(records))
	for i, r := range records {
		out[i] = n.normalizeRecord(r)
	}
	propagateTTYUser(out)
	if n.metrics != nil {
		for _, e := range out {
			n.metrics.EventsTotal.WithLabelValues(sourceLabel(e.Source)).Inc()
		}
	}
	return out
}

func (n *Normalizer) normalizeRecord(r event.RawRecord) event.Event {
	ev := &event.Event{OriginFile: r.OriginFile}
	s := &recordState{
		ev:      ev,
		journal: r.Has(fieldJournalRealtime),
	}

	ts, native := resolveTimestamp(r)
	ev.Timestamp = ts

	if val, ok := firstValue(r, eventIDKeys, func(v interface{}) bool {
		_, ok := utils.ToInt(v)
		return ok
	}); ok {
		id, _ := utils.ToInt(val)
		ev.EventID = &id
	}
	ev.User = firstString(r, "TargetUserName")
	ev.Host = firstString(r, hostKeys...)
	ev.Message = firstString(r, messageKeys...)

	s.identifier = strings.ToLower(firstString(r, "SYSLOG_IDENTIFIER"))
	s.unit = strings.ToLower(firstString(r, "_SYSTEMD_UNIT"))
	ev.PID = firstString(r, "_PID")
	ev.Process = firstString(r, "_COMM")
	s.body = ev.Message
	if m := reSyslogProgram.FindStringSubmatchIndex(ev.Message); m != nil {
		// timestamp and host are dropped, program[pid]: stays for the extractors
		s.body = ev.Message[m[2]:]
		if s.identifier == "" {
			s.identifier = strings.ToLower(ev.Message[m[2]:m[3]])
			if ev.PID == "" && m[4] >= 0 {
				ev.PID = ev.Message[m[4]:m[5]]
			}
		}
	}

	if !native {
		n.backfillTimestamp(ev)
	}

	classify(s)
	extractFamily(ev, s.body)
	return *ev
}

// backfillTimestamp resolves missing timestamps from file mtime, then from the clock
func (n *Normalizer) backfillTimestamp(e *event.Event) {
	if ts, ok := n.mtimes.lookup(e.OriginFile); ok {
		e.Timestamp = ts
		e.TimestampOrigin = event.TimestampMtime
	} else {
		e.Timestamp = naive(n.clock.Now().UTC())
		e.TimestampOrigin = event.TimestampClock
	}
	n.log.WithFields(logrus.Fields{
		"file":  e.OriginFile,
		"stage": e.TimestampOrigin.String(),
	}).Trace("timestamp backfilled")
	if n.metrics != nil {
		n.metrics.TimestampFallbacks.WithLabelValues(e.TimestampOrigin.String()).Inc()
	}
}

func firstValue(r event.RawRecord, keys []string, valid func(interface{}) bool) (interface{}, bool) {
	for _, key := range keys {
		if val, ok := r.Get(key); ok && valid(val) {
			return val, true
		}
	}
	return nil, false
}

// firstString returns the first non-empty value among keys in string form
func firstString(r event.RawRecord, keys ...string) string {
	val, ok := firstValue(r, keys, func(v interface{}) bool {
		_, ok := utils.Stringify(v)
		return ok
	})
	if !ok {
		return ""
	}
	s, _ := utils.Stringify(val)
	return s
}

func sourceLabel(source string) string {
	if source == "" {
		return "unclassified"
	}
	return source
}
