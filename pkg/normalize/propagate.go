package normalize

import (
	"sort"

	"github.com/markuskont/go-mini-siem/pkg/event"
)

// propagateTTYUser fills sudo actors from neighbouring lines on the same terminal
// Lines are ordered by time per tty, gaps are filled forward first and then backward
func propagateTTYUser(events []event.Event) {
	byTTY := make(map[string][]int)
	for i := range events {
		if events[i].Source == event.SourceSudo && events[i].TTY != "" {
			byTTY[events[i].TTY] = append(byTTY[events[i].TTY], i)
		}
	}
	for _, idx := range byTTY {
		sort.SliceStable(idx, func(a, b int) bool {
			return events[idx[a]].Timestamp.Before(events[idx[b]].Timestamp)
		})
		filled := make([]string, len(idx))
		var last string
		for k, i := range idx {
			if events[i].User != "" {
				last = events[i].User
			}
			filled[k] = last
		}
		var next string
		for k := len(idx) - 1; k >= 0; k-- {
			if filled[k] != "" {
				next = filled[k]
			} else {
				filled[k] = next
			}
		}
		for k, i := range idx {
			if events[i].User == "" {
				events[i].User = filled[k]
			}
		}
	}
}
