package engine

import (
	"strings"

	"quipbot/internal/trigger"
)

// Match returns every stored record whose trigger occurs as a contiguous
// substring of the message, compared case-insensitively. Results keep the
// store's iteration order (insertion order for all shipped drivers).
//
// The scan is linear over triggers times message length. At the scale this
// bot runs at that is deliberate; no index is maintained.
func Match(text string, all []trigger.Record) []trigger.Record {
	msg := strings.ToLower(text)
	if msg == "" {
		return nil
	}

	var hits []trigger.Record
	for _, r := range all {
		if r.Trigger == "" {
			continue
		}
		if strings.Contains(msg, r.Trigger) {
			hits = append(hits, r)
		}
	}
	return hits
}
