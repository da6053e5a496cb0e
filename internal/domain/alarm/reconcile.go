package alarm

import "time"

// Reconcile diffs the current snapshot against the seen set.
//
// It returns the records whose keys have not been surfaced yet, in snapshot
// order, and the carried-over seen set: entries present in the snapshot get
// their LastSeen refreshed to now, entries absent from it are dropped once
// now-LastSeen reaches grace (a zero grace drops them immediately, making a
// recurring alarm eligible to re-fire).
//
// New keys are deliberately NOT part of the returned set. The caller commits
// each one individually after its notification succeeded, so an alarm whose
// notification failed is re-detected on the next cycle.
//
// Reconcile is a pure function of its arguments: no I/O, no hidden state,
// inputs are never mutated.
func Reconcile(current []Record, seen SeenSet, now time.Time, grace time.Duration) ([]Record, SeenSet) {
	present := make(map[string]struct{}, len(current))

	var fresh []Record

	for _, record := range current {
		if _, duplicate := present[record.Key]; duplicate {
			// The PLC may list an alarm twice during a refresh; one
			// notification per key per appearance.
			continue
		}

		present[record.Key] = struct{}{}

		if !seen.Contains(record.Key) {
			fresh = append(fresh, record)
		}
	}

	updated := make(SeenSet, len(seen))

	for key, entry := range seen {
		if _, ok := present[key]; ok {
			entry.LastSeen = now
			updated[key] = entry

			continue
		}

		// Cleared alarm: retain within the grace window so one flaky
		// scrape row does not re-arm the notification.
		if now.Sub(entry.LastSeen) < grace {
			updated[key] = entry
		}
	}

	return fresh, updated
}
