package alarm

import "time"

// SeenEntry records when an alarm key was first and most recently observed.
// LastSeen drives grace-delay pruning after the alarm clears.
type SeenEntry struct {
	FirstSeen time.Time
	LastSeen  time.Time
}

// SeenSet is the durable record of alarm keys already surfaced to the user.
type SeenSet map[string]SeenEntry

// NewSeenSet returns an empty seen set.
func NewSeenSet() SeenSet {
	return make(SeenSet)
}

// Contains reports whether the key has already been surfaced.
func (s SeenSet) Contains(key string) bool {
	_, ok := s[key]

	return ok
}

// Mark adds the key or refreshes its LastSeen, keeping the original FirstSeen.
func (s SeenSet) Mark(key string, now time.Time) {
	entry, ok := s[key]
	if !ok {
		entry.FirstSeen = now
	}

	entry.LastSeen = now
	s[key] = entry
}

// Clone returns a copy that shares no storage with the receiver.
func (s SeenSet) Clone() SeenSet {
	cloned := make(SeenSet, len(s))
	for key, entry := range s {
		cloned[key] = entry
	}

	return cloned
}
