package alarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// record builds a Record with a key derived the same way the source adapter does.
func record(ref, plcTime, label string) Record {
	return Record{
		Key:         NewRecordKey(ref, plcTime, "Ocurrido", "1", label),
		Timestamp:   plcTime,
		Description: label,
		RawFields:   []string{ref, "Digital", "1", "Ocurrido", "Activa"},
	}
}

// TestReconcile_NewAndKnown splits a snapshot into fresh and already-seen keys.
func TestReconcile_NewAndKnown(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	known := record("A1", "10:00:00", "Fallo quemador")
	fresh := record("A2", "10:05:00", "Temperatura alta")

	seen := NewSeenSet()
	seen.Mark(known.Key, now.Add(-time.Minute))

	got, updated := Reconcile([]Record{known, fresh}, seen, now, 0)

	require.Len(t, got, 1)
	require.Equal(t, fresh.Key, got[0].Key)

	// Known key refreshed, fresh key not committed yet.
	require.True(t, updated.Contains(known.Key))
	require.Equal(t, now, updated[known.Key].LastSeen)
	require.False(t, updated.Contains(fresh.Key))
}

// TestReconcile_Idempotent verifies identical inputs yield identical outputs
// and that inputs are not mutated.
func TestReconcile_Idempotent(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	current := []Record{
		record("A1", "10:00:00", "Fallo quemador"),
		record("A2", "10:05:00", "Temperatura alta"),
	}

	seen := NewSeenSet()
	seen.Mark(current[0].Key, now.Add(-time.Hour))
	before := seen.Clone()

	first, firstSet := Reconcile(current, seen, now, 0)
	second, secondSet := Reconcile(current, seen, now, 0)

	require.Equal(t, first, second)
	require.Equal(t, firstSet, secondSet)
	require.Equal(t, before, seen)
}

// TestReconcile_OrderPreserved keeps snapshot order for new alarms regardless
// of seen-set iteration order.
func TestReconcile_OrderPreserved(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	current := []Record{
		record("C3", "10:09:00", "Presion baja"),
		record("A1", "10:07:00", "Fallo quemador"),
		record("B2", "10:08:00", "Temperatura alta"),
	}

	fresh, _ := Reconcile(current, NewSeenSet(), now, 0)

	require.Len(t, fresh, 3)
	for i, r := range current {
		require.Equal(t, r.Key, fresh[i].Key)
	}
}

// TestReconcile_DuplicateRows collapses a key repeated within one snapshot.
func TestReconcile_DuplicateRows(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	r := record("A1", "10:00:00", "Fallo quemador")

	fresh, _ := Reconcile([]Record{r, r}, NewSeenSet(), now, 0)
	require.Len(t, fresh, 1)
}

// TestReconcile_PruneImmediate drops cleared keys with zero grace so a
// recurring alarm re-fires.
func TestReconcile_PruneImmediate(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	r := record("A1", "10:00:00", "Fallo quemador")

	seen := NewSeenSet()
	seen.Mark(r.Key, now.Add(-time.Minute))

	// Alarm cleared from the snapshot.
	fresh, updated := Reconcile(nil, seen, now, 0)
	require.Empty(t, fresh)
	require.Empty(t, updated)

	// Same condition recurs: treated as new again.
	fresh, _ = Reconcile([]Record{r}, updated, now.Add(time.Minute), 0)
	require.Len(t, fresh, 1)
}

// TestReconcile_GraceRetainsTransientAbsence keeps a cleared key within the
// grace window and drops it after.
func TestReconcile_GraceRetainsTransientAbsence(t *testing.T) {
	t.Parallel()

	grace := 5 * time.Minute
	now := time.Unix(1000, 0)
	r := record("A1", "10:00:00", "Fallo quemador")

	seen := NewSeenSet()
	seen.Mark(r.Key, now)

	// Absent but within grace: retained, so a reappearance is not "new".
	_, updated := Reconcile(nil, seen, now.Add(time.Minute), grace)
	require.True(t, updated.Contains(r.Key))

	fresh, _ := Reconcile([]Record{r}, updated, now.Add(2*time.Minute), grace)
	require.Empty(t, fresh)

	// Absent beyond grace: dropped.
	_, updated = Reconcile(nil, seen, now.Add(grace), grace)
	require.False(t, updated.Contains(r.Key))
}

// TestReconcile_EmptySnapshot drains the set per the pruning policy.
func TestReconcile_EmptySnapshot(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	seen := NewSeenSet()
	seen.Mark("a", now.Add(-time.Hour))
	seen.Mark("b", now.Add(-time.Hour))

	fresh, updated := Reconcile([]Record{}, seen, now, 0)
	require.Empty(t, fresh)
	require.Empty(t, updated)
}

// TestSeenSet_MarkKeepsFirstSeen verifies refreshing only moves LastSeen.
func TestSeenSet_MarkKeepsFirstSeen(t *testing.T) {
	t.Parallel()

	first := time.Unix(100, 0)
	later := time.Unix(200, 0)

	seen := NewSeenSet()
	seen.Mark("a", first)
	seen.Mark("a", later)

	require.Equal(t, first, seen["a"].FirstSeen)
	require.Equal(t, later, seen["a"].LastSeen)
}

// TestRecord_Field tolerates short rows.
func TestRecord_Field(t *testing.T) {
	t.Parallel()

	r := Record{RawFields: []string{"A1", "Digital"}}
	require.Equal(t, "A1", r.Field(FieldRef))
	require.Equal(t, "Digital", r.Field(FieldType))
	require.Empty(t, r.Field(FieldState))
	require.Empty(t, r.Field(-1))
}
