package entity

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var priorities = []string{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}

func waiting(id, priority string) *QueueEntry {
	return &QueueEntry{QueueID: id, Status: QueueStatusWaiting, Priority: priority}
}

func ids(line []*QueueEntry) []string {
	out := make([]string, len(line))
	for i, e := range line {
		out[i] = e.QueueID
	}
	return out
}

func TestInsertIndexByPriority(t *testing.T) {
	var line []*QueueEntry
	for _, e := range []*QueueEntry{
		waiting("a", PriorityNormal),
		waiting("b", PriorityNormal),
		waiting("c", PriorityUrgent),
		waiting("d", PriorityLow),
		waiting("e", PriorityHigh),
		waiting("f", PriorityNormal),
	} {
		line = Insert(line, e, InsertIndex(line, e.Priority))
	}
	assert.Equal(t, []string{"c", "e", "a", "b", "f", "d"}, ids(line))
	for i, e := range line {
		assert.Equal(t, i+1, e.Position)
	}
}

func TestPausedEntryKeepsFront(t *testing.T) {
	paused := &QueueEntry{QueueID: "p", Status: QueueStatusPaused, Priority: PriorityLow}
	line := Insert(nil, paused, 0)
	urgent := waiting("u", PriorityUrgent)
	line = Insert(line, urgent, InsertIndex(line, urgent.Priority))
	assert.Equal(t, []string{"p", "u"}, ids(line))
	assert.Equal(t, urgent, NextWaiting(line))
}

func TestMove(t *testing.T) {
	var line []*QueueEntry
	for _, id := range []string{"a", "b", "c", "d"} {
		line = Insert(line, waiting(id, PriorityNormal), len(line))
	}

	moved, err := Move(line, "d", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "d", "b", "c"}, ids(moved))

	moved, err = Move(moved, "a", 99)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "b", "c", "a"}, ids(moved))
	assert.Equal(t, 4, moved[3].Position)

	_, err = Move(moved, "a", 0)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	_, err = Move(moved, "zz", 1)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestEntryTransitions(t *testing.T) {
	now := time.Now()
	e := waiting("a", PriorityNormal)
	e.Position = 3

	assert.True(t, errors.Is(e.Complete(now), apperr.ErrConflict))
	require.NoError(t, e.Start(now))
	assert.Equal(t, PositionRunning, e.Position)
	assert.True(t, errors.Is(e.Start(now), apperr.ErrConflict))

	require.NoError(t, e.Pause())
	assert.True(t, e.InLine())
	require.NoError(t, e.Resume())
	assert.Equal(t, QueueStatusWaiting, e.Status)

	require.NoError(t, e.Cancel("machine down", now))
	assert.Equal(t, PositionNone, e.Position)
	assert.True(t, errors.Is(e.Cancel("again", now), apperr.ErrConflict))
}

// Inserting any sequence keeps the line dense and ordered by priority, with
// arrival order inside each priority.
func TestInsertOrderingProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 40).Draw(t, "n")
		var line []*QueueEntry
		for i := 0; i < n; i++ {
			p := rapid.SampledFrom(priorities).Draw(t, "priority")
			e := waiting(fmt.Sprintf("%03d", i), p)
			line = Insert(line, e, InsertIndex(line, p))
		}

		for i, e := range line {
			if e.Position != i+1 {
				t.Fatalf("position %d at index %d", e.Position, i)
			}
			if i == 0 {
				continue
			}
			prev := line[i-1]
			pr, cr := PriorityRank(prev.Priority), PriorityRank(e.Priority)
			if pr < cr {
				t.Fatalf("%s (%s) ahead of %s (%s)", prev.QueueID, prev.Priority, e.QueueID, e.Priority)
			}
			if pr == cr && prev.QueueID > e.QueueID {
				t.Fatalf("arrival order broken: %s before %s", prev.QueueID, e.QueueID)
			}
		}
	})
}

// Move and Remove never lose or duplicate entries.
func TestMoveRemoveProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(t, "n")
		var line []*QueueEntry
		for i := 0; i < n; i++ {
			line = Insert(line, waiting(fmt.Sprintf("%02d", i), PriorityNormal), len(line))
		}

		ops := rapid.IntRange(0, 30).Draw(t, "ops")
		for i := 0; i < ops && len(line) > 0; i++ {
			target := line[rapid.IntRange(0, len(line)-1).Draw(t, "target")].QueueID
			if rapid.Bool().Draw(t, "remove") {
				line = Remove(line, target)
				n--
				continue
			}
			pos := rapid.IntRange(1, len(line)+5).Draw(t, "pos")
			moved, err := Move(line, target, pos)
			if err != nil {
				t.Fatalf("move: %v", err)
			}
			line = moved
			want := pos
			if want > len(line) {
				want = len(line)
			}
			if line[want-1].QueueID != target {
				t.Fatalf("expected %s at %d", target, want)
			}
		}

		if len(line) != n {
			t.Fatalf("expected %d entries, got %d", n, len(line))
		}
		seen := map[string]bool{}
		for i, e := range line {
			if seen[e.QueueID] {
				t.Fatalf("duplicate %s", e.QueueID)
			}
			seen[e.QueueID] = true
			if e.Position != i+1 {
				t.Fatalf("position %d at index %d", e.Position, i)
			}
		}
	})
}
