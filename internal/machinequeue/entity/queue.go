package entity

import (
	"time"

	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
)

var priorityRank = map[string]int{
	PriorityLow:    0,
	PriorityNormal: 1,
	PriorityHigh:   2,
	PriorityUrgent: 3,
}

func ValidPriority(p string) bool {
	_, ok := priorityRank[p]
	return ok
}

// PriorityRank orders priorities; unknown values rank as normal.
func PriorityRank(p string) int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return priorityRank[PriorityNormal]
}

// InsertIndex returns where an entry of the given priority joins line
// (ordered by position). It goes after the last paused entry and after the
// last waiting entry ranked at or above it, so equal priorities keep
// arrival order.
func InsertIndex(line []*QueueEntry, priority string) int {
	rank := PriorityRank(priority)
	idx := 0
	for i, e := range line {
		if e.Status == QueueStatusPaused || PriorityRank(e.Priority) >= rank {
			idx = i + 1
		}
	}
	return idx
}

// Insert places e at idx and renumbers the line.
func Insert(line []*QueueEntry, e *QueueEntry, idx int) []*QueueEntry {
	if idx < 0 {
		idx = 0
	}
	if idx > len(line) {
		idx = len(line)
	}
	out := make([]*QueueEntry, 0, len(line)+1)
	out = append(out, line[:idx]...)
	out = append(out, e)
	out = append(out, line[idx:]...)
	Resequence(out)
	return out
}

// Remove drops the entry with queueID and renumbers the rest.
func Remove(line []*QueueEntry, queueID string) []*QueueEntry {
	out := make([]*QueueEntry, 0, len(line))
	for _, e := range line {
		if e.QueueID != queueID {
			out = append(out, e)
		}
	}
	Resequence(out)
	return out
}

// Move puts the entry with queueID at 1-based position, clamped to the
// line length.
func Move(line []*QueueEntry, queueID string, position int) ([]*QueueEntry, error) {
	if position < 1 {
		return nil, apperr.Validation("position must be at least 1")
	}
	var target *QueueEntry
	for _, e := range line {
		if e.QueueID == queueID {
			target = e
			break
		}
	}
	if target == nil {
		return nil, apperr.Conflict("entry %s is not waiting in line", queueID)
	}
	rest := Remove(line, queueID)
	return Insert(rest, target, position-1), nil
}

// Resequence numbers line 1..n in slice order.
func Resequence(line []*QueueEntry) {
	for i, e := range line {
		e.Position = i + 1
	}
}

// NextWaiting returns the first waiting entry of line, or nil.
func NextWaiting(line []*QueueEntry) *QueueEntry {
	for _, e := range line {
		if e.Status == QueueStatusWaiting {
			return e
		}
	}
	return nil
}

// Start moves a waiting entry to position 0.
func (e *QueueEntry) Start(now time.Time) error {
	if e.Status != QueueStatusWaiting {
		return apperr.Conflict("queue entry %s is %s, only waiting entries can start", e.QueueID, e.Status)
	}
	e.Status = QueueStatusInProgress
	e.Position = PositionRunning
	e.ActualStart = &now
	return nil
}

func (e *QueueEntry) Complete(now time.Time) error {
	if e.Status != QueueStatusInProgress {
		return apperr.Conflict("queue entry %s is %s, only in-progress entries can complete", e.QueueID, e.Status)
	}
	e.Status = QueueStatusCompleted
	e.Position = PositionNone
	e.ActualEnd = &now
	return nil
}

// Pause sends an in-progress entry back to the front of the line. The
// caller inserts it at index 0.
func (e *QueueEntry) Pause() error {
	if e.Status != QueueStatusInProgress {
		return apperr.Conflict("queue entry %s is %s, only in-progress entries can pause", e.QueueID, e.Status)
	}
	e.Status = QueueStatusPaused
	return nil
}

func (e *QueueEntry) Resume() error {
	if e.Status != QueueStatusPaused {
		return apperr.Conflict("queue entry %s is %s, only paused entries can resume", e.QueueID, e.Status)
	}
	e.Status = QueueStatusWaiting
	return nil
}

func (e *QueueEntry) Cancel(reason string, now time.Time) error {
	if !e.IsActive() {
		return apperr.Conflict("queue entry %s is already %s", e.QueueID, e.Status)
	}
	e.Status = QueueStatusCancelled
	e.Position = PositionNone
	e.CancelReason = reason
	e.ActualEnd = &now
	return nil
}
