package types

import (
	"errors"
	"fmt"
)

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusSkipped    TaskStatus = "skipped"
)

// ErrInvalidTransition is returned when a task is moved against its lifecycle
var ErrInvalidTransition = errors.New("invalid task transition")

var allowedTransitions = map[TaskStatus]map[TaskStatus]struct{}{
	TaskStatusPending: {
		TaskStatusInProgress: {},
		TaskStatusSkipped:    {},
	},
	TaskStatusInProgress: {
		TaskStatusCompleted: {},
		TaskStatusFailed:    {},
		TaskStatusSkipped:   {},
	},
	TaskStatusCompleted: {},
	TaskStatusFailed:    {},
	TaskStatusSkipped:   {},
}

// IsTerminal reports whether no further transition is possible
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped:
		return true
	}
	return false
}

// IsInFlight reports whether a task with this status still holds its stage
func (s TaskStatus) IsInFlight() bool {
	return s == TaskStatusPending || s == TaskStatusInProgress
}

// ValidateTransition checks that a task may move from one status to another
func ValidateTransition(from, to TaskStatus) error {
	next, ok := allowedTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, from)
	}
	if _, ok := next[to]; !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
