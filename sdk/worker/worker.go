package worker

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/GraphResearcher/AutoData/types"
)

// Handler is implemented by every data-collection worker. Execute receives
// the run state with its current task set to a task of GetTaskType, settles
// that task and returns the updated state. A returned error marks the task
// failed when the worker did not settle it itself.
type Handler interface {
	Execute(ctx context.Context, st *types.State) (*types.State, error)
	GetTaskType() types.TaskType
}

// Owns reports whether the state's current task belongs to a worker of the
// given type. Workers return the state unchanged when it does not.
func Owns(st *types.State, t types.TaskType) bool {
	return st != nil && st.CurrentTask != nil && st.CurrentTask.Type == t
}

// Base carries what every worker shares: its task type, role and logger.
type Base struct {
	TaskType types.TaskType
	Role     types.AgentRole
	Logger   *log.Logger
}

// NewBase returns a Base logging with the given prefix. A nil writer
// discards output.
func NewBase(t types.TaskType, prefix string, w io.Writer) Base {
	if w == nil {
		w = io.Discard
	}
	return Base{
		TaskType: t,
		Role:     types.RoleFor(t),
		Logger:   log.New(w, prefix, log.LstdFlags),
	}
}

// GetTaskType returns the task type handled by the worker
func (b Base) GetTaskType() types.TaskType {
	return b.TaskType
}

// Fail marks the current task failed and records the error in the state
func (b Base) Fail(st *types.State, msg string, details map[string]any) (*types.State, error) {
	b.logf("Task %s failed: %s", currentID(st), msg)
	if err := st.FailCurrent(string(b.Role), msg, details); err != nil {
		return st, fmt.Errorf("fail task: %w", err)
	}
	return st, nil
}

// Complete marks the current task completed with the given output
func (b Base) Complete(st *types.State, output map[string]any) (*types.State, error) {
	if err := st.CompleteCurrent(output); err != nil {
		return st, fmt.Errorf("complete task: %w", err)
	}
	b.logf("Task %s completed", currentID(st))
	return st, nil
}

// Skip marks the current task skipped with a reason
func (b Base) Skip(st *types.State, reason string, output map[string]any) (*types.State, error) {
	if err := st.SkipCurrent(reason, output); err != nil {
		return st, fmt.Errorf("skip task: %w", err)
	}
	b.logf("Task %s skipped: %s", currentID(st), reason)
	return st, nil
}

// Warn records a non-fatal warning without touching the task
func (b Base) Warn(st *types.State, msg string) {
	b.logf("Warning: %s", msg)
	st.Warn(string(b.Role), msg)
}

func (b Base) logf(format string, args ...any) {
	if b.Logger != nil {
		b.Logger.Printf(format, args...)
	}
}

func currentID(st *types.State) string {
	if st == nil || st.CurrentTask == nil {
		return "<none>"
	}
	return st.CurrentTask.ID
}
