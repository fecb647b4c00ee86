package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the lifecycle events emitted during a run
type EventType string

const (
	EventWorkflowStarted   EventType = "workflow.started"
	EventWorkflowCompleted EventType = "workflow.completed"
	EventWorkflowStopped   EventType = "workflow.stopped"
	EventTaskDispatched    EventType = "task.dispatched"
	EventTaskCompleted     EventType = "task.completed"
	EventTaskFailed        EventType = "task.failed"
	EventTaskSkipped       EventType = "task.skipped"
	EventRouterDecision    EventType = "router.decision"
)

// Event represents a lifecycle or audit event of a workflow run
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	TaskType  TaskType       `json:"task_type,omitempty"`
	Worker    string         `json:"worker,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// NewEvent builds an event for a run. A task may be nil.
func NewEvent(typ EventType, st *State, task *Task, data map[string]any) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: time.Now(),
		Data:      data,
	}
	if st != nil {
		ev.RunID = st.RunID
		ev.Timestamp = st.Now()
	}
	if task != nil {
		ev.TaskID = task.ID
		ev.TaskType = task.Type
		ev.Worker = string(task.AssignedTo)
		ev.Error = task.Error
	}
	return ev
}

// ToJSON converts the event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON converts JSON bytes to an Event
func (e *Event) FromJSON(data []byte) error {
	return json.Unmarshal(data, e)
}

// ToJSON converts the state to JSON bytes
func (s *State) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// FromJSON converts JSON bytes to a State
func (s *State) FromJSON(data []byte) error {
	return json.Unmarshal(data, s)
}

// Debug returns a pretty-printed string representation of the state
func (s *State) Debug() string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "Error marshaling State: " + err.Error()
	}
	return string(data)
}
