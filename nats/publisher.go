package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/GraphResearcher/AutoData/types"
)

// Subjects and stream used for run events and reports
const (
	EventStreamName     = "AUTODATA"
	EventSubjectPrefix  = "AUTODATA.Events"
	ReportSubjectPrefix = "AUTODATA.Reports"
)

// ErrNilPublisher is returned when an EventPublisher has no connection
var ErrNilPublisher = errors.New("nil publisher")

// Publisher is the fire-and-forget part of a NATS connection. *Client and
// *nats.Conn both satisfy it.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// EventPublisher sends lifecycle events as JSON to AUTODATA.Events.<type>
type EventPublisher struct {
	pub Publisher
}

// NewEventPublisher wraps a connection
func NewEventPublisher(pub Publisher) *EventPublisher {
	return &EventPublisher{pub: pub}
}

// EventSubject returns the subject an event type is published on
func EventSubject(t types.EventType) string {
	return fmt.Sprintf("%s.%s", EventSubjectPrefix, t)
}

// ReportSubject returns the subject a run report is published on
func ReportSubject(runID string) string {
	return fmt.Sprintf("%s.%s", ReportSubjectPrefix, runID)
}

// Publish marshals and publishes one event
func (p *EventPublisher) Publish(ctx context.Context, ev types.Event) error {
	if p == nil || p.pub == nil {
		return ErrNilPublisher
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := ev.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", ev.Type, err)
	}
	return p.pub.Publish(EventSubject(ev.Type), data)
}

// EventStreamConfig captures events and reports so runs can be replayed
func EventStreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        EventStreamName,
		Description: "AutoData run events and reports",
		Subjects:    []string{EventSubjectPrefix + ".>", ReportSubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		Storage:     jetstream.FileStorage,
		MaxAge:      7 * 24 * time.Hour,
	}
}
