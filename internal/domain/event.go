package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a lifecycle notification.
type EventType string

const (
	EventJobStarted   EventType = "job.started"
	EventJobSucceeded EventType = "job.succeeded"
	EventJobFailed    EventType = "job.failed"
	EventWebhookTest  EventType = "webhook.test"
)

// SupportedEventTypes is the fixed set tenants may subscribe to.
var SupportedEventTypes = []EventType{
	EventJobStarted,
	EventJobSucceeded,
	EventJobFailed,
	EventWebhookTest,
}

// ParseEventType returns the event type named by s, or false if unsupported.
func ParseEventType(s string) (EventType, bool) {
	for _, t := range SupportedEventTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// EventPayload is implemented by every typed event data variant.
type EventPayload interface {
	EventType() EventType
}

// JobStarted is the data of a job.started event.
type JobStarted struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	InputType InputType `json:"inputType"`
}

func (JobStarted) EventType() EventType { return EventJobStarted }

// JobSucceeded is the data of a job.succeeded event.
type JobSucceeded struct {
	JobID           string    `json:"jobId"`
	Status          JobStatus `json:"status"`
	InputType       InputType `json:"inputType"`
	ResultRef       string    `json:"resultRef"`
	ResultSizeBytes int64     `json:"resultSizeBytes"`
}

func (JobSucceeded) EventType() EventType { return EventJobSucceeded }

// JobFailed is the data of a job.failed event.
type JobFailed struct {
	JobID        string    `json:"jobId"`
	Status       JobStatus `json:"status"`
	InputType    InputType `json:"inputType"`
	ErrorCode    string    `json:"errorCode"`
	ErrorMessage string    `json:"errorMessage"`
}

func (JobFailed) EventType() EventType { return EventJobFailed }

// WebhookTest is the data of a synthetic webhook.test event.
type WebhookTest struct {
	Message string `json:"message"`
}

func (WebhookTest) EventType() EventType { return EventWebhookTest }

// LifecycleEvent is a job state change notification carried on the webhook queue.
type LifecycleEvent struct {
	ID        string
	CreatedAt time.Time
	TenantID  string
	Payload   EventPayload
}

// Type returns the event type derived from the payload variant.
func (e *LifecycleEvent) Type() EventType {
	return e.Payload.EventType()
}

// JobID returns the job the event refers to, empty for test events.
func (e *LifecycleEvent) JobID() string {
	switch p := e.Payload.(type) {
	case JobStarted:
		return p.JobID
	case JobSucceeded:
		return p.JobID
	case JobFailed:
		return p.JobID
	default:
		return ""
	}
}

type eventEnvelope struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	CreatedAt time.Time       `json:"createdAt"`
	TenantID  string          `json:"tenantId"`
	Data      json.RawMessage `json:"data"`
}

// MarshalJSON encodes the event as {id, type, createdAt, tenantId, data}.
func (e *LifecycleEvent) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventEnvelope{
		ID:        e.ID,
		Type:      e.Type(),
		CreatedAt: e.CreatedAt.UTC(),
		TenantID:  e.TenantID,
		Data:      data,
	})
}

// ParseLifecycleEvent decodes a queue message into its typed variant.
// Unknown types return an error wrapping ErrUnknownEventType.
func ParseLifecycleEvent(raw []byte) (*LifecycleEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if env.ID == "" || env.TenantID == "" {
		return nil, fmt.Errorf("%w: missing id or tenantId", ErrInvalidPayload)
	}

	var (
		payload EventPayload
		err     error
	)
	switch env.Type {
	case EventJobStarted:
		payload, err = decodeJobPayload[JobStarted](env.Data)
	case EventJobSucceeded:
		payload, err = decodeJobPayload[JobSucceeded](env.Data)
	case EventJobFailed:
		payload, err = decodeJobPayload[JobFailed](env.Data)
	case EventWebhookTest:
		var p WebhookTest
		if len(env.Data) > 0 {
			err = json.Unmarshal(env.Data, &p)
		}
		payload = p
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s data: %v", ErrInvalidPayload, env.Type, err)
	}

	createdAt := env.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return &LifecycleEvent{
		ID:        env.ID,
		CreatedAt: createdAt,
		TenantID:  env.TenantID,
		Payload:   payload,
	}, nil
}

type jobPayload interface {
	JobStarted | JobSucceeded | JobFailed
	EventPayload
}

func decodeJobPayload[T jobPayload](data json.RawMessage) (EventPayload, error) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	ev := LifecycleEvent{Payload: p}
	if ev.JobID() == "" {
		return nil, fmt.Errorf("missing jobId")
	}
	return p, nil
}

// NewEventID returns a unique lifecycle event id.
func NewEventID() string {
	return "evt_" + uuid.NewString()
}

// NewTestEventID returns a unique id for a synthetic test delivery.
func NewTestEventID() string {
	return "evt_test_" + uuid.NewString()
}

// NewLifecycleEvent stamps a payload with a fresh id and the current time.
func NewLifecycleEvent(tenantID string, payload EventPayload) *LifecycleEvent {
	return &LifecycleEvent{
		ID:        NewEventID(),
		CreatedAt: time.Now().UTC(),
		TenantID:  tenantID,
		Payload:   payload,
	}
}
