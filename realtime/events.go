package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-task-client/tasks"
	"github.com/jrsteele09/go-task-client/users"
)

// Kind is the closed set of server events the bridge forwards.
type Kind string

const (
	KindTaskCreated      Kind = "task_created"
	KindTaskUpdated      Kind = "task_updated"
	KindTaskDeleted      Kind = "task_deleted"
	KindTasksBulkUpdated Kind = "tasks_bulk_updated"
	KindTasksBulkDeleted Kind = "tasks_bulk_deleted"
	KindUserUpdated      Kind = "user_updated"
	KindNotification     Kind = "notification"
)

var allKinds = []Kind{
	KindTaskCreated,
	KindTaskUpdated,
	KindTaskDeleted,
	KindTasksBulkUpdated,
	KindTasksBulkDeleted,
	KindUserUpdated,
	KindNotification,
}

// Outbound event names.
const (
	eventJoinUserRoom = "join_user_room"
	eventJoinRoom     = "join_room"
	eventLeaveRoom    = "leave_room"
)

var (
	ErrUnknownEvent = errors.New("unknown realtime event")
	ErrWrongKind    = errors.New("event payload requested for the wrong kind")
)

// Kinds returns every event kind.
func Kinds() []Kind {
	return append([]Kind(nil), allKinds...)
}

func (k Kind) Valid() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

// frame is the wire shape in both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is a normalized inbound event. Data is the raw payload; use the typed
// accessors to decode it.
type Event struct {
	Kind       Kind
	Data       json.RawMessage
	ReceivedAt time.Time
}

// BulkChange is the payload of the bulk events.
type BulkChange struct {
	TaskIDs    []string        `json:"taskIds"`
	UpdateData json.RawMessage `json:"updateData,omitempty"`
}

func decodeFrame(raw []byte, receivedAt time.Time) (Event, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Event{}, fmt.Errorf("decode frame: %w", err)
	}
	kind := Kind(f.Event)
	if !kind.Valid() {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}
	return Event{Kind: kind, Data: f.Data, ReceivedAt: receivedAt}, nil
}

func encodeFrame(event string, data any) ([]byte, error) {
	f := frame{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		f.Data = raw
	}
	return json.Marshal(f)
}

// Task decodes the payload of task_created and task_updated.
func (e Event) Task() (tasks.Task, error) {
	var t tasks.Task
	if e.Kind != KindTaskCreated && e.Kind != KindTaskUpdated {
		return t, fmt.Errorf("%w: %s", ErrWrongKind, e.Kind)
	}
	err := json.Unmarshal(e.Data, &t)
	return t, err
}

// TaskID decodes the payload of task_deleted, which the server sends either as
// a bare id or as {"taskId": id}.
func (e Event) TaskID() (string, error) {
	if e.Kind != KindTaskDeleted {
		return "", fmt.Errorf("%w: %s", ErrWrongKind, e.Kind)
	}
	var id string
	if err := json.Unmarshal(e.Data, &id); err == nil {
		return id, nil
	}
	var wrapped struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(e.Data, &wrapped); err != nil {
		return "", err
	}
	return wrapped.TaskID, nil
}

func (e Event) Bulk() (BulkChange, error) {
	var b BulkChange
	if e.Kind != KindTasksBulkUpdated && e.Kind != KindTasksBulkDeleted {
		return b, fmt.Errorf("%w: %s", ErrWrongKind, e.Kind)
	}
	err := json.Unmarshal(e.Data, &b)
	return b, err
}

func (e Event) User() (users.Profile, error) {
	var p users.Profile
	if e.Kind != KindUserUpdated {
		return p, fmt.Errorf("%w: %s", ErrWrongKind, e.Kind)
	}
	err := json.Unmarshal(e.Data, &p)
	return p, err
}
