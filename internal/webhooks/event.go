package webhooks

import (
	"time"

	"github.com/google/uuid"
)

// Event is the JSON body of one delivery.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// TaskData describes the task an event refers to.
type TaskData struct {
	Type       string `json:"type"`
	Repository string `json:"repository"`
	Number     int    `json:"number,omitempty"`
	User       string `json:"user,omitempty"`
	Command    string `json:"command,omitempty"`
	GitHubURL  string `json:"github_url,omitempty"`
}

// TaskStartedData is the payload for task.started.
type TaskStartedData struct {
	TaskData
	StartedAt time.Time `json:"started_at"`
}

// TaskCompletedData is the payload for task.completed.
type TaskCompletedData struct {
	TaskData
	DurationMS int64  `json:"duration_ms"`
	Preview    string `json:"preview,omitempty"`
}

// TaskFailedData is the payload for task.failed.
type TaskFailedData struct {
	TaskData
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error"`
	ErrorID    string `json:"error_id,omitempty"`
}

// NewEvent stamps data with a fresh ID and the current time.
func NewEvent(eventType EventType, data any) *Event {
	return &Event{
		ID:        "evt_" + uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}
