package domain

import "time"

type TaskEventType string

const (
	TaskCreated TaskEventType = "task.created"
	TaskUpdated TaskEventType = "task.updated"
	TaskDeleted TaskEventType = "task.deleted"
)

type TaskEvent struct {
	Type       TaskEventType `json:"type"`
	UserID     string        `json:"userId"`
	TaskID     string        `json:"taskId"`
	Task       *TaskResponse `json:"task,omitempty"`
	OccurredAt time.Time     `json:"occurredAt"`
}
