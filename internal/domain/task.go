package domain

import (
	"encoding/json"
	"time"
)

// TaskType names the pipeline a task runs. It is also the engine upload subfolder.
type TaskType string

const TaskTypeImage2Poster TaskType = "image2poster"

// TaskStatus enumerates task lifecycle states.
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether no further transitions happen.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}

// Task is one queued poster request.
type Task struct {
	ID        string
	Type      TaskType
	Status    TaskStatus
	Request   json.RawMessage
	Result    json.RawMessage
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
