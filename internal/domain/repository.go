package domain

import "context"

// TaskRepository persists poster tasks.
type TaskRepository interface {
	Create(ctx context.Context, task *Task) error
	// Claim moves the oldest queued task to running and returns it, or ErrNotFound when the
	// queue is empty.
	Claim(ctx context.Context) (*Task, error)
	Finish(ctx context.Context, taskID string, result Result) error
	GetByID(ctx context.Context, taskID string) (*Task, error)
}

// AssetRepository handles persistence for stored output images.
type AssetRepository interface {
	Save(ctx context.Context, asset *Asset) error
	ListByTaskID(ctx context.Context, taskID string) ([]Asset, error)
}
