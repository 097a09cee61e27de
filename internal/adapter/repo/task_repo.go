package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"posterd/internal/domain"
	"posterd/internal/infra"
	"posterd/internal/sqlinline"
)

// TaskRepositoryPG implements domain.TaskRepository on the poster_tasks table.
type TaskRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewTaskRepository creates a task repository backed by PostgreSQL.
func NewTaskRepository(sql infra.SQLExecutor) *TaskRepositoryPG {
	return &TaskRepositoryPG{sql: sql}
}

// Create inserts a queued task, assigning an id when none is set.
func (r *TaskRepositoryPG) Create(ctx context.Context, task *domain.Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Type == "" {
		task.Type = domain.TaskTypeImage2Poster
	}
	if len(task.Request) == 0 {
		return fmt.Errorf("%w: task request is empty", domain.ErrInvalidInput)
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertPosterTask, task.ID, string(task.Type), []byte(task.Request))
	if err := row.Scan(&task.CreatedAt); err != nil {
		return err
	}
	task.Status = domain.TaskStatusQueued
	task.UpdatedAt = task.CreatedAt
	return nil
}

// Claim locks the oldest queued task and marks it running.
func (r *TaskRepositoryPG) Claim(ctx context.Context) (*domain.Task, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QWorkerClaimPosterTask)
	var task domain.Task
	var request []byte
	if err := row.Scan(&task.ID, &task.Type, &task.Status, &request, &task.CreatedAt, &task.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	task.Request = append(json.RawMessage(nil), request...)
	return &task, nil
}

// Finish stores the final result and status of a task.
func (r *TaskRepositoryPG) Finish(ctx context.Context, taskID string, result domain.Result) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	status := domain.TaskStatusFailed
	if result.Status {
		status = domain.TaskStatusSucceeded
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QFinishPosterTask, taskID, string(status), result.Message, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID fetches a task by its identifier.
func (r *TaskRepositoryPG) GetByID(ctx context.Context, taskID string) (*domain.Task, error) {
	if _, err := uuid.Parse(taskID); err != nil {
		return nil, domain.ErrNotFound
	}
	row := r.sql.QueryRow(ctx, sqlinline.QSelectPosterTask, taskID)
	var task domain.Task
	var request, result []byte
	if err := row.Scan(&task.ID, &task.Type, &task.Status, &request, &result, &task.Message, &task.CreatedAt, &task.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	task.Request = append(json.RawMessage(nil), request...)
	task.Result = append(json.RawMessage(nil), result...)
	return &task, nil
}

// RequeueStale puts tasks that have been running longer than olderThanSeconds back on the queue.
func (r *TaskRepositoryPG) RequeueStale(ctx context.Context, olderThanSeconds int) (int64, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QRequeueStalePosterTasks, olderThanSeconds)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ domain.TaskRepository = (*TaskRepositoryPG)(nil)
