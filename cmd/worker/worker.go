package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"posterd/internal/domain"
	"posterd/internal/infra"
)

const finishTimeout = 10 * time.Second

type taskQueue interface {
	Claim(ctx context.Context) (*domain.Task, error)
	Finish(ctx context.Context, taskID string, result domain.Result) error
}

type posterProcessor interface {
	Process(ctx context.Context, taskID string, req domain.PosterRequest) domain.Result
}

type jobWorker struct {
	queue        taskQueue
	processors   []posterProcessor
	resolveImage func(key string) (string, error)
	logger       infra.Logger
	pollInterval time.Duration
}

// Run starts one poller per processor and blocks until ctx is done or one of them fails.
func (w *jobWorker) Run(ctx context.Context) error {
	if len(w.processors) == 0 {
		return errors.New("worker: no processors configured")
	}
	g, gctx := errgroup.WithContext(ctx)
	for i, proc := range w.processors {
		g.Go(func() error {
			return w.poll(gctx, i, proc)
		})
	}
	return g.Wait()
}

func (w *jobWorker) poll(ctx context.Context, poller int, proc posterProcessor) error {
	w.logger.Info().Int("poller", poller).Msg("worker: started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		task, err := w.queue.Claim(ctx)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) && ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("worker: failed to claim task")
			}
			if err := sleep(ctx, w.pollInterval); err != nil {
				return err
			}
			continue
		}
		w.handleTask(ctx, proc, task)
	}
}

func (w *jobWorker) handleTask(ctx context.Context, proc posterProcessor, task *domain.Task) {
	log := w.logger.With().Str("task_id", task.ID).Str("task_type", string(task.Type)).Logger()
	log.Info().Msg("worker: picked task")
	start := time.Now()

	result := w.run(ctx, proc, task)

	// The outcome is recorded even when shutdown interrupted the run.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if err := w.queue.Finish(finishCtx, task.ID, result); err != nil {
		log.Error().Err(err).Msg("worker: update status failed")
		return
	}
	log.Info().
		Bool("status", result.Status).
		Str("message", result.Message).
		Int("items", len(result.Data)).
		Str("elapsed", humanize.RelTime(start, time.Now(), "", "")).
		Msg("worker: task finished")
}

func (w *jobWorker) run(ctx context.Context, proc posterProcessor, task *domain.Task) domain.Result {
	if task.Type != domain.TaskTypeImage2Poster {
		w.logger.Error().Str("task_id", task.ID).Str("task_type", string(task.Type)).Msg("worker: unsupported task type")
		return domain.Fail(fmt.Sprintf("unsupported task type %q", task.Type))
	}
	var req domain.PosterRequest
	if err := json.Unmarshal(task.Request, &req); err != nil {
		w.logger.Error().Err(err).Str("task_id", task.ID).Msg("worker: decode request failed")
		return domain.Fail(domain.MessageProcessFailed)
	}
	if req.ImagePath != "" && w.resolveImage != nil {
		local, err := w.resolveImage(req.ImagePath)
		if err != nil {
			w.logger.Error().Err(err).Str("task_id", task.ID).Msg("worker: resolve image failed")
			return domain.Fail(domain.MessageProcessFailed)
		}
		req.ImagePath = local
	}
	return proc.Process(ctx, task.ID, req)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
