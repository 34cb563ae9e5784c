package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"fossawork-backend/internal/logger"
	"fossawork-backend/internal/scheduler"
)

const TaskScrapeUser = "scrape:user"

type ScrapeUserPayload struct {
	UserID  int64  `json:"user_id"`
	Trigger string `json:"trigger"`
}

// NewScrapeUserTask builds the asynq task for one user scrape. Retry is
// disabled at the queue level: the scheduler owns failure counting and
// backoff, and queue-level retries would fight it.
func NewScrapeUserTask(userID int64, trigger string, timeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(ScrapeUserPayload{UserID: userID, Trigger: trigger})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskScrapeUser,
		payload,
		asynq.MaxRetry(0),
		asynq.Timeout(timeout+time.Minute),
		asynq.Queue("scrapes"),
		// One task per user in the queue at a time; a backlogged queue
		// must not accumulate duplicate scrapes for the same user.
		asynq.Unique(timeout+time.Minute),
	), nil
}

// QueueRunner dispatches scrape jobs through asynq when a Redis broker
// is available.
type QueueRunner struct {
	client  *asynq.Client
	timeout time.Duration
}

func NewQueueRunner(client *asynq.Client, scrapeTimeout time.Duration) *QueueRunner {
	return &QueueRunner{client: client, timeout: scrapeTimeout}
}

func (r *QueueRunner) Dispatch(ctx context.Context, userID int64, trigger string) error {
	task, err := NewScrapeUserTask(userID, trigger, r.timeout)
	if err != nil {
		return err
	}
	info, err := r.client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			logger.Debug("scrape task already queued", "user_id", userID)
			return nil
		}
		return fmt.Errorf("enqueue scrape task: %w", err)
	}
	logger.Debug("scrape task enqueued", "user_id", userID, "task_id", info.ID)
	return nil
}

// TaskProcessor handles queued scrape tasks in the worker process.
type TaskProcessor struct {
	exec *scheduler.Executor
}

func NewTaskProcessor(exec *scheduler.Executor) *TaskProcessor {
	return &TaskProcessor{exec: exec}
}

func (p *TaskProcessor) HandleScrapeUser(ctx context.Context, t *asynq.Task) error {
	var payload ScrapeUserPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}
	if payload.Trigger == "" {
		payload.Trigger = "schedule"
	}
	return p.exec.Run(ctx, payload.UserID, payload.Trigger)
}
