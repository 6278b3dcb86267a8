// Package queue is the in-process submission queue behind the HTTP API: FIFO
// task ordering, one running task at a time, a single background worker
// draining it.
package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task statuses.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusNotFound  = "not_found"
)

// Task is one queued test run.
type Task struct {
	ID          string                 `json:"task_id"`
	Status      string                 `json:"status"`
	UserInfo    map[string]interface{} `json:"user_info,omitempty"`
	Result      interface{}            `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   time.Time              `json:"started_at,omitzero"`
	CompletedAt time.Time              `json:"completed_at,omitzero"`
}

// Queue holds pending tasks in FIFO order. Exactly one task may be current
// at a time.
type Queue struct {
	mu      sync.Mutex
	pending []string
	tasks   map[string]*Task
	current string
	logger  *zap.Logger

	wake chan struct{}
}

// New creates an empty queue.
func New(logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		tasks:  make(map[string]*Task),
		logger: logger.Named("queue"),
		wake:   make(chan struct{}, 1),
	}
}

// AddTask enqueues a task and returns its 1-based queue position; the
// currently executing task counts as position 0.
func (q *Queue) AddTask(taskID string, userInfo map[string]interface{}) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, found := q.tasks[taskID]; found {
		// Re-submitting a known id returns its current position.
		return q.positionLocked(existing.ID)
	}

	q.tasks[taskID] = &Task{
		ID:        taskID,
		Status:    StatusQueued,
		UserInfo:  userInfo,
		CreatedAt: time.Now(),
	}
	q.pending = append(q.pending, taskID)
	pos := len(q.pending)
	q.logger.Info("task queued", zap.String("task_id", taskID), zap.Int("position", pos))

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return pos
}

func (q *Queue) positionLocked(taskID string) int {
	if q.current == taskID {
		return 0
	}
	for i, id := range q.pending {
		if id == taskID {
			return i + 1
		}
	}
	return 0
}

// GetNextTask pops the head of the queue, marks it running, and returns its
// id. Empty string when the queue is empty or a task is already running.
func (q *Queue) GetNextTask() string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current != "" || len(q.pending) == 0 {
		return ""
	}
	id := q.pending[0]
	q.pending = q.pending[1:]
	task := q.tasks[id]
	task.Status = StatusRunning
	task.StartedAt = time.Now()
	q.current = id
	return id
}

// CompleteTask seals a task: completed when a result is present, failed
// otherwise.
func (q *Queue) CompleteTask(taskID string, result interface{}, errMsg string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, found := q.tasks[taskID]
	if !found {
		return
	}
	task.CompletedAt = time.Now()
	task.Result = result
	task.Error = errMsg
	// Sealing a still-queued task (cancellation) must also dequeue it.
	for i, id := range q.pending {
		if id == taskID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	if result != nil && errMsg == "" {
		task.Status = StatusCompleted
	} else {
		task.Status = StatusFailed
	}
	if q.current == taskID {
		q.current = ""
	}
	q.logger.Info("task completed",
		zap.String("task_id", taskID),
		zap.String("status", task.Status))

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// GetTaskStatus returns a copy of the task, or a not_found stub.
func (q *Queue) GetTaskStatus(taskID string) Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, found := q.tasks[taskID]
	if !found {
		return Task{ID: taskID, Status: StatusNotFound}
	}
	copied := *task
	return copied
}

// Position returns the queue position of a task: 0 running, 1-based queued,
// -1 unknown or finished.
func (q *Queue) Position(taskID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	task, found := q.tasks[taskID]
	if !found {
		return -1
	}
	switch task.Status {
	case StatusRunning:
		return 0
	case StatusQueued:
		return q.positionLocked(taskID)
	}
	return -1
}

// Len returns the number of queued (not yet started) tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// RunFunc executes one task and returns its result.
type RunFunc func(ctx context.Context, task Task) (interface{}, error)

// Worker drains the queue one task at a time until the context ends.
// Exactly one worker should run per queue.
func (q *Queue) Worker(ctx context.Context, run RunFunc) {
	for {
		id := q.GetNextTask()
		if id == "" {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}

		task := q.GetTaskStatus(id)
		q.logger.Info("task starting", zap.String("task_id", id))
		result, err := run(ctx, task)
		if err != nil {
			q.CompleteTask(id, result, err.Error())
			continue
		}
		q.CompleteTask(id, result, "")
	}
}
