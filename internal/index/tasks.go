package index

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const taskHistorySize = 1024

var errClosed = errors.New("index: closed")

type queuedTask struct {
	Task
	run  func() error
	done chan struct{}
}

// taskQueue executes write jobs one at a time in submission order. Finished
// tasks stay queryable until they fall out of a bounded history.
type taskQueue struct {
	mu      sync.Mutex
	queue   []*queuedTask
	pending map[string]*queuedTask
	history *lru.Cache[string, Task]
	closed  bool

	wake    chan struct{}
	stopped chan struct{}
}

func newTaskQueue() *taskQueue {
	history, _ := lru.New[string, Task](taskHistorySize)
	q := &taskQueue{
		pending: make(map[string]*queuedTask),
		history: history,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *taskQueue) submit(typ TaskType, run func() error) (TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return TaskInfo{}, errClosed
	}

	t := &queuedTask{
		Task: Task{TaskInfo: TaskInfo{
			UID:        uuid.NewString(),
			Type:       typ,
			Status:     StatusEnqueued,
			EnqueuedAt: time.Now().UTC(),
		}},
		run:  run,
		done: make(chan struct{}),
	}
	q.pending[t.UID] = t
	q.queue = append(q.queue, t)
	q.signal()
	return t.TaskInfo, nil
}

func (q *taskQueue) wait(ctx context.Context, uid string) (Task, error) {
	q.mu.Lock()
	if t, ok := q.history.Get(uid); ok {
		q.mu.Unlock()
		return t, nil
	}
	t, ok := q.pending[uid]
	q.mu.Unlock()
	if !ok {
		return Task{}, ErrTaskNotFound
	}

	select {
	case <-t.done:
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return t.Task, nil
}

func (q *taskQueue) loop() {
	defer close(q.stopped)
	for {
		q.mu.Lock()
		if len(q.queue) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.wake
			continue
		}
		t := q.queue[0]
		q.queue = q.queue[1:]
		t.Status = StatusProcessing
		q.mu.Unlock()

		err := t.run()

		q.mu.Lock()
		t.FinishedAt = time.Now().UTC()
		if err != nil {
			t.Status = StatusFailed
			t.Error = err.Error()
		} else {
			t.Status = StatusSucceeded
		}
		delete(q.pending, t.UID)
		q.history.Add(t.UID, t.Task)
		close(t.done)
		q.mu.Unlock()
	}
}

// close rejects new submissions, drains what is queued and stops the loop.
func (q *taskQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.stopped
		return
	}
	q.closed = true
	q.signal()
	q.mu.Unlock()
	<-q.stopped
}

func (q *taskQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
