package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/open-zapdesk/zapdesk/internal/pkg/queue"
)

type failedJob struct {
	job      queue.Job
	cause    string
	failedAt time.Time
}

// MemoryQueue guarda jobs em memória ordenados por (prioridade, chegada).
// Usada quando Redis/Rabbit estão desabilitados e como fake nos testes.
type MemoryQueue struct {
	mu     sync.Mutex
	jobs   []queue.Job
	seq    map[string]int64
	next   int64
	failed []failedJob
	notify chan struct{}
	closed bool
}

func NewQueue(bufferSize int) *MemoryQueue {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &MemoryQueue{
		seq:    make(map[string]int64),
		notify: make(chan struct{}, bufferSize),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errors.New("queue is closed")
	}
	if _, exists := q.seq[job.ID]; exists {
		return queue.ErrDuplicate
	}

	q.next++
	q.seq[job.ID] = q.next
	q.jobs = append(q.jobs, job)
	sort.SliceStable(q.jobs, func(i, j int) bool {
		if q.jobs[i].Priority != q.jobs[j].Priority {
			return q.jobs[i].Priority < q.jobs[j].Priority
		}
		return q.seq[q.jobs[i].ID] < q.seq[q.jobs[j].ID]
	})

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemoryQueue) pop() *queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	delete(q.seq, job.ID)
	return &job
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error) {
	if job := q.pop(); job != nil {
		return job, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-q.notify:
			if job := q.pop(); job != nil {
				return job, nil
			}
		case <-timer.C:
			return nil, nil // Timeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *MemoryQueue) Fail(ctx context.Context, job queue.Job, cause string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, failedJob{job: job, cause: cause, failedAt: time.Now()})
	return nil
}

// FailedCount existe para inspeção nos testes.
func (q *MemoryQueue) FailedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.failed)
}

func (q *MemoryQueue) Size(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.jobs)), nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
