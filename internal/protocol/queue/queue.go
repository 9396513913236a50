package queue

import (
	"errors"
	"sync"

	"github.com/danmuck/spilink/internal/protocol/frame"
)

var ErrQueueFull = errors.New("queue: frame budget exhausted")

// Queue is a FIFO mailbox of frames safe for concurrent producers and
// consumers. A zero limit leaves it bounded only by memory.
type Queue struct {
	mu    sync.Mutex
	items []frame.Frame
	head  int
	limit int
}

func New(limit int) *Queue {
	if limit < 0 {
		limit = 0
	}
	return &Queue{limit: limit}
}

func (q *Queue) PushBack(f frame.Frame) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.limit > 0 && len(q.items)-q.head >= q.limit {
		return ErrQueueFull
	}
	q.items = append(q.items, f)
	return nil
}

// PopFront never blocks; ok is false when the queue is empty.
func (q *Queue) PopFront() (frame.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head >= len(q.items) {
		return frame.Frame{}, false
	}
	f := q.items[q.head]
	q.items[q.head] = frame.Frame{}
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return f, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Drain discards every queued frame and returns how many were dropped.
func (q *Queue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items) - q.head
	q.items = nil
	q.head = 0
	return n
}
