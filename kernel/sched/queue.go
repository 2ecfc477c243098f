// Package sched implements the per-CPU ready queues, round-robin timeslice
// scheduling, and wake-up policies: each CPU
// runs its own cooperative loop, timer ticks preempt only the userspace
// thread at the head of the ready queue, and sleeping/waiting threads are
// inspected lazily as the CPU reaches them.
package sched

import (
	"container/list"
	"sync"

	"github.com/SafaOS/SafaOS-sub001/kernel/proc"
)

// ReadyQueue is a per-CPU circular run queue of Runnable threads. It wraps
// the standard library's doubly linked list (container/list) — there is
// no ring-buffer/circular-list package worth preferring over the
// standard library's list for this shape — giving push_back, O(1)
// round-robin rotation, and O(n) predicate removal.
type ReadyQueue struct {
	mu sync.Mutex
	l  *list.List
}

// NewReadyQueue returns an empty ready queue.
func NewReadyQueue() *ReadyQueue {
	return &ReadyQueue{l: list.New()}
}

// PushBack appends t to the tail of the queue.
func (q *ReadyQueue) PushBack(t *proc.Thread) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.l.PushBack(t)
}

// Front returns the thread at the head of the queue, without removing it.
func (q *ReadyQueue) Front() (*proc.Thread, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.l.Front()
	if e == nil {
		return nil, false
	}
	return e.Value.(*proc.Thread), true
}

// PopFront removes and returns the thread at the head of the queue.
func (q *ReadyQueue) PopFront() (*proc.Thread, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.l.Front()
	if e == nil {
		return nil, false
	}
	q.l.Remove(e)
	return e.Value.(*proc.Thread), true
}

// AdvanceCircular moves the current head to the tail and returns the new
// head, in O(1) round-robin rotation.
func (q *ReadyQueue) AdvanceCircular() (*proc.Thread, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.l.Front()
	if e == nil {
		return nil, false
	}
	if q.l.Len() > 1 {
		q.l.MoveToBack(e)
	}
	front := q.l.Front()
	if front == nil {
		return nil, false
	}
	return front.Value.(*proc.Thread), true
}

// RemoveWhere deletes every thread matching pred and returns them, O(n).
func (q *ReadyQueue) RemoveWhere(pred func(*proc.Thread) bool) []*proc.Thread {
	q.mu.Lock()
	defer q.mu.Unlock()

	var removed []*proc.Thread
	var next *list.Element
	for e := q.l.Front(); e != nil; e = next {
		next = e.Next()
		th := e.Value.(*proc.Thread)
		if pred(th) {
			removed = append(removed, th)
			q.l.Remove(e)
		}
	}
	return removed
}

// Len reports the number of threads currently queued.
func (q *ReadyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.l.Len()
}

// Snapshot returns every queued thread, front to back.
func (q *ReadyQueue) Snapshot() []*proc.Thread {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*proc.Thread, 0, q.l.Len())
	for e := q.l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*proc.Thread))
	}
	return out
}
