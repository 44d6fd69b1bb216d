package comm

import (
	"container/heap"
	"context"
	"sync"
)

// OpQueue is the priority queue of one link. Operations come out in
// non-decreasing priority, FIFO among equal priorities.
type OpQueue struct {
	mu     sync.Mutex
	items  opHeap
	seq    uint64
	closed bool

	signal chan struct{}
	done   chan struct{}
}

func NewOpQueue() *OpQueue {
	return &OpQueue{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push adds op to the queue. It fails with ErrLinkClosed after Close.
func (q *OpQueue) Push(op *Operation) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrLinkClosed
	}
	q.seq++
	heap.Push(&q.items, queued{op: op, seq: q.seq})
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// Next blocks until an operation is available, the queue is closed or ctx
// is done.
func (q *OpQueue) Next(ctx context.Context) (*Operation, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrLinkClosed
		}
		if q.items.Len() > 0 {
			item := heap.Pop(&q.items).(queued)
			q.mu.Unlock()
			return item.op, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
		case <-q.signal:
		}
	}
}

func (q *OpQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Close rejects further pushes and returns the operations still queued,
// highest priority first.
func (q *OpQueue) Close() []*Operation {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)

	ops := make([]*Operation, 0, q.items.Len())
	for q.items.Len() > 0 {
		ops = append(ops, heap.Pop(&q.items).(queued).op)
	}
	return ops
}

type queued struct {
	op  *Operation
	seq uint64
}

type opHeap []queued

func (h opHeap) Len() int { return len(h) }

func (h opHeap) Less(i, j int) bool {
	if h[i].op.Priority != h[j].op.Priority {
		return h[i].op.Priority < h[j].op.Priority
	}
	return h[i].seq < h[j].seq
}

func (h opHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *opHeap) Push(x any) { *h = append(*h, x.(queued)) }

func (h *opHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
