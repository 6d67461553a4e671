// Package queue implements the bounded event queue between capture
// producers and the dispatcher. Enqueue never blocks a producer;
// overflow is reported to the consumer as an Error message on the
// next drain rather than silently discarding data.
package queue

import (
	"sync/atomic"

	snverrors "github.com/snipvault/snipvault/internal/errors"
	"github.com/snipvault/snipvault/internal/types"
)

// DefaultCapacity bounds the queue when no capacity is configured.
// The workload is human-triggered events, so this is effectively
// unbounded in normal operation.
const DefaultCapacity = 256

// ErrOverflow is returned by Enqueue when the queue is full.
var ErrOverflow = &snverrors.PipelineError{
	Code:    snverrors.ErrQueueOverflow,
	Message: "event queue full",
}

// Queue is a bounded multi-producer single-consumer message queue.
// Messages from one producer are delivered in submission order; no
// ordering holds across producers.
type Queue struct {
	ch      chan types.Message
	dropped atomic.Uint64
}

// New creates a queue. capacity <= 0 selects DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{ch: make(chan types.Message, capacity)}
}

// Enqueue adds msg without blocking. On a full queue the message is
// dropped, the overflow counter increments, and ErrOverflow is
// returned to the producer.
func (q *Queue) Enqueue(msg types.Message) error {
	select {
	case q.ch <- msg:
		return nil
	default:
		q.dropped.Add(1)
		return ErrOverflow
	}
}

// DrainAll removes and returns all currently queued messages in FIFO
// order, leaving the queue empty. Callable only by the single
// designated consumer. If messages were dropped since the previous
// drain, one Error message reporting the count is appended to the
// batch and the counter resets.
func (q *Queue) DrainAll() []types.Message {
	var msgs []types.Message
	for {
		select {
		case m := <-q.ch:
			msgs = append(msgs, m)
		default:
			if n := q.dropped.Swap(0); n > 0 {
				msgs = append(msgs, types.Error{
					Message: snverrors.NewQueueOverflow(n).Error(),
				})
			}
			return msgs
		}
	}
}

// Len reports the number of messages currently queued.
func (q *Queue) Len() int {
	return len(q.ch)
}
