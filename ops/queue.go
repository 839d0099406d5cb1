package ops

import (
	cm "github.com/mosaicnetworks/continuity/common"
)

// Queue is the bounded regular-operation intake. When full, Submit
// rejects with LoadError and the producer retries later.
type Queue struct {
	validator Validator
	ch        chan []byte
}

func NewQueue(size int, validator Validator) *Queue {
	return &Queue{
		validator: validator,
		ch:        make(chan []byte, size),
	}
}

// Submit validates and enqueues one operation.
func (q *Queue) Submit(op []byte) error {
	if err := q.validator.Validate(op); err != nil {
		return err
	}

	select {
	case q.ch <- op:
		return nil
	default:
		return cm.NewError(cm.Load, "operation queue full")
	}
}

// Ch exposes the consumer side to the worker.
func (q *Queue) Ch() <-chan []byte {
	return q.ch
}
