package workqueue

import (
	"errors"
	"fmt"

	backoff "github.com/cenkalti/backoff/v4"
)

// ErrQueueFull means the target shard had no room before the enqueue timeout.
var ErrQueueFull = errors.New("work queue full")

// ErrExecutorClosed means Stop was called and no more work is accepted.
var ErrExecutorClosed = errors.New("work queue closed")

// QueueFullError carries shard diagnostics and matches ErrQueueFull.
type QueueFullError struct {
	Shard    int
	Length   int
	Capacity int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("shard queue %d full (len=%d cap=%d)", e.Shard, e.Length, e.Capacity)
}

func (e *QueueFullError) Is(target error) bool { return target == ErrQueueFull }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func isPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}
