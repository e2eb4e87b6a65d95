package streaming

import (
	"context"
	"time"

	"k8s.io/utils/clock"
)

// Batcher batches up values from a channel. Batches are flushed whenever
// maxItems have been received or maxTimeout has elapsed since the last batch
// was started, whichever occurs first.
type Batcher[T any] struct {
	input      <-chan T
	maxItems   int
	maxTimeout time.Duration
	clock      clock.Clock
	callback   func(context.Context, []T) error
}

// NewBatcher creates a new Batcher reading from input.
func NewBatcher[T any](
	input <-chan T,
	maxItems int,
	maxTimeout time.Duration,
	callback func(context.Context, []T) error,
) *Batcher[T] {
	return &Batcher[T]{
		input:      input,
		maxItems:   maxItems,
		maxTimeout: maxTimeout,
		clock:      clock.RealClock{},
		callback:   callback,
	}
}

// WithClock replaces the clock used to measure the batch timeout.
func (b *Batcher[T]) WithClock(c clock.Clock) *Batcher[T] {
	b.clock = c
	return b
}

// Run batches values until the context is done, the input channel is closed
// or the callback fails. Values still buffered when the input is closed
// are flushed before returning.
func (b *Batcher[T]) Run(ctx context.Context) error {
	for {
		var buffer []T

		expire := b.clock.After(b.maxTimeout)

		for flush := false; !flush; {
			select {
			case <-ctx.Done():
				return ctx.Err()

			case value, ok := <-b.input:
				if !ok {
					if len(buffer) == 0 {
						return nil
					}

					return b.callback(ctx, buffer)
				}

				buffer = append(buffer, value)
				flush = len(buffer) >= b.maxItems

			case <-expire:
				if len(buffer) > 0 {
					flush = true
					continue
				}

				expire = b.clock.After(b.maxTimeout)
			}
		}

		if err := b.callback(ctx, buffer); err != nil {
			return err
		}
	}
}
