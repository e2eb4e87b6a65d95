package streaming_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/get-eventually/go-journal/streaming"
)

const (
	maxItems   = 3
	maxTimeout = 5 * time.Second
)

func runBatcher(t *testing.T, input chan int) (*testingclock.FakeClock, <-chan []int, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	fakeClock := testingclock.NewFakeClock(time.Now())
	output := make(chan []int, 10)
	done := make(chan error, 1)

	batcher := streaming.NewBatcher(input, maxItems, maxTimeout, func(_ context.Context, batch []int) error {
		output <- batch
		return nil
	}).WithClock(fakeClock)

	go func() { done <- batcher.Run(ctx) }()

	return fakeClock, output, done
}

func TestBatcher_MaxItems(t *testing.T) {
	input := make(chan int)
	_, output, _ := runBatcher(t, input)

	for i := 1; i <= 6; i++ {
		input <- i
	}

	assert.Equal(t, []int{1, 2, 3}, <-output)
	assert.Equal(t, []int{4, 5, 6}, <-output)
}

func TestBatcher_Timeout(t *testing.T) {
	input := make(chan int)
	fakeClock, output, _ := runBatcher(t, input)

	input <- 1
	input <- 2

	require.Eventually(t, fakeClock.HasWaiters, time.Second, time.Millisecond)
	fakeClock.Step(maxTimeout)
	assert.Equal(t, []int{1, 2}, <-output)

	input <- 3

	require.Eventually(t, fakeClock.HasWaiters, time.Second, time.Millisecond)
	fakeClock.Step(maxTimeout)
	assert.Equal(t, []int{3}, <-output)
}

func TestBatcher_FlushOnClose(t *testing.T) {
	input := make(chan int)
	_, output, done := runBatcher(t, input)

	input <- 1
	close(input)

	assert.Equal(t, []int{1}, <-output)
	assert.NoError(t, <-done)
}

func TestBatcher_CallbackError(t *testing.T) {
	input := make(chan int, maxItems)
	expectedErr := errors.New("downstream failed")

	batcher := streaming.NewBatcher(input, maxItems, maxTimeout, func(context.Context, []int) error {
		return expectedErr
	})

	for i := 1; i <= maxItems; i++ {
		input <- i
	}

	assert.ErrorIs(t, batcher.Run(context.Background()), expectedErr)
}
