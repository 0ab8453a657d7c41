package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConstantReturnsFixedDelay(t *testing.T) {
	c := Constant{Interval: time.Second}
	for attempt := 1; attempt <= 5; attempt++ {
		assert.Equal(t, time.Second, c.Delay(attempt))
	}
}

func TestUniformStaysInBounds(t *testing.T) {
	for i := 0; i < 1000; i++ {
		d := QueueJitter.Delay(i)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestUniformDegenerateRange(t *testing.T) {
	u := Uniform{Min: 2 * time.Second, Max: time.Second}
	assert.Equal(t, 2*time.Second, u.Delay(1))
}

func TestSleepInterruptedByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleepCompletes(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
	assert.NoError(t, Sleep(context.Background(), 0))
}
