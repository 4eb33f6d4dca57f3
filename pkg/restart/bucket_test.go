package restart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBucketStartsFull(t *testing.T) {
	b := New(5, 0.1)
	assert.InDelta(t, 5.0, b.Tokens(), 0.01)
	assert.Equal(t, 5.0, b.Capacity())
}

func TestBucketTakeDrains(t *testing.T) {
	b := New(3, 0.0)
	assert.True(t, b.Take())
	assert.True(t, b.Take())
	assert.True(t, b.Take())
	assert.False(t, b.Take(), "fourth take should be denied with no refill rate")
}

func TestBucketRefillsOverTime(t *testing.T) {
	b := New(1, 20) // 20 tokens/sec, fast enough to observe in a unit test
	assert.True(t, b.Take())
	assert.False(t, b.Take())
	time.Sleep(100 * time.Millisecond)
	assert.True(t, b.Take(), "expected a token back after ~100ms at 20/s")
}

func TestBucketZeroCapacityAlwaysDenies(t *testing.T) {
	b := New(0, 10)
	assert.False(t, b.Take())
}

func TestBucketNegativeInputsClampToZero(t *testing.T) {
	b := New(-5, -1)
	assert.Equal(t, 0.0, b.Capacity())
	assert.False(t, b.Take())
}
