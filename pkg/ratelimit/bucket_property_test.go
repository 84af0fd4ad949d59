package ratelimit

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestBucketStaysWithinCapacity checks the invariant 0 <= tokens <= capacity
// across arbitrary interleavings of consume attempts.
func TestBucketStaysWithinCapacity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("tokens never leave [0, capacity]", prop.ForAll(
		func(costs []int) bool {
			b := NewBucket(5, 10)
			for _, c := range costs {
				cost := (c % 4) + 1
				b.TryConsume(cost)
				tokens := b.Tokens()
				if tokens < 0 || tokens > b.capacity {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}

func TestBucketRefillsOverTime(t *testing.T) {
	b := NewBucket(10, 5)
	for i := 0; i < 5; i++ {
		if !b.TryConsume(1) {
			t.Fatalf("expected consume %d to succeed while full", i)
		}
	}
	if b.TryConsume(1) {
		t.Fatal("expected bucket to be empty")
	}

	b.lastRefill = b.lastRefill.Add(-1 * time.Second)
	if !b.TryConsume(1) {
		t.Fatal("expected refill after elapsed time to admit one more consume")
	}
}
