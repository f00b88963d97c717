package queue_test

import (
	"testing"
	"time"

	"github.com/codegraph-dev/codegraph/pkg/queue"
	"github.com/stretchr/testify/assert"
)

func TestBackoffFor_FollowsScheduleWithJitter(t *testing.T) {
	cases := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{1, 250 * time.Millisecond, 300 * time.Millisecond},
		{2, 2 * time.Second, 2400 * time.Millisecond},
		{3, 16 * time.Second, 19200 * time.Millisecond},
		{4, 16 * time.Second, 19200 * time.Millisecond}, // beyond schedule reuses last entry
	}
	for _, c := range cases {
		d := queue.BackoffFor(c.attempt)
		assert.GreaterOrEqual(t, d, c.min)
		assert.LessOrEqual(t, d, c.max)
	}
}
