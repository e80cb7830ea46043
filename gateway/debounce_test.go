package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncer_CoalescesBurst(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	d := NewDebouncer(5*time.Second, clock)

	calls := 0
	for i := 0; i < 10; i++ {
		d.Trigger(func() { calls++ })
		clock.Advance(400 * time.Millisecond)
	}
	assert.Equal(t, 0, calls)

	// 5s after the last trigger, not before
	clock.Advance(4599 * time.Millisecond)
	assert.Equal(t, 0, calls)
	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, calls)

	clock.Advance(time.Minute)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, clock.Pending())
}

func TestDebouncer_RunsLatestFunc(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	d := NewDebouncer(time.Second, clock)

	var got string
	d.Trigger(func() { got = "first" })
	d.Trigger(func() { got = "second" })
	clock.Advance(time.Second)
	assert.Equal(t, "second", got)
}

func TestDebouncer_FlushAndCancel(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	d := NewDebouncer(time.Second, clock)

	calls := 0
	d.Trigger(func() { calls++ })
	assert.True(t, d.Pending())
	assert.True(t, d.Flush())
	assert.Equal(t, 1, calls)
	assert.False(t, d.Flush())

	// The flushed timer never fires again
	clock.Advance(time.Minute)
	assert.Equal(t, 1, calls)

	d.Trigger(func() { calls++ })
	d.Cancel()
	assert.False(t, d.Pending())
	clock.Advance(time.Minute)
	assert.Equal(t, 1, calls)
}

func TestDebouncer_RealClock(t *testing.T) {
	d := NewDebouncer(10*time.Millisecond, nil)
	done := make(chan struct{})
	d.Trigger(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced func never ran")
	}
}
