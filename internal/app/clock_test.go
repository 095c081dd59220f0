package app

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func collectTicks(ch chan int) deliverFunc {
	return func(left int, cancelled <-chan struct{}) bool {
		select {
		case ch <- left:
			return true
		case <-cancelled:
			return false
		}
	}
}

func expectTick(t *testing.T, ch chan int, want int) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("expected tick %d, got %d", want, got)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for tick %d", want)
	}
}

func expectNoTick(t *testing.T, ch chan int) {
	t.Helper()
	select {
	case got := <-ch:
		t.Fatalf("unexpected tick %d", got)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestCountdownTicksToZeroOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ticks := make(chan int, 8)
	c := startCountdown(clock, time.Second, 3, collectTicks(ticks))
	defer c.Cancel()

	for _, want := range []int{2, 1, 0} {
		clock.Advance(time.Second)
		expectTick(t, ticks, want)
	}
	clock.Advance(time.Second)
	expectNoTick(t, ticks)
}

func TestCountdownCancelStopsDelivery(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ticks := make(chan int, 8)
	c := startCountdown(clock, time.Second, 5, collectTicks(ticks))

	clock.Advance(time.Second)
	expectTick(t, ticks, 4)

	c.Cancel()
	c.Cancel()
	clock.Advance(time.Second)
	expectNoTick(t, ticks)
}

func TestCountdownNilCancel(t *testing.T) {
	var c *Countdown
	c.Cancel()
}
