package app

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Countdown ticks once per interval, counting down from a fixed number of
// ticks. The final delivery (left == 0) happens at most once, after which the
// countdown stops itself.
type Countdown struct {
	stop chan struct{}
	once sync.Once
}

// deliverFunc hands one tick to the owner. It must give up and return false
// once cancelled is closed.
type deliverFunc func(left int, cancelled <-chan struct{}) bool

func startCountdown(clock clockwork.Clock, interval time.Duration, ticks int, deliver deliverFunc) *Countdown {
	c := &Countdown{stop: make(chan struct{})}
	ticker := clock.NewTicker(interval)
	go c.run(ticker, ticks, deliver)
	return c
}

func (c *Countdown) run(ticker clockwork.Ticker, left int, deliver deliverFunc) {
	defer ticker.Stop()
	for left > 0 {
		select {
		case <-c.stop:
			return
		case <-ticker.Chan():
			select {
			case <-c.stop:
				return
			default:
			}
			left--
			if !deliver(left, c.stop) {
				return
			}
		}
	}
}

// Cancel stops the countdown. Safe to call more than once.
func (c *Countdown) Cancel() {
	if c == nil {
		return
	}
	c.once.Do(func() { close(c.stop) })
}
