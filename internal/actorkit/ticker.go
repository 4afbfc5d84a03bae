package actorkit

import (
	"sync"
	"time"
)

// Ticker invokes tick no faster than interval, on a single goroutine, so a
// slow tick handler is never re-entered by the next scheduled firing.
type Ticker struct {
	stop chan struct{}
	wg   sync.WaitGroup
}

// StartTicker begins calling tick every interval until Stop is called. The
// first call happens after one interval has elapsed.
func StartTicker(interval time.Duration, tick func()) *Ticker {
	t := &Ticker{stop: make(chan struct{})}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		clock := time.NewTicker(interval)
		defer clock.Stop()
		for {
			select {
			case <-clock.C:
				tick()
			case <-t.stop:
				return
			}
		}
	}()
	return t
}

// Stop halts the ticker and waits for any in-flight tick to finish.
func (t *Ticker) Stop() {
	close(t.stop)
	t.wg.Wait()
}
