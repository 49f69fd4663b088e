package playback

import "time"

// Ticker is the timer driving playback. It matches the subset of time.Ticker the
// clock needs, so tests can fire ticks by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFunc func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }
