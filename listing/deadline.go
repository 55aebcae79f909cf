package listing

import (
	"sync/atomic"
	"time"
)

// deadline fires once after the response budget unless cancelled first.
type deadline struct {
	timer *time.Timer
	fired atomic.Bool
}

// startDeadline arms a timer that calls fire after budget.
func startDeadline(budget time.Duration, fire func()) *deadline {
	d := &deadline{}
	d.timer = time.AfterFunc(budget, func() {
		d.fired.Store(true)
		fire()
	})
	return d
}

// Cancel stops the timer. It reports false if the timer already fired.
func (d *deadline) Cancel() bool {
	return d.timer.Stop()
}

// Fired reports whether the timer has gone off.
func (d *deadline) Fired() bool {
	return d.fired.Load()
}
