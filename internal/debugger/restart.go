package debugger

import (
	"sync"
	"time"
)

// RestartTimer is a pending Start scheduled by Restart.
// Discarding it keeps the fire-and-forget behaviour.
type RestartTimer struct {
	timer *time.Timer
	fired chan struct{}
	once  sync.Once
}

func scheduleRestart(d time.Duration, job func()) *RestartTimer {
	rt := &RestartTimer{fired: make(chan struct{})}
	rt.timer = time.AfterFunc(d, func() {
		rt.once.Do(func() { close(rt.fired) })
		job()
	})

	return rt
}

// Stop cancels the restart. It returns false if the restart already began.
func (t *RestartTimer) Stop() bool {
	if t == nil || t.timer == nil {
		return false
	}

	return t.timer.Stop()
}

// Fired is closed once the scheduled Start begins.
func (t *RestartTimer) Fired() <-chan struct{} {
	return t.fired
}
