package display

import (
	"errors"
	"runtime"
	"sync"
	"time"
)

// errThreadClosed is returned by Do after Close.
var errThreadClosed = errors.New("display thread closed")

// uiThread runs functions on one goroutine locked to its OS thread.
// HighGUI backends require every window call to come from the thread
// that created the window.
type uiThread struct {
	calls chan func()
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// newUIThread starts the thread. idle, when non-nil, runs every interval
// while no call is pending.
func newUIThread(idle func(), interval time.Duration) *uiThread {
	t := &uiThread{
		calls: make(chan func()),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go t.loop(idle, interval)
	return t
}

func (t *uiThread) loop(idle func(), interval time.Duration) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(t.done)

	var tick <-chan time.Time
	if idle != nil && interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case fn := <-t.calls:
			fn()
		case <-tick:
			idle()
		case <-t.quit:
			return
		}
	}
}

// Do runs fn on the thread and waits for it to return.
func (t *uiThread) Do(fn func()) error {
	ran := make(chan struct{})
	call := func() {
		defer close(ran)
		fn()
	}
	select {
	case t.calls <- call:
	case <-t.quit:
		return errThreadClosed
	}
	<-ran
	return nil
}

// Close runs last on the thread, then stops it. Further calls to Do fail.
func (t *uiThread) Close(last func()) {
	t.once.Do(func() {
		if last != nil {
			t.Do(last)
		}
		close(t.quit)
		<-t.done
	})
}
