package display

import (
	"runtime"
	"sync"
	"syscall"
	"testing"
)

func TestUIThreadKeepsOSThread(t *testing.T) {
	th := newUIThread(nil, 0)
	defer th.Close(nil)

	var created int
	th.Do(func() { created = syscall.Gettid() })

	var wg sync.WaitGroup
	var mu sync.Mutex
	tids := map[int]bool{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// pin callers to their own threads so the calls arrive from many
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			for j := 0; j < 10; j++ {
				th.Do(func() {
					mu.Lock()
					tids[syscall.Gettid()] = true
					mu.Unlock()
				})
			}
		}()
	}
	wg.Wait()

	if len(tids) != 1 || !tids[created] {
		t.Errorf("calls ran on threads %v, want only %d", tids, created)
	}
}
