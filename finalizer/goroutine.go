package finalizer

import "runtime"

// getGoroutineID returns the current goroutine's numeric ID by parsing it
// out of the runtime.Stack preamble ("goroutine NNN ["). It's the same
// lightweight trick the event loop's isLoopThread check uses, rather than
// pulling in a goroutine-local-storage library for a single boolean check.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
