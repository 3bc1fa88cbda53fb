//go:build unix

package diagport

import "golang.org/x/sys/unix"

// platformPoll is the Go analogue of ds-ipc.c's poll(2) call: one syscall
// covering every pollable handle, with a millisecond timeout (-1 meaning
// infinite). Handles with FD < 0 are left out of the syscall and report
// EventNone; if no handle has a descriptor, it returns at once without
// waiting.
func platformPoll(handles []PollHandle, timeoutMs int) ([]PollEvent, error) {
	events := make([]PollEvent, len(handles))

	pfds := make([]unix.PollFd, 0, len(handles))
	idx := make([]int, 0, len(handles))
	for i, h := range handles {
		if h.FD >= 0 {
			pfds = append(pfds, unix.PollFd{Fd: int32(h.FD), Events: unix.POLLIN})
			idx = append(idx, i)
		}
	}
	if len(pfds) == 0 {
		return events, nil
	}

	_, err := unix.Poll(pfds, timeoutMs)
	if err != nil && err != unix.EINTR {
		return events, &PollError{Err: err}
	}

	for j, pfd := range pfds {
		i := idx[j]
		switch {
		case pfd.Revents&unix.POLLHUP != 0:
			events[i] = EventHangup
		case pfd.Revents&(unix.POLLERR|unix.POLLNVAL) != 0:
			events[i] = EventErr
		case pfd.Revents&unix.POLLIN != 0:
			events[i] = EventSignaled
		default:
			events[i] = EventNone
		}
	}
	return events, nil
}
