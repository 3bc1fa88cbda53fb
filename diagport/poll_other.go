//go:build !unix

package diagport

import (
	"net"
	"time"
)

// platformPoll is the non-unix fallback. Without poll(2) available, it
// probes each handle directly with a deadline instead of multiplexing a
// single syscall over all of them: a listen transport's raw listener gets
// a deadline-bounded Accept (storing any accepted connection on
// PollHandle.Accepted, since the accept can't be un-done once it
// succeeds), and a connect port's cached stream is reported signaled
// without any read (see probeConnectPort). PollHandle.FD is not used. This
// is the
// "correctness-preserving, not performance-equivalent" Windows path spec's
// expansion calls for: one blocking attempt per handle bounded by
// timeoutMs, rather than a true multi-descriptor wait.
func platformPoll(handles []PollHandle, timeoutMs int) ([]PollEvent, error) {
	events := make([]PollEvent, len(handles))
	var deadline time.Time
	if timeoutMs >= 0 {
		deadline = time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	} else {
		deadline = time.Now().Add(24 * time.Hour)
	}

	for i := range handles {
		switch l := handles[i].Owner.(type) {
		case *ListenPort:
			ev, conn := probeListenPort(l, deadline)
			events[i] = ev
			handles[i].Accepted = conn
		case *ConnectPort:
			events[i] = probeConnectPort(l, deadline)
		default:
			events[i] = EventNone
		}
	}
	return events, nil
}

func probeListenPort(p *ListenPort, deadline time.Time) (PollEvent, net.Conn) {
	dl, ok := p.transport.(interface {
		acceptWithDeadline(time.Time) (net.Conn, error)
	})
	if !ok {
		return EventNone, nil
	}
	conn, err := dl.acceptWithDeadline(deadline)
	if err != nil {
		return EventNone, nil
	}
	return EventSignaled, conn
}

// probeConnectPort reports a cached stream as immediately signaled rather
// than attempting a non-consuming readiness peek: Go's net package exposes
// no portable MSG_PEEK equivalent, and actually reading a byte to test
// readiness would silently drop it from the stream handed to the consumer.
// The adaptive back-off's sleep between iterations keeps this from busy
// looping; the real limitation — no hangup detection for an idle cached
// connect stream on this platform — is accepted and documented here rather
// than worked around by corrupting the stream.
func probeConnectPort(p *ConnectPort, _ time.Time) PollEvent {
	p.mu.Lock()
	conn := p.cached
	p.mu.Unlock()
	if conn == nil {
		return EventNone
	}
	return EventSignaled
}
