package diagport

import (
	"net"
	"sync"
	"time"
)

// fakeListenTransport and fakeConnectTransport are hand-written in-memory
// stand-ins for the Unix-socket transports, letting the port tests
// exercise GetPollHandle/AcceptStream/Reset/Close without touching the
// filesystem. They report ok=false from sysFD (or, for connect streams,
// expose no descriptor), so they never reach the poller's
// HANGUP/SIGNALED/ERR dispatch; poller_test.go's eventPort covers that.
type fakeListenTransport struct {
	mu      sync.Mutex
	pending chan net.Conn
	closed  bool
}

func newFakeListenTransport() *fakeListenTransport {
	return &fakeListenTransport{pending: make(chan net.Conn, 8)}
}

func (t *fakeListenTransport) push(c net.Conn) { t.pending <- c }

func (t *fakeListenTransport) Accept() (net.Conn, error) {
	select {
	case c := <-t.pending:
		return c, nil
	default:
		return nil, errNoPendingConn
	}
}

func (t *fakeListenTransport) Addr() net.Addr { return fakeAddr("fake-listen") }

func (t *fakeListenTransport) Reopen() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = false
	return nil
}

func (t *fakeListenTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeListenTransport) sysFD() (int, bool) { return 0, false }

type fakeConnectTransport struct {
	mu      sync.Mutex
	dialErr error
	conns   []*fakePipeConn
}

func (t *fakeConnectTransport) Dial(timeout time.Duration) (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dialErr != nil {
		return nil, t.dialErr
	}
	c := newFakePipeConn()
	t.conns = append(t.conns, c)
	return c, nil
}

func (t *fakeConnectTransport) Close() error { return nil }

type fakeAddr string

func (a fakeAddr) Network() string { return "fake" }
func (a fakeAddr) String() string  { return string(a) }

var errNoPendingConn = &fakeErr{"no pending connection"}

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }

// fakePipeConn is a minimal net.Conn good enough for Write/Close
// bookkeeping in tests that never actually read/write real bytes across
// platform poll primitives (since the fakes report sysFD ok=false, no
// platformPoll implementation ever touches their descriptors).
type fakePipeConn struct {
	mu     sync.Mutex
	closed bool
	writes [][]byte
}

func newFakePipeConn() *fakePipeConn { return &fakePipeConn{} }

func (c *fakePipeConn) Read(b []byte) (int, error) { return 0, &fakeErr{"fakePipeConn: no data"} }

func (c *fakePipeConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := append([]byte(nil), b...)
	c.writes = append(c.writes, cp)
	return len(b), nil
}

func (c *fakePipeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakePipeConn) LocalAddr() net.Addr              { return fakeAddr("local") }
func (c *fakePipeConn) RemoteAddr() net.Addr             { return fakeAddr("remote") }
func (c *fakePipeConn) SetDeadline(time.Time) error      { return nil }
func (c *fakePipeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakePipeConn) SetWriteDeadline(time.Time) error { return nil }
