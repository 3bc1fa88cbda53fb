package diagport

import (
	"net"
	"sync"
	"syscall"
	"time"
)

// Transport is the minimum lifecycle every port transport supports.
type Transport interface {
	Close() error
}

// ListenTransport backs a [ListenPort]. Reopen re-establishes the listening
// socket after Close, used by Reset.
type ListenTransport interface {
	Transport
	Accept() (net.Conn, error)
	Addr() net.Addr
	Reopen() error
	// sysFD returns a raw, poll(2)-able file descriptor for the listening
	// socket, or ok=false on platforms/transports where that's not
	// meaningful (the handle then carries FD -1, which the unix
	// platformPoll reports as EventNone).
	sysFD() (fd int, ok bool)
}

// ConnectTransport backs a [ConnectPort]. Each Dial is a fresh connection
// attempt; there's no persistent listening resource to Reopen.
type ConnectTransport interface {
	Transport
	Dial(timeout time.Duration) (net.Conn, error)
}

// sysFD extracts a raw file descriptor from anything implementing
// syscall.Conn, without duplicating it (so it stays registered with the Go
// runtime's netpoller exactly as before) and without switching the socket
// back to blocking mode. Reading fd readiness via poll(2) alongside an
// epoll-registered fd is safe: poll(2) only inspects level-triggered
// readiness, it doesn't consume or edge-invalidate anything the runtime
// poller depends on.
func sysFD(c any) (int, bool) {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return 0, false
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, false
	}
	var fd int
	if err := raw.Control(func(f uintptr) { fd = int(f) }); err != nil {
		return 0, false
	}
	return fd, true
}

// unixListenTransport is the default ListenTransport, backed by a Unix
// domain socket — the direct analogue of the non-Windows address family
// ds-ipc.c uses.
type unixListenTransport struct {
	addr string

	mu sync.Mutex
	ln *net.UnixListener
}

// NewUnixListenTransport constructs and binds a listening Unix domain
// socket at addr.
func NewUnixListenTransport(addr string) (ListenTransport, error) {
	t := &unixListenTransport{addr: addr}
	if err := t.Reopen(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *unixListenTransport) Reopen() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln != nil {
		_ = t.ln.Close()
	}
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: t.addr, Net: "unix"})
	if err != nil {
		return err
	}
	t.ln = ln
	return nil
}

func (t *unixListenTransport) Accept() (net.Conn, error) {
	t.mu.Lock()
	ln := t.ln
	t.mu.Unlock()
	if ln == nil {
		return nil, net.ErrClosed
	}
	return ln.Accept()
}

func (t *unixListenTransport) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln == nil {
		return nil
	}
	return t.ln.Addr()
}

func (t *unixListenTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln == nil {
		return nil
	}
	err := t.ln.Close()
	t.ln = nil
	return err
}

// acceptWithDeadline is used only by the non-unix platformPoll fallback
// (see poll_other.go) to bound a single Accept attempt.
func (t *unixListenTransport) acceptWithDeadline(deadline time.Time) (net.Conn, error) {
	t.mu.Lock()
	ln := t.ln
	t.mu.Unlock()
	if ln == nil {
		return nil, net.ErrClosed
	}
	if err := ln.SetDeadline(deadline); err != nil {
		return nil, err
	}
	conn, err := ln.Accept()
	_ = ln.SetDeadline(time.Time{})
	return conn, err
}

func (t *unixListenTransport) sysFD() (int, bool) {
	t.mu.Lock()
	ln := t.ln
	t.mu.Unlock()
	if ln == nil {
		return 0, false
	}
	return sysFD(ln)
}

// unixConnectTransport dials a fresh Unix domain socket connection per
// GetPollHandle call when no cached stream exists.
type unixConnectTransport struct {
	addr string
}

// NewUnixConnectTransport constructs a ConnectTransport that dials addr.
func NewUnixConnectTransport(addr string) ConnectTransport {
	return &unixConnectTransport{addr: addr}
}

func (t *unixConnectTransport) Dial(timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", t.addr, timeout)
}

// Close is a no-op: a connect transport holds no persistent resource of its
// own, only the (separately owned) cached stream.
func (t *unixConnectTransport) Close() error { return nil }

// TransportFactory constructs the concrete transports a [Poller] wires into
// ports built from parsed [PortSpec] values. The default,
// [UnixTransportFactory], builds Unix domain socket transports for both
// variants.
type TransportFactory interface {
	NewListenTransport(address string) (ListenTransport, error)
	NewConnectTransport(address string) (ConnectTransport, error)
}

// UnixTransportFactory is the default [TransportFactory].
type UnixTransportFactory struct{}

func (UnixTransportFactory) NewListenTransport(address string) (ListenTransport, error) {
	return NewUnixListenTransport(address)
}

func (UnixTransportFactory) NewConnectTransport(address string) (ConnectTransport, error) {
	return NewUnixConnectTransport(address), nil
}
