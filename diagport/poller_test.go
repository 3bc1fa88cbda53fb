package diagport

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func tempSocketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), fmt.Sprintf("diagport-%d.sock", os.Getpid()))
}

// TestPoller_ListenPortYieldsAcceptedStream exercises the real Unix-socket
// transport and platform poll path end to end: a client dials in, and
// GetNextAvailableStream must return the accepted connection.
func TestPoller_ListenPortYieldsAcceptedStream(t *testing.T) {
	addr := tempSocketPath(t)
	poller := NewPoller(PollerOptions{
		DefaultListenAddress: addr,
		DefaultListenSuspend: SuspendModeNoSuspend,
	})
	require.NoError(t, poller.Configure(""))
	defer poller.Shutdown()

	dialDone := make(chan error, 1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		conn, err := net.Dial("unix", addr)
		if err == nil {
			defer conn.Close()
		}
		dialDone <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	stream, err := poller.GetNextAvailableStream(ctx)
	require.NoError(t, err)
	require.NotNil(t, stream)
	defer stream.Close()

	require.NoError(t, <-dialDone)
}

// TestPoller_ConnectPortDialsOutAndAdvertises drives a Connect port against
// a hand-rolled "server" listener (standing in for the external process the
// original connects out to), confirming the advertise message is sent and
// the resulting stream is yielded once the server side writes to it (the
// poller waits for the cached stream to become readable).
func TestPoller_ConnectPortDialsOutAndAdvertises(t *testing.T) {
	addr := tempSocketPath(t)
	ln, err := net.Listen("unix", addr)
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			_, _ = conn.Write([]byte{0})
			accepted <- conn
		}
	}()

	poller := NewPoller(PollerOptions{
		DisableDefaultListen: true,
		AdvertiseMessage:     []byte("advertise-v1"),
	})
	require.NoError(t, poller.Configure(addr))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	stream, err := poller.GetNextAvailableStream(ctx)
	require.NoError(t, err)
	require.NotNil(t, stream)
	defer stream.Close()

	select {
	case conn := <-accepted:
		defer conn.Close()
		buf := make([]byte, len("advertise-v1"))
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		_, err := conn.Read(buf)
		require.NoError(t, err)
		require.Equal(t, "advertise-v1", string(buf))
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connect port's dial")
	}

	poller.ResumeCurrentPort()
}

func TestPoller_ConfigureBuildsListenPort(t *testing.T) {
	listenAddr := tempSocketPath(t)
	poller := NewPoller(PollerOptions{DisableDefaultListen: true})
	require.NoError(t, poller.Configure("listen," + listenAddr))
	defer poller.Shutdown()

	require.True(t, poller.HasActivePorts())
	require.True(t, poller.AnySuspendedPorts())

	ports := poller.snapshotPorts()
	require.Len(t, ports, 1)
	require.Equal(t, listenAddr, ports[0].Address())
}

func TestPoller_ShutdownIsIdempotentAndClosesPorts(t *testing.T) {
	addr := tempSocketPath(t)
	poller := NewPoller(PollerOptions{DefaultListenAddress: addr})
	require.NoError(t, poller.Configure(""))

	require.True(t, poller.Shutdown())
	require.False(t, poller.Shutdown())
	require.False(t, poller.HasActivePorts())
}

// eventPort is a minimal [Port] wrapping a real, already-established
// net.Conn so its file descriptor goes through the genuine platformPoll
// syscall path (unlike fakeListenTransport/fakeConnectTransport, which
// report sysFD ok=false and so never reach the HANGUP/SIGNALED/ERR
// dispatch in Poller.GetNextAvailableStream at all).
type eventPort struct {
	portBase
	fd         int
	hasFD      bool
	accept     net.Conn
	acceptErr  error
	resetCount int
}

func newEventPort(address string, conn net.Conn) *eventPort {
	p := &eventPort{accept: conn}
	p.address = address
	p.suspend = SuspendModeNoSuspend
	if conn != nil {
		p.fd, p.hasFD = sysFD(conn)
	}
	return p
}

func newFixedFDPort(address string, fd int) *eventPort {
	p := &eventPort{fd: fd, hasFD: true, acceptErr: errNoPendingConn}
	p.address = address
	p.suspend = SuspendModeNoSuspend
	return p
}

func (p *eventPort) GetPollHandle() (PollHandle, bool) {
	fd := p.fd
	if !p.hasFD {
		fd = -1
	}
	return PollHandle{Owner: p, FD: fd}, true
}

func (p *eventPort) AcceptStream() (net.Conn, error) { return p.accept, p.acceptErr }
func (p *eventPort) Reset()                          { p.resetCount++ }
func (p *eventPort) Close(bool) error                { return nil }

// TestPoller_DispatchesHangupAndErrorBeforeSignaledStream drives one real
// poll(2) call across a hung-up port, an invalid-fd port, and a genuinely
// readable port together, confirming Poller.GetNextAvailableStream's
// HANGUP/ERR/SIGNALED dispatch (poller.go) all fire correctly from actual
// OS-reported events rather than only from the adaptive-backoff unit test.
func TestPoller_DispatchesHangupAndErrorBeforeSignaledStream(t *testing.T) {
	hangupAddr := tempSocketPath(t)
	hangupLn, err := net.Listen("unix", hangupAddr)
	require.NoError(t, err)
	defer hangupLn.Close()
	serverClosed := make(chan struct{})
	go func() {
		conn, err := hangupLn.Accept()
		if err == nil {
			conn.Close()
		}
		close(serverClosed)
	}()
	hangupClient, err := net.Dial("unix", hangupAddr)
	require.NoError(t, err)
	defer hangupClient.Close()
	<-serverClosed
	// give the kernel a moment to propagate the peer's close.
	time.Sleep(20 * time.Millisecond)
	hangupPort := newEventPort(hangupAddr, hangupClient)
	require.True(t, hangupPort.hasFD)

	signalAddr := tempSocketPath(t)
	signalLn, err := net.Listen("unix", signalAddr)
	require.NoError(t, err)
	defer signalLn.Close()
	serverWrote := make(chan struct{})
	go func() {
		conn, err := signalLn.Accept()
		if err == nil {
			_, _ = conn.Write([]byte("x"))
			close(serverWrote)
		}
	}()
	signalClient, err := net.Dial("unix", signalAddr)
	require.NoError(t, err)
	<-serverWrote
	time.Sleep(20 * time.Millisecond)
	signalPort := newEventPort(signalAddr, signalClient)
	require.True(t, signalPort.hasFD)

	errPort := newFixedFDPort("invalid-fd", 999999)

	poller := NewPoller(PollerOptions{DisableDefaultListen: true})
	poller.ports = []Port{hangupPort, errPort, signalPort}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	stream, err := poller.GetNextAvailableStream(ctx)
	require.NoError(t, err)
	require.NotNil(t, stream)
	defer stream.Close()
	require.Same(t, signalClient, stream)

	require.GreaterOrEqual(t, hangupPort.resetCount, 1)
	require.GreaterOrEqual(t, errPort.resetCount, 1)
}

// TestPoller_ReturnsNilOnPollErrorEvent confirms that when no port signals
// and one reports a poll error, GetNextAvailableStream returns (nil, nil)
// rather than hanging or propagating — matching the original's "return
// null" per-iteration error path (poller.go's sawError branch) — and that
// the erroring port is told to Reset.
func TestPoller_ReturnsNilOnPollErrorEvent(t *testing.T) {
	errPort := newFixedFDPort("invalid-fd", 999999)

	poller := NewPoller(PollerOptions{DisableDefaultListen: true})
	poller.ports = []Port{errPort}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	stream, err := poller.GetNextAvailableStream(ctx)
	require.NoError(t, err)
	require.Nil(t, stream)
	require.GreaterOrEqual(t, errPort.resetCount, 1)
}

func TestNextTimeout_AdaptiveBackoff(t *testing.T) {
	require.Equal(t, pollMinMS, nextTimeout(infiniteTimeoutSentinel))
	require.Greater(t, nextTimeout(pollMinMS), pollMinMS)
	require.Equal(t, pollMaxMS, nextTimeout(pollMaxMS))

	// eventually saturates at pollMaxMS regardless of starting point
	v := pollMinMS
	for i := 0; i < 100; i++ {
		v = nextTimeout(v)
	}
	require.Equal(t, pollMaxMS, v)
}
