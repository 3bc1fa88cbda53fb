package diagport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
)

// PollEvent is the outcome of one platform poll call for a single handle
// (spec §4.5's h.events switch).
type PollEvent int

const (
	EventNone PollEvent = iota
	EventSignaled
	EventHangup
	EventErr
)

// PollHandle is the input-and-output struct the poll algorithm gathers from
// every port and dispatches on after the platform poll call.
type PollHandle struct {
	Owner Port

	// FD is a raw, poll(2)-able descriptor, or -1 if this handle isn't
	// pollable that way. The unix platformPoll reports a -1 handle as
	// EventNone; the non-unix platformPoll ignores FD and probes Owner.
	FD int

	// Accepted is set only by the non-unix platformPoll fallback, which
	// must perform the accept itself as part of its deadline-bounded probe
	// (it can't un-ring that bell afterward). When set, the poller uses it
	// directly instead of calling Owner.AcceptStream again.
	Accepted net.Conn
}

// Port is the polymorphic capability set of spec §4.4: getPollHandle,
// acceptStream, reset, close. free has no Go equivalent (garbage
// collection owns it).
type Port interface {
	Address() string
	SuspendMode() SuspendMode
	HasResumedRuntime() bool
	ResumeRuntime()

	GetPollHandle() (PollHandle, bool)
	AcceptStream() (net.Conn, error)
	Reset()
	Close(shuttingDown bool) error
}

// portBase is the shared portion of both port variants — address, suspend
// mode, and the resume-runtime flag the poller's anySuspendedPorts /
// resumeCurrentPort read and write.
type portBase struct {
	address string
	suspend SuspendMode
	resumed atomic.Bool
}

func (b *portBase) Address() string            { return b.address }
func (b *portBase) SuspendMode() SuspendMode    { return b.suspend }
func (b *portBase) HasResumedRuntime() bool     { return b.resumed.Load() }
func (b *portBase) ResumeRuntime()              { b.resumed.Store(true) }

// ListenPort accepts inbound connections on a bound transport (spec §4.4
// "Listen port").
type ListenPort struct {
	portBase
	transport ListenTransport
}

// NewListenPort constructs a ListenPort over an already-bound transport.
func NewListenPort(address string, suspend SuspendMode, transport ListenTransport) *ListenPort {
	p := &ListenPort{transport: transport}
	p.address = address
	p.suspend = suspend
	return p
}

func (p *ListenPort) GetPollHandle() (PollHandle, bool) {
	fd, ok := p.transport.sysFD()
	if !ok {
		fd = -1
	}
	return PollHandle{Owner: p, FD: fd}, true
}

func (p *ListenPort) AcceptStream() (net.Conn, error) {
	return p.transport.Accept()
}

// Reset re-initialises the transport: close then re-listen.
func (p *ListenPort) Reset() {
	_ = p.transport.Reopen()
}

func (p *ListenPort) Close(shuttingDown bool) error {
	return p.transport.Close()
}

// ConnectPort dials out and caches the resulting stream until it's handed
// off to the consumer (spec §4.4 "Connect port").
type ConnectPort struct {
	portBase
	transport   ConnectTransport
	advertise   []byte
	dialTimeout time.Duration
	retryLog    *catrate.Limiter
	log         Logger

	mu     sync.Mutex
	cached net.Conn
}

// NewConnectPort constructs a ConnectPort. retryLog, if non-nil, throttles
// how often a failed dial/advertise is actually logged — the adaptive
// back-off already throttles how often the attempt itself happens, this
// only protects the log stream from repeating the same failure every
// cycle. log may be nil.
func NewConnectPort(address string, suspend SuspendMode, transport ConnectTransport, advertise []byte, dialTimeout time.Duration, retryLog *catrate.Limiter, log Logger) *ConnectPort {
	if log == nil {
		log = NoOpLogger{}
	}
	if dialTimeout <= 0 {
		dialTimeout = 100 * time.Millisecond
	}
	p := &ConnectPort{
		transport:   transport,
		advertise:   advertise,
		dialTimeout: dialTimeout,
		retryLog:    retryLog,
		log:         log,
	}
	p.address = address
	p.suspend = suspend
	return p
}

const connectRetryLogCategory = "connect-retry"

func (p *ConnectPort) logRetryFailure(msg string, err error) {
	if p.retryLog != nil {
		if _, ok := p.retryLog.Allow(connectRetryLogCategory); !ok {
			return
		}
	}
	p.log.Warn(msg, "address", p.address, "error", err)
}

func (p *ConnectPort) GetPollHandle() (PollHandle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached == nil {
		conn, err := p.transport.Dial(p.dialTimeout)
		if err != nil {
			p.logRetryFailure("diagport: connect port dial failed", err)
			return PollHandle{}, false
		}
		if len(p.advertise) > 0 {
			if _, err := conn.Write(p.advertise); err != nil {
				_ = conn.Close()
				p.logRetryFailure("diagport: connect port advertise failed", err)
				return PollHandle{}, false
			}
		}
		p.cached = conn
	}

	fd, ok := sysFD(p.cached)
	if !ok {
		fd = -1
	}
	return PollHandle{Owner: p, FD: fd}, true
}

func (p *ConnectPort) AcceptStream() (net.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached == nil {
		return nil, ErrNoCachedStream
	}
	c := p.cached
	p.cached = nil
	return c, nil
}

func (p *ConnectPort) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != nil {
		_ = p.cached.Close()
		p.cached = nil
	}
}

func (p *ConnectPort) Close(shuttingDown bool) error {
	if err := p.transport.Close(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != nil && !shuttingDown {
		err := p.cached.Close()
		p.cached = nil
		return err
	}
	return nil
}
