package diagport

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
)

// Adaptive back-off constants (spec §4.5 nextTimeout).
const (
	pollMinMS          = 10
	pollMaxMS          = 500
	pollFalloffFactor  = 1.25
	infiniteTimeoutSentinel = -1
)

// PollerOptions configures a [Poller].
type PollerOptions struct {
	// DefaultListenAddress is the platform-default listen port appended
	// during Configure unless DisableDefaultListen is set (spec §4.3 step
	// 5).
	DefaultListenAddress string
	DisableDefaultListen bool
	DefaultListenSuspend SuspendMode

	// AdvertiseMessage is the opaque one-shot advertise-v1 payload sent on
	// every freshly dialed connect port stream (spec §4.4).
	AdvertiseMessage []byte

	// ConnectDialTimeout bounds a connect port's reconnect attempt.
	// Defaults to 100ms (spec §4.4's literal bound) if zero.
	ConnectDialTimeout time.Duration

	// ConnectRetryLogLimiter throttles repeated failed-dial/advertise log
	// lines per port address, rather than gating the retries themselves
	// (the poll back-off already does that).
	ConnectRetryLogLimiter *catrate.Limiter

	Transports TransportFactory

	Logger Logger
}

// Poller is the Stream Factory / Poller core (spec §4.5, C7): it owns the
// port set built from configuration and runs the single-threaded,
// cooperative poll loop behind [Poller.GetNextAvailableStream].
type Poller struct {
	factory TransportFactory
	opts    PollerOptions
	log     Logger

	mu          sync.Mutex
	ports       []Port
	currentPort Port

	shuttingDown atomic.Bool
}

// NewPoller constructs a Poller. Configure must be called before
// GetNextAvailableStream does anything useful.
func NewPoller(opts PollerOptions) *Poller {
	if opts.Logger == nil {
		opts.Logger = NoOpLogger{}
	}
	if opts.Transports == nil {
		opts.Transports = UnixTransportFactory{}
	}
	if opts.ConnectDialTimeout <= 0 {
		opts.ConnectDialTimeout = 100 * time.Millisecond
	}
	return &Poller{factory: opts.Transports, opts: opts, log: opts.Logger}
}

// Configure builds the port set from the ports configuration string (spec
// §4.3/§4.5 "configure"). It is meant to be called once during runtime
// init; calling it again replaces the port set wholesale.
func (p *Poller) Configure(config string) error {
	specs := ParsePortConfigs(config, p.log)

	var ports []Port
	for _, spec := range specs {
		port, err := p.buildPort(spec)
		if err != nil {
			p.log.Warn("diagport: dropping port config after transport construction failure",
				"address", spec.Address, "type", spec.Type.String(), "error", err)
			continue
		}
		ports = append(ports, port)
	}

	if !p.opts.DisableDefaultListen {
		port, err := p.buildPort(PortSpec{
			Type:    PortTypeListen,
			Suspend: p.opts.DefaultListenSuspend,
			Address: p.opts.DefaultListenAddress,
		})
		if err != nil {
			p.log.Warn("diagport: failed constructing default listen port", "error", err)
		} else {
			ports = append(ports, port)
		}
	}

	p.mu.Lock()
	p.ports = ports
	p.mu.Unlock()
	return nil
}

func (p *Poller) buildPort(spec PortSpec) (Port, error) {
	switch spec.Type {
	case PortTypeListen:
		t, err := p.factory.NewListenTransport(spec.Address)
		if err != nil {
			return nil, &TransportError{Address: spec.Address, Err: err}
		}
		return NewListenPort(spec.Address, spec.Suspend, t), nil
	default:
		t, err := p.factory.NewConnectTransport(spec.Address)
		if err != nil {
			return nil, &TransportError{Address: spec.Address, Err: err}
		}
		return NewConnectPort(spec.Address, spec.Suspend, t, p.opts.AdvertiseMessage, p.opts.ConnectDialTimeout, p.opts.ConnectRetryLogLimiter, p.log), nil
	}
}

func (p *Poller) snapshotPorts() []Port {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Port(nil), p.ports...)
}

// GetNextAvailableStream blocks until one port yields a stream, ctx is
// done, or an unrecoverable per-iteration error occurs (in which case it
// returns nil, nil — matching the original's "return null" error path
// rather than treating it as fatal). Spec §4.5's single-signal-fairness
// rule applies: if more than one port signals in one poll return, only the
// first (lowest index) is accepted; the rest are served on a later call.
func (p *Poller) GetNextAvailableStream(ctx context.Context) (net.Conn, error) {
	timeoutMs := infiniteTimeoutSentinel

	for {
		if p.shuttingDown.Load() {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		ports := p.snapshotPorts()
		handles := make([]PollHandle, 0, len(ports))
		allOK := true
		for _, port := range ports {
			h, ok := port.GetPollHandle()
			if ok {
				handles = append(handles, h)
			} else {
				allOK = false
			}
		}

		if allOK {
			timeoutMs = infiniteTimeoutSentinel
		} else {
			timeoutMs = nextTimeout(timeoutMs)
		}

		if len(handles) == 0 {
			wait := timeoutMs
			if wait < 0 {
				wait = pollMaxMS
			}
			if !sleepCtx(ctx, time.Duration(wait)*time.Millisecond) {
				return nil, ctx.Err()
			}
			continue
		}

		events, err := platformPoll(handles, timeoutMs)
		if err != nil {
			p.log.Warn("diagport: poll failed", "error", err)
			timeoutMs = nextTimeout(timeoutMs)
			if !sleepCtx(ctx, time.Duration(timeoutMs)*time.Millisecond) {
				return nil, ctx.Err()
			}
			continue
		}

		var stream net.Conn
		sawError := false
		for i, ev := range events {
			h := handles[i]
			switch ev {
			case EventHangup:
				h.Owner.Reset()
				timeoutMs = pollMinMS
			case EventSignaled:
				if stream != nil {
					continue // single-signal fairness: first index wins
				}
				s := h.Accepted
				var acceptErr error
				if s == nil {
					s, acceptErr = h.Owner.AcceptStream()
				}
				if acceptErr != nil || s == nil {
					sawError = true
					continue
				}
				stream = s
				p.mu.Lock()
				p.currentPort = h.Owner
				p.mu.Unlock()
			case EventErr:
				h.Owner.Reset()
				sawError = true
			case EventNone:
			}
		}

		if stream != nil {
			return stream, nil
		}
		if sawError {
			wait := timeoutMs
			if wait < 0 {
				wait = pollMaxMS
			}
			sleepCtx(ctx, time.Duration(wait)*time.Millisecond)
			p.mu.Lock()
			p.currentPort = nil
			p.mu.Unlock()
			return nil, nil
		}
	}
}

// ResumeCurrentPort sets hasResumedRuntime on whichever port most recently
// yielded a stream (spec §4.5 resumeCurrentPort). No-op if none has.
func (p *Poller) ResumeCurrentPort() {
	p.mu.Lock()
	port := p.currentPort
	p.mu.Unlock()
	if port != nil {
		port.ResumeRuntime()
	}
}

// AnySuspendedPorts reports whether any port still requires an explicit
// resume before runtime startup can proceed (spec §4.5 anySuspendedPorts).
func (p *Poller) AnySuspendedPorts() bool {
	for _, port := range p.snapshotPorts() {
		if port.SuspendMode() == SuspendModeSuspend && !port.HasResumedRuntime() {
			return true
		}
	}
	return false
}

// HasActivePorts reports whether the poller is usable: not shutting down,
// and the port set is non-empty.
func (p *Poller) HasActivePorts() bool {
	return !p.shuttingDown.Load() && len(p.snapshotPorts()) > 0
}

// nextTimeout implements spec §4.5's adaptive back-off: INFINITE ->
// POLL_MIN_MS, otherwise min(POLL_MAX_MS, current * FALLOFF_FACTOR).
func nextTimeout(current int) int {
	if current < 0 {
		return pollMinMS
	}
	next := int(float64(current) * pollFalloffFactor)
	if next <= current {
		next = current + 1
	}
	if next > pollMaxMS {
		return pollMaxMS
	}
	return next
}

// sleepCtx sleeps for d or until ctx is done, reporting false in the
// latter case.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
