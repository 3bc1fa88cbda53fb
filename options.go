package rtcoord

import (
	"time"

	"github.com/joeycumines/go-catrate"

	"github.com/coreclrgo/rtcoord/diagport"
	"github.com/coreclrgo/rtcoord/finalizer"
)

// runtimeOptions holds Runtime construction configuration. Grouping it
// into one explicit value, rather than scattering package-level globals,
// is the generalization spec §9's design note about process-wide state
// asks for.
type runtimeOptions struct {
	logger finalizer.Logger

	lowMemoryThresholdBytes uint64
	lowMemoryPollInterval   time.Duration

	heapDumpLimiter *catrate.Limiter
	genAnalysisPath string

	stress finalizer.StressInhibitor

	portsConfig            string
	disableDefaultListen   bool
	defaultListenAddress   string
	defaultListenSuspend   diagport.SuspendMode
	advertiseMessage       []byte
	connectDialTimeout     time.Duration
	connectRetryLogLimiter *catrate.Limiter
	transports             diagport.TransportFactory
}

// RuntimeOption configures a [Runtime] at construction.
type RuntimeOption interface {
	apply(*runtimeOptions)
}

type runtimeOptionFunc func(*runtimeOptions)

func (f runtimeOptionFunc) apply(o *runtimeOptions) { f(o) }

// WithLogger sets the structured logger both cores use. Nil (the default)
// means no-op logging.
func WithLogger(l finalizer.Logger) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) { o.logger = l })
}

// WithLowMemoryNotification enables the best-effort heap-threshold
// notifier (spec §3 LowMemoryHandle). A zero threshold (the default)
// disables it entirely.
func WithLowMemoryNotification(thresholdBytes uint64, pollInterval time.Duration) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) {
		o.lowMemoryThresholdBytes = thresholdBytes
		o.lowMemoryPollInterval = pollInterval
	})
}

// WithHeapDumpLimiter throttles how often a requested heap dump actually
// triggers a blocking collection (spec §4.1 step 3 expansion).
func WithHeapDumpLimiter(limiter *catrate.Limiter) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) { o.heapDumpLimiter = limiter })
}

// WithGenAnalysisCompletionPath sets the completion-file path template
// (containing a literal "%p" placeholder for the process ID) written once
// a gen-analysis session completes.
func WithGenAnalysisCompletionPath(pathTemplate string) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) { o.genAnalysisPath = pathTemplate })
}

// WithStressInhibitor wires an optional GC-stress inhibition hook into
// both the worker's quiescence probe and the barrier's wait (spec §4.1.2,
// §4.2).
func WithStressInhibitor(s finalizer.StressInhibitor) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) { o.stress = s })
}

// WithPortsConfig sets the diagnostic ports configuration string (spec §6
// grammar).
func WithPortsConfig(config string) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) { o.portsConfig = config })
}

// WithDefaultListenPort configures the always-appended default listen port
// (spec §4.3 step 5). disable skips appending it entirely.
func WithDefaultListenPort(address string, suspend diagport.SuspendMode, disable bool) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) {
		o.defaultListenAddress = address
		o.defaultListenSuspend = suspend
		o.disableDefaultListen = disable
	})
}

// WithAdvertiseMessage sets the one-shot advertise-v1 payload sent on
// every freshly dialed connect port (spec §4.4).
func WithAdvertiseMessage(msg []byte) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) { o.advertiseMessage = msg })
}

// WithConnectDialTimeout bounds a connect port's reconnect attempt.
func WithConnectDialTimeout(d time.Duration) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) { o.connectDialTimeout = d })
}

// WithConnectRetryLogLimiter throttles repeated failed-dial log lines per
// connect port.
func WithConnectRetryLogLimiter(limiter *catrate.Limiter) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) { o.connectRetryLogLimiter = limiter })
}

// WithTransportFactory overrides the default Unix-domain-socket transport
// factory, e.g. for tests.
func WithTransportFactory(f diagport.TransportFactory) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) { o.transports = f })
}

func resolveRuntimeOptions(opts []RuntimeOption) *runtimeOptions {
	cfg := &runtimeOptions{
		connectDialTimeout: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(cfg)
	}
	return cfg
}
