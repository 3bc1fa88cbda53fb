package diagport

import "errors"

// Sentinel and typed errors (spec §7's TransientIpcError / PortConfigError /
// PollError kinds), matching the teacher's one var() block per package.
var (
	// ErrEmptyAddress is a PortConfigError-kind error: a port config
	// resolved to an empty address after tag stripping.
	ErrEmptyAddress = errors.New("diagport: port address is empty")

	// ErrNoCachedStream is returned by [ConnectPort.AcceptStream] when
	// called without a prior successful GetPollHandle populating the
	// cached connection.
	ErrNoCachedStream = errors.New("diagport: connect port has no cached stream to accept")
)

// TransientError is a PollError/TransientIpcError-kind error (spec §7):
// something about a single port's I/O failed, but the port set as a whole
// remains usable (the port will simply fail its next GetPollHandle too,
// driving the adaptive back-off).
type TransientError struct {
	Port string
	Err  error
}

func (e *TransientError) Error() string {
	return "diagport: transient error on port " + e.Port + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// TransportError wraps a failure constructing a port's transport during
// Configure (spec §7 PortConfigError-adjacent: the config parsed fine, but
// the resulting transport couldn't be built).
type TransportError struct {
	Address string
	Err     error
}

func (e *TransportError) Error() string {
	return "diagport: failed constructing transport for " + e.Address + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// PollError wraps a failure from the underlying platform poll primitive
// itself, as opposed to a single port's transport.
type PollError struct {
	Err error
}

func (e *PollError) Error() string { return "diagport: poll failed: " + e.Err.Error() }

func (e *PollError) Unwrap() error { return e.Err }
