// Package diagport implements the diagnostic port multiplexer: a
// configuration-driven set of listen/connect endpoints polled with an
// adaptive back-off, yielding one connected stream at a time to an external
// diagnostic server.
//
// # Architecture
//
// [ParsePortConfigs] turns the ports configuration string into a slice of
// [PortSpec]; [Poller.Configure] turns those into concrete [Port] values
// ([ListenPort], [ConnectPort]) via a [TransportFactory]. [Poller] then owns
// the poll loop: [Poller.GetNextAvailableStream] blocks (cooperatively, one
// call at a time) until a port yields a stream, applying the same
// adaptive-timeout back-off and HANGUP/SIGNALED/ERR/NONE event handling the
// port set's poll algorithm is built around.
//
// # Platform split
//
// The readiness check behind a single poll call is platform-specific:
// poll_unix.go uses golang.org/x/sys/unix's poll(2) wrapper across the raw
// file descriptors of every port's transport; poll_other.go is a
// correctness-preserving (not performance-equivalent) per-handle deadline
// probe for platforms without poll(2).
package diagport
