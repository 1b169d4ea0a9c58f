package runtime

import "errors"

// Caller-facing Go errors for the runtime's API surface. User-level
// protocol outcomes (double spawn, missing operation, no stored value,
// …) are never returned as Go errors from dispatch — they are encoded
// on the wire as a negative #return (§7) and surfaced here only via
// ReturnCode.
var (
	// ErrNoPeer is returned by ConnectTo when the destination subsystem
	// is absent from the frozen subsystem table.
	ErrNoPeer = errors.New("runtime: no such peer subsystem")

	// ErrAlreadyBootstrapped is returned by AcceptConnection/MakeConnection
	// if the subsystem table has already been frozen.
	ErrAlreadyBootstrapped = errors.New("runtime: subsystem table already bootstrapped")

	// ErrUnknownDestination is returned when a Stop's #dst names a thread
	// that is not currently connected.
	ErrUnknownDestination = errors.New("runtime: destination thread not connected")

	// ErrDisconnectedPeer is returned from Main when a roster subsystem's
	// connection drops (§4.6, §7: escalate by returning from Main).
	ErrDisconnectedPeer = errors.New("runtime: roster peer disconnected")

	// ErrNotWorker is returned by any Worker-only API invoked without a
	// valid worker context.
	ErrNotWorker = errors.New("runtime: operation only valid from a worker thread")

	// ErrDuplicateSubsystem is returned during AcceptConnection bootstrap
	// when a peer announces an id already present in the table.
	ErrDuplicateSubsystem = errors.New("runtime: duplicate subsystem id during bootstrap")

	// ErrDoubleCreate is returned by CreateSubthread when a thread is
	// already connected under the derived thread-ID (§4.8's DoubleCreate).
	ErrDoubleCreate = errors.New("runtime: thread already connected under this id")

	// ErrTableFull is returned by the shared-value store when linear
	// probing exhausts every slot after a grow — should never trigger
	// under the ×1.5-at-2/3-load grow policy (§4.5).
	ErrTableFull = errors.New("runtime: shared-value store has no free slot")

	// ErrPortWrapped is returned by listenWithFallback when every port
	// from the requested one up to 65535 and back around to the requested
	// one failed to bind.
	ErrPortWrapped = errors.New("runtime: no free port found before wrapping back to the default")
)
