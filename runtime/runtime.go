// Package runtime implements the OpenROBO per-process runtime: the
// subsystem table and bootstrap protocol (§4.3), the connection set
// (§4.4), the shared-value store (§4.5), the main dispatcher (§4.6), the
// join queue (§4.7) and the operation-thread lifecycle (§4.8).
//
// Global mutable state that the original implementation kept as process
// globals (store, accept socket, join queues, …) is re-expressed here as
// fields of Runtime, one per process (§9). Per-thread state (common
// buffer, thread-ID, subsystem-table snapshot, connection set,
// working-flag) is an explicit per-goroutine Worker passed into every
// registered function, the idiomatic Go substitute for the original's
// thread-locals.
package runtime

import (
	"context"
	"net"
	"sync"

	"github.com/thecxx/runpoint"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/openrobo/openrobo/message"
)

// OperationFunc is a registered operation-thread entry point. args is
// the Start message that spawned it; the returned int becomes the
// user-level #return value of the Return the spawn machinery sends via
// w.SendReturnMessage once the function returns (§4.8 step 5), after
// the automatic init-acknowledgement Return sent before it starts.
type OperationFunc func(w *Worker, args *message.Message) int

// SubthreadFunc is a registered long-lived helper entry point (§3
// supplement, CreateSubthread): it never emits a user-level Return.
type SubthreadFunc func(w *Worker, argv []string)

type operationEntry struct {
	fn   OperationFunc
	site *runpoint.PCounter
}

type subthreadEntry struct {
	fn   SubthreadFunc
	site *runpoint.PCounter
}

// Runtime is the per-process object every subsystem constructs exactly
// once via New (§6's StartupMainThread). It owns the subsystem table,
// the main thread's connection set, the shared-value store, the join
// queue, and the operation/subthread registries.
type Runtime struct {
	Name   string
	Strict bool // fatal-in-debug vs logged-and-ignored for unknown messages (§4.6, §7)
	log    *zap.Logger

	table *SubsystemTable
	conns *ConnectionSet
	store *SharedValueStore
	queue *JoinQueue

	listener   net.Listener
	acceptPort uint16

	mu         sync.Mutex
	operations map[string]operationEntry
	subthreads map[string]subthreadEntry

	inbox       chan inboundItem
	snapshotReq chan chan Snapshot
	workers     sync.WaitGroup
}

// Snapshot is a point-in-time, dispatcher-goroutine-consistent read of
// the state admin introspection exposes: the store and join queue have
// no locking of their own (they are touched only by the dispatcher
// goroutine, §4.5/§4.7), so every field here is read out on that
// goroutine via Main's select loop rather than accessed directly from
// another goroutine such as an HTTP handler.
type Snapshot struct {
	StoreKeys   []string
	ReturnDepth int
	WaitDepth   int
}

// New constructs a Runtime for the subsystem named name (StartupMainThread,
// §6). It must be called exactly once per process, before AcceptConnection
// or MakeConnection.
func New(name string, log *zap.Logger) *Runtime {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runtime{
		Name:        name,
		log:         log,
		table:       newSubsystemTable(),
		conns:       newConnectionSet(),
		store:       newSharedValueStore(),
		queue:       newJoinQueue(),
		operations:  make(map[string]operationEntry),
		subthreads:  make(map[string]subthreadEntry),
		inbox:       make(chan inboundItem, 64),
		snapshotReq: make(chan chan Snapshot),
	}
}

// Table returns the frozen subsystem table. Empty until bootstrap
// completes. Safe to call from any goroutine: the table is immutable
// once AcceptConnection/MakeConnection freezes it.
func (rt *Runtime) Table() *SubsystemTable {
	return rt.table
}

// Snapshot reads the store's keys and the join queue's depths off the
// dispatcher goroutine, for introspection callers (runtime/admin) that
// run on a different goroutine than Main. It blocks until Main services
// the request or ctx is done, so it must not be called before Main is
// running.
func (rt *Runtime) Snapshot(ctx context.Context) (Snapshot, error) {
	respCh := make(chan Snapshot, 1)
	select {
	case rt.snapshotReq <- respCh:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-respCh:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Roster returns a copy of the connection-set's currently registered
// thread-IDs, for admin introspection.
func (rt *Runtime) Roster() []string {
	all := rt.conns.All()
	out := make([]string, 0, len(all))
	for id := range all {
		out = append(out, id)
	}
	return out
}

// RegisterOperation adds name to the operation dispatch table (§4.6's
// operationEntry[]). The registration call site is captured via
// runpoint and stored with the entry; no error or reply includes it.
func (rt *Runtime) RegisterOperation(name string, fn OperationFunc) {
	site := runpoint.PC(1)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.operations[name] = operationEntry{fn: fn, site: site}
}

// RegisterSubthread adds name to the subthread dispatch table (§3
// supplement, CreateSubthread).
func (rt *Runtime) RegisterSubthread(name string, fn SubthreadFunc) {
	site := runpoint.PC(1)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.subthreads[name] = subthreadEntry{fn: fn, site: site}
}

func (rt *Runtime) lookupOperation(name string) (operationEntry, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, ok := rt.operations[name]
	return e, ok
}

// Shutdown closes every connection the main thread owns and waits for
// spawned operation threads to notice (cooperatively — see §5
// cancellation semantics) and exit, aggregating any errors encountered
// closing those connections.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	err := rt.conns.CloseAll()
	done := make(chan struct{})
	go func() {
		rt.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = multierr.Append(err, ctx.Err())
	}
	return err
}
