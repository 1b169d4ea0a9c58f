package runtime

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/openrobo/openrobo/message"
)

// Worker is the explicit per-goroutine context handed to every
// registered OperationFunc/SubthreadFunc: the idiomatic Go substitute
// for the thread-locals (own thread-ID, own connection set, own
// subsystem-table snapshot, working-flag) the original kept implicitly
// per OS thread (§4.8, §4.9, package doc).
type Worker struct {
	id        string
	table     *SubsystemTable
	conns     *ConnectionSet
	controlID string
	working   int32
	buf       *message.Buffer
}

func newWorker(id string, table *SubsystemTable, controlID string) *Worker {
	return &Worker{
		id:        id,
		table:     table,
		conns:     newConnectionSet(),
		controlID: controlID,
		working:   1,
		buf:       message.NewBuffer(),
	}
}

// ThreadID returns this worker's own wire thread-ID.
func (w *Worker) ThreadID() string {
	return w.id
}

// ConnectTo opens a direct connection to subsystem's main thread
// (§4.4's Connect-to), registering it under subsystem in this worker's
// own connection set. It is a no-op if already connected.
func (w *Worker) ConnectTo(subsystem string) error {
	if _, ok := w.conns.FindByID(subsystem); ok {
		return nil
	}
	entry, ok := w.table.Lookup(subsystem)
	if !ok {
		return ErrNoPeer
	}
	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", entry.IP, entry.Port))
	if err != nil {
		return fmt.Errorf("runtime: connect to %s: %w", subsystem, err)
	}
	if err := writeNULLine(conn, w.id); err != nil {
		conn.Close()
		return err
	}
	w.conns.CreateNew(subsystem, conn)
	return nil
}

// SendCommandMessage stamps #src/#dst onto msg and sends it to dst,
// opening a connection to dst's owning subsystem if none exists yet
// (§4.9: only valid from a worker thread). dst may be a bare subsystem
// name (targeting a main thread) or a "subsystem@function" operation
// thread-ID; either way the wire #dst is always just the subsystem name
// (matching handleStart's own reading of it), and the physical
// connection is to that subsystem's accept socket.
func (w *Worker) SendCommandMessage(dst string, msg *message.Message) error {
	subsystem, _, isOperation := ParseThreadID(dst)
	if !isOperation {
		subsystem = dst
	}
	if err := msg.SetParamString(message.ParamSrc, w.id); err != nil {
		return err
	}
	if err := msg.SetParamString(message.ParamDst, subsystem); err != nil {
		return err
	}
	if err := w.ConnectTo(subsystem); err != nil {
		return err
	}
	return w.conns.SendFrame(subsystem, msg.Bytes(), nil)
}

// SendReturnMessage sends msg to this worker's own main thread over its
// control connection (§4.8 step 5), stamping #src so the dispatcher's
// join-queue logic can route it like any other Return. The spawn
// machinery calls this itself once the OperationFunc returns, carrying
// the function's result as #return.
func (w *Worker) SendReturnMessage(msg *message.Message) error {
	if err := msg.SetParamString(message.ParamSrc, w.id); err != nil {
		return err
	}
	return w.conns.SendFrame(w.controlID, msg.Bytes(), nil)
}

// ReceiveReturnMessage blocks for the next frame on the connection
// registered under srcID (typically the subsystem a prior
// SendCommandMessage targeted), consuming and recording any interleaved
// stop byte along the way (§4.2's stop-byte multiplexing).
func (w *Worker) ReceiveReturnMessage(srcID string) (*message.Message, error) {
	reader, ok := w.conns.Reader(srcID)
	if !ok {
		return nil, ErrUnknownDestination
	}
	payload, stop, err := message.ReadFrame(reader, w.buf)
	if stop {
		atomic.StoreInt32(&w.working, 0)
	}
	if err != nil {
		return nil, err
	}
	owned := make([]byte, len(payload))
	copy(owned, payload)
	return message.FromBytes(owned), nil
}

// CheckWorking performs a non-blocking poll of the control connection
// for a pending stop byte (§4.9's CheckWorking: "never an error" to
// observe false). It waits at most one millisecond for input.
func (w *Worker) CheckWorking() bool {
	reader, ok := w.conns.Reader(w.controlID)
	conn, _ := w.conns.FindByID(w.controlID)
	if ok && conn != nil {
		// The short deadline turns PeekStopByte's peek into a poll; the
		// deadline is cleared again so later blocking reads are unaffected.
		conn.SetReadDeadline(time.Now().Add(time.Millisecond))
		sawStop, err := message.PeekStopByte(reader)
		conn.SetReadDeadline(time.Time{})
		if err == nil && sawStop {
			atomic.StoreInt32(&w.working, 0)
		}
	}
	return atomic.LoadInt32(&w.working) == 1
}

// WaitForStopMessage blocks until the control connection delivers a
// stop byte (§4.9's WaitForStopMessage).
func (w *Worker) WaitForStopMessage() error {
	reader, ok := w.conns.Reader(w.controlID)
	if !ok {
		return ErrNotWorker
	}
	if err := message.WaitForStopByte(reader); err != nil {
		return err
	}
	atomic.StoreInt32(&w.working, 0)
	return nil
}

// RequestExit sends dst a Stop without waiting for it to exit
// (§3 supplement's OpenROBO_RequestToExitThread: stop-then-forget).
func (w *Worker) RequestExit(dst string) error {
	msg := message.MakeStopMessage(w.buf, subjectOfThreadID(dst))
	return w.SendCommandMessage(dst, msg)
}

// Join sends dst an explicit Wait and blocks for its Return
// (§3 supplement's OpenROBO_JoinThread: wait-only).
func (w *Worker) Join(dst string) (*message.Message, error) {
	subsystem, _, isOperation := ParseThreadID(dst)
	if !isOperation {
		subsystem = dst
	}
	msg := message.MakeWaitMessage(w.buf, subjectOfThreadID(dst))
	if err := w.SendCommandMessage(dst, msg); err != nil {
		return nil, err
	}
	return w.ReceiveReturnMessage(subsystem)
}

// ExitAndJoin requests dst's exit and blocks for its Return
// (§3 supplement's OpenROBO_ExitThread: stop-then-wait-for-the-Return).
func (w *Worker) ExitAndJoin(dst string) (*message.Message, error) {
	if err := w.RequestExit(dst); err != nil {
		return nil, err
	}
	return w.Join(dst)
}

func subjectOfThreadID(id string) string {
	subsystem, function, isOperation := ParseThreadID(id)
	if isOperation {
		return function
	}
	return subsystem
}
