package runtime

import (
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/openrobo/openrobo/message"
)

// handleStart implements the "start;subject" row of §4.6's dispatch
// table: look subject up in the operation registry; spawn on a hit;
// regardless of outcome, append the Start itself to the wait-list as
// the implicit Wait described in §9 (the join queue keys purely off
// #subject, so the Start message works as its own Wait entry unchanged).
func (rt *Runtime) handleStart(from string, start *message.Message) {
	subject, ok := start.Subject()
	src, okSrc := start.SourceID()
	dst, okDst := start.DestinationID()
	if !ok || !okSrc || !okDst {
		rt.log.Error("malformed Start message", zap.String("from", from))
		return
	}

	threadID := MakeThreadID(dst, subject)
	entry, found := rt.lookupOperation(subject)
	switch {
	case !found:
		rt.sendInitResult(src, subject, Error)
	case rt.alreadyConnected(threadID):
		rt.sendInitResult(src, subject, DoubleCreateSubthread)
	default:
		rt.spawnOperation(threadID, src, subject, start, entry)
	}

	if waiter, matched := rt.queue.EnqueueWait(start); matched {
		rt.forwardReturnToWaiter(start, waiter)
	}
}

func (rt *Runtime) alreadyConnected(threadID string) bool {
	_, ok := rt.conns.FindByID(threadID)
	return ok
}

// sendInitResult replies to src with the Start's system-level
// acknowledgement Return (§4.8 step 3), carrying code as its #return.
func (rt *Runtime) sendInitResult(src, subject string, code ReturnCode) {
	buf := message.NewBuffer()
	reply := message.MakeReturnMessage(buf, subject)
	reply.SetParamInt(message.ParamReturn, int(code))
	if err := rt.conns.SendFrame(src, reply.Bytes(), nil); err != nil {
		rt.log.Error("failed to send init result", zap.String("dst", src), zap.Error(err))
	}
}

// controlPipe opens the control connection between a spawned thread and
// its own main thread (§4.8, §4.9): a net.Pipe registered under
// threadID on the main side (indistinguishable from any other inbound
// connection to the dispatcher) and under rt.Name on the worker side
// (so every Worker API that talks to "my own main thread" just looks up
// rt.Name in its own connection set).
func (rt *Runtime) controlPipe(threadID string) *Worker {
	mainSide, workerSide := net.Pipe()
	rt.adopt(threadID, mainSide)
	w := newWorker(threadID, rt.table.Snapshot(), rt.Name)
	w.conns.CreateNew(rt.Name, workerSide)
	return w
}

// spawnOperation implements CreateOperationThread (§4.8): detach a new
// goroutine running e.fn with a cloned Start message and a snapshot of
// the subsystem table, sending the init-ack Return first and the
// function's own user-level Return on completion.
func (rt *Runtime) spawnOperation(threadID, src, subject string, start *message.Message, e operationEntry) {
	w := rt.controlPipe(threadID)
	args := start.Clone()

	rt.workers.Add(1)
	go func() {
		defer rt.workers.Done()
		defer func() {
			if err := w.conns.CloseAll(); err != nil {
				rt.log.Error("error closing operation thread connections",
					zap.String("thread", threadID), zap.Error(err))
			}
		}()

		rt.sendInitResult(src, subject, Success)

		result := e.fn(w, args)

		ret := message.MakeReturnMessage(w.buf, subject)
		ret.SetParamInt(message.ParamReturn, result)
		if err := w.SendReturnMessage(ret); err != nil {
			rt.log.Error("failed to send operation return",
				zap.String("thread", threadID), zap.Error(err))
		}
	}()
}

// CreateSubthread starts a long-lived helper thread registered under
// name (§3 supplement): same spawn machinery as an operation thread,
// but the entry point never emits a user-level Return. Unlike
// operation threads, subthreads are started directly by the owning
// process (e.g. at startup) rather than in response to a wire Start —
// the dispatch table's "start;subject" row only ever consults the
// operation registry (§4.6) — so there is no remote requester to send
// the init acknowledgement to.
func (rt *Runtime) CreateSubthread(name string, argv []string) error {
	rt.mu.Lock()
	e, ok := rt.subthreads[name]
	rt.mu.Unlock()
	if !ok {
		return fmt.Errorf("runtime: no such subthread %q", name)
	}

	threadID := MakeThreadID(rt.Name, name)
	if rt.alreadyConnected(threadID) {
		return ErrDoubleCreate
	}

	w := rt.controlPipe(threadID)
	rt.workers.Add(1)
	go func() {
		defer rt.workers.Done()
		defer func() {
			if err := w.conns.CloseAll(); err != nil {
				rt.log.Error("error closing subthread connections",
					zap.String("thread", threadID), zap.Error(err))
			}
		}()
		e.fn(w, argv)
	}()
	return nil
}
