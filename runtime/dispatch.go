package runtime

import (
	"context"
	"net"

	"go.uber.org/zap"

	"github.com/openrobo/openrobo/message"
)

// inboundItem is one received frame (or terminal error) fanned in from
// every connection the main thread owns, onto a single channel the
// dispatcher consumes. This is the idiomatic Go rendition of §4.6 step
// 1's "wait for readiness on every socket plus the accept socket": a
// per-connection reader goroutine plus a single-consumer channel
// preserves the same single-threaded dispatch invariant as a select()
// loop without hand-rolling multiplexed non-blocking I/O.
type inboundItem struct {
	id      string
	payload []byte
	err     error
}

// pumpFrames reads frames from conn (registered under id) and forwards
// them to rt.inbox until conn errors or is closed, at which point it
// forwards a final item carrying the error and returns.
func (rt *Runtime) pumpFrames(id string, conn net.Conn) {
	reader, ok := rt.conns.Reader(id)
	if !ok {
		return
	}
	buf := message.NewBuffer()
	for {
		payload, _, err := message.ReadFrame(reader, buf)
		if err != nil {
			rt.inbox <- inboundItem{id: id, err: err}
			return
		}
		// ReadFrame reuses buf's backing array on the next call, so the
		// dispatcher needs its own copy of this frame's bytes.
		owned := make([]byte, len(payload))
		copy(owned, payload)
		rt.inbox <- inboundItem{id: id, payload: owned}
	}
}

// adopt registers conn under id in the main thread's connection set and
// starts pumping its frames into the dispatcher.
func (rt *Runtime) adopt(id string, conn net.Conn) {
	rt.conns.CreateNew(id, conn)
	go rt.pumpFrames(id, conn)
}

// Main is the single-threaded dispatcher loop of §4.6. It runs until ctx
// is cancelled or a roster peer disconnects (ErrDisconnectedPeer), at
// which point it returns.
func (rt *Runtime) Main(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item := <-rt.inbox:
			if item.err != nil {
				if err := rt.handleDisconnect(item.id); err != nil {
					return err
				}
				continue
			}
			rt.dispatch(item.id, message.FromBytes(item.payload))
		case respCh := <-rt.snapshotReq:
			returnDepth, waitDepth := rt.queue.Depths()
			respCh <- Snapshot{
				StoreKeys:   rt.store.Keys(),
				ReturnDepth: returnDepth,
				WaitDepth:   waitDepth,
			}
		}
	}
}

func (rt *Runtime) handleDisconnect(id string) error {
	_, wasRoster := rt.table.Lookup(id)
	rt.conns.Delete(id)
	rt.log.Info("connection closed", zap.String("id", id))
	if wasRoster {
		return ErrDisconnectedPeer
	}
	return nil
}

// dispatch classifies msg by header and routes it (§4.6's table).
func (rt *Runtime) dispatch(from string, msg *message.Message) {
	switch msg.Header() {
	case message.TypeStart:
		rt.handleStart(from, msg)
	case message.TypeReturn:
		rt.handleReturn(msg)
	case message.TypeWait:
		rt.handleWait(msg)
	case message.TypeStop:
		rt.handleStop(msg)
	case message.TypeRead:
		rt.handleRead(msg)
	case message.TypeWrite:
		rt.handleWrite(msg)
	default:
		rt.log.Error("unknown message header", zap.String("from", from))
		if rt.Strict {
			panic("runtime: unknown message header in strict mode")
		}
	}
}

func (rt *Runtime) handleReturn(ret *message.Message) {
	waiter, matched := rt.queue.StoreReturn(ret)
	if !matched {
		return
	}
	rt.forwardReturnToWaiter(waiter, ret)
}

func (rt *Runtime) handleWait(wait *message.Message) {
	stored, matched := rt.queue.EnqueueWait(wait)
	if !matched {
		return
	}
	rt.forwardReturnToWaiter(wait, stored)
}

// forwardReturnToWaiter sends ret to the #src of waiter (the message
// whose own #src names the thread awaiting the return).
func (rt *Runtime) forwardReturnToWaiter(waiter *message.Message, ret *message.Message) {
	dst, ok := waiter.SourceID()
	if !ok {
		return
	}
	if err := rt.conns.SendFrame(dst, ret.Bytes(), nil); err != nil {
		rt.log.Error("failed to forward return", zap.String("dst", dst), zap.Error(err))
	}
}

func (rt *Runtime) handleStop(stop *message.Message) {
	dst, ok := stop.DestinationID()
	subject, okSubject := stop.Subject()
	if !ok || !okSubject {
		return
	}
	threadID := MakeThreadID(dst, subject)
	if err := rt.conns.SendStopByte(threadID); err != nil {
		rt.log.Debug("stop target not connected", zap.String("dst", threadID))
	}
}

func (rt *Runtime) handleRead(read *message.Message) {
	subject, ok := read.Subject()
	buf := message.NewBuffer()
	reply := message.MakeReturnMessage(buf, subject)
	if !ok {
		reply.SetParamInt(message.ParamReturn, int(Error))
		rt.replyTo(read, reply, nil)
		return
	}
	value, found := rt.store.Get(subject)
	if !found {
		reply.SetParamInt(message.ParamReturn, int(NoValue))
		rt.replyTo(read, reply, nil)
		return
	}
	reply.SetParamInt(message.ParamReturn, int(Success))
	// value has no leading ';' of its own (the store keeps it exactly as
	// stripped of its "write;" header, §4.5); without one here it would
	// fuse onto reply's own trailing token with no separator.
	suffix := make([]byte, 0, len(value)+1)
	suffix = append(suffix, ';')
	suffix = append(suffix, value...)
	rt.replyTo(read, reply, suffix)
}

func (rt *Runtime) handleWrite(write *message.Message) {
	subject, ok := write.Subject()
	buf := message.NewBuffer()
	reply := message.MakeReturnMessage(buf, subject)
	if !ok {
		reply.SetParamInt(message.ParamReturn, int(Error))
		rt.replyTo(write, reply, nil)
		return
	}
	if err := rt.store.PutWrite(subject, write); err != nil {
		reply.SetParamInt(message.ParamReturn, int(BufferOver))
		rt.replyTo(write, reply, nil)
		return
	}
	reply.SetParamInt(message.ParamReturn, int(Success))
	rt.replyTo(write, reply, nil)
}

// replyTo sends reply (plus optional suffix payload) back to req's #src.
func (rt *Runtime) replyTo(req *message.Message, reply *message.Message, suffix []byte) {
	dst, ok := req.SourceID()
	if !ok {
		return
	}
	if err := rt.conns.SendFrame(dst, reply.Bytes(), suffix); err != nil {
		rt.log.Error("failed to reply", zap.String("dst", dst), zap.Error(err))
	}
}
