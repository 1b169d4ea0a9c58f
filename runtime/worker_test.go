package runtime

import (
	"context"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/openrobo/openrobo/message"
)

// TestWorkerReadWriteOwnStore exercises a Worker writing to and reading
// back from its own subsystem's shared-value store over its control
// connection (§4.9), via a real Start spawned over TCP.
func TestWorkerReadWriteOwnStore(t *testing.T) {
	rt := New("VS", zap.NewNop())
	got := make(chan int, 1)
	errs := make(chan error, 1)

	rt.RegisterOperation("Store", func(w *Worker, args *message.Message) int {
		write := message.MakeWriteMessage(w.buf, "pose")
		write.SetParamInt("v", 42)
		if err := w.SendCommandMessage("VS", write); err != nil {
			errs <- err
			return -1
		}
		if _, err := w.ReceiveReturnMessage("VS"); err != nil {
			errs <- err
			return -1
		}

		read := message.MakeReadMessage(w.buf, "pose")
		if err := w.SendCommandMessage("VS", read); err != nil {
			errs <- err
			return -1
		}
		reply, err := w.ReceiveReturnMessage("VS")
		if err != nil {
			errs <- err
			return -1
		}
		if code, ok := reply.ReturnCode(); !ok || ReturnCode(code) != Success {
			errs <- err
			return -1
		}
		vs, err := reply.GetParamInt("v")
		if err != nil || len(vs) != 1 {
			errs <- err
			return -1
		}
		got <- vs[0]
		return 0
	})

	port, err := rt.Listen(0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	rt.startAcceptLoop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.Main(ctx)

	addr := "127.0.0.1:" + strconv.Itoa(int(port))
	conn, reader := dialWorker(t, addr, "A")
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	buf := message.NewBuffer()
	start := message.MakeStartMessage(buf, "Store")
	start.SetParamString(message.ParamSrc, "A")
	start.SetParamString(message.ParamDst, "VS")
	if err := message.WriteFrame(conn, start.Bytes(), nil); err != nil {
		t.Fatalf("write start: %v", err)
	}

	readBuf := message.NewBuffer()
	if _, _, err := message.ReadFrame(reader, readBuf); err != nil {
		t.Fatalf("read init ack: %v", err)
	}
	if _, _, err := message.ReadFrame(reader, readBuf); err != nil {
		t.Fatalf("read completion return: %v", err)
	}

	select {
	case v := <-got:
		if v != 42 {
			t.Errorf("round-tripped value = %d, want 42", v)
		}
	case err := <-errs:
		t.Fatalf("operation reported error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for operation result")
	}
}
