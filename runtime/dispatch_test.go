package runtime

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/openrobo/openrobo/message"
)

// dialWorker opens a raw connection impersonating a remote worker
// thread named id, performing the same handshake startAcceptLoop
// expects from ConnectTo.
func dialWorker(t *testing.T, addr, id string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := writeNULLine(conn, id); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	return conn, bufio.NewReader(conn)
}

func TestDispatchStartRunsOperationAndJoins(t *testing.T) {
	rt := New("VS", zap.NewNop())
	rt.RegisterOperation("Grasp", func(w *Worker, args *message.Message) int {
		return 7
	})

	port, err := rt.Listen(0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	rt.startAcceptLoop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mainErr := make(chan error, 1)
	go func() { mainErr <- rt.Main(ctx) }()

	addr := "127.0.0.1:" + strconv.Itoa(int(port))
	conn, reader := dialWorker(t, addr, "A")
	defer conn.Close()

	buf := message.NewBuffer()
	start := message.MakeStartMessage(buf, "Grasp")
	start.SetParamString(message.ParamSrc, "A")
	start.SetParamString(message.ParamDst, "VS")
	if err := message.WriteFrame(conn, start.Bytes(), nil); err != nil {
		t.Fatalf("write start: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	readBuf := message.NewBuffer()
	payload, _, err := message.ReadFrame(reader, readBuf)
	if err != nil {
		t.Fatalf("read init ack: %v", err)
	}
	ack := message.FromBytes(append([]byte(nil), payload...))
	if code, ok := ack.ReturnCode(); !ok || ReturnCode(code) != Success {
		t.Fatalf("init ack #return = %v, %v; want Success", code, ok)
	}

	payload2, _, err := message.ReadFrame(reader, readBuf)
	if err != nil {
		t.Fatalf("read completion return: %v", err)
	}
	done := message.FromBytes(append([]byte(nil), payload2...))
	if code, ok := done.ReturnCode(); !ok || code != 7 {
		t.Fatalf("completion #return = %v, %v; want 7", code, ok)
	}
}

func TestDispatchDoubleStartIsRejected(t *testing.T) {
	rt := New("VS", zap.NewNop())
	block := make(chan struct{})
	rt.RegisterOperation("Long", func(w *Worker, args *message.Message) int {
		<-block
		return 0
	})
	defer close(block)

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

	send := func(src string) {
		buf := message.NewBuffer()
		start := message.MakeStartMessage(buf, "Long")
		start.SetParamString(message.ParamSrc, src)
		start.SetParamString(message.ParamDst, "VS")
		if err := message.WriteFrame(conn, start.Bytes(), nil); err != nil {
			t.Fatalf("write start: %v", err)
		}
	}

	send("A")
	send("A")

	readBuf := message.NewBuffer()
	first, _, err := message.ReadFrame(reader, readBuf)
	if err != nil {
		t.Fatalf("read first ack: %v", err)
	}
	firstCode, _ := message.FromBytes(append([]byte(nil), first...)).ReturnCode()

	second, _, err := message.ReadFrame(reader, readBuf)
	if err != nil {
		t.Fatalf("read second ack: %v", err)
	}
	secondCode, _ := message.FromBytes(append([]byte(nil), second...)).ReturnCode()

	codes := map[int]bool{firstCode: true, secondCode: true}
	if !codes[int(Success)] || !codes[int(DoubleCreateSubthread)] {
		t.Fatalf("expected one Success and one DoubleCreateSubthread ack, got %d and %d", firstCode, secondCode)
	}
}
