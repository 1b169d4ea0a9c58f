package message_test

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/openrobo/openrobo/message"
)

func TestFrameRoundTrip(t *testing.T) {
	var wire bytes.Buffer
	payload := []byte("Start;#subject=(s1),Grasp")

	if err := message.WriteFrame(&wire, payload, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	wantLen := 8 + len(payload) + 1
	if wire.Len() != wantLen {
		t.Fatalf("wire length = %d, want %d", wire.Len(), wantLen)
	}

	br := bufio.NewReader(&wire)
	got, stop, err := message.ReadFrame(br, message.NewBuffer())
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if stop {
		t.Error("unexpected stop signal")
	}
	if string(got) != string(payload) {
		t.Errorf("ReadFrame() = %q, want %q", got, payload)
	}
	if wire.Len() != 0 {
		t.Errorf("%d unconsumed bytes remain, stream not aligned", wire.Len())
	}
}

func TestFrameRoundTripWithSuffix(t *testing.T) {
	var wire bytes.Buffer
	payload := []byte("Return;#subject=(s1),Grasp")
	suffix := []byte(";#src=(s1),A@TP")

	if err := message.WriteFrame(&wire, payload, suffix); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	br := bufio.NewReader(&wire)
	got, _, err := message.ReadFrame(br, message.NewBuffer())
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	want := string(payload) + string(suffix)
	if string(got) != want {
		t.Errorf("ReadFrame() = %q, want %q", got, want)
	}
}

func TestFrameBufferDoesNotGrowAtExactCapacity(t *testing.T) {
	buf := message.NewBuffer()
	initialCap := cap(buf.Bytes())

	// The frame payload counts the NUL terminator WriteFrame appends, so a
	// message one byte short of capacity fills the buffer exactly.
	payload := make([]byte, initialCap-1)
	for i := range payload {
		payload[i] = 'a'
	}

	var wire bytes.Buffer
	if err := message.WriteFrame(&wire, payload, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	br := bufio.NewReader(&wire)
	if _, _, err := message.ReadFrame(br, buf); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if cap(buf.Bytes()) != initialCap {
		t.Errorf("buffer grew reading a payload exactly at capacity: cap = %d, want %d", cap(buf.Bytes()), initialCap)
	}
}

func TestFrameBufferGrowsOneByteOver(t *testing.T) {
	buf := message.NewBuffer()
	initialCap := cap(buf.Bytes())

	// With the NUL terminator the frame payload is initialCap+1 bytes.
	payload := make([]byte, initialCap)
	for i := range payload {
		payload[i] = 'a'
	}

	var wire bytes.Buffer
	if err := message.WriteFrame(&wire, payload, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	br := bufio.NewReader(&wire)
	if _, _, err := message.ReadFrame(br, buf); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if cap(buf.Bytes()) <= initialCap {
		t.Errorf("buffer did not grow for a payload one byte over capacity")
	}
}

func TestReadFrameDetectsStopSignal(t *testing.T) {
	var wire bytes.Buffer
	wire.WriteByte(0) // stop control byte
	payload := []byte("Return;#subject=(s1),Grasp")
	if err := message.WriteFrame(&wire, payload, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	br := bufio.NewReader(&wire)
	got, stop, err := message.ReadFrame(br, message.NewBuffer())
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !stop {
		t.Error("expected stop signal to be reported")
	}
	if string(got) != string(payload) {
		t.Errorf("ReadFrame() = %q, want %q", got, payload)
	}
}

func TestMalformedFrameTerminator(t *testing.T) {
	var wire bytes.Buffer
	io.WriteString(&wire, "00000003")
	wire.Write([]byte{'a', 'b', 'c'}) // last byte is not NUL

	br := bufio.NewReader(&wire)
	if _, _, err := message.ReadFrame(br, message.NewBuffer()); err != message.ErrMalformedFrame {
		t.Errorf("err = %v, want ErrMalformedFrame", err)
	}
}

func TestPeekStopByteDrainsConsecutiveStopBytes(t *testing.T) {
	var wire bytes.Buffer
	wire.Write([]byte{0, 0, 0})
	br := bufio.NewReader(&wire)

	sawStop, err := message.PeekStopByte(br)
	if err != nil {
		t.Fatalf("PeekStopByte: %v", err)
	}
	if !sawStop {
		t.Error("expected stop bytes to be drained")
	}
	if wire.Len() != 0 {
		t.Errorf("%d bytes left undrained", wire.Len())
	}
}

func TestPeekStopByteLeavesRealFrameUnread(t *testing.T) {
	var wire bytes.Buffer
	io.WriteString(&wire, "00000001")
	wire.WriteByte(0)
	br := bufio.NewReader(&wire)

	sawStop, err := message.PeekStopByte(br)
	if err != nil {
		t.Fatalf("PeekStopByte: %v", err)
	}
	if sawStop {
		t.Error("did not expect a stop byte")
	}

	if _, _, err := message.ReadFrame(br, message.NewBuffer()); err != nil {
		t.Errorf("ReadFrame after PeekStopByte: %v", err)
	}
}
