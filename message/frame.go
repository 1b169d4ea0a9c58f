package message

import (
	"bufio"
	"fmt"
	"io"
)

// lengthFieldSize is the width of the ASCII lowercase-hex length prefix
// (§6: "8 ASCII lowercase-hex length bytes").
const lengthFieldSize = 8

// MaxFrameSize bounds the length a frame may declare. A frame larger
// than this is reported as ErrBufferOver rather than driving an
// unbounded allocation from an adversarial or corrupted length field.
const MaxFrameSize = 64 << 20 // 64 MiB

// WriteFrame writes one framed message: an 8-digit lowercase-hex length
// of (msg + suffix + 1), then msg, then suffix, then a single NUL
// terminator counted in that length (§4.2). suffix may be nil; it
// implements forwarding's "additional message" appended without
// mutating the original.
func WriteFrame(w io.Writer, msg []byte, suffix []byte) error {
	total := len(msg) + len(suffix) + 1
	if total > MaxFrameSize {
		return ErrBufferOver
	}
	header := fmt.Sprintf("%0*x", lengthFieldSize, total)
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	if len(msg) > 0 {
		if _, err := w.Write(msg); err != nil {
			return err
		}
	}
	if len(suffix) > 0 {
		if _, err := w.Write(suffix); err != nil {
			return err
		}
	}
	_, err := w.Write([]byte{0})
	return err
}

// ReadFrame reads one framed message from r into buf, returning the
// payload with its terminating NUL stripped. A leading NUL byte in the
// length field (instead of a hex digit) is the stop-signal control byte
// (§4.2); ReadFrame consumes it, reports stopSignal=true, and continues
// on to read the framed message that follows it in the same call,
// mirroring the original receive loop's shift-and-realign behaviour.
func ReadFrame(r *bufio.Reader, buf *Buffer) (payload []byte, stopSignal bool, err error) {
	var lenBytes [lengthFieldSize]byte
	for {
		first, rerr := r.ReadByte()
		if rerr != nil {
			return nil, stopSignal, rerr
		}
		if first == 0 {
			stopSignal = true
			continue
		}
		lenBytes[0] = first
		if _, rerr := io.ReadFull(r, lenBytes[1:]); rerr != nil {
			return nil, stopSignal, rerr
		}
		break
	}
	size, perr := parseHexLength(lenBytes[:])
	if perr != nil {
		return nil, stopSignal, ErrMalformedFrame
	}
	if size == 0 {
		// A zero-length payload cannot carry the NUL terminator.
		return nil, stopSignal, ErrMalformedFrame
	}
	if size > MaxFrameSize {
		return nil, stopSignal, ErrBufferOver
	}
	buf.grow(size)
	buf.data = buf.data[:size]
	if _, rerr := io.ReadFull(r, buf.data); rerr != nil {
		return nil, stopSignal, rerr
	}
	if buf.data[size-1] != 0 {
		return nil, stopSignal, ErrMalformedFrame
	}
	return buf.data[:size-1], stopSignal, nil
}

func parseHexLength(b []byte) (int, error) {
	n := 0
	for _, c := range b {
		n <<= 4
		switch {
		case c >= '0' && c <= '9':
			n |= int(c - '0')
		case c >= 'a' && c <= 'f':
			n |= int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			n |= int(c-'A') + 10
		default:
			return 0, ErrMalformedFrame
		}
	}
	return n, nil
}

// PeekStopByte implements CheckWorking's poll (§4.8): it drains any
// number of consecutive stop-signal NUL bytes available on r and reports
// whether a stop byte was seen. If the next available byte begins a real
// frame (non-zero), it is left unread for the normal ReadFrame path.
// PeekStopByte sets no deadline itself: each peek waits as long as a read
// on r's source waits, so a caller that must not block sets a read
// deadline first. A deadline timeout with nothing pending returns
// (false, nil). Once stop bytes have been drained, the read error that
// ends the drain is not reported; the next call sees it again.
func PeekStopByte(r *bufio.Reader) (sawStop bool, err error) {
	for {
		b, peekErr := r.Peek(1)
		if peekErr != nil {
			// Nothing more available (deadline) or the connection closed.
			// Stop bytes already drained are reported as seen; otherwise
			// a timeout means "nothing to report" and any other error,
			// io.EOF included, is surfaced.
			if sawStop {
				return true, nil
			}
			return false, classifyPeekError(peekErr)
		}
		if b[0] != 0 {
			return sawStop, nil
		}
		if _, rerr := r.ReadByte(); rerr != nil {
			return sawStop, rerr
		}
		sawStop = true
	}
}

// WaitForStopByte implements the blocking half of §4.8's stop signalling:
// it reads exactly one byte and requires it to be the NUL control byte.
// Any other byte is an "unknown condition" on a connection that, at this
// call site, is expected to carry nothing but the stop signal.
func WaitForStopByte(r *bufio.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return err
	}
	if b != 0 {
		return fmt.Errorf("message: expected stop byte, got %#x", b)
	}
	return nil
}

func classifyPeekError(err error) error {
	if err == io.EOF {
		return err
	}
	// A read-deadline timeout (net.Error.Timeout()) means "no data
	// pending right now", which is not an error condition for a poll.
	if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
		return nil
	}
	return err
}
