package message

// defaultBufferSize is the initial capacity of a fresh common buffer.
// Sized generously enough that a typical Start/Return/Read/Write message
// never triggers a reallocation in the common case.
const defaultBufferSize = 512

// Buffer is the per-goroutine resizable "common buffer" of §4.1: every
// operation thread (and the main thread) owns exactly one, reused across
// every message it builds or receives. Go slices already grow on
// append, so Buffer exists mainly to give receive paths a single place
// to reuse storage across reads instead of allocating a fresh slice per
// message (§9: "Scoped acquisition of a framed-send buffer and
// message-receive buffer").
type Buffer struct {
	data []byte
}

// NewBuffer allocates a fresh common buffer.
func NewBuffer() *Buffer {
	return &Buffer{data: make([]byte, 0, defaultBufferSize)}
}

// Reset truncates the buffer to empty, retaining its capacity, and
// returns the (empty) backing slice — mirroring GetBuffer's contract of
// "a pointer to it reset to empty" (§4.1).
func (b *Buffer) Reset() []byte {
	b.data = b.data[:0]
	return b.data
}

// Bytes returns the buffer's current contents.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// grow ensures the buffer can hold at least n bytes without another
// reallocation, preserving existing contents. Used by the frame reader
// so that a payload exactly at current capacity does not reallocate,
// while one byte larger does (§8 boundary cases).
func (b *Buffer) grow(n int) {
	if cap(b.data) >= n {
		return
	}
	next := make([]byte, len(b.data), n)
	copy(next, b.data)
	b.data = next
}

// set replaces the buffer's visible contents with data, reusing the
// backing array when it already has enough capacity.
func (b *Buffer) set(data []byte) []byte {
	b.grow(len(data))
	b.data = b.data[:len(data)]
	copy(b.data, data)
	return b.data
}
