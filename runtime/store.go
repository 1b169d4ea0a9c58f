package runtime

import (
	"time"

	"github.com/openrobo/openrobo/message"
)

const storeInitialCapacity = 128

// hashKey implements the byte-recurrence hash of §4.5:
// h_n = (137*h_{n-1} + byte_n) mod capacity.
func hashKey(key string, capacity int) int {
	h := 0
	for i := 0; i < len(key); i++ {
		h = (137*h + int(key[i])) % capacity
	}
	return h
}

type storeSlot struct {
	used  bool
	key   string
	value []byte
}

// SharedValueStore is the open-addressed, linear-probing hash table
// living on the main thread that backs Read/Write (§4.5). It has no
// locking of its own: every access must happen on the dispatcher
// goroutine. Callers on another goroutine (runtime/admin) must not call
// Keys/Get directly — they go through Runtime.Snapshot, which reads
// through the dispatcher's own select loop instead.
type SharedValueStore struct {
	slots []storeSlot
	count int
}

func newSharedValueStore() *SharedValueStore {
	return &SharedValueStore{slots: make([]storeSlot, storeInitialCapacity)}
}

// grow reinserts every live entry into a table ×1.5 the size, rehashing
// against the new capacity.
func (s *SharedValueStore) grow() {
	newCap := len(s.slots) + len(s.slots)/2
	if newCap <= len(s.slots) {
		newCap = len(s.slots) + 1
	}
	next := make([]storeSlot, newCap)
	for _, sl := range s.slots {
		if !sl.used {
			continue
		}
		idx := hashKey(sl.key, newCap)
		for next[idx].used {
			idx = (idx + 1) % newCap
		}
		next[idx] = sl
	}
	s.slots = next
}

func (s *SharedValueStore) maybeGrow() {
	// Grow when load reaches 2/3, i.e. count*3 >= capacity*2.
	if s.count*3 >= len(s.slots)*2 {
		s.grow()
	}
}

// Put inserts or overwrites the raw value stored under key.
func (s *SharedValueStore) Put(key string, value []byte) error {
	s.maybeGrow()
	capacity := len(s.slots)
	idx := hashKey(key, capacity)
	start := idx
	for {
		if !s.slots[idx].used {
			s.slots[idx] = storeSlot{used: true, key: key, value: value}
			s.count++
			return nil
		}
		if s.slots[idx].key == key {
			s.slots[idx].value = value
			return nil
		}
		idx = (idx + 1) % capacity
		if idx == start {
			return ErrTableFull
		}
	}
}

// Get returns the value stored under key, if any.
func (s *SharedValueStore) Get(key string) ([]byte, bool) {
	capacity := len(s.slots)
	if capacity == 0 {
		return nil, false
	}
	idx := hashKey(key, capacity)
	start := idx
	for {
		if !s.slots[idx].used {
			return nil, false
		}
		if s.slots[idx].key == key {
			return s.slots[idx].value, true
		}
		idx = (idx + 1) % capacity
		if idx == start {
			return nil, false
		}
	}
}

// Keys returns every key currently stored, in no particular order.
func (s *SharedValueStore) Keys() []string {
	out := make([]string, 0, s.count)
	for _, sl := range s.slots {
		if sl.used {
			out = append(out, sl.key)
		}
	}
	return out
}

// PutWrite stores the payload of an incoming Write message under key:
// everything after the "write;" header, with any #time the sender
// included stripped and replaced by the receive time (§4.5, and §9's
// note that #time must be a wall clock, not clock()).
func (s *SharedValueStore) PutWrite(key string, writeMsg *message.Message) error {
	raw := writeMsg.Bytes()
	const writeHeaderLen = len("write;")
	if len(raw) < writeHeaderLen {
		raw = nil
	} else {
		raw = raw[writeHeaderLen:]
	}
	stripped := message.FromBytes(raw).WithoutParam(message.ParamTime)
	stamped := message.FromBytes(stripped)
	stamped.SetParamDouble(message.ParamTime, float64(time.Now().UnixNano())/1e9)
	return s.Put(key, stamped.Bytes())
}
