package mqtt

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO that holds messages while the broker is
// unreachable. When full, the oldest message is dropped.
// Safe for concurrent use: the paho reconnect handler drains it from its own goroutine.
type ringBuffer struct {
	mu      sync.Mutex
	buf     []bufferedMsg
	head    int // next write position
	count   int
	dropped int // messages lost since the last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{buf: make([]bufferedMsg, capacity)}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	r.mu.Lock()
	defer r.mu.Unlock()

	capacity := len(r.buf)
	r.buf[r.head] = msg
	r.head = (r.head + 1) % capacity
	if r.count < capacity {
		r.count++
		return
	}
	// Overwrote the oldest entry.
	if r.dropped == 0 {
		log.Warn().Int("capacity", capacity).Msg("mqtt buffer full, dropping oldest")
	}
	r.dropped++
}

// drain removes and returns every buffered message, oldest first, and how
// many were dropped since the previous drain.
func (r *ringBuffer) drain() ([]bufferedMsg, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := r.dropped
	r.dropped = 0
	if r.count == 0 {
		return nil, dropped
	}

	capacity := len(r.buf)
	out := make([]bufferedMsg, r.count)
	start := (r.head - r.count + capacity) % capacity
	for i := range out {
		out[i] = r.buf[(start+i)%capacity]
		r.buf[(start+i)%capacity] = bufferedMsg{}
	}
	r.count = 0
	r.head = 0
	return out, dropped
}

func (r *ringBuffer) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
