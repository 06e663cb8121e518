package mqtt

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO that stores messages while
// disconnected. Not safe for concurrent use.
type ringBuffer struct {
	buf      []bufferedMsg
	capacity int
	head     int // next write position
	count    int
	dropped  int // overwritten since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{
		buf:      make([]bufferedMsg, capacity),
		capacity: capacity,
	}
}

// push appends msg, overwriting the oldest entry when full. It reports
// whether this push was the first to overwrite since the last drain.
func (r *ringBuffer) push(msg bufferedMsg) bool {
	r.buf[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	if r.count < r.capacity {
		r.count++
		return false
	}
	r.dropped++
	return r.dropped == 1
}

// drainAll returns every buffered message, oldest first, and empties the
// buffer. A retained message for a topic is superseded by a later retained
// message for the same topic.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}

	start := (r.head - r.count + r.capacity) % r.capacity
	all := make([]bufferedMsg, r.count)
	for i := 0; i < r.count; i++ {
		all[i] = r.buf[(start+i)%r.capacity]
	}

	lastRetained := make(map[string]int)
	for i, m := range all {
		if m.retained {
			lastRetained[m.topic] = i
		}
	}
	result := make([]bufferedMsg, 0, len(all))
	for i, m := range all {
		if m.retained && lastRetained[m.topic] != i {
			continue
		}
		result = append(result, m)
	}

	r.count = 0
	r.head = 0
	r.dropped = 0
	return result
}

func (r *ringBuffer) len() int {
	return r.count
}
