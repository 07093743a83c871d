// If you are AI: This file implements the per-consumer byte ring buffer.
// The ring provides bounded buffering with overwrite-oldest overflow behavior.
// CRITICAL: Write never rejects bytes. When the ring is full the oldest bytes
// are discarded so the producer always makes forward progress; slow-consumer
// handling lives in the send path, not here.

package ring

// Buffer is a fixed-capacity FIFO byte buffer.
// On overflow the oldest bytes are discarded and counted.
// Lock expectations: none. Each buffer is owned by exactly one stream relay
// goroutine; all access is single-threaded.
// Allocation: one backing array at creation, nothing per operation.
type Buffer struct {
	data      []byte
	capacity  int
	readIdx   int
	writeIdx  int
	count     int
	overflows uint64 // Bytes discarded due to overflow
	delivered uint64 // Bytes handed out by Read, net of Unread
}

// New creates a ring buffer with the given capacity in bytes.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{
		data:     make([]byte, capacity),
		capacity: capacity,
	}
}

// Write appends p to the buffer, discarding the oldest bytes if the buffer
// would overflow. All of p is always consumed.
func (b *Buffer) Write(p []byte) {
	n := len(p)
	if n == 0 {
		return
	}

	// A write larger than the whole ring keeps only its tail.
	if n >= b.capacity {
		b.overflows += uint64(b.count + n - b.capacity)
		copy(b.data, p[n-b.capacity:])
		b.readIdx = 0
		b.writeIdx = 0
		b.count = b.capacity
		return
	}

	// Discard the oldest bytes to make room.
	if over := b.count + n - b.capacity; over > 0 {
		b.readIdx = (b.readIdx + over) % b.capacity
		b.count -= over
		b.overflows += uint64(over)
	}

	// Copy in one or two segments around the wrap point.
	first := b.capacity - b.writeIdx
	if first > n {
		first = n
	}
	copy(b.data[b.writeIdx:], p[:first])
	copy(b.data, p[first:])
	b.writeIdx = (b.writeIdx + n) % b.capacity
	b.count += n
}

// Read copies up to len(dst) bytes into dst in FIFO order.
// Returns the number of bytes copied.
func (b *Buffer) Read(dst []byte) int {
	n := len(dst)
	if n > b.count {
		n = b.count
	}
	if n == 0 {
		return 0
	}

	first := b.capacity - b.readIdx
	if first > n {
		first = n
	}
	copy(dst[:first], b.data[b.readIdx:b.readIdx+first])
	copy(dst[first:n], b.data)
	b.readIdx = (b.readIdx + n) % b.capacity
	b.count -= n
	b.delivered += uint64(n)
	return n
}

// Unread returns the last n bytes obtained from Read to the front of the
// buffer, preserving FIFO order. Used when a socket send was partial.
// The bytes are still present in the backing array (nothing has written
// since the Read), so rewinding the read index is sufficient.
func (b *Buffer) Unread(n int) {
	if n <= 0 {
		return
	}
	if n > b.capacity-b.count {
		n = b.capacity - b.count
	}
	b.readIdx = (b.readIdx - n + b.capacity) % b.capacity
	b.count += n
	b.delivered -= uint64(n)
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	return b.count
}

// Cap returns the buffer capacity in bytes.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Overflows returns the total number of bytes discarded due to overflow.
func (b *Buffer) Overflows() uint64 {
	return b.overflows
}

// Delivered returns the total number of bytes handed out by Read,
// net of bytes returned with Unread.
func (b *Buffer) Delivered() uint64 {
	return b.delivered
}
