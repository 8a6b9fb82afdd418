package ringbuffer

import "sync"

// RingBuffer is a concurrent-safe ring buffer for int16 samples. Neither
// Write nor Read block: the audio device callback must never stall, and
// the producer drops what does not fit.
type RingBuffer struct {
	mu    sync.Mutex
	buf   []int16
	read  int
	count int
}

// New creates a new RingBuffer holding up to size samples.
func New(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{buf: make([]int16, size)}
}

// Cap returns the capacity in samples.
func (rb *RingBuffer) Cap() int {
	return len(rb.buf)
}

// Len returns the number of samples available for reading.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Free returns the number of samples that can be written.
func (rb *RingBuffer) Free() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return len(rb.buf) - rb.count
}

// Write copies as much of data as fits and returns the number of samples
// written.
func (rb *RingBuffer) Write(data []int16) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := min(len(data), len(rb.buf)-rb.count)
	w := (rb.read + rb.count) % len(rb.buf)
	// Copy in one or two chunks.
	first := copy(rb.buf[w:], data[:n])
	copy(rb.buf, data[first:n])
	rb.count += n
	return n
}

// WriteZeros appends n silent samples, as many as fit.
func (rb *RingBuffer) WriteZeros(n int) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n = min(n, len(rb.buf)-rb.count)
	w := (rb.read + rb.count) % len(rb.buf)
	for i := 0; i < n; i++ {
		rb.buf[(w+i)%len(rb.buf)] = 0
	}
	rb.count += n
	return n
}

// Read fills dst with up to len(dst) samples and returns how many were read.
func (rb *RingBuffer) Read(dst []int16) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := min(len(dst), rb.count)
	first := copy(dst[:n], rb.buf[rb.read:])
	copy(dst[first:n], rb.buf)
	rb.read = (rb.read + n) % len(rb.buf)
	rb.count -= n
	return n
}

// Reset discards all buffered samples.
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.read, rb.count = 0, 0
}
