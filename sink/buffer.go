package sink

import (
	"sync"

	"github.com/nasa-jpl/cryosweep/sweep"
)

// DefaultBufferSize is the capacity of a Buffer made with a size <= 0
const DefaultBufferSize = 4096

// Buffer keeps the most recent samples of a run in memory for live plots.
// It is safe for one writer and many readers.
type Buffer struct {
	mu   sync.RWMutex
	size int
	buf  []sweep.Sample
}

// NewBuffer returns a Buffer holding at most size samples
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Buffer{size: size, buf: make([]sweep.Sample, 0, size)}
}

// Emit appends s, dropping the oldest sample when full
func (b *Buffer) Emit(s sweep.Sample) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) == b.size {
		copy(b.buf, b.buf[1:])
		b.buf = b.buf[:len(b.buf)-1]
	}
	b.buf = append(b.buf, s)
	return nil
}

// Reset empties the buffer, for the start of a new run
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = b.buf[:0]
}

// Len is the number of samples held
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.buf)
}

// Since returns a copy of the held samples with Index >= index, oldest first
func (b *Buffer) Since(index int) []sweep.Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	i := 0
	if n := len(b.buf); n > 0 {
		// indices are contiguous, so the position is arithmetic
		i = index - b.buf[0].Index
		if i < 0 {
			i = 0
		}
		if i > n {
			i = n
		}
	}
	out := make([]sweep.Sample, len(b.buf)-i)
	copy(out, b.buf[i:])
	return out
}
