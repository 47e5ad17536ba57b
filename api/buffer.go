// File: api/buffer.go
// Package api defines the small set of cross-cutting contracts shared by
// the reactor, the protocol codecs and the dispatcher: pooled buffers,
// connection handlers and the errors they can fail with.
package api

// Buffer is an owned byte slice obtained from a BufferPool.
// Ownership rule: whoever takes a Buffer out of the pool either
// releases it or hands it to a component that will (an outbound
// queue, a send callback).
type Buffer struct {
	Data []byte
	Pool Releaser
}

// Releaser returns a Buffer to the pool that produced it.
type Releaser interface {
	Put(Buffer)
}

// Bytes returns the full slice backing this Buffer.
func (b Buffer) Bytes() []byte { return b.Data }

// Len returns the number of valid bytes in the buffer.
func (b Buffer) Len() int { return len(b.Data) }

// Capacity returns the capacity of the underlying slice.
func (b Buffer) Capacity() int { return cap(b.Data) }

// Copy returns a freestanding copy of the buffer's data.
func (b Buffer) Copy() []byte {
	dup := make([]byte, len(b.Data))
	copy(dup, b.Data)
	return dup
}

// Slice returns a new Buffer view over b.Data[from:to] sharing the same
// pool reference, so Release on the view hands it to the original pool.
// A view starting past offset 0 has a smaller capacity than the original
// allocation, and a pool may drop it instead of reusing it.
func (b Buffer) Slice(from, to int) Buffer {
	if from < 0 || to > len(b.Data) || from > to {
		return Buffer{Pool: b.Pool}
	}
	return Buffer{Data: b.Data[from:to], Pool: b.Pool}
}

// Release returns the buffer to its pool. Safe on a zero Buffer.
func (b Buffer) Release() {
	if b.Pool != nil {
		b.Pool.Put(b)
	}
}

// BufferPool provides reusable byte buffers sized at least as large as
// requested. It is acceptable for Get to allocate when the pool is
// exhausted; Put is best-effort.
type BufferPool interface {
	Get(size int) Buffer
	Put(b Buffer)
	Stats() BufferPoolStats
}

// BufferPoolStats summarizes pool usage for diagnostics.
type BufferPoolStats struct {
	TotalAlloc int64
	TotalFree  int64
	InUse      int64
}
