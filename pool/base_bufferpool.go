// File: pool/base_bufferpool.go
// Package pool implements the process-wide buffer pool used by the
// reactor, the protocol codecs, and the dispatcher.
//
// Buffers are bucketed by power-of-two size class so a small receive
// buffer never pins one sized for the largest permitted tabserver
// payload (65535 bytes, see client.MaxLineBuffer).

package pool

import (
	"sync"
	"sync/atomic"

	"github.com/adamnew123456/tabserver/api"
)

const (
	minClassBits = 8  // 256 bytes
	maxClassBits = 17 // 128 KiB; covers the 65535-byte max Send/receive buffer
)

// BufferPool is a process-wide, thread-safe pool of byte buffers. It
// implements api.BufferPool.
type BufferPool struct {
	classes [maxClassBits - minClassBits + 1]chan []byte

	alloc int64
	free  int64
	inUse int64
}

// New constructs an empty BufferPool.
func New() *BufferPool {
	p := &BufferPool{}
	for i := range p.classes {
		p.classes[i] = make(chan []byte, 256)
	}
	return p
}

var (
	defaultOnce sync.Once
	defaultPool *BufferPool
)

// Default returns a lazily constructed process-wide pool. The broker
// itself does not use it: cmd/broker builds one pool with New and passes
// it to every component.
func Default() *BufferPool {
	defaultOnce.Do(func() { defaultPool = New() })
	return defaultPool
}

// classIndex returns the size-class index covering size, or -1 if size
// exceeds the largest class (the caller falls back to a bare allocation).
func classIndex(size int) int {
	if size > 1<<maxClassBits {
		return -1
	}
	bits := minClassBits
	capacity := 1 << minClassBits
	for capacity < size {
		bits++
		capacity <<= 1
	}
	return bits - minClassBits
}

// Get returns a buffer of exactly size bytes (len == size), backed by
// storage from the matching size class. Acquiring from an empty or
// oversized class allocates; every Get must eventually be released (or
// have ownership transferred) via Buffer.Release / BufferPool.Put.
func (p *BufferPool) Get(size int) api.Buffer {
	atomic.AddInt64(&p.inUse, 1)
	idx := classIndex(size)
	if idx >= 0 {
		select {
		case buf := <-p.classes[idx]:
			return api.Buffer{Data: buf[:size], Pool: p}
		default:
		}
	}
	atomic.AddInt64(&p.alloc, 1)
	classCap := size
	if idx >= 0 {
		classCap = 1 << (minClassBits + idx)
	}
	return api.Buffer{Data: make([]byte, size, classCap), Pool: p}
}

// Put returns b to the class channel matching its capacity. A capacity
// that doesn't land exactly on a class boundary (e.g. a slice taken from
// a larger buffer) is dropped rather than pooled incorrectly; losing a
// buffer is a leak, never a correctness bug.
func (p *BufferPool) Put(b api.Buffer) {
	atomic.AddInt64(&p.inUse, -1)
	atomic.AddInt64(&p.free, 1)
	c := b.Capacity()
	idx := classIndex(c)
	if idx < 0 || 1<<(minClassBits+idx) != c {
		return
	}
	select {
	case p.classes[idx] <- b.Data[:c]:
	default:
	}
}

// Stats returns a snapshot of pool usage.
func (p *BufferPool) Stats() api.BufferPoolStats {
	return api.BufferPoolStats{
		TotalAlloc: atomic.LoadInt64(&p.alloc),
		TotalFree:  atomic.LoadInt64(&p.free),
		InUse:      atomic.LoadInt64(&p.inUse),
	}
}
