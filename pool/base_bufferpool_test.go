package pool_test

import (
	"testing"

	"github.com/adamnew123456/tabserver/pool"
)

func TestBufferPoolReuse(t *testing.T) {
	bp := pool.New()
	b1 := bp.Get(128)
	b1.Release()
	b2 := bp.Get(64)
	if cap(b2.Bytes()) < 128 {
		t.Error("buffer capacity too small; reuse across size classes failed")
	}
}

func TestBufferPoolOversizeBypassesPool(t *testing.T) {
	bp := pool.New()
	b := bp.Get(1 << 20)
	if len(b.Bytes()) != 1<<20 {
		t.Fatalf("expected exact length for oversize buffer, got %d", len(b.Bytes()))
	}
	b.Release() // must not panic even though it bypassed every class
}

func TestBufferPoolStats(t *testing.T) {
	bp := pool.New()
	b := bp.Get(512)
	stats := bp.Stats()
	if stats.InUse != 1 {
		t.Fatalf("expected InUse=1, got %d", stats.InUse)
	}
	b.Release()
	stats = bp.Stats()
	if stats.InUse != 0 {
		t.Fatalf("expected InUse=0 after release, got %d", stats.InUse)
	}
}
