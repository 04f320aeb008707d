// Package pool provides reusable byte buffers for file copies.
package pool

import (
	"fmt"
	"sync"
)

// DefaultBufferSize is the copy buffer used when none is configured (256 KiB).
const DefaultBufferSize = 256 * 1024

// BufferPool hands out fixed-size byte slices backed by a sync.Pool.
// Buffers are passed by pointer so Put does not allocate.
type BufferPool struct {
	size int
	pool sync.Pool
}

// NewBufferPool creates a pool of buffers of exactly size bytes.
// size must be a positive power of two.
func NewBufferPool(size int) *BufferPool {
	if !isPowerOfTwo(size) {
		panic(fmt.Sprintf("buffer size %d must be a power of two", size))
	}
	bp := &BufferPool{size: size}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return bp
}

// Size returns the length of the buffers handed out by Get.
func (bp *BufferPool) Size() int { return bp.size }

// Get returns a buffer with len == Size().
func (bp *BufferPool) Get() *[]byte {
	bufPtr := bp.pool.Get().(*[]byte)
	*bufPtr = (*bufPtr)[:bp.size]
	return bufPtr
}

// Put returns a buffer to the pool. Buffers of a foreign size are dropped.
func (bp *BufferPool) Put(bufPtr *[]byte) {
	if bufPtr == nil || cap(*bufPtr) != bp.size {
		return
	}
	bp.pool.Put(bufPtr)
}

func isPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
