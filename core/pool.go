package core

import (
	"bytes"
	"sync"
)

// GenericPool is a generic wrapper around sync.Pool
type GenericPool[T any] struct {
	pool sync.Pool
}

// NewGenericPool creates a new GenericPool with a function to create new items.
func NewGenericPool[T any](newItem func() T) *GenericPool[T] {
	return &GenericPool[T]{
		pool: sync.Pool{
			New: func() interface{} {
				return newItem()
			},
		},
	}
}

// Get retrieves an item from the pool.
func (p *GenericPool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put returns an item to the pool.
func (p *GenericPool[T]) Put(item T) {
	p.pool.Put(item)
}

// bufferPool hands out reset bytes.Buffers for block assembly and compression.
type bufferPool struct {
	pool *GenericPool[*bytes.Buffer]
}

// BufferPool is shared by the compressors and the container writer.
var BufferPool = NewBufferPool(DefaultBlockSize)

// NewBufferPool creates a pool whose new buffers start with initialCapacity.
func NewBufferPool(initialCapacity int) *bufferPool {
	return &bufferPool{
		pool: NewGenericPool(func() *bytes.Buffer {
			return bytes.NewBuffer(make([]byte, 0, initialCapacity))
		}),
	}
}

func (bp *bufferPool) Get() *bytes.Buffer {
	return bp.pool.Get()
}

// Put resets buf and returns it to the pool.
func (bp *bufferPool) Put(buf *bytes.Buffer) {
	buf.Reset()
	bp.pool.Put(buf)
}
