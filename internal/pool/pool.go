// Package pool provides a fixed-size pool of recording pixel buffers.
//
// Buffers have one size and format for the lifetime of the pool. Get never
// blocks: once every buffer is checked out it reports ErrExhausted and the
// caller drops the frame.
package pool

import (
	"errors"
	"image"
	"sync/atomic"
)

// ErrExhausted is returned when no buffer is free.
var ErrExhausted = errors.New("pixel buffer pool exhausted")

// Buffer is a pooled RGBA image. Release returns it to its pool; a buffer
// must not be used after Release.
type Buffer struct {
	Image *image.RGBA
	pool  *Pool
	held  atomic.Bool
}

// Release returns the buffer to the pool. Releasing twice is a no-op.
func (b *Buffer) Release() {
	if b == nil || !b.held.CompareAndSwap(true, false) {
		return
	}
	b.pool.free <- b
}

// Pool hands out buffers of a fixed size.
type Pool struct {
	size image.Point
	free chan *Buffer
	outs atomic.Int64
}

// New allocates count buffers of width×height.
func New(width, height, count int) *Pool {
	p := &Pool{
		size: image.Point{X: width, Y: height},
		free: make(chan *Buffer, count),
	}
	for i := 0; i < count; i++ {
		p.free <- &Buffer{Image: image.NewRGBA(image.Rect(0, 0, width, height)), pool: p}
	}
	return p
}

// Get returns a free buffer or ErrExhausted.
func (p *Pool) Get() (*Buffer, error) {
	select {
	case b := <-p.free:
		b.held.Store(true)
		p.outs.Add(1)
		return b, nil
	default:
		return nil, ErrExhausted
	}
}

// Size returns the buffer dimensions.
func (p *Pool) Size() image.Point {
	return p.size
}

// Available returns the number of free buffers.
func (p *Pool) Available() int {
	return len(p.free)
}

// Capacity returns the total number of buffers.
func (p *Pool) Capacity() int {
	return cap(p.free)
}

// Acquired returns how many buffers have been handed out over the pool's lifetime.
func (p *Pool) Acquired() int64 {
	return p.outs.Load()
}
