// SPDX-License-Identifier: Apache-2.0

// Package sendpool implements the bounded free-list of fixed-size datagram
// buffers described in §4.1. It exists so the pacing and reactor code paths
// never allocate on the hot send path: a buffer is acquired, filled, handed
// to the transport, and released back to the pool once the send completes.
package sendpool

import (
	"sync"
	"sync/atomic"
)

// MaxDatagramSend is MAX_DGRAM_SEND from §3: the largest payload a SendBuffer
// ever carries.
const MaxDatagramSend = 1350

// Buffer is a fixed-size payload array plus a current length. Buffers
// returned from Pool.Acquire have undefined payload and Length 0, matching
// §4.1's contract.
type Buffer struct {
	Payload [MaxDatagramSend]byte
	Length  int
}

// Reset restores a buffer to its post-Acquire contract without
// zeroing the payload, since the length alone governs what is read.
func (b *Buffer) Reset() {
	b.Length = 0
}

// Pool is a mutex-guarded free list with an atomic size hint that lets
// Acquire skip locking entirely when the pool is empty (§4.1).
type Pool struct {
	mu        sync.Mutex
	free      []*Buffer
	freeCount int32
}

// New returns an empty pool; buffers are allocated lazily on first Acquire.
func New() *Pool {
	return &Pool{}
}

// Acquire pops a buffer from the free list or allocates a fresh one. There is
// no upper bound on the pool (§4.1) — allocation failure, if it ever
// happens, propagates from the Go runtime allocator same as any other
// allocation in this module.
func (p *Pool) Acquire() *Buffer {
	if atomic.LoadInt32(&p.freeCount) == 0 {
		return &Buffer{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.free)
	if n == 0 {
		return &Buffer{}
	}

	buf := p.free[n-1]
	p.free = p.free[:n-1]
	atomic.AddInt32(&p.freeCount, -1)
	buf.Reset()
	return buf
}

// Release returns buf to the free list. Memory is only returned to the
// allocator when the owning endpoint (and thus the whole Pool) is garbage
// collected, matching §4.1's "memory is returned only when the endpoint is
// destroyed".
func (p *Pool) Release(buf *Buffer) {
	if buf == nil {
		return
	}

	p.mu.Lock()
	p.free = append(p.free, buf)
	p.mu.Unlock()

	atomic.AddInt32(&p.freeCount, 1)
}
