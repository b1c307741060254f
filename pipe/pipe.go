// Package pipe implements the anonymous ring-buffer pipe from spec.md
// §4.8, grounded on original_source's pipes.cpp for the ring-buffer
// bookkeeping (read/write offsets wrapping modulo capacity, BUSY
// returned on a full write or empty non-blocking read) and on
// chancacher.go's cachePaused idiom — a channel that is closed to
// broadcast a state change and replaced with a fresh one afterward — for
// how blocked readers/writers are woken.
package pipe

import (
	"sync"
)

// Status mirrors the original's G_FS_*_STATUS/BUSY outcomes relevant to
// pipe I/O.
type Status int

const (
	Success Status = iota
	Busy
	Closed
)

const defaultCapacity = 64 * 1024

// Pipe is a single-buffer, multi-reader/multi-writer ring buffer. Reader
// and writer ends are refcounted independently: the buffer is only ever
// torn down once both reach zero, mirroring the original's
// pipeRemoveReference-on-both-ends-closed rule.
type Pipe struct {
	mu   sync.Mutex
	buf  []byte
	r, w int // read/write offsets into buf, mod cap
	used int

	readers int
	writers int

	readable chan struct{} // closed + replaced whenever used increases or writers hits 0
	writable chan struct{} // closed + replaced whenever used decreases or readers hits 0
}

// New creates a pipe with the given ring-buffer capacity (defaultCapacity
// if capacity <= 0), with one reader and one writer reference already
// held, mirroring pipeCreate's initial refcounts.
func New(capacity int) *Pipe {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Pipe{
		buf:      make([]byte, capacity),
		readers:  1,
		writers:  1,
		readable: make(chan struct{}),
		writable: make(chan struct{}),
	}
}

func (p *Pipe) AddReader() { p.mu.Lock(); p.readers++; p.mu.Unlock() }
func (p *Pipe) AddWriter() { p.mu.Lock(); p.writers++; p.mu.Unlock() }

// RemoveReader drops a reader reference; once it reaches zero, blocked
// writers are released with Closed rather than left parked forever.
func (p *Pipe) RemoveReader() {
	p.mu.Lock()
	p.readers--
	done := p.readers <= 0
	p.mu.Unlock()
	if done {
		p.broadcastWritable()
	}
}

// RemoveWriter drops a writer reference; once it reaches zero, blocked
// readers are woken to observe end-of-stream (Closed once the buffer also
// drains to empty).
func (p *Pipe) RemoveWriter() {
	p.mu.Lock()
	p.writers--
	done := p.writers <= 0
	p.mu.Unlock()
	if done {
		p.broadcastReadable()
	}
}

func (p *Pipe) broadcastReadable() {
	p.mu.Lock()
	close(p.readable)
	p.readable = make(chan struct{})
	p.mu.Unlock()
}

func (p *Pipe) broadcastWritable() {
	p.mu.Lock()
	close(p.writable)
	p.writable = make(chan struct{})
	p.mu.Unlock()
}

// Write copies as much of data as fits in the remaining capacity. If the
// buffer is full, it returns Busy for a non-blocking caller or parks
// until space frees for a blocking one.
func (p *Pipe) Write(data []byte, blocking bool) (int, Status) {
	written := 0
	for written < len(data) {
		p.mu.Lock()
		if p.readers <= 0 {
			p.mu.Unlock()
			return written, Closed
		}
		free := len(p.buf) - p.used
		if free == 0 {
			wait := p.writable
			p.mu.Unlock()
			if !blocking {
				return written, Busy
			}
			<-wait
			continue
		}

		n := len(data) - written
		if n > free {
			n = free
		}
		for i := 0; i < n; i++ {
			p.buf[p.w] = data[written+i]
			p.w = (p.w + 1) % len(p.buf)
		}
		p.used += n
		written += n
		p.mu.Unlock()
		p.broadcastReadable()
	}
	return written, Success
}

// Read copies up to len(out) bytes from the ring buffer. If the buffer is
// empty and at least one writer remains, it returns Busy for a
// non-blocking caller or parks for a blocking one; once all writers have
// gone and the buffer has drained, it returns Closed.
func (p *Pipe) Read(out []byte, blocking bool) (int, Status) {
	for {
		p.mu.Lock()
		if p.used == 0 {
			if p.writers <= 0 {
				p.mu.Unlock()
				return 0, Closed
			}
			wait := p.readable
			p.mu.Unlock()
			if !blocking {
				return 0, Busy
			}
			<-wait
			continue
		}

		n := len(out)
		if n > p.used {
			n = p.used
		}
		for i := 0; i < n; i++ {
			out[i] = p.buf[p.r]
			p.r = (p.r + 1) % len(p.buf)
		}
		p.used -= n
		p.mu.Unlock()
		p.broadcastWritable()
		return n, Success
	}
}

// Truncate discards all buffered, unread data, mirroring the original's
// pipeClear used by fs_pipe_delegate truncate handling.
func (p *Pipe) Truncate() {
	p.mu.Lock()
	p.r, p.w, p.used = 0, 0, 0
	p.mu.Unlock()
	p.broadcastWritable()
}
