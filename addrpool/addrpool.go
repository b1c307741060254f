// Package addrpool implements the per-process virtual address-range
// allocator from spec.md §3 ("Address-range pool") and §4.9 (PT_LOAD
// segment placement, next-base bumping for dependency loading). It hands
// out page-aligned, non-overlapping ranges of a process's user half and
// reclaims them on free.
//
// The page size is taken from the host via golang.org/x/sys/unix rather
// than a hardcoded constant, since the simulation kernel runs as an
// ordinary process and its own page size is the only one available to it.
package addrpool

import (
	"errors"
	"sort"
	"sync"

	"golang.org/x/sys/unix"
)

var pageSize = uint32(unix.Getpagesize())

// PageSize reports the allocator's rounding granularity.
func PageSize() uint32 { return pageSize }

// RoundUp rounds v up to the next page boundary.
func RoundUp(v uint32) uint32 {
	return (v + pageSize - 1) &^ (pageSize - 1)
}

// Range is a half-open virtual address range [Start, End).
type Range struct {
	Start uint32
	End   uint32
}

func (r Range) Size() uint32 { return r.End - r.Start }

var ErrExhausted = errors.New("address range pool exhausted")

// Pool manages the free ranges of one process's user address space half.
// New allocations are taken from the lowest-addressed free range that
// fits, and freed ranges are merged with adjacent free neighbours.
type Pool struct {
	mu   sync.Mutex
	free []Range // kept sorted and coalesced by Start
}

// New creates a pool covering [base, base+size), rounded to whole pages.
func New(base, size uint32) *Pool {
	base = RoundUp(base)
	size = RoundUp(size)
	return &Pool{free: []Range{{Start: base, End: base + size}}}
}

// Allocate reserves the first free range of at least size bytes (rounded
// up to a whole number of pages) and returns its start address.
func (p *Pool) Allocate(size uint32) (uint32, error) {
	size = RoundUp(size)
	if size == 0 {
		size = pageSize
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for i, r := range p.free {
		if r.Size() >= size {
			start := r.Start
			if r.Size() == size {
				p.free = append(p.free[:i], p.free[i+1:]...)
			} else {
				p.free[i].Start = r.Start + size
			}
			return start, nil
		}
	}
	return 0, ErrExhausted
}

// AllocateAt reserves [start, start+size) specifically, failing if any
// part of it is not free. Used by the ELF loader to place PT_LOAD
// segments at a base address computed by the dependency walk (§4.9 step
// 4: "at the current next base").
func (p *Pool) AllocateAt(start, size uint32) error {
	start = RoundUp(start)
	size = RoundUp(size)
	end := start + size

	p.mu.Lock()
	defer p.mu.Unlock()

	for i, r := range p.free {
		if r.Start <= start && end <= r.End {
			var replacement []Range
			if r.Start < start {
				replacement = append(replacement, Range{r.Start, start})
			}
			if end < r.End {
				replacement = append(replacement, Range{end, r.End})
			}
			p.free = append(p.free[:i], append(replacement, p.free[i+1:]...)...)
			return nil
		}
	}
	return ErrExhausted
}

// Free releases [start, start+size) back into the pool, merging with
// adjacent free ranges.
func (p *Pool) Free(start, size uint32) {
	start = RoundUp(start)
	size = RoundUp(size)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.free = append(p.free, Range{start, start + size})
	sort.Slice(p.free, func(i, j int) bool { return p.free[i].Start < p.free[j].Start })

	merged := p.free[:1]
	for _, r := range p.free[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	p.free = merged
}
