package elfloader

import "github.com/maxdev1/ghostkernel/addrpool"

// TLSMaster is the composed thread-local storage image spec.md §4.9
// describes as "[exe TLS][user-threadlocal][shared lib TLS...]": the
// executable's own .tdata/.tbss, a fixed region reserved for
// user-space thread-local variables the loader itself doesn't own, and
// then each shared dependency's TLS block back to back, in the same
// post-order the dependency DAG was loaded in.
type TLSMaster struct {
	Size  uint32
	Align uint32
}

// UserThreadLocalSize is the fixed slab reserved between the executable's
// own TLS and the shared libraries' TLS blocks, matching the original's
// constant-sized user-threadlocal area (errno and similar per-thread C
// library state).
const UserThreadLocalSize = 128

// ComposeMaster lays out the master TLS image for a loaded graph,
// stamping each object's TLSOffsetInMaster and returning the total size
// and required alignment to allocate per-task copies from.
func ComposeMaster(g *Graph) TLSMaster {
	offset := uint32(0)
	align := uint32(4)

	if g.Root.TLSMemSize > 0 {
		g.Root.TLSOffsetInMaster = offset
		offset += g.Root.TLSMemSize
		if g.Root.TLSAlign > align {
			align = g.Root.TLSAlign
		}
	}

	offset += UserThreadLocalSize

	for _, o := range g.Order {
		if o == g.Root || o.TLSMemSize == 0 {
			continue
		}
		if o.TLSAlign > 1 {
			offset = (offset + o.TLSAlign - 1) &^ (o.TLSAlign - 1)
		}
		o.TLSOffsetInMaster = offset
		offset += o.TLSMemSize
		if o.TLSAlign > align {
			align = o.TLSAlign
		}
	}

	return TLSMaster{Size: offset, Align: align}
}

// AllocateMasterCopy reserves space for one task's private copy of the
// master TLS image. Each task that enters a process with TLS gets its
// own copy, initialized from the master at task creation.
func AllocateMasterCopy(pool *addrpool.Pool, master TLSMaster) (uint32, error) {
	return pool.Allocate(master.Size)
}
