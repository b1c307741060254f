package elfloader

import (
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/maxdev1/ghostkernel/addrpool"
)

// Reader resolves a library name (a DT_NEEDED entry, or the initial
// executable's own path) to its raw file bytes. The kernel's
// implementation backs this with the ramdisk module table; tests back it
// with an in-memory map.
type Reader interface {
	ReadObject(name string) ([]byte, error)
}

// Object is one loaded ELF image: the executable itself or one of its
// transitively needed shared objects, placed into a process's address
// space.
type Object struct {
	ID       uuid.UUID
	Name     string
	Kind     uint16 // ET_EXEC or ET_DYN
	ModuleID uint32 // assigned in load order; the value an R_386_TLS_DTPMOD32 relocation resolves to

	Base uint32 // load bias: 0 for ET_EXEC, the allocated range start for ET_DYN
	End  uint32

	Entry uint32

	TLSOffsetInMaster uint32
	TLSFileSize       uint32
	TLSMemSize        uint32
	TLSAlign          uint32

	Needed []string

	// Symbols is this object's full dynamic symbol table, indexed the
	// same way a Relocation's Symbol field refers to it.
	Symbols []Sym
	// LocalSymbols holds this object's own STB_LOCAL definitions,
	// consulted before the graph-wide lookup order for any relocation
	// originating from this object (spec.md §3's per-object
	// local-symbols map).
	LocalSymbols map[string]Sym

	// Relocations is every REL/RELA/JMPREL entry decoded from this
	// object's dynamic section, unresolved until Graph.ResolveRelocations
	// runs once the whole dependency graph is loaded.
	Relocations []Relocation
	// ResolvedValues is parallel to Relocations: the final 32-bit word
	// to store at each entry's Offset, computed by ResolveRelocations.
	ResolvedValues []uint32

	raw []byte
	ph  []ProgramHeader
	dyn []Dyn
}

// SearchPaths lists the glob patterns (doublestar syntax, e.g.
// "/lib/**/*.so") searched, in order, to resolve a DT_NEEDED name that
// isn't an exact ramdisk module path. Grounded on the original loader
// resolving dependencies against a fixed set of library directories.
type SearchPaths []string

// Resolve returns the first entry of candidates (full ramdisk module
// paths known to the Reader) whose base name matches name against paths,
// or name itself if paths is empty or nothing matches — mirroring a
// direct, unqualified DT_NEEDED lookup.
func (paths SearchPaths) Resolve(name string, candidates []string) string {
	for _, pattern := range paths {
		for _, c := range candidates {
			if ok, _ := doublestar.Match(pattern, c); ok && filepath.Base(c) == name {
				return c
			}
		}
	}
	return name
}

// Load parses raw as an ELF32/i386 object and places its PT_LOAD
// segments via pool: ET_EXEC objects at their own fixed addresses,
// ET_DYN objects (the PIE executable or any shared dependency) at a
// pool-allocated base recorded as the returned object's Base.
// requireExec enforces spec.md §4.9's "for the root, type == ET_EXEC"
// check; dependencies loaded as ET_DYN shared objects pass false.
func Load(name string, raw []byte, pool *addrpool.Pool, requireExec bool) (*Object, error) {
	h, err := ParseHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("elfloader: %s: %w", name, err)
	}
	if requireExec && h.Type != etExec {
		return nil, fmt.Errorf("elfloader: %s: %w", name, ErrNotExecutable)
	}
	phs, err := ProgramHeaders(raw, h)
	if err != nil {
		return nil, fmt.Errorf("elfloader: %s: %w", name, err)
	}

	o := &Object{ID: uuid.New(), Name: name, Kind: h.Type, Entry: h.Entry, raw: raw, ph: phs}

	var lowest, highest uint32
	first := true
	for _, ph := range phs {
		if ph.Type != PtLoad {
			continue
		}
		if first || ph.VAddr < lowest {
			lowest = ph.VAddr
		}
		end := ph.VAddr + ph.MemSz
		if first || end > highest {
			highest = end
		}
		first = false
	}
	span := highest - lowest

	var base uint32
	if h.Type == etDyn {
		allocated, err := pool.Allocate(span)
		if err != nil {
			return nil, fmt.Errorf("elfloader: %s: placing segments: %w", name, err)
		}
		base = allocated - lowest
	} else {
		if err := pool.AllocateAt(lowest, span); err != nil {
			return nil, fmt.Errorf("elfloader: %s: reserving fixed segments: %w", name, err)
		}
	}

	o.Base = base
	o.End = base + highest
	o.Entry = h.Entry + base

	for _, ph := range phs {
		switch ph.Type {
		case PtDynamic:
			dyn, err := DynEntries(raw, ph)
			if err != nil {
				return nil, fmt.Errorf("elfloader: %s: dynamic section: %w", name, err)
			}
			o.dyn = dyn
		case PtTLS:
			o.TLSFileSize = ph.FileSz
			o.TLSMemSize = ph.MemSz
			o.TLSAlign = ph.Align
		}
	}

	if o.dyn != nil {
		if err := o.parseDynamic(raw); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// parseDynamic reads the PT_DYNAMIC entries already captured in o.dyn:
// the DT_NEEDED list, the dynamic symbol table (by way of DT_HASH's
// nchain, since there is no DT_SYMTABSZ), and every REL/RELA/JMPREL
// relocation table, mirroring step 3 of the original loader's object
// load ("parse string table, symbol table, symbol hash table... and the
// list of DT_NEEDED names").
func (o *Object) parseDynamic(raw []byte) error {
	var (
		strtabOff, strtabSz uint32
		symtabOff, hashOff  uint32
		relaOff, relaSz     uint32
		relOff, relSz       uint32
		jmpRelOff, jmpRelSz uint32
		haveRelaEnt         bool
	)
	for _, d := range o.dyn {
		switch d.Tag {
		case DtStrTab:
			strtabOff = d.Val
		case DtStrSz:
			strtabSz = d.Val
		case DtSymTab:
			symtabOff = d.Val
		case DtHash:
			hashOff = d.Val
		case DtRela:
			relaOff = d.Val
		case DtRelaSz:
			relaSz = d.Val
		case DtRelaEnt:
			haveRelaEnt = true
		case DtRel:
			relOff = d.Val
		case DtRelSz:
			relSz = d.Val
		case DtJmpRel:
			jmpRelOff = d.Val
		case DtPltRelSz:
			jmpRelSz = d.Val
		}
	}
	if strtabOff == 0 || strtabSz == 0 {
		return nil
	}
	if int(strtabOff+strtabSz) > len(raw) {
		return fmt.Errorf("elfloader: %s: string table out of bounds", o.Name)
	}
	strtab := raw[strtabOff : strtabOff+strtabSz]

	for _, d := range o.dyn {
		if d.Tag == DtNeeded {
			o.Needed = append(o.Needed, CString(strtab, d.Val))
		}
	}

	if symtabOff != 0 && hashOff != 0 {
		count, err := HashTableSymbolCount(raw, hashOff)
		if err != nil {
			return fmt.Errorf("elfloader: %s: %w", o.Name, err)
		}
		syms, err := DecodeSymbols(raw, symtabOff, count, strtab)
		if err != nil {
			return fmt.Errorf("elfloader: %s: %w", o.Name, err)
		}
		o.Symbols = syms
		o.LocalSymbols = make(map[string]Sym)
		for _, sym := range syms {
			if sym.Name == "" || sym.Shndx == shnUndef || sym.Bind != StbLocal {
				continue
			}
			o.LocalSymbols[sym.Name] = sym
		}
	}

	decodeTable := func(off, sz uint32) ([]Relocation, error) {
		if off == 0 || sz == 0 {
			return nil, nil
		}
		if int(off+sz) > len(raw) {
			return nil, fmt.Errorf("elfloader: %s: relocation table out of bounds", o.Name)
		}
		if haveRelaEnt {
			return DecodeRela(raw[off : off+sz])
		}
		return DecodeRel(raw[off : off+sz])
	}

	for _, table := range [][2]uint32{{relaOff, relaSz}, {relOff, relSz}, {jmpRelOff, jmpRelSz}} {
		relocs, err := decodeTable(table[0], table[1])
		if err != nil {
			return err
		}
		o.Relocations = append(o.Relocations, relocs...)
	}

	return nil
}

// Segments returns the PT_LOAD program headers, for callers that need to
// copy segment bytes into the simulated address space.
func (o *Object) Segments() []ProgramHeader {
	var out []ProgramHeader
	for _, ph := range o.ph {
		if ph.Type == PtLoad {
			out = append(out, ph)
		}
	}
	return out
}

func (o *Object) RawAt(offset, size uint32) []byte {
	if int(offset+size) > len(o.raw) {
		return nil
	}
	return o.raw[offset : offset+size]
}
