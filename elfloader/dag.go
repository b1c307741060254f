package elfloader

import (
	"fmt"

	"github.com/maxdev1/ghostkernel/addrpool"
)

// Graph is the resolved dependency DAG for one process's image: the
// executable plus every transitively DT_NEEDED shared object, each
// loaded exactly once even if several objects need it, mirroring the
// original loader's loadedObjects map keyed by module name.
type Graph struct {
	Root  *Object
	Order []*Object // post-order: dependencies before dependents, matching TLS master composition order

	// GlobalSymbols aggregates every object's globally-visible symbol
	// definitions in lookup order (first definer wins), the way the
	// original keeps a single global-symbols map on the root object
	// rather than on each dependency.
	GlobalSymbols map[string]ResolvedSymbol
}

// LoadGraph loads name and every object it transitively needs, walking
// DT_NEEDED entries depth-first and consulting loaded to avoid loading a
// shared object twice. search resolves a bare DT_NEEDED name to the
// ramdisk module path the Reader understands. Once every object is
// loaded, it aggregates the global symbol table and resolves every
// object's relocations against it.
func LoadGraph(name string, reader Reader, pool *addrpool.Pool, search SearchPaths, candidates []string) (*Graph, error) {
	loaded := make(map[string]*Object)
	var order []*Object
	nextModuleID := uint32(0)

	var visit func(n string, isRoot bool) (*Object, error)
	visit = func(n string, isRoot bool) (*Object, error) {
		resolved := search.Resolve(n, candidates)
		if o, ok := loaded[resolved]; ok {
			return o, nil
		}

		raw, err := reader.ReadObject(resolved)
		if err != nil {
			return nil, fmt.Errorf("elfloader: loading %q: %w", resolved, err)
		}
		o, err := Load(resolved, raw, pool, isRoot)
		if err != nil {
			return nil, err
		}
		o.ModuleID = nextModuleID
		nextModuleID++
		loaded[resolved] = o // inserted before visiting children: breaks cycles the same way a DAG walk must

		for _, dep := range o.Needed {
			if _, err := visit(dep, false); err != nil {
				return nil, err
			}
		}
		order = append(order, o)
		return o, nil
	}

	root, err := visit(name, true)
	if err != nil {
		return nil, err
	}

	g := &Graph{Root: root, Order: order}
	g.buildGlobalSymbols()
	if err := g.ResolveRelocations(); err != nil {
		return nil, err
	}
	return g, nil
}

// LookupOrder returns the global symbol search order: the executable
// first, so its own definitions take precedence over a shared library's
// (standard ELF symbol interposition), then every dependency in the
// order it was loaded.
func (g *Graph) LookupOrder() []*Object {
	order := make([]*Object, 0, len(g.Order))
	order = append(order, g.Root)
	for _, o := range g.Order {
		if o != g.Root {
			order = append(order, o)
		}
	}
	return order
}

func (g *Graph) buildGlobalSymbols() {
	g.GlobalSymbols = make(map[string]ResolvedSymbol)
	for _, o := range g.LookupOrder() {
		for _, sym := range o.Symbols {
			if sym.Name == "" || sym.Shndx == shnUndef || sym.Bind == StbLocal {
				continue
			}
			if _, exists := g.GlobalSymbols[sym.Name]; exists {
				continue
			}
			g.GlobalSymbols[sym.Name] = ResolvedSymbol{
				Defined:   true,
				Address:   o.Base + sym.Value,
				ModuleID:  o.ModuleID,
				TLSOffset: sym.Value,
				Size:      sym.Size,
			}
		}
	}
}

// SymbolAddress resolves name the way spec.md §3/§4.9 describe: first
// against referencer's own local-symbols map, then by walking the
// graph-wide lookup order and returning the first defining object's
// global symbol.
func (g *Graph) SymbolAddress(referencer *Object, name string) (ResolvedSymbol, bool) {
	if referencer != nil {
		if sym, ok := referencer.LocalSymbols[name]; ok {
			return ResolvedSymbol{
				Defined:   true,
				Address:   referencer.Base + sym.Value,
				ModuleID:  referencer.ModuleID,
				TLSOffset: sym.Value,
				Size:      sym.Size,
			}, true
		}
	}
	rs, ok := g.GlobalSymbols[name]
	return rs, ok
}

// ResolveRelocations computes the final patched value for every
// relocation entry decoded from each loaded object, storing them in
// that object's ResolvedValues (parallel to Relocations) for the
// kernel's address-space code to later write into the loaded segments.
// This is the "after all objects are loaded, walk the lookup-order list
// and apply relocations" pass spec.md §4.9 describes.
func (g *Graph) ResolveRelocations() error {
	for _, o := range g.Order {
		o.ResolvedValues = make([]uint32, len(o.Relocations))
		for i, r := range o.Relocations {
			var (
				rs   ResolvedSymbol
				name string
			)
			if int(r.Symbol) < len(o.Symbols) {
				name = o.Symbols[r.Symbol].Name
			}
			if name != "" {
				found, ok := g.SymbolAddress(o, name)
				if !ok && r.Kind != RelocRelative {
					return fmt.Errorf("elfloader: %s: unresolved symbol %q", o.Name, name)
				}
				rs = found
			}
			o.ResolvedValues[i] = Resolve(r, rs, o.Base, o.Base+r.Offset)
		}
	}
	return nil
}
