package elfloader

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/maxdev1/ghostkernel/addrpool"
	"github.com/stretchr/testify/require"
)

// buildExecWithSymbol assembles a minimal ET_EXEC with a PT_DYNAMIC
// segment carrying a DT_HASH/DT_SYMTAB/DT_STRTAB triple and a single
// globally-visible symbol "myvar", enough to exercise symbol-table
// decode and resolution without a real toolchain-produced binary.
func buildExecWithSymbol(t *testing.T, loadVAddr uint32) (raw []byte, symValue uint32) {
	t.Helper()

	const headerSize = 52
	const phEntSize = 32

	// Layout, relative to the start of the file:
	//   [0,52)     ELF header
	//   [52,84)    PT_LOAD program header
	//   [84,116)   PT_DYNAMIC program header
	//   [116,136)  DT_HASH table (nbucket=1, nchain=2, 1 bucket, 2 chain)
	//   [136,168)  DT_SYMTAB (2 * Elf32_Sym)
	//   [168,175)  DT_STRTAB ("\0myvar\0")
	//   [175,215)  dynamic entries (5 * Elf32_Dyn)
	hashOff := uint32(116)
	symtabOff := uint32(136)
	strtabOff := uint32(168)
	strtabSz := uint32(7)
	dynOff := uint32(175)

	symValue = loadVAddr + 0x10

	var buf bytes.Buffer

	h := Header{
		Ident:     [16]byte{0x7F, 'E', 'L', 'F', 1, 1, 1, 0},
		Type:      etExec,
		Machine:   emI386,
		Version:   1,
		Entry:     loadVAddr + 0x10,
		PhOff:     headerSize,
		PhEntSize: phEntSize,
		PhNum:     2,
		EhSize:    headerSize,
	}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, h))

	totalSize := uint32(dynOff + 5*8)
	loadPH := ProgramHeader{
		Type:   PtLoad,
		Offset: 0,
		VAddr:  loadVAddr,
		PAddr:  loadVAddr,
		FileSz: totalSize,
		MemSz:  totalSize,
		Flags:  PfRead | PfExec,
		Align:  0x1000,
	}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, loadPH))

	dynPH := ProgramHeader{
		Type:   PtDynamic,
		Offset: dynOff,
		VAddr:  dynOff,
		PAddr:  dynOff,
		FileSz: 5 * 8,
		MemSz:  5 * 8,
		Flags:  PfRead | PfWrite,
		Align:  4,
	}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, dynPH))

	require.Equal(t, int(hashOff), buf.Len())
	binary.Write(&buf, binary.LittleEndian, uint32(1)) // nbucket
	binary.Write(&buf, binary.LittleEndian, uint32(2)) // nchain
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // bucket[0]
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // chain[0]
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // chain[1]

	require.Equal(t, int(symtabOff), buf.Len())
	// symbol 0: the reserved STN_UNDEF null entry.
	buf.Write(make([]byte, symEntrySize))
	// symbol 1: a global, defined "myvar".
	binary.Write(&buf, binary.LittleEndian, uint32(1))        // st_name -> strtab[1:]
	binary.Write(&buf, binary.LittleEndian, symValue)         // st_value
	binary.Write(&buf, binary.LittleEndian, uint32(4))        // st_size
	buf.WriteByte(byte(StbGlobal<<4) | 1)                     // st_info: GLOBAL, OBJECT
	buf.WriteByte(0)                                          // st_other
	binary.Write(&buf, binary.LittleEndian, uint16(1))        // st_shndx: defined, not SHN_UNDEF

	require.Equal(t, int(strtabOff), buf.Len())
	buf.WriteByte(0)
	buf.WriteString("myvar")
	buf.WriteByte(0)
	require.Equal(t, int(strtabOff+strtabSz), buf.Len())

	require.Equal(t, int(dynOff), buf.Len())
	writeDyn := func(tag int32, val uint32) {
		binary.Write(&buf, binary.LittleEndian, tag)
		binary.Write(&buf, binary.LittleEndian, val)
	}
	writeDyn(DtHash, hashOff)
	writeDyn(DtSymTab, symtabOff)
	writeDyn(DtStrTab, strtabOff)
	writeDyn(DtStrSz, strtabSz)
	writeDyn(DtNull, 0)

	return buf.Bytes(), symValue
}

func TestLoadDecodesSymbolTable(t *testing.T) {
	raw, symValue := buildExecWithSymbol(t, 0x08048000)
	pool := addrpool.New(0x08048000, 0x10000)

	o, err := Load("test-exe", raw, pool, true)
	require.NoError(t, err)
	require.Len(t, o.Symbols, 2)
	require.Equal(t, "myvar", o.Symbols[1].Name)
	require.Equal(t, symValue, o.Symbols[1].Value)
}

func TestSymbolAddressResolvesWithinExecutableImage(t *testing.T) {
	raw, symValue := buildExecWithSymbol(t, 0x08048000)
	pool := addrpool.New(0x08048000, 0x10000)
	reader := fakeReader{"a.bin": raw}

	g, err := LoadGraph("a.bin", reader, pool, nil, nil)
	require.NoError(t, err)

	rs, ok := g.SymbolAddress(nil, "myvar")
	require.True(t, ok)
	require.Equal(t, symValue, rs.Address)
	require.GreaterOrEqual(t, rs.Address, g.Root.Base)
	require.Less(t, rs.Address, g.Root.End)

	global, ok := g.GlobalSymbols["myvar"]
	require.True(t, ok)
	require.Equal(t, rs.Address, global.Address)
}
