package elfloader

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/maxdev1/ghostkernel/addrpool"
	"github.com/stretchr/testify/require"
)

// buildMinimalExec assembles a minimal ET_EXEC, i386, ELFCLASS32/ELFDATA2LSB
// object with a single PT_LOAD segment, enough for ParseHeader/ProgramHeaders
// to exercise the real decode path without a real toolchain-produced binary.
func buildMinimalExec(t *testing.T, loadVAddr uint32, memSz uint32) []byte {
	t.Helper()

	const headerSize = 52
	const phEntSize = 32

	var buf bytes.Buffer

	h := Header{
		Ident:     [16]byte{0x7F, 'E', 'L', 'F', 1, 1, 1, 0},
		Type:      etExec,
		Machine:   emI386,
		Version:   1,
		Entry:     loadVAddr + 0x10,
		PhOff:     headerSize,
		PhEntSize: phEntSize,
		PhNum:     1,
		EhSize:    headerSize,
	}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, h))

	ph := ProgramHeader{
		Type:   PtLoad,
		Offset: 0,
		VAddr:  loadVAddr,
		PAddr:  loadVAddr,
		FileSz: memSz,
		MemSz:  memSz,
		Flags:  PfRead | PfExec,
		Align:  0x1000,
	}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, ph))

	return buf.Bytes()
}

func TestParseHeaderRejectsBadMagic(t *testing.T) {
	_, err := ParseHeader(make([]byte, 64))
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestLoadFixedExecutable(t *testing.T) {
	raw := buildMinimalExec(t, 0x08048000, 0x1000)
	pool := addrpool.New(0x08048000, 0x10000)

	o, err := Load("test-exe", raw, pool, true)
	require.NoError(t, err)
	require.Equal(t, uint32(0), o.Base)
	require.Equal(t, uint32(0x08048000+0x10), o.Entry)
	require.Len(t, o.Segments(), 1)
}

type fakeReader map[string][]byte

func (f fakeReader) ReadObject(name string) ([]byte, error) { return f[name], nil }

func TestLoadGraphSingleObjectNoDeps(t *testing.T) {
	raw := buildMinimalExec(t, 0x08048000, 0x1000)
	pool := addrpool.New(0x08048000, 0x10000)
	reader := fakeReader{"a.bin": raw}

	g, err := LoadGraph("a.bin", reader, pool, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "a.bin", g.Root.Name)
	require.Len(t, g.Order, 1)
}
