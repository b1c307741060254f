package spawn

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/maxdev1/ghostkernel/cpu"
	"github.com/maxdev1/ghostkernel/elfloader"
	"github.com/maxdev1/ghostkernel/klog"
	"github.com/maxdev1/ghostkernel/ramdisk"
	"github.com/maxdev1/ghostkernel/scheduler"
	"github.com/maxdev1/ghostkernel/task"
	"github.com/stretchr/testify/require"
)

type fakeReader map[string][]byte

func (f fakeReader) ReadObject(name string) ([]byte, error) { return f[name], nil }

// missingDepReader reports ramdisk.ErrNotFound for any name it doesn't
// hold, mirroring what the real ramdisk-backed Reader returns for a
// DT_NEEDED entry with no matching module.
type missingDepReader map[string][]byte

func (m missingDepReader) ReadObject(name string) ([]byte, error) {
	b, ok := m[name]
	if !ok {
		return nil, ramdisk.ErrNotFound
	}
	return b, nil
}

// buildExecWithMissingDependency assembles a minimal ET_EXEC whose
// PT_DYNAMIC segment declares a single DT_NEEDED dependency
// ("libmissing.so") that no reader will ever be able to resolve.
func buildExecWithMissingDependency(t *testing.T) []byte {
	t.Helper()
	const headerSize = 52
	const phEntSize = 32

	strtabOff := uint32(headerSize + 2*phEntSize)
	const needed = "libmissing.so"
	strtabSz := uint32(1 + len(needed) + 1)
	dynOff := strtabOff + strtabSz

	var buf bytes.Buffer

	h := elfloader.Header{Ident: [16]byte{0x7F, 'E', 'L', 'F', 1, 1, 1, 0}, Type: 2, Machine: 3, Version: 1, Entry: 0x08048010, PhOff: headerSize, PhEntSize: phEntSize, PhNum: 2, EhSize: headerSize}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, h))

	totalSize := dynOff + 3*8
	loadPH := elfloader.ProgramHeader{Type: elfloader.PtLoad, VAddr: 0x08048000, PAddr: 0x08048000, FileSz: totalSize, MemSz: totalSize, Flags: elfloader.PfRead | elfloader.PfExec, Align: 0x1000}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, loadPH))

	dynPH := elfloader.ProgramHeader{Type: elfloader.PtDynamic, Offset: dynOff, VAddr: dynOff, PAddr: dynOff, FileSz: 3 * 8, MemSz: 3 * 8, Flags: elfloader.PfRead | elfloader.PfWrite, Align: 4}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, dynPH))

	require.Equal(t, int(strtabOff), buf.Len())
	buf.WriteByte(0)
	buf.WriteString(needed)
	buf.WriteByte(0)
	require.Equal(t, int(dynOff), buf.Len())

	writeDyn := func(tag int32, val uint32) {
		binary.Write(&buf, binary.LittleEndian, tag)
		binary.Write(&buf, binary.LittleEndian, val)
	}
	writeDyn(elfloader.DtNeeded, 1)
	writeDyn(elfloader.DtStrTab, strtabOff)
	writeDyn(elfloader.DtStrSz, strtabSz)

	return buf.Bytes()
}

func buildMinimalExec(t *testing.T) []byte {
	t.Helper()
	const headerSize = 52
	var buf bytes.Buffer
	h := elfloader.Header{Ident: [16]byte{0x7F, 'E', 'L', 'F', 1, 1, 1, 0}, Type: 2, Machine: 3, Version: 1, Entry: 0x08048010, PhOff: headerSize, PhEntSize: 32, PhNum: 1, EhSize: headerSize}
	binary.Write(&buf, binary.LittleEndian, h)
	ph := elfloader.ProgramHeader{Type: elfloader.PtLoad, VAddr: 0x08048000, PAddr: 0x08048000, FileSz: 0x1000, MemSz: 0x1000, Flags: elfloader.PfRead | elfloader.PfExec, Align: 0x1000}
	binary.Write(&buf, binary.LittleEndian, ph)
	return buf.Bytes()
}

type nopWC struct{}

func (nopWC) Write(p []byte) (int, error) { return len(p), nil }
func (nopWC) Close() error                { return nil }

func TestLoadThenFinalizeSpawnsTask(t *testing.T) {
	registry := task.NewRegistry()
	sched := scheduler.New()
	sched.AddCPU(cpu.New(0))
	reader := fakeReader{"/apps/test.bin": buildMinimalExec(t)}
	logger := klog.New(nopWC{})
	s := New(registry, sched, reader, nil, []string{"/apps/test.bin"}, logger, 0x08048000, 0x100000)

	req := Request{Name: "test", Path: "/apps/test.bin", Security: task.Application}
	prep, err := s.Load(req, task.Application)
	require.NoError(t, err)
	require.NotNil(t, prep.main)

	h, err := s.Finalize(prep)
	require.NoError(t, err)

	got, ok := registry.Task(h.MainTask.ID)
	require.True(t, ok)
	require.Same(t, h.MainTask, got)

	id, ok := registry.Lookup("test")
	require.True(t, ok)
	require.Equal(t, h.MainTask.ID, id)

	h.Close()
}

func TestLoadNonELFReturnsFormatError(t *testing.T) {
	registry := task.NewRegistry()
	sched := scheduler.New()
	sched.AddCPU(cpu.New(0))
	reader := fakeReader{"/apps/bad.bin": make([]byte, 60)} // zeroed: wrong magic
	logger := klog.New(nopWC{})
	s := New(registry, sched, reader, nil, []string{"/apps/bad.bin"}, logger, 0x08048000, 0x100000)

	req := Request{Name: "bad", Path: "/apps/bad.bin", Security: task.Application}
	_, err := s.Load(req, task.Application)
	require.Error(t, err)

	var le *LoadError
	require.True(t, errors.As(err, &le))
	require.Equal(t, StatusFormatError, le.Status)
	require.Equal(t, ValidationNotELF, le.Validation)
}

func TestLoadMissingDependencyReturnsDependencyError(t *testing.T) {
	registry := task.NewRegistry()
	sched := scheduler.New()
	sched.AddCPU(cpu.New(0))
	reader := missingDepReader{"/apps/needs-lib.bin": buildExecWithMissingDependency(t)}
	logger := klog.New(nopWC{})
	s := New(registry, sched, reader, nil, []string{"/apps/needs-lib.bin"}, logger, 0x08048000, 0x100000)

	req := Request{Name: "needs-lib", Path: "/apps/needs-lib.bin", Security: task.Application}
	_, err := s.Load(req, task.Application)
	require.Error(t, err)

	var le *LoadError
	require.True(t, errors.As(err, &le))
	require.Equal(t, StatusDependencyError, le.Status)
}

func TestWaitForFinalizeWakesOnFinalize(t *testing.T) {
	registry := task.NewRegistry()
	sched := scheduler.New()
	sched.AddCPU(cpu.New(0))
	reader := fakeReader{"/apps/test.bin": buildMinimalExec(t)}
	logger := klog.New(nopWC{})
	s := New(registry, sched, reader, nil, []string{"/apps/test.bin"}, logger, 0x08048000, 0x100000)

	req := Request{Name: "waiter-test", Path: "/apps/test.bin", Security: task.Application}
	prep, err := s.Load(req, task.Application)
	require.NoError(t, err)

	const callerID = 42
	woken := prep.WaitForFinalize(callerID)

	select {
	case <-woken:
		t.Fatal("spawn waiter must not wake before Finalize runs")
	default:
	}

	h, err := s.Finalize(prep)
	require.NoError(t, err)
	defer h.Close()

	select {
	case <-woken:
	case <-time.After(time.Second):
		t.Fatal("Finalize must wake parked spawn waiters")
	}
}

func TestLoadRejectsSecurityEscalation(t *testing.T) {
	registry := task.NewRegistry()
	sched := scheduler.New()
	sched.AddCPU(cpu.New(0))
	reader := fakeReader{"/apps/test.bin": buildMinimalExec(t)}
	logger := klog.New(nopWC{})
	s := New(registry, sched, reader, nil, []string{"/apps/test.bin"}, logger, 0x08048000, 0x100000)

	req := Request{Name: "test", Path: "/apps/test.bin", Security: task.Kernel}
	_, err := s.Load(req, task.Application)
	require.ErrorIs(t, err, ErrSecurityEscalation)
}

func TestCloseWaitsForGoroutineExit(t *testing.T) {
	registry := task.NewRegistry()
	sched := scheduler.New()
	sched.AddCPU(cpu.New(0))
	reader := fakeReader{"/apps/test.bin": buildMinimalExec(t)}
	logger := klog.New(nopWC{})
	s := New(registry, sched, reader, nil, []string{"/apps/test.bin"}, logger, 0x08048000, 0x100000)

	req := Request{Name: "test2", Path: "/apps/test.bin", Security: task.Application}
	prep, err := s.Load(req, task.Application)
	require.NoError(t, err)
	h, err := s.Finalize(prep)
	require.NoError(t, err)

	closed := make(chan struct{})
	go func() {
		h.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close never returned")
	}
	require.Equal(t, task.Dead, h.MainTask.Status())
}
