// Package spawn implements the two-phase process spawn protocol from
// spec.md §4.10: a kernel-context "load" phase that parses the ELF
// dependency graph and builds the new process's address space without
// it being visible to anything else yet, followed by a "finalize" phase
// that publishes the process/task into the registries, assigns it to a
// CPU, and starts its goroutine at the downgraded security level it was
// requested with.
//
// The task lifecycle (Start/Close, a die channel, a WaitGroup) is
// grounded on manager/process.go's processManager, generalized from
// supervising an external OS process to supervising a task's goroutine.
package spawn

import (
	"errors"
	"fmt"
	"sync"

	"github.com/maxdev1/ghostkernel/cpu"
	"github.com/maxdev1/ghostkernel/elfloader"
	"github.com/maxdev1/ghostkernel/klog"
	"github.com/maxdev1/ghostkernel/scheduler"
	"github.com/maxdev1/ghostkernel/task"
)

// Request describes a spawn the way spec.md's spawn syscall ABI does:
// a ramdisk path, a security level downgrade request, an argv string and
// working directory.
type Request struct {
	Name          string
	Path          string
	Security      task.SecurityLevel
	Args          string
	WorkDir       string
}

var (
	ErrSecurityEscalation = errors.New("spawn: cannot spawn at a higher security level than the spawner")
)

// Prepared is the result of the kernel-context load phase: a fully
// loaded ELF graph and an initialized process/main task, neither of
// which is registered or runnable yet.
type Prepared struct {
	req     Request
	process *task.Process
	graph   *elfloader.Graph
	main    *task.Task
}

// Spawner owns everything needed to load and launch a process: the
// registries it publishes into, the scheduler it assigns CPUs from, and
// the object reader/search paths the ELF loader resolves dependencies
// through.
type Spawner struct {
	registry  *task.Registry
	scheduler *scheduler.Scheduler
	reader    elfloader.Reader
	search    elfloader.SearchPaths
	modules   []string // known ramdisk module paths, used as LoadGraph's candidate list
	log       klog.Tagged

	userBase, userSize uint32
}

func New(registry *task.Registry, sched *scheduler.Scheduler, reader elfloader.Reader, search elfloader.SearchPaths, modules []string, logger *klog.Logger, userBase, userSize uint32) *Spawner {
	return &Spawner{
		registry:  registry,
		scheduler: sched,
		reader:    reader,
		search:    search,
		modules:   modules,
		log:       logger.Tag("spawn"),
		userBase:  userBase,
		userSize:  userSize,
	}
}

// Load performs the kernel-context phase: it loads req's ELF dependency
// graph, builds a fresh process with its own address pool, and creates
// (but does not register or run) the main task. callerSecurity is the
// security level of the task requesting the spawn; a request to spawn at
// a stronger level is rejected, mirroring the original's refusal to let
// an application escalate itself to driver/kernel level.
func (s *Spawner) Load(req Request, callerSecurity task.SecurityLevel) (*Prepared, error) {
	if req.Security < callerSecurity {
		return nil, ErrSecurityEscalation
	}

	procID := s.registry.NextProcessID()
	proc := task.NewProcess(procID, req.Security, task.Environment{
		ExecPath: req.Path,
		Args:     req.Args,
		WorkDir:  req.WorkDir,
	}, s.userBase, s.userSize)

	graph, err := elfloader.LoadGraph(req.Path, s.reader, proc.AddressPool, s.search, s.modules)
	if err != nil {
		return nil, wrapLoadError(fmt.Errorf("spawn: %s: %w", req.Name, err))
	}
	master := elfloader.ComposeMaster(graph)
	tlsBase, err := elfloader.AllocateMasterCopy(proc.AddressPool, master)
	if err != nil {
		return nil, &LoadError{Status: StatusMemoryError, Err: fmt.Errorf("spawn: %s: allocating TLS master copy: %w", req.Name, err)}
	}
	proc.TLSMasterBase = tlsBase
	proc.TLSMasterSize = master.Size
	proc.SetObject(graph)

	mainID := s.registry.NextTaskID()
	main := task.New(mainID, procID, req.Security, task.Default)
	main.EntryFunc = req.entryOrDefault()
	proc.AddTask(main)

	return &Prepared{req: req, process: proc, graph: graph, main: main}, nil
}

// WaitForFinalize lets callerID park as a spawn-waiter on the process
// being prepared, mirroring spec.md §4.10 phase 1's "the spawner parks
// itself as a spawn-waiter and yields" suspension point (§5's
// "suspension points" list includes "spawn wait"). Finalize wakes every
// parked waiter once the new task has been assigned a CPU and its
// goroutine has been launched.
func (p *Prepared) WaitForFinalize(callerID int32) <-chan struct{} {
	return p.process.SpawnWaiters.Add(callerID)
}

// entryOrDefault always returns nil: Request has no field to supply an
// entry function, so every spawned main task runs as a parked goroutine
// that waits on the task's own lifecycle.
func (r Request) entryOrDefault() func(interface{}) { return nil }

// Handle supervises a finalized process's main task for as long as the
// kernel keeps it spawned: Close asks it to die and waits for the
// goroutine to actually exit, the same shape as processManager's
// die-channel/WaitGroup pair.
type Handle struct {
	mu  sync.Mutex
	wg  sync.WaitGroup
	die chan struct{}

	MainTask *task.Task
	proc    *task.Process
}

// Finalize performs the privilege-downgrade phase: it assigns the
// prepared process's main task to a CPU via balanced scheduling,
// registers both the process and the task in the global registries, and
// starts the task's goroutine. Only after Finalize returns is the new
// process visible to Join/lookups from other tasks.
func (s *Spawner) Finalize(p *Prepared) (*Handle, error) {
	core := s.scheduler.AssignBalanced(p.main)
	if core == nil {
		return nil, errors.New("spawn: no CPU available to assign the new task to")
	}

	s.registry.PutProcess(p.process)
	s.registry.PutTask(p.main)
	s.registry.Register(p.req.Name, p.main.ID)

	h := &Handle{die: make(chan struct{}), MainTask: p.main, proc: p.process}
	h.wg.Add(1)
	go h.run(core, p.main)
	p.process.SpawnWaiters.Wake()

	s.log.Infof("spawned %s as task %d on cpu %d", p.req.Name, p.main.ID, core.ID)
	return h, nil
}

func (h *Handle) run(core *cpu.Core, t *task.Task) {
	defer h.wg.Done()
	if t.EntryFunc != nil {
		t.EntryFunc(t.EntryData)
	} else {
		<-h.die
	}
	t.SetStatus(core, task.Dead)
	t.Joiners.Wake()
}

// Close asks the task to exit and blocks until its goroutine has
// returned, mirroring processManager.Close's close(die)+WaitGroup.Wait.
func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.die:
		// already closed
	default:
		close(h.die)
	}
	h.wg.Wait()
}
