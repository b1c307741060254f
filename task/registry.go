package task

import (
	"sync/atomic"

	"github.com/maxdev1/ghostkernel/hashmap"
)

// Registry is the global task/process table spec.md §9 calls for: "each
// task stores an index/id (not a pointer) into the owning process's task
// table. Lookups go through the global task map." It also hands out fresh
// task and process ids, mirroring taskingGetNextId/pidGetNext.
type Registry struct {
	tasks     *hashmap.Map[int32, *Task]
	processes *hashmap.Map[int32, *Process]

	// identifiers is the name->task-id table behind the original's
	// taskingDirectory, used by spawn to publish a well-known name (e.g.
	// "windowserver") other tasks can look up instead of tracking a raw id.
	identifiers *hashmap.Map[string, int32]

	nextTaskID atomic.Int32
	nextProcID atomic.Int32
}

func NewRegistry() *Registry {
	return &Registry{
		tasks:       hashmap.New[int32, *Task](64),
		processes:   hashmap.New[int32, *Process](16),
		identifiers: hashmap.New[string, int32](16),
	}
}

func (r *Registry) NextTaskID() int32 { return r.nextTaskID.Add(1) }
func (r *Registry) NextProcessID() int32 { return r.nextProcID.Add(1) }

func (r *Registry) PutTask(t *Task)        { r.tasks.Put(t.ID, t) }
func (r *Registry) RemoveTask(id int32)    { r.tasks.Remove(id) }
func (r *Registry) Task(id int32) (*Task, bool) { return r.tasks.Get(id) }
func (r *Registry) TaskCount() int         { return r.tasks.Len() }
func (r *Registry) RangeTasks(fn func(*Task)) {
	r.tasks.Range(func(_ int32, t *Task) { fn(t) })
}

func (r *Registry) PutProcess(p *Process)          { r.processes.Put(p.ID, p) }
func (r *Registry) RemoveProcess(id int32)         { r.processes.Remove(id) }
func (r *Registry) Process(id int32) (*Process, bool) { return r.processes.Get(id) }

// Register publishes name as an alias for taskID, failing silently on
// collision the way the original's taskingDirectory overwrite does (last
// writer wins; callers are expected to pick unique names).
func (r *Registry) Register(name string, taskID int32) { r.identifiers.Put(name, taskID) }

func (r *Registry) Lookup(name string) (int32, bool) { return r.identifiers.Get(name) }
