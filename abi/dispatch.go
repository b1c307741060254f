package abi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maxdev1/ghostkernel/clock"
	"github.com/maxdev1/ghostkernel/msgqueue"
	"github.com/maxdev1/ghostkernel/msgtopic"
	"github.com/maxdev1/ghostkernel/scheduler"
	"github.com/maxdev1/ghostkernel/spawn"
	"github.com/maxdev1/ghostkernel/task"
	"github.com/maxdev1/ghostkernel/usermutex"
)

// ErrUnknownTask/ErrUnknownMutex are returned when a call names a task or
// mutex id the Dispatcher's tables have never heard of, the Go equivalent
// of the original's syscalls silently no-op'ing on a bad handle.
var (
	ErrUnknownTask  = errors.New("abi: unknown task id")
	ErrUnknownMutex = errors.New("abi: unknown mutex id")
)

// Dispatcher is the wire-level call router spec.md §6 describes: "a
// single software interrupt number transfers control to the kernel; the
// call number and a pointer to a call-specific struct are passed in
// registers." It holds exactly the subsystem references a real interrupt
// handler would reach for, and turns a decoded call struct into the
// corresponding subsystem method call instead of leaving the abi structs
// as an orphaned, never-invoked description of the wire format.
type Dispatcher struct {
	Registry  *task.Registry
	Scheduler *scheduler.Scheduler
	Clock     *clock.Clock
	Mutexes   *usermutex.Table
	Queues    *msgqueue.Table
	Topics    *msgtopic.Table
	Spawner   *spawn.Spawner
}

// NewDispatcher assembles a Dispatcher from the subsystem handles a
// kernel.Context already owns; kernel itself stays free of any abi
// import, so the wiring runs in this direction instead.
func NewDispatcher(registry *task.Registry, sched *scheduler.Scheduler, c *clock.Clock, mutexes *usermutex.Table, queues *msgqueue.Table, topics *msgtopic.Table, spawner *spawn.Spawner) *Dispatcher {
	return &Dispatcher{
		Registry:  registry,
		Scheduler: sched,
		Clock:     c,
		Mutexes:   mutexes,
		Queues:    queues,
		Topics:    topics,
		Spawner:   spawner,
	}
}

// Spawn drives SpawnCall through Spawner.Load/Finalize on behalf of
// callerID, translating spawn's structured Status/ValidationDetail onto
// the wire response instead of collapsing them into a generic error.
func (d *Dispatcher) Spawn(callerID int32, call SpawnCall) (SpawnResponse, error) {
	caller, ok := d.Registry.Task(callerID)
	if !ok {
		return SpawnResponse{}, ErrUnknownTask
	}

	req := spawn.Request{
		Name:     call.Path,
		Path:     call.Path,
		Security: task.SecurityLevel(call.SecurityLevel),
		Args:     call.Args,
		WorkDir:  call.WorkingDir,
	}

	prep, err := d.Spawner.Load(req, caller.Security)
	if err != nil {
		var le *spawn.LoadError
		if errors.As(err, &le) {
			return SpawnResponse{Status: le.Status, Validation: le.Validation}, nil
		}
		return SpawnResponse{Status: spawn.StatusTaskingError}, err
	}

	h, err := d.Spawner.Finalize(prep)
	if err != nil {
		return SpawnResponse{Status: spawn.StatusTaskingError}, err
	}

	return SpawnResponse{
		Status:    spawn.StatusSuccessful,
		ProcessID: h.MainTask.ProcessID,
		TaskID:    h.MainTask.ID,
	}, nil
}

// MutexAcquire drives MutexAcquireCall through the named mutex's
// Acquire, looking up both the mutex and the calling task from their ids
// the way a real syscall handler would resolve a handle and the current
// task off the interrupt frame.
func (d *Dispatcher) MutexAcquire(callerID int32, call MutexAcquireCall) (MutexAcquireResponse, error) {
	caller, ok := d.Registry.Task(callerID)
	if !ok {
		return MutexAcquireResponse{}, ErrUnknownTask
	}
	m, ok := d.Mutexes.Get(call.MutexID)
	if !ok {
		return MutexAcquireResponse{}, ErrUnknownMutex
	}

	wasSet, hasTimedOut := m.Acquire(caller, call.TimeoutMs, call.Trying, d.Clock)
	return MutexAcquireResponse{WasSet: wasSet, HasTimedOut: hasTimedOut}, nil
}

func (d *Dispatcher) MutexInit(call MutexInitCall) MutexInitResponse {
	m := d.Mutexes.Create(call.Reentrant)
	return MutexInitResponse{MutexID: m.ID}
}

func (d *Dispatcher) MutexRelease(callerID int32, call MutexReleaseCall) error {
	m, ok := d.Mutexes.Get(call.MutexID)
	if !ok {
		return ErrUnknownMutex
	}
	m.Release(callerID)
	return nil
}

func (d *Dispatcher) MutexDestroy(call MutexDestroyCall) {
	d.Mutexes.Destroy(call.MutexID)
}

// MessageSend drives MessageSendCall through msgqueue.Table.Send.
func (d *Dispatcher) MessageSend(callerID int32, call MessageSendCall) MessageSendResponse {
	status := d.Queues.Send(call.ReceiverTaskID, callerID, call.Data, call.Transaction, call.Blocking)
	return MessageSendResponse{Status: status}
}

// MessageReceive drives MessageReceiveCall through msgqueue.Table.Receive.
func (d *Dispatcher) MessageReceive(callerID int32, call MessageReceiveCall) MessageReceiveResponse {
	msg, status := d.Queues.Receive(callerID, call.TransactionFilter, call.Blocking)
	resp := MessageReceiveResponse{Status: status}
	if msg != nil {
		resp.SenderTaskID = msg.SenderTaskID
		resp.Transaction = msg.Transaction
		resp.Data = msg.Data
	}
	return resp
}

// MessageTopic drives MessageTopicCall through msgtopic.Table, posting
// when call.Post is set and receiving otherwise.
func (d *Dispatcher) MessageTopic(callerID int32, call MessageTopicCall) MessageTopicResponse {
	if call.Post {
		tx := d.Topics.Post(call.Topic, callerID, call.Data)
		return MessageTopicResponse{Transaction: tx}
	}

	entry, status := d.Topics.Receive(call.Topic, call.After, call.Blocking)
	resp := MessageTopicResponse{Status: status}
	if entry != nil {
		resp.Transaction = entry.Transaction
		resp.Data = entry.Data
	}
	return resp
}

// KernQuery answers the informational queries spec.md's SUPPLEMENTED
// FEATURES adds: a task list built from task.Registry.RangeTasks and the
// scheduler's Dump text. Any other query, KernQueryProcessList included,
// gets StatusInvalidArguments.
func (d *Dispatcher) KernQuery(call KernQueryCall) KernQueryResponse {
	switch call.What {
	case KernQueryTaskList:
		var out strings.Builder
		d.Registry.RangeTasks(func(t *task.Task) {
			fmt.Fprintf(&out, "%d %s %s\n", t.ID, t.Security, t.Status())
		})
		return KernQueryResponse{Status: StatusSuccess, Text: out.String()}
	case KernQuerySchedulerDump:
		return KernQueryResponse{Status: StatusSuccess, Text: d.Scheduler.Dump()}
	default:
		return KernQueryResponse{Status: StatusInvalidArguments}
	}
}
