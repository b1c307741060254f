// Package abi defines the syscall call numbers and request/response
// structs from spec.md §6, grounded on original_source's
// libapi/inc/ghost/{tasks,messages,mutex,syscall}/*.h headers: a flat
// call-number space partitioned by subsystem, and a fixed request/
// response struct per call rather than a generic envelope. Dispatcher
// (dispatch.go) is what actually turns a decoded call struct into a call
// against the owning subsystem; calls backed by one subsystem return
// that subsystem's own status type directly (msgqueue.Status,
// spawn.Status, ...) rather than a lossy generic code, matching how each
// G_*_STATUS enum in the original is specific to its own call family.
package abi

import (
	"github.com/maxdev1/ghostkernel/msgqueue"
	"github.com/maxdev1/ghostkernel/msgtopic"
	"github.com/maxdev1/ghostkernel/spawn"
)

// Call numbers, partitioned by subsystem exactly as spec.md §6 lists them.
const (
	CallYield        = 1
	CallExit         = 2
	CallGetTaskID    = 3
	CallFork         = 4
	CallJoin         = 5
	CallSleep        = 6
	CallRegisterName = 7
	CallGetTaskByName = 8

	CallAllocateMemory = 40
	CallUnmapMemory    = 41
	CallShareMemory    = 42
	CallMapMMIO        = 43

	CallMutexInit    = 60
	CallMutexAcquire = 61
	CallMutexRelease = 62
	CallMutexDestroy = 63

	CallMessageSend    = 70
	CallMessageReceive = 71
	CallMessageTopic   = 72

	CallOpen    = 80
	CallClose   = 81
	CallRead    = 82
	CallWrite   = 83
	CallSeek    = 84
	CallPipe    = 85
	CallTruncate = 86

	CallKernQuery    = 120
	CallSpawn        = 121
	CallGetProcessID = 122
)

// Status is the generic per-call outcome code. Calls backed by a
// subsystem with its own status enum (msgqueue.Status, spawn.Status, ...)
// carry that subsystem's status type in their response instead.
type Status int32

const (
	StatusSuccess Status = iota
	StatusFail
	StatusInvalidArguments
	StatusBusy
	StatusPermissionDenied
)

// YieldCall has no request payload; it just gives up the remainder of
// the calling task's time slice.
type YieldCall struct{}

// ExitCall terminates the calling task with Code.
type ExitCall struct {
	Code int32
}

// SleepCall parks the calling task for at least DurationMs milliseconds.
type SleepCall struct {
	DurationMs uint64
}

// JoinCall blocks until TaskID reaches Dead.
type JoinCall struct {
	TaskID int32
}
type JoinResponse struct {
	Status Status
}

// RegisterNameCall publishes Name as an alias for the calling task.
type RegisterNameCall struct {
	Name string
}

// GetTaskByNameCall looks up a task id by its registered name.
type GetTaskByNameCall struct {
	Name string
}
type GetTaskByNameResponse struct {
	Status Status
	TaskID int32
}

// SpawnCall requests a new process be loaded and finalized, mirroring
// spawn.Request but on the wire rather than as a Go struct.
type SpawnCall struct {
	Path          string
	SecurityLevel int32
	Args          string
	WorkingDir    string
}
type SpawnResponse struct {
	Status     spawn.Status
	Validation spawn.ValidationDetail
	ProcessID  int32
	TaskID     int32
}

// MutexInitCall creates a user mutex.
type MutexInitCall struct {
	Reentrant bool
}
type MutexInitResponse struct {
	MutexID int32
}

// MutexAcquireCall acquires a user mutex, optionally with a timeout and in
// "trying" mode, mirroring userMutexAcquire's exact parameter list (spec.md
// §6). A TimeoutMs of 0 behaves identically to Trying regardless of
// Trying's own value (spec.md §8), which usermutex.Mutex.Acquire enforces
// itself rather than requiring every caller to special-case it.
type MutexAcquireCall struct {
	MutexID   int32
	TimeoutMs uint64
	Trying    bool
}

// MutexAcquireResponse reports the two outcomes usermutex.Mutex.Acquire
// distinguishes: whether the mutex was actually obtained, and whether the
// deadline elapsed first. There is no separate generic status field here;
// spec.md §6 gives this call exactly these two booleans on the wire.
type MutexAcquireResponse struct {
	WasSet      bool
	HasTimedOut bool
}

type MutexReleaseCall struct {
	MutexID int32
}

type MutexDestroyCall struct {
	MutexID int32
}

// MessageSendCall/MessageReceiveCall mirror msgqueue.Table's Send/Receive
// over the wire.
type MessageSendCall struct {
	ReceiverTaskID int32
	Data           []byte
	Transaction    int64
	Blocking       bool
}
type MessageSendResponse struct {
	Status msgqueue.Status
}

type MessageReceiveCall struct {
	TransactionFilter int64
	Blocking          bool
}
type MessageReceiveResponse struct {
	Status       msgqueue.Status
	SenderTaskID int32
	Transaction  int64
	Data         []byte
}

// MessageTopicCall covers both posting and receiving on a named topic,
// distinguished by Post. Posting has no failure mode on the wire (Post
// responses leave Status at its zero value, msgtopic.Success); it is
// carried on MessageTopicResponse so Post and Receive share one response
// shape the way the original's two calls share one struct family.
type MessageTopicCall struct {
	Topic    string
	Post     bool
	Data     []byte
	After    int64
	Blocking bool
}
type MessageTopicResponse struct {
	Status      msgtopic.Status
	Transaction int64
	Data        []byte
}

// PipeCall creates a new pipe and returns its read/write descriptor ids.
type PipeCall struct {
	Capacity int32
}
type PipeResponse struct {
	Status        Status
	ReadFD         int32
	WriteFD        int32
}

// KernQueryCall covers the handful of informational queries spec.md's
// SUPPLEMENTED FEATURES adds, mirroring the original's kernquery call
// family. Dispatcher.KernQuery answers KernQueryTaskList and
// KernQuerySchedulerDump; KernQueryProcessList is not answered and gets
// StatusInvalidArguments.
type KernQueryCall struct {
	What int32
}

const (
	KernQueryTaskList = iota
	KernQueryProcessList
	KernQuerySchedulerDump
)

type KernQueryResponse struct {
	Status Status
	Text   string
}
