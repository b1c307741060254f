package abi

import "testing"

func TestCallNumbersArePartitionedBySubsystem(t *testing.T) {
	tasking := []int{CallYield, CallExit, CallGetTaskID, CallFork, CallJoin, CallSleep, CallRegisterName, CallGetTaskByName}
	for _, c := range tasking {
		if c < 1 || c > 29 {
			t.Fatalf("tasking call %d out of its 1-29 range", c)
		}
	}
	memory := []int{CallAllocateMemory, CallUnmapMemory, CallShareMemory, CallMapMMIO}
	for _, c := range memory {
		if c < 40 || c > 49 {
			t.Fatalf("memory call %d out of its 40-49 range", c)
		}
	}
	mutex := []int{CallMutexInit, CallMutexAcquire, CallMutexRelease, CallMutexDestroy}
	for _, c := range mutex {
		if c < 60 || c > 63 {
			t.Fatalf("mutex call %d out of its 60-63 range", c)
		}
	}
}
