package observability

import (
	"sync"
	"time"
)

type Role string

const (
	RoleIdle     Role = "IDLE"
	RolePlanner  Role = "PLANNER"
	RoleAgent    Role = "AGENT"
	RoleExecutor Role = "EXECUTOR"
)

// SystemStatus is the process-wide activity snapshot feeding the live
// status line: who is working, on what, how far through a plan, and when
// the last heartbeat fired.
type SystemStatus struct {
	mu            sync.RWMutex
	CurrentRole   Role
	ActiveTask    string
	StepDone      int
	StepTotal     int
	LastHeartbeat time.Time
}

var globalStatus = &SystemStatus{
	CurrentRole:   RoleIdle,
	LastHeartbeat: time.Now(),
}

// SetStatus updates the current role and task; any previous plan progress
// is cleared, a new activity starts from scratch.
func SetStatus(role Role, task string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.CurrentRole = role
	globalStatus.ActiveTask = task
	globalStatus.StepDone = 0
	globalStatus.StepTotal = 0
}

// SetStepProgress records how far the executor is through the active plan.
func SetStepProgress(done, total int) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.StepDone = done
	globalStatus.StepTotal = total
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() (Role, string, time.Time) {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.CurrentRole, globalStatus.ActiveTask, globalStatus.LastHeartbeat
}

// StepProgress returns the active plan's progress; total is 0 outside a
// multi-step run.
func StepProgress() (done, total int) {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.StepDone, globalStatus.StepTotal
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastHeartbeat = time.Now()
}
