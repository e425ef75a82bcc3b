package qmp

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/vzpilot/api/schemas"
)

// runStates maps QEMU RunState values onto machine states.
var runStates = map[string]schemas.MachineState{
	"running":        schemas.MachineRunning,
	"paused":         schemas.MachinePaused,
	"suspended":      schemas.MachinePaused,
	"prelaunch":      schemas.MachineStarting,
	"inmigrate":      schemas.MachineStarting,
	"restore-vm":     schemas.MachineStarting,
	"finish-migrate": schemas.MachinePaused,
	"postmigrate":    schemas.MachinePaused,
	"save-vm":        schemas.MachinePaused,
	"debug":          schemas.MachinePaused,
	"shutdown":       schemas.MachineStopped,
	"guest-panicked": schemas.MachineError,
	"internal-error": schemas.MachineError,
	"io-error":       schemas.MachineError,
	"watchdog":       schemas.MachineError,
}

type statusInfo struct {
	Running bool   `json:"running"`
	Status  string `json:"status"`
}

// Monitor is a MachineMonitor backed by query-status.
type Monitor struct {
	exec Executor
}

// NewMonitor creates a monitor.
func NewMonitor(exec Executor) (*Monitor, error) {
	if exec == nil {
		return nil, errors.New("executor cannot be nil")
	}
	return &Monitor{exec: exec}, nil
}

// State implements schemas.MachineMonitor.
func (m *Monitor) State(ctx context.Context) (schemas.MachineState, error) {
	var info statusInfo
	if err := m.exec.Execute(ctx, "query-status", nil, &info); err != nil {
		return schemas.MachineUnknown, fmt.Errorf("qmp: query-status: %w", err)
	}
	if state, ok := runStates[info.Status]; ok {
		return state, nil
	}
	if info.Running {
		return schemas.MachineRunning, nil
	}
	return schemas.MachineUnknown, nil
}
