package services

import (
	"fmt"

	"go.uber.org/zap"
)

// SyncState is a step of the detect-and-resolve flow.
type SyncState string

const (
	StateIdle              SyncState = "idle"
	StateScanning          SyncState = "scanning"
	StateConflictsDetected SyncState = "conflicts_detected"
	StateResolving         SyncState = "resolving"
)

var syncTransitions = map[SyncState][]SyncState{
	StateIdle:              {StateScanning},
	StateScanning:          {StateConflictsDetected, StateIdle},
	StateConflictsDetected: {StateResolving, StateIdle},
	StateResolving:         {StateIdle},
}

// SyncFlow tracks one run through the sync states. Nothing survives the
// run; every flow begins at StateIdle or at the state given to newSyncFlowAt.
type SyncFlow struct {
	state  SyncState
	logger *zap.Logger
}

// NewSyncFlow starts a flow at StateIdle.
func NewSyncFlow(logger *zap.Logger) *SyncFlow {
	return newSyncFlowAt(StateIdle, logger)
}

func newSyncFlowAt(state SyncState, logger *zap.Logger) *SyncFlow {
	return &SyncFlow{state: state, logger: logger}
}

// State returns the current state.
func (f *SyncFlow) State() SyncState {
	return f.state
}

// Advance moves to next, rejecting transitions the flow does not allow.
func (f *SyncFlow) Advance(next SyncState) error {
	for _, allowed := range syncTransitions[f.state] {
		if allowed == next {
			f.logger.Debug("Sync state changed",
				zap.String("from", string(f.state)),
				zap.String("to", string(next)),
			)
			f.state = next
			return nil
		}
	}
	return fmt.Errorf("invalid sync state transition %s -> %s", f.state, next)
}

// reset returns the flow to idle from wherever it is.
func (f *SyncFlow) reset() {
	if f.state != StateIdle {
		f.logger.Debug("Sync state changed",
			zap.String("from", string(f.state)),
			zap.String("to", string(StateIdle)),
		)
		f.state = StateIdle
	}
}
