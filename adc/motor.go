package adc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Motor is one physical CiA-402 drive addressed through a Handle. All
// state mutation for a given motor is serialized through mu; the
// orchestrator is free to move two Motors concurrently because they
// never share one.
type Motor struct {
	ID        int
	Handle    Handle
	Connected bool

	mu        sync.Mutex
	homeCount *uint32
}

// MoveReport is returned by a completed Profile Position move (spec §9).
type MoveReport struct {
	InitialPosition uint32        `json:"initial_position"`
	FinalPosition   uint32        `json:"final_position"`
	PositionChange  int64         `json:"position_change"`
	ExecutionTime   time.Duration `json:"execution_time_ns"`
}

// StopReport is returned by a halt request.
type StopReport struct {
	Status    string  `json:"status"`
	ErrorCode *uint32 `json:"error_code,omitempty"`
}

// MotorState is the snapshot returned by the status action.
type MotorState struct {
	Connected    bool   `json:"connected"`
	Position     uint32 `json:"position"`
	Statusword   uint32 `json:"statusword"`
	HomeKnown    bool   `json:"home_known"`
	HomePosition uint32 `json:"home_position,omitempty"`
}

// MoveMotor executes the eight-step CiA-402 Profile Position sequence
// (spec §4.2.1/§5.2.1): configure mode and profile velocity, latch the
// starting position, write the relative target, walk the controlword
// through shutdown/switch-on/enable-operation/start-move, then poll the
// statusword until target-reached before reading the final position.
//
// targetDelta is a signed relative offset (object 0x607A is written in
// relative mode); callers compute it with ShortestDelta or a fixed
// calibration offset, never an absolute position.
func MoveMotor(ctx context.Context, bus BusDriver, m *Motor, targetDelta int64, velocity uint32, logger *zap.SugaredLogger) (MoveReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()

	initial, err := startProfileMoveLocked(bus, m, targetDelta, velocity)
	if err != nil {
		return MoveReport{}, err
	}

	if err := pollUntilTargetReached(ctx, bus, m, targetDelta, velocity, start, logger); err != nil {
		return MoveReport{}, err
	}

	final, err := bus.ReadNumber(m.Handle, odActualPosition)
	if err != nil {
		return MoveReport{}, fmt.Errorf("adc: motor %d: read final position: %w", m.ID, err)
	}

	return MoveReport{
		InitialPosition: initial,
		FinalPosition:   final,
		PositionChange:  int64(final) - int64(initial),
		ExecutionTime:   time.Since(start),
	}, nil
}

// startProfileMoveLocked issues the write-side half of the CiA-402
// Profile Position sequence — mode, profile velocity, the relative
// target, and the controlword walk through start-move — and returns the
// position read just before the target was written. Callers must already
// hold m.mu.
//
// This is split out of MoveMotor so the homing search (findHomePosition)
// can start a move and then release m.mu to poll the sensor input itself,
// rather than holding the motor locked for the whole search — holding it
// would deadlock against the StopMotor call the search issues on a sensor
// edge.
func startProfileMoveLocked(bus BusDriver, m *Motor, targetDelta int64, velocity uint32) (uint32, error) {
	if !m.Connected {
		return 0, &NotConnectedError{MotorID: m.ID}
	}

	if err := bus.WriteNumber(m.Handle, int64(modeProfilePosition), odModesOfOp, 8); err != nil {
		return 0, fmt.Errorf("adc: motor %d: set mode of operation: %w", m.ID, err)
	}
	if err := bus.WriteNumber(m.Handle, int64(velocity), odProfileVelocity, 32); err != nil {
		return 0, fmt.Errorf("adc: motor %d: set profile velocity: %w", m.ID, err)
	}

	initial, err := bus.ReadNumber(m.Handle, odActualPosition)
	if err != nil {
		return 0, fmt.Errorf("adc: motor %d: read initial position: %w", m.ID, err)
	}

	if err := bus.WriteNumber(m.Handle, targetDelta, odTargetPosition, 32); err != nil {
		return 0, fmt.Errorf("adc: motor %d: write target position: %w", m.ID, err)
	}

	for _, cw := range []int64{cwShutdown, cwSwitchOn, cwEnableOperation} {
		if err := bus.WriteNumber(m.Handle, cw, odControlword, 16); err != nil {
			return 0, fmt.Errorf("adc: motor %d: controlword %#x: %w", m.ID, cw, err)
		}
	}
	if err := bus.WriteNumber(m.Handle, cwStartMove, odControlword, 16); err != nil {
		return 0, fmt.Errorf("adc: motor %d: start move: %w", m.ID, err)
	}

	return initial, nil
}

// pollUntilTargetReached polls the statusword once per MoveStatusInterval
// until the target-reached bits are set. Callers must hold m.mu for the
// duration (the ordinary MoveMotor path); the homing search instead polls
// its sensor input directly and never calls this.
func pollUntilTargetReached(ctx context.Context, bus BusDriver, m *Motor, targetDelta int64, velocity uint32, start time.Time, logger *zap.SugaredLogger) error {
	profile, profileErr := NewTrapezoidalProfile(0, float64(targetDelta), float64(velocity)*float64(CountsPerRev), estimatedAccel)

	ticker := time.NewTicker(MoveStatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("adc: motor %d: %w", m.ID, ctx.Err())
		case <-ticker.C:
		}

		status, err := bus.ReadNumber(m.Handle, odStatusword)
		if err != nil {
			return fmt.Errorf("adc: motor %d: poll statusword: %w", m.ID, err)
		}

		if logger != nil && profileErr == nil {
			logger.Debugw("move in progress",
				"motor_id", m.ID,
				"elapsed_s", time.Since(start).Seconds(),
				"estimated_position", profile.PositionAt(time.Since(start).Seconds()),
				"statusword", fmt.Sprintf("%#04x", status))
		}

		if status&swTargetReachedMask == swTargetReachedMask {
			return nil
		}
	}
}

// StopMotor issues the halt sequence (spec §4.2.2): controlword ← 0x1F,
// then ← 0x01, and confirms the drive reports halted in its statusword.
func StopMotor(bus BusDriver, m *Motor) (StopReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Connected {
		return StopReport{}, &NotConnectedError{MotorID: m.ID}
	}

	if err := bus.WriteNumber(m.Handle, cwHalt, odControlword, 16); err != nil {
		return StopReport{}, fmt.Errorf("adc: motor %d: halt: %w", m.ID, err)
	}
	if err := bus.WriteNumber(m.Handle, cwDisableVoltage, odControlword, 16); err != nil {
		return StopReport{}, fmt.Errorf("adc: motor %d: disable voltage: %w", m.ID, err)
	}

	status, err := bus.ReadNumber(m.Handle, odStatusword)
	if err != nil {
		return StopReport{}, fmt.Errorf("adc: motor %d: read statusword after halt: %w", m.ID, err)
	}

	if status&swHaltedMask == 0 {
		code := status
		return StopReport{Status: "failed", ErrorCode: &code}, &MoveFailedError{MotorID: m.ID, Reason: fmt.Errorf("drive did not confirm halt, statusword %#04x", status)}
	}

	return StopReport{Status: "success"}, nil
}

// ReadPosition reads the drive's current absolute position without
// otherwise touching its state; used by homing/parking/zeroing to
// compute ShortestDelta targets.
func ReadPosition(bus BusDriver, m *Motor) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Connected {
		return 0, &NotConnectedError{MotorID: m.ID}
	}
	return bus.ReadNumber(m.Handle, odActualPosition)
}

// Snapshot reads the motor's full state for the status action.
func Snapshot(bus BusDriver, m *Motor) (MotorState, error) {
	m.mu.Lock()
	connected := m.Connected
	home := m.homeCount
	m.mu.Unlock()

	if !connected {
		return MotorState{Connected: false}, nil
	}

	pos, err := bus.ReadNumber(m.Handle, odActualPosition)
	if err != nil {
		return MotorState{}, fmt.Errorf("adc: motor %d: read position: %w", m.ID, err)
	}
	status, err := bus.ReadNumber(m.Handle, odStatusword)
	if err != nil {
		return MotorState{}, fmt.Errorf("adc: motor %d: read statusword: %w", m.ID, err)
	}

	state := MotorState{
		Connected:  true,
		Position:   pos,
		Statusword: status,
		HomeKnown:  home != nil,
	}
	if home != nil {
		state.HomePosition = *home
	}
	return state, nil
}

// setHomeCount records the home position found during homing.
func (m *Motor) setHomeCount(count uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.homeCount = &count
}

// HomeCount returns the recorded home position, or false if unhomed.
func (m *Motor) HomeCount() (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.homeCount == nil {
		return 0, false
	}
	return *m.homeCount, true
}
