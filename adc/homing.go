package adc

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Homing runs the reference-discovery sequence for both motors (spec
// §5.3.1). On the first call for a session it searches for the sensor
// edge on each motor and records the discovered position as its home
// count; on every later call it instead drives each motor back to its
// already-known home count using the shortest-path rule.
func Homing(ctx context.Context, bus BusDriver, motors map[int]*Motor, homeKnown *bool, vel uint32, logger *zap.SugaredLogger) error {
	if !*homeKnown {
		for _, id := range []int{1, 2} {
			m := motors[id]
			raw, err := bus.ReadNumber(m.Handle, odDigitalInput5)
			if err != nil {
				return fmt.Errorf("adc: homing: motor %d: read sensor: %w", id, err)
			}

			if raw == BusstopSentinel {
				pos, err := ReadPosition(bus, m)
				if err != nil {
					return fmt.Errorf("adc: homing: motor %d: already at reference, read position: %w", id, err)
				}
				m.setHomeCount(pos)
				if logger != nil {
					logger.Infow("motor already at reference sensor", "motor_id", id, "position", pos)
				}
				continue
			}

			if err := findHomePosition(ctx, bus, m, vel, logger); err != nil {
				return err
			}
		}
		*homeKnown = true
		return nil
	}

	for _, id := range []int{1, 2} {
		m := motors[id]
		home, ok := m.HomeCount()
		if !ok {
			return fmt.Errorf("adc: homing: motor %d: %w", id, ErrNotHomed)
		}
		current, err := ReadPosition(bus, m)
		if err != nil {
			return fmt.Errorf("adc: homing: motor %d: read position: %w", id, err)
		}
		delta := ShortestDelta(current, home)
		if _, err := MoveMotor(ctx, bus, m, delta, vel, logger); err != nil {
			return fmt.Errorf("adc: homing: motor %d: return to home: %w", id, err)
		}
	}
	return nil
}

// findHomePosition drives m one full revolution and watches the digital
// input sensor for an edge, stopping the motor the instant it changes
// (spec §5.3.1). If no change is observed within HomeSearchTimeout it
// halts the motor and fails with HomingTimeoutError.
func findHomePosition(ctx context.Context, bus BusDriver, m *Motor, vel uint32, logger *zap.SugaredLogger) error {
	initialRaw, err := bus.ReadNumber(m.Handle, odDigitalInput5)
	if err != nil {
		return fmt.Errorf("adc: homing: motor %d: read initial sensor: %w", m.ID, err)
	}

	// Start the one-revolution move and release the motor lock immediately
	// instead of going through MoveMotor's own statusword-poll loop: this
	// search drives its own sensor poll below and needs to call StopMotor
	// mid-flight, which would deadlock against a lock held across a poll.
	m.mu.Lock()
	_, err = startProfileMoveLocked(bus, m, CountsPerRev, vel)
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("adc: homing: motor %d: start search move: %w", m.ID, err)
	}

	deadline := time.Now().Add(HomeSearchTimeout)
	ticker := time.NewTicker(HomePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("adc: homing: motor %d: %w", m.ID, ctx.Err())
		case <-ticker.C:
			raw, err := bus.ReadNumber(m.Handle, odDigitalInput5)
			if err != nil {
				return fmt.Errorf("adc: homing: motor %d: poll sensor: %w", m.ID, err)
			}
			if raw != initialRaw {
				if _, err := StopMotor(bus, m); err != nil {
					return fmt.Errorf("adc: homing: motor %d: stop at sensor edge: %w", m.ID, err)
				}
				pos, err := ReadPosition(bus, m)
				if err != nil {
					return fmt.Errorf("adc: homing: motor %d: read position at home: %w", m.ID, err)
				}
				m.setHomeCount(pos)
				if logger != nil {
					logger.Infow("home position found", "motor_id", m.ID, "position", pos)
				}
				return nil
			}
			if time.Now().After(deadline) {
				if _, err := StopMotor(bus, m); err != nil && logger != nil {
					logger.Errorw("halt after homing timeout failed", "motor_id", m.ID, "error", err)
				}
				return &HomingTimeoutError{MotorID: m.ID}
			}
		}
	}
}

// Parking drives each motor to home_count + ParkOffset (spec §5.3.2).
func Parking(ctx context.Context, bus BusDriver, motors map[int]*Motor, homeKnown bool, vel uint32, logger *zap.SugaredLogger) error {
	if !homeKnown {
		return ErrNotHomed
	}
	for _, id := range []int{1, 2} {
		m := motors[id]
		home, ok := m.HomeCount()
		if !ok {
			return fmt.Errorf("adc: parking: motor %d: %w", id, ErrNotHomed)
		}
		target := WrapPosition(int64(home) + ParkOffset)
		if err := moveToTargetIfBeyondThreshold(ctx, bus, m, target, vel, logger, "parking"); err != nil {
			return err
		}
	}
	return nil
}

// Zeroing drives each motor to its fixed calibration zero offset (spec
// §5.3.2).
func Zeroing(ctx context.Context, bus BusDriver, motors map[int]*Motor, homeKnown bool, vel uint32, logger *zap.SugaredLogger) error {
	if !homeKnown {
		return ErrNotHomed
	}
	offsets := map[int]int64{1: ZeroOffset1, 2: ZeroOffset2}
	for _, id := range []int{1, 2} {
		m := motors[id]
		target := WrapPosition(offsets[id])
		if err := moveToTargetIfBeyondThreshold(ctx, bus, m, target, vel, logger, "zeroing"); err != nil {
			return err
		}
	}
	return nil
}

func moveToTargetIfBeyondThreshold(ctx context.Context, bus BusDriver, m *Motor, target uint32, vel uint32, logger *zap.SugaredLogger, op string) error {
	current, err := ReadPosition(bus, m)
	if err != nil {
		return fmt.Errorf("adc: %s: motor %d: read position: %w", op, m.ID, err)
	}
	delta := ShortestDelta(current, target)
	if delta < 0 {
		if -delta < ShortestPathThreshold {
			if logger != nil {
				logger.Infow("already close to target, skipping move", "op", op, "motor_id", m.ID, "delta", delta)
			}
			return nil
		}
	} else if delta < ShortestPathThreshold {
		if logger != nil {
			logger.Infow("already close to target, skipping move", "op", op, "motor_id", m.ID, "delta", delta)
		}
		return nil
	}

	if _, err := MoveMotor(ctx, bus, m, delta, vel, logger); err != nil {
		return fmt.Errorf("adc: %s: motor %d: %w", op, m.ID, err)
	}
	return nil
}

// PowerOn enumerates bus hardware, opens the configured bus, scans for
// exactly two devices, and registers each as a Motor handle (spec
// §5.3.3). Connection is a deliberate separate step.
func PowerOn(bus BusDriver, selectedBusIndex uint32, logger *zap.SugaredLogger) (BusID, map[int]*Motor, error) {
	buses, err := bus.ListBusHardware()
	if err != nil {
		return "", nil, fmt.Errorf("adc: power on: list bus hardware: %w", err)
	}
	if len(buses) == 0 {
		return "", nil, ErrNoBusHardware
	}
	if int(selectedBusIndex) >= len(buses) {
		return "", nil, fmt.Errorf("adc: power on: selected_bus_index %d out of range (%d buses found)", selectedBusIndex, len(buses))
	}
	busID := buses[selectedBusIndex]

	if err := bus.OpenBus(busID, DefaultSerialOptions()); err != nil {
		return "", nil, fmt.Errorf("adc: power on: open bus %s: %w", busID, err)
	}

	devices, err := bus.ScanDevices(context.Background(), busID, func(scanned, total int) {
		if logger != nil {
			logger.Debugw("scanning devices", "scanned", scanned, "total", total)
		}
	})
	if err != nil {
		return "", nil, fmt.Errorf("adc: power on: scan devices: %w", err)
	}
	if len(devices) == 0 {
		return "", nil, ErrNoDevices
	}
	if len(devices) != 2 {
		return "", nil, fmt.Errorf("adc: power on: expected 2 devices, found %d", len(devices))
	}

	motors := make(map[int]*Motor, len(devices))
	for i, dev := range devices {
		h, err := bus.AddDevice(dev)
		if err != nil {
			return "", nil, fmt.Errorf("adc: power on: add device %s: %w", dev, err)
		}
		id := i + 1
		motors[id] = &Motor{ID: id, Handle: h}
	}

	return busID, motors, nil
}

// PowerOff disconnects every connected motor and closes the bus (spec
// §5.3.3). Disconnect failures are logged but surfaced; a close failure
// is fatal and surfaced.
func PowerOff(bus BusDriver, motors map[int]*Motor, busID BusID, logger *zap.SugaredLogger) error {
	var disconnectErr error
	for _, id := range []int{1, 2} {
		m, ok := motors[id]
		if !ok || !m.Connected {
			continue
		}
		if err := bus.Disconnect(m.Handle); err != nil {
			if logger != nil {
				logger.Errorw("disconnect failed", "motor_id", id, "error", err)
			}
			disconnectErr = fmt.Errorf("adc: power off: disconnect motor %d: %w", id, err)
			continue
		}
		m.Connected = false
	}

	if err := bus.CloseBus(busID); err != nil {
		return fmt.Errorf("adc: power off: close bus: %w", err)
	}

	return disconnectErr
}
