package adc

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Controller is the single entry point the wire-protocol layer (CLI, RPC
// server, whatever sits above this package) calls into. It owns the bus,
// the two motors, the homing state, and the ZA→count lookup table, and
// every action it exposes returns a Response rather than panicking or
// propagating a raw error (spec §9).
//
// mu guards only the shared fields themselves (motors, busID, homeKnown);
// it is never held across a bus call or a statusword/sensor poll. Per-OD
// serialization for a given motor is the job of that Motor's own m.mu
// (motor.go), and the two motors' locks are independent (spec §6) — a
// controller-wide lock held for the duration of Homing/Move/Activate
// would defeat that by serializing Stop/PowerOff behind a 300s homing
// search.
type Controller struct {
	mu sync.Mutex

	bus    BusDriver
	busID  BusID
	motors map[int]*Motor

	homeKnown bool

	config Config
	lookup *Lookup
	logger *zap.SugaredLogger
}

// NewController wires a bus driver, a fitted lookup table, and the
// config loaded at startup into a ready-to-use Controller. No bus I/O
// happens here; call PowerOn to do that.
func NewController(bus BusDriver, lookup *Lookup, config Config, logger *zap.SugaredLogger) *Controller {
	return &Controller{
		bus:    bus,
		motors: make(map[int]*Motor),
		config: config,
		lookup: lookup,
		logger: logger,
	}
}

// snapshotMotors takes a brief lock to read the current motor map
// reference; the long-running operation below it runs unlocked.
func (c *Controller) snapshotMotors() map[int]*Motor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.motors
}

// PowerOn enumerates bus hardware, opens the configured bus, scans for
// the rig's two devices, and registers them (spec §5.3.3).
func (c *Controller) PowerOn() Response {
	busID, motors, err := PowerOn(c.bus, c.config.SelectedBusIndex, c.logger)
	if err != nil {
		return fail(err)
	}

	c.mu.Lock()
	c.busID = busID
	c.motors = motors
	c.mu.Unlock()

	return ok("power on and devices registered")
}

// PowerOff disconnects every connected motor and closes the bus (spec
// §5.3.3).
func (c *Controller) PowerOff() Response {
	c.mu.Lock()
	motors := c.motors
	busID := c.busID
	c.mu.Unlock()

	if err := PowerOff(c.bus, motors, busID, c.logger); err != nil {
		return fail(err)
	}
	return ok("power off and devices disconnected")
}

// Connect connects one motor (1 or 2) or both (0) (spec §5.3.3/original
// adc_controller.connect).
func (c *Controller) Connect(motorID int) Response {
	ids, err := motorIDsFor(motorID)
	if err != nil {
		return fail(err)
	}
	motors := c.snapshotMotors()

	var connected []int
	for _, id := range ids {
		m, ok := motors[id]
		if !ok {
			return fail(&InvalidMotorIDError{MotorID: id})
		}
		if m.Connected {
			continue
		}
		if err := c.bus.Connect(m.Handle); err != nil {
			return fail(fmt.Errorf("adc: connect: motor %d: %w", id, err))
		}
		m.Connected = true
		connected = append(connected, id)
	}

	resp := ok("connected to devices")
	resp.MotorIDs = connected
	return resp
}

// Disconnect disconnects one motor (1 or 2) or both (0).
func (c *Controller) Disconnect(motorID int) Response {
	ids, err := motorIDsFor(motorID)
	if err != nil {
		return fail(err)
	}
	motors := c.snapshotMotors()

	var disconnected []int
	for _, id := range ids {
		m, ok := motors[id]
		if !ok || !m.Connected {
			continue
		}
		if err := c.bus.Disconnect(m.Handle); err != nil {
			return fail(fmt.Errorf("adc: disconnect: motor %d: %w", id, err))
		}
		m.Connected = false
		disconnected = append(disconnected, id)
	}

	resp := ok("disconnected from devices")
	resp.MotorIDs = disconnected
	return resp
}

// Status reports the DeviceState-equivalent snapshot for one motor (1 or
// 2) or both (0).
func (c *Controller) Status(motorID int) Response {
	ids, err := motorIDsFor(motorID)
	if err != nil {
		return fail(err)
	}
	motors := c.snapshotMotors()

	if len(ids) == 1 {
		m, ok := motors[ids[0]]
		if !ok {
			return fail(&InvalidMotorIDError{MotorID: ids[0]})
		}
		state, err := Snapshot(c.bus, m)
		if err != nil {
			return fail(err)
		}
		resp := ok(fmt.Sprintf("motor %d status retrieved", ids[0]))
		resp.MotorID = ids[0]
		resp.State = &state
		return resp
	}

	states := make(map[int]MotorState, len(ids))
	for _, id := range ids {
		m, ok := motors[id]
		if !ok {
			return fail(&InvalidMotorIDError{MotorID: id})
		}
		state, err := Snapshot(c.bus, m)
		if err != nil {
			return fail(err)
		}
		states[id] = state
	}
	resp := ok("motor status retrieved")
	resp.States = states
	return resp
}

// Move dispatches one or both motors to an encoder-count target (spec
// §5.4.3). Runs unlocked against a snapshot of the motor map: per-motor
// serialization is m.mu's job, not c.mu's.
func (c *Controller) Move(ctx context.Context, motorID int, posCount int64, vel int) Response {
	motors := c.snapshotMotors()
	return Move(ctx, c.bus, motors, motorID, posCount, sanitizeVelocity(vel, c.logger), c.logger)
}

// Stop halts one or both motors (spec §5.4.4). Deliberately takes no
// controller-wide lock so it can run concurrently with an in-flight
// Move/Activate/Homing on the same or the other motor.
func (c *Controller) Stop(motorID int) Response {
	motors := c.snapshotMotors()
	return Stop(c.bus, motors, motorID)
}

// Activate drives both prisms to the counter-rotating targets implied by
// a zenith angle (spec §5.4.2).
func (c *Controller) Activate(ctx context.Context, za float64, velSet int) Response {
	motors := c.snapshotMotors()
	return Activate(ctx, c.bus, motors, c.lookup, za, velSet, c.logger)
}

// Homing runs or re-homes the reference search for both motors (spec
// §5.3.1). The search can run for up to HomeSearchTimeout per motor, so
// homeKnown is read before and written back after the unlocked call
// rather than held locked across it — otherwise Stop/PowerOff would
// block for the same duration.
func (c *Controller) Homing(ctx context.Context, vel int) Response {
	motors := c.snapshotMotors()

	c.mu.Lock()
	homeKnown := c.homeKnown
	c.mu.Unlock()

	err := Homing(ctx, c.bus, motors, &homeKnown, sanitizeVelocity(vel, c.logger), c.logger)

	c.mu.Lock()
	c.homeKnown = homeKnown
	c.mu.Unlock()

	if err != nil {
		return fail(err)
	}
	return ok("homing completed")
}

// Parking drives both motors to their calibrated park offsets (spec
// §5.3.2).
func (c *Controller) Parking(ctx context.Context, vel int) Response {
	motors := c.snapshotMotors()

	c.mu.Lock()
	homeKnown := c.homeKnown
	c.mu.Unlock()

	if err := Parking(ctx, c.bus, motors, homeKnown, sanitizeVelocity(vel, c.logger), c.logger); err != nil {
		return fail(err)
	}
	return ok("parking completed")
}

// Zeroing drives both motors to their fixed calibration zero targets
// (spec §5.3.2).
func (c *Controller) Zeroing(ctx context.Context, vel int) Response {
	motors := c.snapshotMotors()

	c.mu.Lock()
	homeKnown := c.homeKnown
	c.mu.Unlock()

	if err := Zeroing(ctx, c.bus, motors, homeKnown, sanitizeVelocity(vel, c.logger), c.logger); err != nil {
		return fail(err)
	}
	return ok("zeroing completed")
}

// CalcFromZA evaluates fn_za_adc without commanding any motion, useful
// for previewing a target before calling Activate.
func (c *Controller) CalcFromZA(za float64) Response {
	adcDeg, err := c.lookup.FnZAADC(za)
	if err != nil {
		return fail(err)
	}
	resp := ok("zenith angle converted")
	resp.Degrees = adcDeg
	resp.Count = DegreeToCount(adcDeg)
	return resp
}

// motorIDsFor expands the 0/1/2 motor-selector convention shared by
// connect/disconnect/status (spec §5.3.3/original adc_controller
// connect/disconnect/DeviceState).
func motorIDsFor(motorID int) ([]int, error) {
	switch motorID {
	case 0:
		return []int{1, 2}, nil
	case 1, 2:
		return []int{motorID}, nil
	default:
		return nil, &InvalidMotorIDError{MotorID: motorID}
	}
}
