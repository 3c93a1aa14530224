package adc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController() (*Controller, *FakeBusDriver) {
	bus := NewFakeBusDriver()
	bus.busHardware = []BusID{"COM1"}
	bus.devicesByBus["COM1"] = []DeviceID{"dev-1", "dev-2"}

	za, adcDeg := sampleTable()
	lookup, err := NewLookup(za, adcDeg, MethodPCHIP)
	if err != nil {
		panic(err)
	}

	c := NewController(bus, lookup, Config{SelectedBusIndex: 0}, nopLogger())
	return c, bus
}

func poweredOnController(t *testing.T) (*Controller, *FakeBusDriver) {
	c, bus := newTestController()
	resp := c.PowerOn()
	require.Equal(t, "success", resp.Status)
	resp = c.Connect(0)
	require.Equal(t, "success", resp.Status)
	for _, m := range c.motors {
		bus.SetStatusSequence(m.Handle, []uint32{swTargetReachedMask})
		bus.SetRegister(m.Handle, odStatusword, swHaltedMask)
	}
	return c, bus
}

func TestControllerPowerOnRegistersMotors(t *testing.T) {
	c, _ := newTestController()
	resp := c.PowerOn()
	require.Equal(t, "success", resp.Status)
	assert.Len(t, c.motors, 2)
}

func TestControllerPowerOnSurfacesNoBusHardware(t *testing.T) {
	c, bus := newTestController()
	bus.busHardware = nil
	resp := c.PowerOn()
	assert.Equal(t, "error", resp.Status)
}

func TestControllerConnectAndDisconnectBothMotors(t *testing.T) {
	c, _ := newTestController()
	require.Equal(t, "success", c.PowerOn().Status)

	resp := c.Connect(0)
	require.Equal(t, "success", resp.Status)
	assert.ElementsMatch(t, []int{1, 2}, resp.MotorIDs)

	resp = c.Disconnect(0)
	require.Equal(t, "success", resp.Status)
	assert.ElementsMatch(t, []int{1, 2}, resp.MotorIDs)
}

func TestControllerConnectRejectsInvalidMotorID(t *testing.T) {
	c, _ := newTestController()
	require.Equal(t, "success", c.PowerOn().Status)

	resp := c.Connect(5)
	assert.Equal(t, "error", resp.Status)
}

func TestControllerStatusSingleMotor(t *testing.T) {
	c, bus := poweredOnController(t)
	bus.SetRegister(c.motors[1].Handle, odActualPosition, 42)

	resp := c.Status(1)
	require.Equal(t, "success", resp.Status)
	require.NotNil(t, resp.State)
	assert.Equal(t, uint32(42), resp.State.Position)
}

func TestControllerStatusBothMotors(t *testing.T) {
	c, _ := poweredOnController(t)
	resp := c.Status(0)
	require.Equal(t, "success", resp.Status)
	assert.Len(t, resp.States, 2)
}

func TestControllerMoveSingleMotor(t *testing.T) {
	c, bus := poweredOnController(t)
	bus.SetReadSequence(c.motors[1].Handle, odActualPosition, []uint32{1000, 800})

	resp := c.Move(context.Background(), 1, 200, 3)
	require.Equal(t, "success", resp.Status)
	require.NotNil(t, resp.Move)
	assert.Equal(t, int64(-200), resp.Move.PositionChange)
}

func TestControllerStopSingleMotor(t *testing.T) {
	c, bus := poweredOnController(t)
	// Replace the queued target-reached statusword so the stop's read sees
	// the halted bit.
	bus.SetStatusSequence(c.motors[1].Handle, []uint32{swHaltedMask})
	resp := c.Stop(1)
	require.Equal(t, "success", resp.Status)
	require.NotNil(t, resp.Stop)
}

func TestControllerActivateDrivesBothMotors(t *testing.T) {
	c, _ := poweredOnController(t)
	resp := c.Activate(context.Background(), 20, 3)
	require.Equal(t, "success", resp.Status)
	assert.Len(t, resp.Moves, 2)
}

func TestControllerHomingRecordsHomeKnown(t *testing.T) {
	c, bus := poweredOnController(t)
	for _, m := range c.motors {
		bus.SetRegister(m.Handle, odDigitalInput5, BusstopSentinel)
		bus.SetRegister(m.Handle, odActualPosition, 111)
	}

	resp := c.Homing(context.Background(), 3)
	require.Equal(t, "success", resp.Status)
	assert.True(t, c.homeKnown)
}

func TestControllerParkingRequiresHomeFirst(t *testing.T) {
	c, _ := poweredOnController(t)
	resp := c.Parking(context.Background(), 3)
	assert.Equal(t, "error", resp.Status)
}

func TestControllerZeroingRequiresHomeFirst(t *testing.T) {
	c, _ := poweredOnController(t)
	resp := c.Zeroing(context.Background(), 3)
	assert.Equal(t, "error", resp.Status)
}

func TestControllerCalcFromZADoesNotTouchBus(t *testing.T) {
	c, bus := newTestController()
	resp := c.CalcFromZA(20)
	require.Equal(t, "success", resp.Status)
	assert.Empty(t, bus.Writes())
	assert.Equal(t, DegreeToCount(resp.Degrees), resp.Count)
}

func TestControllerCalcFromZARejectsOutOfDomain(t *testing.T) {
	c, _ := newTestController()
	resp := c.CalcFromZA(999)
	assert.Equal(t, "error", resp.Status)
}

func TestMotorIDsForExpandsZeroToBoth(t *testing.T) {
	ids, err := motorIDsFor(0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ids)
}

func TestMotorIDsForRejectsInvalid(t *testing.T) {
	_, err := motorIDsFor(3)
	assert.Error(t, err)
}
