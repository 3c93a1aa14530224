package adc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoConnectedMotors() (map[int]*Motor, *FakeBusDriver) {
	bus := NewFakeBusDriver()
	motors := map[int]*Motor{
		1: {ID: 1, Handle: Handle{bus: "fake", device: "1"}, Connected: true},
		2: {ID: 2, Handle: Handle{bus: "fake", device: "2"}, Connected: true},
	}
	for _, m := range motors {
		bus.SetStatusSequence(m.Handle, []uint32{swTargetReachedMask, swTargetReachedMask, swTargetReachedMask, swHaltedMask})
	}
	return motors, bus
}

func TestHomingAlreadyAtSensorSkipsSearch(t *testing.T) {
	motors, bus := twoConnectedMotors()
	for _, m := range motors {
		bus.SetRegister(m.Handle, odDigitalInput5, BusstopSentinel)
		bus.SetRegister(m.Handle, odActualPosition, 999)
	}

	homeKnown := false
	err := Homing(context.Background(), bus, motors, &homeKnown, 3, nil)
	require.NoError(t, err)
	assert.True(t, homeKnown)

	for _, id := range []int{1, 2} {
		home, ok := motors[id].HomeCount()
		require.True(t, ok)
		assert.Equal(t, uint32(999), home)
	}
}

func TestHomingSearchesWhenSensorNotAtBusstop(t *testing.T) {
	motors, bus := twoConnectedMotors()
	for _, m := range motors {
		bus.SetRegister(m.Handle, odDigitalInput5, 0)
		bus.SetReadSequence(m.Handle, odDigitalInput5, []uint32{0, 0, 1})
		bus.SetRegister(m.Handle, odActualPosition, 500)
		// The search move does not poll the statusword; the only statusword
		// read is StopMotor's at the sensor edge, which must see halted.
		bus.SetStatusSequence(m.Handle, []uint32{swHaltedMask})
	}

	homeKnown := false
	err := Homing(context.Background(), bus, motors, &homeKnown, 3, nil)
	require.NoError(t, err)
	assert.True(t, homeKnown)

	for _, id := range []int{1, 2} {
		_, ok := motors[id].HomeCount()
		assert.True(t, ok)
	}
}

func TestHomingSearchTimesOutWithoutSensorEdge(t *testing.T) {
	motors, bus := twoConnectedMotors()
	for _, m := range motors {
		bus.SetRegister(m.Handle, odDigitalInput5, 0) // never changes
	}

	homeKnown := false
	err := Homing(context.Background(), bus, motors, &homeKnown, 3, nil)
	require.Error(t, err)
	var timeoutErr *HomingTimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
}

func TestHomingReturnsToKnownHomeUsingShortestPath(t *testing.T) {
	motors, bus := twoConnectedMotors()
	for _, m := range motors {
		m.setHomeCount(1000)
		bus.SetRegister(m.Handle, odActualPosition, 1100)
	}

	homeKnown := true
	err := Homing(context.Background(), bus, motors, &homeKnown, 3, nil)
	require.NoError(t, err)

	for _, m := range motors {
		writes := bus.Writes()
		found := false
		for _, w := range writes {
			if w.Handle == m.Handle && w.Index == odTargetPosition {
				assert.Equal(t, ShortestDelta(1100, 1000), w.Value)
				found = true
			}
		}
		assert.True(t, found, "expected a target-position write for motor %d", m.ID)
	}
}

func TestParkingRequiresHomeKnown(t *testing.T) {
	motors, bus := twoConnectedMotors()
	err := Parking(context.Background(), bus, motors, false, 3, nil)
	assert.ErrorIs(t, err, ErrNotHomed)
}

func TestParkingSkipsMoveWhenAlreadyClose(t *testing.T) {
	motors, bus := twoConnectedMotors()
	for _, m := range motors {
		home := uint32(10000)
		m.setHomeCount(home)
		bus.SetRegister(m.Handle, odActualPosition, WrapPosition(int64(home)+ParkOffset))
	}

	err := Parking(context.Background(), bus, motors, true, 3, nil)
	require.NoError(t, err)
	for _, w := range bus.Writes() {
		assert.NotEqual(t, odTargetPosition, w.Index, "no move should be issued when already within threshold")
	}
}

func TestZeroingDrivesEachMotorToItsOwnOffset(t *testing.T) {
	motors, bus := twoConnectedMotors()
	for _, m := range motors {
		m.setHomeCount(0)
		bus.SetRegister(m.Handle, odActualPosition, 0)
	}

	err := Zeroing(context.Background(), bus, motors, true, 3, nil)
	require.NoError(t, err)

	targets := map[int]int64{}
	for _, w := range bus.Writes() {
		if w.Index == odTargetPosition {
			for id, m := range motors {
				if w.Handle == m.Handle {
					targets[id] = w.Value
				}
			}
		}
	}
	assert.Equal(t, ShortestDelta(0, uint32(ZeroOffset1)), targets[1])
	assert.Equal(t, ShortestDelta(0, uint32(ZeroOffset2)), targets[2])
}

func TestPowerOnRejectsOutOfRangeBusIndex(t *testing.T) {
	bus := NewFakeBusDriver()
	bus.busHardware = []BusID{"COM1"}

	_, _, err := PowerOn(bus, 5, nil)
	assert.Error(t, err)
}

func TestPowerOnRegistersTwoMotors(t *testing.T) {
	bus := NewFakeBusDriver()
	bus.busHardware = []BusID{"COM1"}
	bus.devicesByBus["COM1"] = []DeviceID{"dev-1", "dev-2"}

	busID, motors, err := PowerOn(bus, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, BusID("COM1"), busID)
	assert.Len(t, motors, 2)
}

func TestPowerOnFailsWithNoBusHardware(t *testing.T) {
	bus := NewFakeBusDriver()
	_, _, err := PowerOn(bus, 0, nil)
	assert.ErrorIs(t, err, ErrNoBusHardware)
}

func TestPowerOffClosesBusAndDisconnectsMotors(t *testing.T) {
	bus := NewFakeBusDriver()
	bus.busHardware = []BusID{"COM1"}
	bus.devicesByBus["COM1"] = []DeviceID{"dev-1", "dev-2"}
	busID, motors, err := PowerOn(bus, 0, nil)
	require.NoError(t, err)
	for _, m := range motors {
		require.NoError(t, bus.Connect(m.Handle))
		m.Connected = true
	}

	err = PowerOff(bus, motors, busID, nil)
	require.NoError(t, err)
	for _, m := range motors {
		assert.False(t, m.Connected)
		connected, _ := bus.CheckConnection(m.Handle)
		assert.False(t, connected)
	}
}
