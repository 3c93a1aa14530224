package adc

import "time"

// Calibration constants for the rig (spec §3/§7). These are compile-time
// defaults; nothing in the config file currently overrides them.
const (
	// CountsPerRev is one full mechanical revolution in encoder counts.
	CountsPerRev int64 = 16200
	// CountsPerDeg converts a prism angle in degrees to encoder counts.
	CountsPerDeg float64 = 45

	// ParkOffset is added to the home position to compute the park target.
	ParkOffset int64 = -500
	// ZeroOffset1 and ZeroOffset2 are the absolute zero targets for motor
	// 1 and motor 2 respectively.
	ZeroOffset1 int64 = 7635
	ZeroOffset2 int64 = 1926

	// MaxVelocity bounds the profile velocity accepted by Activate/Move.
	MaxVelocity uint32 = 5
	// MinVelocity is the lowest profile velocity accepted.
	MinVelocity uint32 = 1

	// ShortestPathThreshold: moves shorter than this many counts are
	// skipped entirely rather than dispatched (spec §4.3.4).
	ShortestPathThreshold int64 = 10

	// BusstopSentinel is the digital-input value (0x3240/05) that means
	// "device already parked on the mechanical bus stop".
	BusstopSentinel uint32 = 192
)

// Homing search timing (spec §5.3.1) and the statusword poll interval
// used by MoveMotor. These are vars, not consts, so
// tests can shrink them instead of waiting out real wall-clock polling
// intervals.
var (
	HomeSearchTimeout  = 300 * time.Second
	HomePollInterval   = 10 * time.Millisecond
	MoveStatusInterval = 1 * time.Second
)

// CiA-402 object dictionary indices used throughout the bus protocol
// (spec §4.2.1/§4.3.1).
var (
	odControlword     = odIndex{Index: 0x6040, Subindex: 0x00}
	odStatusword      = odIndex{Index: 0x6041, Subindex: 0x00}
	odModesOfOp       = odIndex{Index: 0x6060, Subindex: 0x00}
	odTargetPosition  = odIndex{Index: 0x607A, Subindex: 0x00}
	odProfileVelocity = odIndex{Index: 0x6081, Subindex: 0x00}
	odActualPosition  = odIndex{Index: 0x6064, Subindex: 0x00}
	odDigitalInput5   = odIndex{Index: 0x3240, Subindex: 0x05}
)

// Controlword / statusword bit patterns for the Profile Position
// sequence (spec §4.2.1).
const (
	modeProfilePosition uint16 = 0x01

	cwShutdown        int64 = 0x06
	cwSwitchOn        int64 = 0x07
	cwEnableOperation int64 = 0x0F
	cwStartMove       int64 = 0x5F
	cwHalt            int64 = 0x1F
	cwDisableVoltage  int64 = 0x01

	swTargetReachedMask uint32 = 0x1400
	swHaltedMask        uint32 = 0x8000
)
