package adc

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the taxonomy of spec §7. Callers should use
// errors.Is/errors.As; the scoped error types below unwrap to their
// sentinel, so errors.Is still matches after further %w wrapping. Not
// every error in the package carries one (bus transport errors and
// lookup-table parse errors, for example, do not).
var (
	ErrConfigMissing  = errors.New("adc: config file missing")
	ErrConfigInvalid  = errors.New("adc: config file invalid")
	ErrNoBusHardware  = errors.New("adc: no bus hardware available")
	ErrNoDevices      = errors.New("adc: no devices found during scan")
	ErrNotConnected   = errors.New("adc: motor not connected")
	ErrInvalidMotorID = errors.New("adc: invalid motor id")
	ErrNotHomed       = errors.New("adc: home position not known")
	ErrOutOfBounds    = errors.New("adc: zenith angle out of lookup table bounds")
	ErrHomingTimeout  = errors.New("adc: homing search timed out")
	ErrMoveFailed     = errors.New("adc: move failed")
)

// NotConnectedError scopes ErrNotConnected to one motor.
type NotConnectedError struct {
	MotorID int
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("adc: motor %d not connected", e.MotorID)
}

func (e *NotConnectedError) Unwrap() error { return ErrNotConnected }

// InvalidMotorIDError scopes ErrInvalidMotorID to the offending value.
type InvalidMotorIDError struct {
	MotorID int
}

func (e *InvalidMotorIDError) Error() string {
	return fmt.Sprintf("adc: invalid motor id %d", e.MotorID)
}

func (e *InvalidMotorIDError) Unwrap() error { return ErrInvalidMotorID }

// OutOfBoundsError scopes ErrOutOfBounds to the offending angle.
type OutOfBoundsError struct {
	ZenithAngle float64
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("adc: zenith angle %.3f outside lookup table domain", e.ZenithAngle)
}

func (e *OutOfBoundsError) Unwrap() error { return ErrOutOfBounds }

// HomingTimeoutError scopes ErrHomingTimeout to one motor.
type HomingTimeoutError struct {
	MotorID int
}

func (e *HomingTimeoutError) Error() string {
	return fmt.Sprintf("adc: motor %d homing search timed out", e.MotorID)
}

func (e *HomingTimeoutError) Unwrap() error { return ErrHomingTimeout }

// MoveFailedError scopes ErrMoveFailed to one motor with the underlying
// reason.
type MoveFailedError struct {
	MotorID int
	Reason  error
}

func (e *MoveFailedError) Error() string {
	return fmt.Sprintf("adc: motor %d move failed: %v", e.MotorID, e.Reason)
}

func (e *MoveFailedError) Unwrap() error { return ErrMoveFailed }
