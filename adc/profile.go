package adc

import (
	"fmt"
	"math"
	"time"
)

// TrapezoidalProfile models the constant-acceleration/cruise/deceleration
// velocity profile the drive itself executes once a Profile Position move
// is started (spec §4.2.1). motor.go does not drive position directly —
// the servo does that — but uses this to estimate the expected position
// at each statusword poll, purely for progress logging.
type TrapezoidalProfile struct {
	StartPos     float64
	TargetPos    float64
	MaxVelocity  float64
	Acceleration float64

	totalTime  float64
	accelTime  float64
	decelTime  float64
	cruiseTime float64
	cruiseVel  float64
	distance   float64
}

// NewTrapezoidalProfile builds a profile from a relative move in encoder
// counts, a profile velocity in counts/sec, and an assumed acceleration.
func NewTrapezoidalProfile(startPos, targetPos, maxVel, accel float64) (*TrapezoidalProfile, error) {
	if maxVel <= 0 {
		return nil, fmt.Errorf("adc: profile: max velocity must be positive")
	}
	if accel <= 0 {
		return nil, fmt.Errorf("adc: profile: acceleration must be positive")
	}

	p := &TrapezoidalProfile{
		StartPos:     startPos,
		TargetPos:    targetPos,
		MaxVelocity:  maxVel,
		Acceleration: accel,
	}
	p.calculate()
	return p, nil
}

func (p *TrapezoidalProfile) calculate() {
	p.distance = math.Abs(p.TargetPos - p.StartPos)
	if p.distance == 0 {
		return
	}

	timeToMaxVel := p.MaxVelocity / p.Acceleration
	distanceAccelDecel := p.MaxVelocity * timeToMaxVel

	if distanceAccelDecel > p.distance {
		p.cruiseVel = math.Sqrt(p.Acceleration * p.distance)
		p.accelTime = p.cruiseVel / p.Acceleration
		p.decelTime = p.accelTime
		p.cruiseTime = 0
	} else {
		p.cruiseVel = p.MaxVelocity
		p.accelTime = timeToMaxVel
		p.decelTime = timeToMaxVel
		p.cruiseTime = (p.distance - distanceAccelDecel) / p.MaxVelocity
	}

	p.totalTime = p.accelTime + p.cruiseTime + p.decelTime
}

// Duration is the estimated total move time.
func (p *TrapezoidalProfile) Duration() time.Duration {
	return time.Duration(p.totalTime * float64(time.Second))
}

// TotalTime is Duration in fractional seconds.
func (p *TrapezoidalProfile) TotalTime() float64 {
	return p.totalTime
}

// PositionAt estimates where the move should be at elapsed time t,
// used only to annotate progress logs during the statusword poll loop.
func (p *TrapezoidalProfile) PositionAt(t float64) float64 {
	if t <= 0 {
		return p.StartPos
	}
	if t >= p.totalTime {
		return p.TargetPos
	}

	direction := 1.0
	if p.TargetPos < p.StartPos {
		direction = -1.0
	}

	var pos float64
	switch {
	case t <= p.accelTime:
		pos = 0.5 * p.Acceleration * t * t
	case t <= p.accelTime+p.cruiseTime:
		tCruise := t - p.accelTime
		posCruiseStart := 0.5 * p.Acceleration * p.accelTime * p.accelTime
		pos = posCruiseStart + p.cruiseVel*tCruise
	default:
		tDecel := t - p.accelTime - p.cruiseTime
		posCruiseStart := 0.5 * p.Acceleration * p.accelTime * p.accelTime
		posCruiseEnd := posCruiseStart + p.cruiseVel*p.cruiseTime
		pos = posCruiseEnd + p.cruiseVel*tDecel - 0.5*p.Acceleration*tDecel*tDecel
	}

	return p.StartPos + direction*pos
}

// estimatedAccel is the assumed acceleration (counts/sec^2) used purely
// for progress estimation; the drive's real acceleration profile is not
// exposed over the object dictionary this package reads.
const estimatedAccel = 2000.0
