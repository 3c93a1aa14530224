package adc

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// motorTask is one leg of a two-way parallel dispatch: it returns
// whatever the caller wants back plus an error, and carries the motor ID
// purely for error reporting.
type motorTask struct {
	motorID int
	run     func() (any, error)
}

// parallel2 runs both tasks on their own goroutine and waits for both to
// finish before returning — generalizing the teacher's single
// WaitGroup + channel control-loop idiom to a fixed two-way join. A
// failure on one task never cancels the other (spec §6 per-task error
// isolation).
func parallel2(tasks []motorTask) map[int]taskResult {
	results := make(map[int]taskResult, len(tasks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, t := range tasks {
		wg.Add(1)
		go func(t motorTask) {
			defer wg.Done()
			value, err := t.run()
			mu.Lock()
			results[t.motorID] = taskResult{value: value, err: err}
			mu.Unlock()
		}(t)
	}

	wg.Wait()
	return results
}

type taskResult struct {
	value any
	err   error
}

// sanitizeVelocity clamps vel to [MinVelocity, MaxVelocity], logging a
// warning when clamping occurred (spec §5.4.2).
func sanitizeVelocity(vel int, logger *zap.SugaredLogger) uint32 {
	if vel < int(MinVelocity) {
		if logger != nil {
			logger.Warnw("velocity below minimum, clamping", "requested", vel, "clamped_to", MinVelocity)
		}
		return MinVelocity
	}
	if vel > int(MaxVelocity) {
		if logger != nil {
			logger.Warnw("velocity above maximum, clamping", "requested", vel, "clamped_to", MaxVelocity)
		}
		return MaxVelocity
	}
	return uint32(vel)
}

// Activate interpolates a zenith angle to counter-rotating motor targets
// and dispatches both moves concurrently (spec §5.4.2).
func Activate(ctx context.Context, bus BusDriver, motors map[int]*Motor, lookup *Lookup, za float64, velSet int, logger *zap.SugaredLogger) Response {
	adcDeg, err := lookup.FnZAADC(za)
	if err != nil {
		return fail(err)
	}
	pos := DegreeToCount(adcDeg)
	vel := sanitizeVelocity(velSet, logger)

	targets := map[int]int64{1: -pos, 2: pos}
	results := parallel2([]motorTask{
		{motorID: 1, run: func() (any, error) { return MoveMotor(ctx, bus, motors[1], targets[1], vel, logger) }},
		{motorID: 2, run: func() (any, error) { return MoveMotor(ctx, bus, motors[2], targets[2], vel, logger) }},
	})

	return aggregateMoveResults(results, "activate")
}

// Move dispatches a move per spec §5.4.3's motor_id encoding:
// 0 = both to -pos, -1 = counter-rotate, 1/2 = that motor only.
func Move(ctx context.Context, bus BusDriver, motors map[int]*Motor, motorID int, posCount int64, vel uint32, logger *zap.SugaredLogger) Response {
	switch motorID {
	case 0:
		results := parallel2([]motorTask{
			{motorID: 1, run: func() (any, error) { return MoveMotor(ctx, bus, motors[1], -posCount, vel, logger) }},
			{motorID: 2, run: func() (any, error) { return MoveMotor(ctx, bus, motors[2], -posCount, vel, logger) }},
		})
		return aggregateMoveResults(results, "move")
	case -1:
		results := parallel2([]motorTask{
			{motorID: 1, run: func() (any, error) { return MoveMotor(ctx, bus, motors[1], -posCount, vel, logger) }},
			{motorID: 2, run: func() (any, error) { return MoveMotor(ctx, bus, motors[2], posCount, vel, logger) }},
		})
		return aggregateMoveResults(results, "move")
	case 1, 2:
		report, err := MoveMotor(ctx, bus, motors[motorID], -posCount, vel, logger)
		if err != nil {
			return fail(&MoveFailedError{MotorID: motorID, Reason: err})
		}
		r := ok("move complete")
		r.MotorID = motorID
		r.Move = &report
		return r
	default:
		return fail(&InvalidMotorIDError{MotorID: motorID})
	}
}

// Stop halts one or both motors per spec §5.4.4.
func Stop(bus BusDriver, motors map[int]*Motor, motorID int) Response {
	switch motorID {
	case 0:
		results := parallel2([]motorTask{
			{motorID: 1, run: func() (any, error) { return StopMotor(bus, motors[1]) }},
			{motorID: 2, run: func() (any, error) { return StopMotor(bus, motors[2]) }},
		})
		return aggregateStopResults(results)
	case 1, 2:
		report, err := StopMotor(bus, motors[motorID])
		if err != nil {
			return fail(err)
		}
		r := ok("stop complete")
		r.MotorID = motorID
		r.Stop = &report
		return r
	default:
		return fail(&InvalidMotorIDError{MotorID: motorID})
	}
}

func aggregateMoveResults(results map[int]taskResult, op string) Response {
	moves := make(map[int]MoveReport, len(results))
	var failed []int

	for id, r := range results {
		if r.err != nil {
			failed = append(failed, id)
			continue
		}
		moves[id] = r.value.(MoveReport)
	}

	if len(failed) > 0 {
		return fail(fmt.Errorf("adc: %s: motor(s) %v failed", op, failed))
	}

	resp := ok(fmt.Sprintf("%s complete", op))
	resp.Moves = moves
	return resp
}

func aggregateStopResults(results map[int]taskResult) Response {
	stops := make(map[int]StopReport, len(results))
	var failed []int

	for id, r := range results {
		if r.err != nil {
			failed = append(failed, id)
			continue
		}
		stops[id] = r.value.(StopReport)
	}

	if len(failed) > 0 {
		return fail(fmt.Errorf("adc: stop: motor(s) %v failed", failed))
	}

	resp := ok("stop complete")
	resp.Stops = stops
	return resp
}
