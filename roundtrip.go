package nativebind

import (
	"context"
	"time"
)

// Result is the outcome of one round trip through an opaque handle.
type Result struct {
	// Seed is the value stored through the handle.
	Seed int32 `msgpack:"seed"`

	// Got is the value the module reported back.
	Got int32 `msgpack:"got"`

	// Worker is the pool slot that ran the job.
	Worker int `msgpack:"worker"`

	// PID is the process that ran the job.
	PID int `msgpack:"pid"`

	// Elapsed covers creation through inspection.
	Elapsed time.Duration `msgpack:"elapsed"`
}

// DelayFor returns unit/(1+seed). Larger seeds sleep less, so a pool finishes
// its jobs roughly in reverse seed order. Negative seeds get the full unit.
func DelayFor(seed int32, unit time.Duration) time.Duration {
	if seed < 0 {
		return unit
	}
	return unit / time.Duration(1+int64(seed))
}

// RoundTrip stores seed through a new opaque handle, waits delay, reads the
// value back and compares. A mismatch returns the Result together with a
// RoundTripError. Cancelling ctx interrupts only the wait; native calls run
// to completion.
//
// The handle is released afterwards when the module exports a release entry
// point.
func RoundTrip(ctx context.Context, lib *Library, seed int32, delay time.Duration) (Result, error) {
	start := time.Now()
	h := lib.CreateOpaqueRecord(seed)
	defer lib.ReleaseOpaqueRecord(h)

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{Seed: seed}, ctx.Err()
		case <-timer.C:
		}
	}

	got := lib.InspectOpaqueRecord(h)
	res := Result{Seed: seed, Got: got, Elapsed: time.Since(start)}
	if got != seed {
		return res, &RoundTripError{Seed: seed, Got: got}
	}
	return res, nil
}
