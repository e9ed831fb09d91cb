// Package errs classifies errors raised anywhere in the trading core into
// the taxonomy of spec §7, so the scheduler (the only layer allowed to
// decide between "tick failed" and "process failed") can dispatch on
// errors.As instead of string matching.
package errs

import "fmt"

// Domain wraps a computation error caused by nonsensical input (bad
// amounts, missing swap path, malformed rate). Fatal for the tick it
// occurred in; never retried.
type Domain struct {
	Op  string
	Err error
}

func (e *Domain) Error() string { return fmt.Sprintf("domain error in %s: %v", e.Op, e.Err) }
func (e *Domain) Unwrap() error { return e.Err }

func NewDomain(op string, err error) error { return &Domain{Op: op, Err: err} }

// Transient wraps an error the raising component should itself retry
// (RPC timeout, rate limit, DB busy, forecaster unavailable). On
// exhaustion it is converted to Skipped by the caller.
type Transient struct {
	Op  string
	Err error
}

func (e *Transient) Error() string { return fmt.Sprintf("transient error in %s: %v", e.Op, e.Err) }
func (e *Transient) Unwrap() error { return e.Err }

func NewTransient(op string, err error) error { return &Transient{Op: op, Err: err} }

// Skipped marks a single unit of work (one token, one swap, one forecast)
// that failed after retries were exhausted. The broader tick continues.
type Skipped struct {
	Subject string
	Err     error
}

func (e *Skipped) Error() string { return fmt.Sprintf("skipped %s: %v", e.Subject, e.Err) }
func (e *Skipped) Unwrap() error { return e.Err }

func NewSkipped(subject string, err error) error { return &Skipped{Subject: subject, Err: err} }

// FatalTick means the current scheduler tick cannot produce a result at
// all (no tokens survived selection, phase-2 rebalance had zero successes
// with at least one failure, or the FSM couldn't read the period table).
// The scheduler logs it and waits for the next fire.
type FatalTick struct {
	Op  string
	Err error
}

func (e *FatalTick) Error() string { return fmt.Sprintf("tick failed in %s: %v", e.Op, e.Err) }
func (e *FatalTick) Unwrap() error { return e.Err }

func NewFatalTick(op string, err error) error { return &FatalTick{Op: op, Err: err} }

// FatalProcess means the process itself cannot continue (config failed to
// load, DB pool could not be constructed). The caller should abort with a
// nonzero exit code.
type FatalProcess struct {
	Op  string
	Err error
}

func (e *FatalProcess) Error() string { return fmt.Sprintf("fatal startup error in %s: %v", e.Op, e.Err) }
func (e *FatalProcess) Unwrap() error { return e.Err }

func NewFatalProcess(op string, err error) error { return &FatalProcess{Op: op, Err: err} }
