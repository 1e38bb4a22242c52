// Package lifecycle implements the participant state machine.
//
// States: registered (initial) -> attended -> completed (terminal). Every
// transition is a pure function: it takes a participant value and returns a
// new value, never mutating its input. A failed transition returns the input
// unchanged together with an error.
//
// Idempotency:
//   - CheckIn on an attended or completed participant is a no-op reported as
//     AlreadyApplied, which is what makes double scans safe.
//   - IssueCertificate on a completed participant returns the certificate it
//     already holds instead of minting a second one.
package lifecycle
