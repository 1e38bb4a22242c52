// Package harness runs multi-device conformance scenarios against a real
// authority.
//
// A scenario seeds an in-memory SQLite authority from an inline catalog,
// attaches one reconcile engine per device, and then drives a flow of
// operations through those engines while injecting the faults a venue sees:
// lagging reads, dropped requests, and replies lost after the write landed.
//
// # Scenario Format
//
//	name: double_scan
//	description: "Two doors scan the same token at once"
//	devices: [front, back]
//	catalog: |
//	  account: "42": {name: "Ana", email: "ana@x.com"}
//	  event: E1: {title: "Workshop", roster: [{user: "42"}]}
//	flow:
//	  - parallel:
//	      - {op: scan, device: front, event: E1, token: USER-42-C000001}
//	      - {op: scan, device: back, event: E1, token: USER-42-C000001}
//	assertions:
//	  - type: participant
//	    event: E1
//	    user: "42"
//	    expect: {status: attended}
//
// # Operations
//
// Engine operations: join, scan, mark_attendance, evaluate, issue,
// issue_pending, check_out, refresh. Participants are addressed by identity
// (user or email) and resolved against the acting device's view.
//
// Fault and time control: lag freezes what the authority returns to reads,
// resume ends the lag, fail makes the next N calls of an authority operation
// fail (mode drop, before the write, or lose_reply, after it), advance moves
// the shared clock.
//
// # Deterministic Testing
//
// Participant ids, token codes and certificate numbers come from fixed
// sequences and every component shares one manual clock, so a scenario
// always renders the same trace. RunWithGolden compares that trace with
// testdata/golden/<name>.golden.
package harness
