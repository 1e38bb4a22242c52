// Package model defines the shared records of the attendance and certification
// core: events, participants, certificates, accounts, the Identity sum type,
// and the error taxonomy.
//
// All other internal packages import model; model imports nothing internal.
//
// Key design constraints:
//   - at most one Participant per (event, identity); identity matches on
//     account reference OR normalized email (see SameIdentity)
//   - CheckInTime is set iff Status is attended or completed
//   - a Certificate exists only on a completed participant
//   - Status only advances (registered -> attended -> completed)
//   - All JSON tags use snake_case to match the authority's wire format
package model
