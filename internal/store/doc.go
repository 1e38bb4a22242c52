// Package store is the authoritative collaborator: a SQLite-backed record of
// events, accounts, participants and certificates.
//
// The store is the only component that assigns participant ids, check-in
// timestamps, certificate numbers and verification codes. Every mutation is
// a read-modify-write inside one transaction, and the connection pool holds
// a single connection, so concurrent requests for the same participant are
// serialized and each transition happens at most once.
//
// # Invariants enforced here
//
//   - One record per identity: partial unique indexes on (event_id, user_id)
//     and (event_id, email_key), plus an identity lookup inside the join
//     transaction that returns the existing record instead of failing.
//   - A CHECK constraint ties check_in_time to status.
//   - Certificates are keyed by participant_id.
//   - Participant counts are derived with COUNT, never stored.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Cascade event deletion to participants
package store
