// Package reconcile is the client-side reconciliation engine.
//
// The engine keeps a local view of every event and participant and makes it
// converge with the authoritative collaborator despite concurrent writers and
// write-then-read lag.
//
// # State
//
// The view is two layers:
//
//   - Committed: an immutable Snapshot holding only authority-confirmed
//     records. It is swapped atomically, so readers never block writers and a
//     failed write can never corrupt it.
//   - Outbox: pending mutations. Before acknowledgment an entry carries the
//     optimistic record; after acknowledgment it carries the authority's
//     record. Snapshot() overlays pending entries on the committed layer.
//
// # Flow of one mutation
//
//  1. Validate locally (token shape, state machine, eligibility).
//  2. Add an optimistic outbox entry.
//  3. Send to the collaborator with a per-request timeout. Idempotent
//     operations retry on NETWORK_FAILURE.
//  4. On failure remove the entry; on success merge the returned record into
//     the committed layer and mark the entry acknowledged.
//  5. Run a trailing refresh.
//
// On refresh, an acknowledged entry whose record the refreshed data already
// covers is confirmed and dropped. One the refresh does not cover yet stays
// overlaid until the grace window expires, after which it is marked stale and
// reported instead of being silently lost.
//
// Records are deduplicated by identity (same account or same normalized
// email within an event), never by id, because optimistic records carry
// placeholder ids.
//
// Thread-safety model:
//   - Mutations and Refresh: serialized by an operation mutex
//   - Snapshot, Outbox, Stale, IsPending, IsCertifiable: safe from any
//     goroutine, never wait for a mutation in flight
package reconcile
