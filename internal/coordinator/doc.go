// Package coordinator drives a group operation across the ordered host list
// and restores consistency when the operation fails partway through.
//
// # Overview
//
// Hosts do not coordinate with each other, so there is no commit protocol to
// lean on. The coordinator provides best-effort atomicity on the client side:
// apply the operation host by host, and when one host fails, apply the
// inverse operation to every host that already succeeded. Hosts that cannot
// be rolled back either are written to the rollback store, so a later run
// can finish the job.
//
// # Protocol
//
//	ApplyCreate("g1") with hosts [A, B, C]
//
//	Resuming      load record? ──yes──> clear, compensate record hosts
//	                 │                       │
//	                 no                 still failing? ──yes──> save record,
//	                 │                       │                  refuse request
//	                 ▼                       no
//	Applying      create A ✓  create B ✗  (C never contacted)
//	                 │
//	Compensating  delete A   (same order as forward, not reversed)
//	                 │
//	              A ok  -> Compensated, ErrOperationFailed, store empty
//	              A ✗   -> CompensationFailed, ErrCompensationFailed,
//	                       store holds {delete, g1, [A]}
//
// # Invariants
//
//   - Forward application stops at the first failing host; hosts after it
//     are never contacted.
//   - Compensation targets exactly the hosts that succeeded before the
//     failure, in forward order. Each invocation runs at most one
//     compensation pass for its own operation.
//   - A record is stored if and only if compensation left hosts behind, and
//     it lists only those hosts.
//   - A stored record is cleared before it is resumed and rewritten with
//     whatever still fails, so a crash mid-resume never duplicates it.
//   - Create and Delete are refused until the store is empty.
//   - A group id the record cannot hold (empty, or with a line break) is
//     refused before any host is contacted.
//   - Cancelling the context can cut forward application short but never
//     compensation or the record write that follows it.
//
// # Status
//
// GetStatus never compensates. A host that exhausts its retries is reported
// as not having the group, which is indistinguishable from a confirmed
// absence in the returned map; the coordinator logs a warning for it.
//
// # Health
//
// HealthChecker probes each host's /health endpoint in parallel for the
// groupctl health command. Its result is advisory; ApplyCreate and
// ApplyDelete contact every host regardless.
//
// # Concurrency
//
// One invocation at a time per Coordinator. The rollback store is assumed to
// be owned by a single process; sharing it would need a lock or a
// conditional write, which is not implemented.
package coordinator
