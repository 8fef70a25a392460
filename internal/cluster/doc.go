// Package cluster defines the vocabulary shared by every part of groupsync:
// hosts, group operations, call outcomes, and the HTTP transport that reaches
// a single host.
//
// # Overview
//
// A cluster is a fixed, ordered list of hosts. Each host exposes the same
// idempotent group endpoint and fails independently of its peers. There is
// no commit protocol between hosts; the coordinator package layers
// compensation on top of the primitives defined here.
//
// # Operations
//
// Three operations exist and form a closed set:
//
//	Create  <-> Delete   (inverses of each other)
//	Status               (read-only, no inverse)
//
// Operation.Inverse is total: it reports false for Status instead of
// returning a sentinel value, so callers cannot accidentally compensate a
// read.
//
// # Wire Protocol
//
// Every host serves one endpoint under /v1/group/:
//
//	POST   /v1/group/        {"groupId": "g1"}   create
//	DELETE /v1/group/        {"groupId": "g1"}   delete
//	GET    /v1/group/{id}                        status
//
// Responses are classified exactly once, in Client.Call:
//
//	2xx          -> ReplyOK
//	400, 409     -> ReplyConflict     (group already exists)
//	404          -> ReplyNotFound
//	anything else, network errors and timeouts -> ReplyUnavailable
//
// What a Reply means for a given operation (idempotent success, absent
// group, retryable failure) is decided by the executor package.
//
// # Timeouts
//
// Client applies one deadline per attempt. It never retries on its own and
// holds no per-host state, so a single Client is shared by all hosts.
package cluster
