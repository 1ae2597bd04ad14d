/*
Package types defines the core data structures shared across davsync.

These are the types described by the engine's data model: Account, ResourceID,
Resource and its FileState, ChangeSet, and PendingDownload. Every other package
(store, resourcemanager, transfer, service) builds on these definitions instead
of inventing parallel representations, so a ChangeSet produced by the store is
exactly the ChangeSet consumed by the resource manager and re-published by the
service facade.

# Resource tree

A Resource lives at a Path under an Account. Paths are ordered, non-empty path
components; the empty Path denotes the account root. Every non-root resource
has an ancestor resource materialized at each of its non-empty proper
prefixes - the store is
responsible for enforcing that invariant, but the shape of the tree itself
lives here.

# Errors

Kind distinguishes the handful of error categories the engine surfaces to
callers: Storage, Protocol, UnexpectedStatus, Network, AuthenticationRequired,
Cancelled and InvalidArgument. Components wrap a Kind in an *Error so callers
can classify failures with errors.As instead of string matching.
*/
package types
