/*
Package resourcemanager implements the Resource Manager: the per-account
component that drives a Store toward consistency with one remote account and
decides which resources now need their bodies downloaded.

# Architecture

Exactly one Manager exists per account, created lazily by the service
facade. UpdateResource is its only entry point:

	┌────────────────────── UpdateResource(path) ──────────────────────┐
	│                                                                    │
	│  1. resolve remote URL for path (account base + percent-encoded   │
	│     path, trailing slash iff the local node is a collection or    │
	│     unknown)                                                      │
	│  2. remote.Client.RetrieveProperties(url)  -- self + one level    │
	│     of children, the only remote call this package issues         │
	│  3. store.Update(account, path, self, children)                   │
	│  4. delegate.DidChange(changeSet)                                 │
	│  5. for every non-collection resource in changeSet.InsertedOr-    │
	│     Updated whose body is missing or stale: transfer.Download(id) │
	└────────────────────────────────────────────────────────────────────┘

Recursion is deliberately lazy: reconciling a collection does not walk its
children's children automatically. A caller that wants a deep sync issues
one UpdateResource call per newly discovered child collection, typically in
response to the ChangeSet the first call already produced.

# Concurrency

All of a Manager's state and its single outstanding remote fetch at a time
are serialized on a per-account pkg/queue.Queue (the "Store/Manager domain"
of spec.md §5). A second UpdateResource call for a path already in flight
does not re-issue the remote fetch: it is queued behind the first and
observes that call's outcome, exactly like a duplicate transfer.Download
call observes the transfer already running.

# Authentication

A Manager never talks to the protocol client about credentials directly.
When transfer.Manager (or, through it, the protocol client) raises an
authentication challenge for this account, the challenge is forwarded
upward through the Manager's PasswordDelegate; supplying nil declines the
challenge, which transfer.Manager treats as a cancellation.
*/
package resourcemanager
