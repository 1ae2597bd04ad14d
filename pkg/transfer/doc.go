// Package transfer implements the Transfer Layer: the per-account body
// downloader that sits between the Resource Manager and the remote protocol
// client's Download operation.
//
// A Manager owns one account's in-flight downloads. Download(id) is
// idempotent while a transfer for id is pending: a second call observes the
// existing transfer instead of starting a duplicate, matching the relevant
// cell of the session's state machine (queued/running/duplicate/completed).
// Every resolution - success, failure, or cancellation - is reported exactly
// once through the Delegate and never silently dropped.
//
// Session identifiers tie a Manager's transfers to the host's background
// transfer session ("download::<accountID>::<bundleIdentifier>") so the
// Manager can be reconstructed with the same identity after a process
// restart. New passes that identifier to SessionEnumerator and records the
// byte counters of the transfers it reports for Progress; it does not
// reattach to those transfers or call DidStart for them.
package transfer
