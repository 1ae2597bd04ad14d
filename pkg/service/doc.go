/*
Package service implements the Service Facade: the process-wide registry of
accounts and their Resource Managers.

# Architecture

	┌─────────────────────────── Facade ───────────────────────────┐
	│                                                                 │
	│   Accounts()/AddAccount()/UpdateAccount()/RemoveAccount() ───▶ Store
	│                                                                 │
	│   UpdateResource(account, path) ──▶ managers[account] (lazy) ──▶
	│       resourcemanager.Manager.UpdateResource ──▶ transfer.Manager │
	│                                                                 │
	│   events.Broker ◀── DidChange / account lifecycle              │
	└─────────────────────────────────────────────────────────────────┘

The Facade owns exactly one resourcemanager.Manager and one transfer.Manager
per account, created on first reference and torn down when the account is
removed. It never mutates the Store for resource data itself - that's the
Resource Manager's job - but it does forward account CRUD directly to the
Store, since account lifecycle has no reconciliation step of its own.

# Concurrency

Account-level mutations (AddAccount/UpdateAccount/RemoveAccount, and the
lazy creation of a Manager pair) are serialized on the Facade's own
pkg/queue.Queue, matching spec.md §5's "Service Facade has its own serial
queue for account-level mutations." Everything else happens on the relevant
account's own Resource Manager / Transfer Manager queues.

# Notifications

Every account lifecycle change and every non-empty ChangeSet produced by a
Resource Manager is published through pkg/events.Broker, replacing what the
teacher's source would have used a global notification center for (spec.md
§9).
*/
package service
