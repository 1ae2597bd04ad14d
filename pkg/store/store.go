package store

import (
	"github.com/meridianlabs/davsync/pkg/types"
)

// Store is the persistent, transactional local representation of every
// configured account and its resource tree. Every mutating operation either
// commits atomically and returns a ChangeSet, or fails without effect.
//
// Read operations may run on any caller's goroutine and must observe
// snapshot isolation: a reader never sees a partially applied update. bbolt's
// MVCC transactions give BoltStore this property for free.
type Store interface {
	// Open performs idempotent initialization; it fails with a KindStorage
	// error on corruption.
	Open() error
	// Close releases the underlying database handle.
	Close() error

	// AddAccount registers a new account, assigning it a fresh AccountID. It
	// fails with KindInvalidArgument (reported as a conflict) if an account
	// with the same (baseURL, username) already exists.
	AddAccount(baseURL, username, label string) (types.Account, error)
	// UpdateAccount edits an account's label.
	UpdateAccount(id types.AccountID, label string) (types.Account, error)
	// RemoveAccount deletes an account, cascading to every resource and
	// cached body file under it.
	RemoveAccount(id types.AccountID) error
	// Accounts returns every registered account in insertion order.
	Accounts() ([]types.Account, error)
	// Account looks up a single account by id.
	Account(id types.AccountID) (*types.Account, error)

	// Resource returns the resource at path, or nil if none exists.
	Resource(account types.AccountID, path types.Path) (*types.Resource, error)
	// Contents returns the direct children of path, in no particular order.
	Contents(account types.AccountID, path types.Path) ([]types.Resource, error)

	// Update is the central mutator: it applies the property-tree update
	// algorithm (see package doc) at path and returns the resulting
	// ChangeSet. self == nil deletes the subtree rooted at path. children ==
	// nil leaves existing children untouched; a non-nil children map is
	// authoritative and any existing child not named in it is deleted.
	Update(account types.AccountID, path types.Path, self *types.Properties, children map[string]types.Properties) (types.ChangeSet, error)

	// MoveFile atomically adopts a downloaded body for resourceID, provided
	// version still matches the resource's current version. On mismatch the
	// caller's temporary file is discarded and MoveFile returns an empty
	// ChangeSet, not an error.
	MoveFile(sourcePath string, version string, resourceID types.ResourceID) (types.ChangeSet, error)

	// Stats reports the total number of resources tracked for account and
	// how many of them are currently flagged dirty. Used by pkg/metrics's
	// Collector; not part of the reconcile or transfer hot path.
	Stats(account types.AccountID) (total int, dirty int, err error)
}
