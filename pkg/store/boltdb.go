package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/meridianlabs/davsync/pkg/types"
)

var (
	bucketAccounts  = []byte("accounts")
	bucketResources = []byte("resources")
)

const pathSep = byte(0x1f) // ASCII unit separator; never a legal path component byte

// BoltStore is the bbolt-backed Store implementation. A single database file
// holds every account and resource; downloaded bodies live as plain files
// under dataDir, addressed by the sha256 of their resource key.
type BoltStore struct {
	db      *bolt.DB
	dataDir string
	dbPath  string
}

// accountRecord is the on-disk form of an Account: the JSON value plus a
// monotonic sequence number, since bbolt buckets iterate in key (byte) order
// and AccountID carries no ordering of its own.
type accountRecord struct {
	types.Account
	Seq uint64
}

// NewBoltStore creates a BoltStore rooted at dataDir. The database and body
// cache are not opened until Open is called.
func NewBoltStore(dataDir string) *BoltStore {
	return &BoltStore{
		dataDir: dataDir,
		dbPath:  filepath.Join(dataDir, "davsync.db"),
	}
}

// Open creates dataDir if needed, opens the database file, and ensures both
// top-level buckets exist.
func (s *BoltStore) Open() error {
	if err := os.MkdirAll(s.dataDir, 0o700); err != nil {
		return types.NewError(types.KindStorage, "create data directory", err)
	}

	db, err := bolt.Open(s.dbPath, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return types.NewError(types.KindStorage, "open database", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketAccounts); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketResources); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return types.NewError(types.KindStorage, "initialize buckets", err)
	}

	s.db = db
	return nil
}

// Close releases the database handle.
func (s *BoltStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- account CRUD ----------------------------------------------------

func (s *BoltStore) AddAccount(baseURL, username, label string) (types.Account, error) {
	var account types.Account
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccounts)

		var conflict bool
		_ = b.ForEach(func(_, v []byte) error {
			var rec accountRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.BaseURL == baseURL && rec.Username == username {
				conflict = true
			}
			return nil
		})
		if conflict {
			return types.NewError(types.KindInvalidArgument, "account already registered", nil)
		}

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		account = types.Account{
			ID:        types.AccountID(uuid.NewString()),
			BaseURL:   baseURL,
			Username:  username,
			Label:     label,
			CreatedAt: time.Now().UTC(),
		}
		rec := accountRecord{Account: account, Seq: seq}

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(account.ID), data)
	})
	if err != nil {
		return types.Account{}, wrapStorageErr(err)
	}
	return account, nil
}

func (s *BoltStore) UpdateAccount(id types.AccountID, label string) (types.Account, error) {
	var account types.Account
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		data := b.Get([]byte(id))
		if data == nil {
			return types.NewError(types.KindInvalidArgument, "unknown account", nil)
		}
		var rec accountRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		rec.Label = label
		account = rec.Account

		out, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), out)
	})
	if err != nil {
		return types.Account{}, wrapStorageErr(err)
	}
	return account, nil
}

func (s *BoltStore) RemoveAccount(id types.AccountID) error {
	var filesToRemove []string
	err := s.db.Update(func(tx *bolt.Tx) error {
		accounts := tx.Bucket(bucketAccounts)
		if accounts.Get([]byte(id)) == nil {
			return types.NewError(types.KindInvalidArgument, "unknown account", nil)
		}
		if err := accounts.Delete([]byte(id)); err != nil {
			return err
		}

		prefix := accountResourcePrefix(id)
		c := tx.Bucket(bucketResources).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var r types.Resource
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if r.FileState.Kind == types.FilePresent && r.FileState.LocalPath != "" {
				filesToRemove = append(filesToRemove, r.FileState.LocalPath)
			}
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapStorageErr(err)
	}

	for _, f := range filesToRemove {
		_ = os.Remove(f)
	}
	_ = os.RemoveAll(filepath.Join(s.dataDir, string(id)))
	return nil
}

func (s *BoltStore) Accounts() ([]types.Account, error) {
	var recs []accountRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccounts).ForEach(func(_, v []byte) error {
			var rec accountRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	for i := 1; i < len(recs); i++ {
		for j := i; j > 0 && recs[j-1].Seq > recs[j].Seq; j-- {
			recs[j-1], recs[j] = recs[j], recs[j-1]
		}
	}
	out := make([]types.Account, len(recs))
	for i, r := range recs {
		out[i] = r.Account
	}
	return out, nil
}

func (s *BoltStore) Account(id types.AccountID) (*types.Account, error) {
	var rec *accountRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketAccounts).Get([]byte(id))
		if data == nil {
			return nil
		}
		var r accountRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		rec = &r
		return nil
	})
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	if rec == nil {
		return nil, nil
	}
	a := rec.Account
	return &a, nil
}

// ---- resource reads ----------------------------------------------------

func (s *BoltStore) Resource(account types.AccountID, path types.Path) (*types.Resource, error) {
	var r *types.Resource
	err := s.db.View(func(tx *bolt.Tx) error {
		res, found, err := getResourceTx(tx, account, path)
		if err != nil {
			return err
		}
		if found {
			r = &res
		}
		return nil
	})
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	return r, nil
}

func (s *BoltStore) Contents(account types.AccountID, path types.Path) ([]types.Resource, error) {
	var out []types.Resource
	err := s.db.View(func(tx *bolt.Tx) error {
		children, err := directChildrenTx(tx, account, path)
		if err != nil {
			return err
		}
		out = children
		return nil
	})
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	return out, nil
}

// ---- mutation ----------------------------------------------------

// Update implements the property-tree update algorithm described in the
// package doc. It runs inside a single bbolt write transaction so a reader
// never observes a partially applied step; any locally cached body files
// orphaned by the update are unlinked only after the transaction commits.
func (s *BoltStore) Update(account types.AccountID, path types.Path, self *types.Properties, children map[string]types.Properties) (types.ChangeSet, error) {
	if err := validatePath(path); err != nil {
		return types.ChangeSet{}, err
	}

	cs := newChangeSetBuilder()
	var filesToRemove []string

	err := s.db.Update(func(tx *bolt.Tx) error {
		if self == nil {
			return s.applyDelete(tx, account, path, cs, &filesToRemove)
		}
		return s.applyNodeUpdate(tx, account, path, self, children, cs, &filesToRemove)
	})
	if err != nil {
		return types.ChangeSet{}, wrapStorageErr(err)
	}

	for _, f := range filesToRemove {
		_ = os.Remove(f)
	}
	return cs.build(), nil
}

// applyDelete removes path's entire subtree (path included) and marks every
// non-root ancestor of path dirty, materializing those that do not yet exist.
func (s *BoltStore) applyDelete(tx *bolt.Tx, account types.AccountID, path types.Path, cs *changeSetBuilder, filesToRemove *[]string) error {
	if len(path) == 0 {
		return types.NewError(types.KindInvalidArgument, "cannot delete the account root", nil)
	}

	s.materializeAncestors(tx, account, path, cs)

	deleted, removed, err := deleteSubtreeInclusiveTx(tx, account, path)
	if err != nil {
		return err
	}
	*filesToRemove = append(*filesToRemove, removed...)
	cs.addDeleted(deleted...)

	return s.markAncestorsDirty(tx, account, path, cs)
}

// applyNodeUpdate writes self (and, recursively, any supplied children) at
// path. It is called once per Update invocation for the top-level path, and
// once more per entry of the top-level children map (with that child's own
// children left nil, since Update only ever describes one level at a time).
func (s *BoltStore) applyNodeUpdate(tx *bolt.Tx, account types.AccountID, path types.Path, self *types.Properties, children map[string]types.Properties, cs *changeSetBuilder, filesToRemove *[]string) error {
	s.materializeAncestors(tx, account, path, cs)

	existing, found, err := getResourceTx(tx, account, path)
	if err != nil {
		return err
	}

	// type change: a collection/non-collection flip prunes every descendant,
	// but leaves the node itself to transition into its new form below.
	if found && existing.IsCollection != self.IsCollection {
		removed, err := deleteDescendantsTx(tx, account, path)
		if err != nil {
			return err
		}
		*filesToRemove = append(*filesToRemove, removed.files...)
		cs.addDeleted(removed.resources...)
		found = false
	}

	newRes := types.Resource{
		Account:       account,
		Path:          path.Clone(),
		IsCollection:  self.IsCollection,
		Version:       self.Version,
		ContentType:   self.ContentType,
		ContentLength: self.ContentLength,
		Modified:      self.Modified,
		Updated:       time.Now().UTC(),
		FileState:     types.FileState{Kind: types.FileAbsent},
	}

	if found {
		if existing.Version != self.Version {
			if existing.FileState.Kind == types.FilePresent && existing.FileState.LocalPath != "" {
				*filesToRemove = append(*filesToRemove, existing.FileState.LocalPath)
			}
		} else {
			newRes.FileState = existing.FileState
		}
	}

	childrenSupplied := children != nil
	if childrenSupplied {
		if err := s.applyChildren(tx, account, path, children, cs, filesToRemove); err != nil {
			return err
		}
		// a child collection's own update flags its ancestors dirty, path
		// included; compare against path as it is stored now.
		if found {
			if existing, found, err = getResourceTx(tx, account, path); err != nil {
				return err
			}
		}
	}

	newRes.Dirty = self.IsCollection && !childrenSupplied

	if found && resourcesObservablyEqual(existing, newRes) {
		return nil
	}

	if err := putResourceTx(tx, newRes); err != nil {
		return err
	}
	cs.addInsertedOrUpdated(newRes)

	// a self-only update to a collection (children left untouched) leaves
	// this subtree's consistency unknown from here up; a leaf, or a
	// collection whose full child set was just supplied, is self-consistent
	// and requires no further propagation.
	if self.IsCollection && !childrenSupplied {
		return s.markAncestorsDirty(tx, account, path, cs)
	}
	return nil
}

func (s *BoltStore) applyChildren(tx *bolt.Tx, account types.AccountID, path types.Path, children map[string]types.Properties, cs *changeSetBuilder, filesToRemove *[]string) error {
	existingChildren, err := directChildrenTx(tx, account, path)
	if err != nil {
		return err
	}

	for name, props := range children {
		p := props
		if err := s.applyNodeUpdate(tx, account, path.Child(name), &p, nil, cs, filesToRemove); err != nil {
			return err
		}
	}

	seen := make(map[string]bool, len(children))
	for name := range children {
		seen[name] = true
	}
	for _, ec := range existingChildren {
		if seen[ec.Path.Name()] {
			continue
		}
		deleted, removed, err := deleteSubtreeInclusiveTx(tx, account, ec.Path)
		if err != nil {
			return err
		}
		*filesToRemove = append(*filesToRemove, removed...)
		cs.addDeleted(deleted...)
	}
	return nil
}

// materializeAncestors creates a placeholder collection resource for every
// strict ancestor of path other than the account root that does not already
// exist, marking each as
// dirty so a reconciler knows to fetch its real properties.
func (s *BoltStore) materializeAncestors(tx *bolt.Tx, account types.AccountID, path types.Path, cs *changeSetBuilder) {
	for i := 1; i < len(path); i++ {
		ancestor := path[:i]
		_, found, err := getResourceTx(tx, account, ancestor)
		if err != nil || found {
			continue
		}
		r := types.Resource{
			Account:      account,
			Path:         ancestor.Clone(),
			IsCollection: true,
			Version:      "",
			Dirty:        true,
			Updated:      time.Now().UTC(),
			FileState:    types.FileState{Kind: types.FileAbsent},
		}
		if err := putResourceTx(tx, r); err == nil {
			cs.addInsertedOrUpdated(r)
		}
	}
}

// markAncestorsDirty flags every already-existing strict ancestor of path
// other than the account root as dirty=true, skipping ancestors that are already dirty (so it stays a
// no-op once a subtree has already been flagged for reconciliation).
func (s *BoltStore) markAncestorsDirty(tx *bolt.Tx, account types.AccountID, path types.Path, cs *changeSetBuilder) error {
	for i := 1; i < len(path); i++ {
		ancestor := path[:i]
		r, found, err := getResourceTx(tx, account, ancestor)
		if err != nil {
			return err
		}
		if !found || r.Dirty {
			continue
		}
		r.Dirty = true
		r.Updated = time.Now().UTC()
		if err := putResourceTx(tx, r); err != nil {
			return err
		}
		cs.addInsertedOrUpdated(r)
	}
	return nil
}

// ---- body adoption ----------------------------------------------------

func (s *BoltStore) MoveFile(sourcePath string, version string, resourceID types.ResourceID) (types.ChangeSet, error) {
	var discard bool
	cs := newChangeSetBuilder()

	err := s.db.Update(func(tx *bolt.Tx) error {
		existing, found, err := getResourceTx(tx, resourceID.Account, resourceID.Path)
		if err != nil {
			return err
		}
		if !found || existing.IsCollection {
			return types.NewError(types.KindInvalidArgument, "moveFile target is not a cached non-collection resource", nil)
		}
		if existing.Version != version {
			discard = true
			return nil
		}

		localPath := s.bodyPath(resourceID)
		if err := os.MkdirAll(filepath.Dir(localPath), 0o700); err != nil {
			return types.NewError(types.KindStorage, "create body cache directory", err)
		}
		if err := os.Rename(sourcePath, localPath); err != nil {
			return types.NewError(types.KindStorage, "adopt downloaded body", err)
		}

		existing.FileState = types.FileState{Kind: types.FilePresent, LocalPath: localPath, StoredVersion: version}
		existing.Updated = time.Now().UTC()
		if err := putResourceTx(tx, existing); err != nil {
			return err
		}
		cs.addInsertedOrUpdated(existing)
		return nil
	})
	if err != nil {
		return types.ChangeSet{}, wrapStorageErr(err)
	}
	if discard {
		_ = os.Remove(sourcePath)
		return types.ChangeSet{}, nil
	}
	return cs.build(), nil
}

// Stats counts account's tracked resources and how many are dirty with a
// single forward cursor scan over its key prefix.
func (s *BoltStore) Stats(account types.AccountID) (int, int, error) {
	var total, dirty int
	err := s.db.View(func(tx *bolt.Tx) error {
		prefix := accountResourcePrefix(account)
		c := tx.Bucket(bucketResources).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var r types.Resource
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			total++
			if r.Dirty {
				dirty++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, wrapStorageErr(err)
	}
	return total, dirty, nil
}

// bodyPath returns the content-addressed local path for a resource's cached
// body: dataDir/<accountID>/bodies/<sha256 of the resource's key>.
func (s *BoltStore) bodyPath(id types.ResourceID) string {
	sum := sha256.Sum256(resourceKey(id.Account, id.Path))
	return filepath.Join(s.dataDir, string(id.Account), "bodies", hex.EncodeToString(sum[:]))
}

// ---- key encoding and low-level bucket access ----------------------------------------------------

func accountResourcePrefix(account types.AccountID) []byte {
	b := make([]byte, 0, len(account)+1)
	b = append(b, []byte(account)...)
	b = append(b, pathSep)
	return b
}

// resourceKey encodes account+path as account\x1fc1\x1fc2\x1f...\x1f. Every
// descendant of path shares this exact byte sequence as a prefix, which lets
// subtree deletes and child enumeration both work off a single bbolt cursor
// scan without decoding the key.
func resourceKey(account types.AccountID, path types.Path) []byte {
	b := accountResourcePrefix(account)
	for _, c := range path {
		b = append(b, []byte(c)...)
		b = append(b, pathSep)
	}
	return b
}

func getResourceTx(tx *bolt.Tx, account types.AccountID, path types.Path) (types.Resource, bool, error) {
	data := tx.Bucket(bucketResources).Get(resourceKey(account, path))
	if data == nil {
		return types.Resource{}, false, nil
	}
	var r types.Resource
	if err := json.Unmarshal(data, &r); err != nil {
		return types.Resource{}, false, err
	}
	return r, true, nil
}

func putResourceTx(tx *bolt.Tx, r types.Resource) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketResources).Put(resourceKey(r.Account, r.Path), data)
}

// directChildrenTx returns path's immediate children by scanning every key
// under path's prefix and keeping only resources whose decoded Path is
// exactly one component longer than path.
func directChildrenTx(tx *bolt.Tx, account types.AccountID, path types.Path) ([]types.Resource, error) {
	prefix := resourceKey(account, path)
	var out []types.Resource
	c := tx.Bucket(bucketResources).Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var r types.Resource
		if err := json.Unmarshal(v, &r); err != nil {
			return nil, err
		}
		if len(r.Path) == len(path)+1 {
			out = append(out, r)
		}
	}
	return out, nil
}

type removedSubtree struct {
	resources []types.Resource
	files     []string
}

// deleteSubtreeInclusiveTx deletes path and every descendant of path.
func deleteSubtreeInclusiveTx(tx *bolt.Tx, account types.AccountID, path types.Path) ([]types.Resource, []string, error) {
	r, err := deleteByPrefix(tx, resourceKey(account, path))
	if err != nil {
		return nil, nil, err
	}
	return r.resources, r.files, nil
}

// deleteDescendantsTx deletes every descendant of path but leaves path
// itself untouched.
func deleteDescendantsTx(tx *bolt.Tx, account types.AccountID, path types.Path) (removedSubtree, error) {
	prefix := resourceKey(account, path)
	c := tx.Bucket(bucketResources).Cursor()
	var out removedSubtree
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if bytes.Equal(k, prefix) {
			continue
		}
		var r types.Resource
		if err := json.Unmarshal(v, &r); err != nil {
			return removedSubtree{}, err
		}
		if r.FileState.Kind == types.FilePresent && r.FileState.LocalPath != "" {
			out.files = append(out.files, r.FileState.LocalPath)
		}
		out.resources = append(out.resources, r)
		if err := c.Delete(); err != nil {
			return removedSubtree{}, err
		}
	}
	return out, nil
}

func deleteByPrefix(tx *bolt.Tx, prefix []byte) (removedSubtree, error) {
	c := tx.Bucket(bucketResources).Cursor()
	var out removedSubtree
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var r types.Resource
		if err := json.Unmarshal(v, &r); err != nil {
			return removedSubtree{}, err
		}
		if r.FileState.Kind == types.FilePresent && r.FileState.LocalPath != "" {
			out.files = append(out.files, r.FileState.LocalPath)
		}
		out.resources = append(out.resources, r)
		if err := c.Delete(); err != nil {
			return removedSubtree{}, err
		}
	}
	return out, nil
}

func resourcesObservablyEqual(a, b types.Resource) bool {
	ap, bp := a.Properties(), b.Properties()
	if !ap.Equal(&bp) {
		return false
	}
	if a.Dirty != b.Dirty {
		return false
	}
	return a.FileState == b.FileState
}

func validatePath(path types.Path) error {
	for _, c := range path {
		if c == "" {
			return types.NewError(types.KindInvalidArgument, "path component must not be empty", nil)
		}
		for i := 0; i < len(c); i++ {
			if c[i] == pathSep {
				return types.NewError(types.KindInvalidArgument, "path component contains a reserved byte", nil)
			}
		}
	}
	return nil
}

func wrapStorageErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*types.Error); ok {
		return err
	}
	return types.NewError(types.KindStorage, "store operation failed", err)
}
