package types

import "time"

// AccountID uniquely identifies a configured remote account. It is opaque and
// must never contain the "::" separator used to encode transfer session
// identifiers.
type AccountID string

// Account is a configured remote endpoint: a base URL and a username, plus a
// stable identifier assigned at registration time.
type Account struct {
	ID        AccountID
	BaseURL   string
	Username  string
	Label     string
	CreatedAt time.Time
}

// Path is an ordered sequence of non-empty path components. The empty Path
// denotes an account's root collection.
type Path []string

// Clone returns an independent copy of the path.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// Parent returns the path's parent and true, or nil and false at the root.
func (p Path) Parent() (Path, bool) {
	if len(p) == 0 {
		return nil, false
	}
	return p[:len(p)-1], true
}

// Name returns the last path component, or "" at the root.
func (p Path) Name() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Child returns a new path with name appended.
func (p Path) Child(name string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, name)
}

// Equal reports whether two paths have the same components in the same order.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is an ancestor path of (or equal to) p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// ResourceID is the Store's primary key and the Transfer Layer's dispatch
// key: the pair of an account identifier and a path within that account.
type ResourceID struct {
	Account AccountID
	Path    Path
}

// FileStateKind enumerates the lifecycle of a resource's locally cached body.
type FileStateKind int

const (
	// FileAbsent means no local body is cached for this resource.
	FileAbsent FileStateKind = iota
	// FileDownloading means a transfer for this resource's body is in flight.
	FileDownloading
	// FilePresent means a body is cached locally and matches StoredVersion.
	FilePresent
)

func (k FileStateKind) String() string {
	switch k {
	case FileAbsent:
		return "absent"
	case FileDownloading:
		return "downloading"
	case FilePresent:
		return "present"
	default:
		return "unknown"
	}
}

// FileState describes the local caching state of a non-collection resource's
// body. LocalPath and StoredVersion are only meaningful when Kind is
// FilePresent.
type FileState struct {
	Kind          FileStateKind
	LocalPath     string
	StoredVersion string
}

// Properties is the set of remote-observable attributes the store writes for
// a resource. A nil *Properties passed to Store.Update means "delete".
type Properties struct {
	IsCollection  bool
	Version       string
	ContentType   *string
	ContentLength *int64
	Modified      *time.Time
}

// Equal reports whether two property sets describe the same observable
// state. Used to detect idempotent writes (spec invariant: writing identical
// properties twice is a no-op).
func (p *Properties) Equal(other *Properties) bool {
	if p == nil || other == nil {
		return p == other
	}
	if p.IsCollection != other.IsCollection || p.Version != other.Version {
		return false
	}
	if !stringPtrEqual(p.ContentType, other.ContentType) {
		return false
	}
	if !int64PtrEqual(p.ContentLength, other.ContentLength) {
		return false
	}
	if !timePtrEqual(p.Modified, other.Modified) {
		return false
	}
	return true
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// Resource is one node in an account's mirror tree.
type Resource struct {
	Account AccountID
	Path    Path

	IsCollection bool
	Version      string
	Dirty        bool
	Updated      time.Time

	ContentType   *string
	ContentLength *int64
	Modified      *time.Time

	FileState FileState
}

// ID returns the ResourceID identifying this resource.
func (r Resource) ID() ResourceID {
	return ResourceID{Account: r.Account, Path: r.Path}
}

// Properties extracts the resource's remote-observable attributes.
func (r Resource) Properties() Properties {
	return Properties{
		IsCollection:  r.IsCollection,
		Version:       r.Version,
		ContentType:   r.ContentType,
		ContentLength: r.ContentLength,
		Modified:      r.Modified,
	}
}

// ChangeSet is the result of any property-tree mutation: two disjoint sets of
// resources, one for everything inserted or updated and one for everything
// deleted. Every path mentioned appears in at most one of the two sets.
type ChangeSet struct {
	InsertedOrUpdated []Resource
	Deleted           []Resource
}

// Empty reports whether the change set carries no observable change.
func (c ChangeSet) Empty() bool {
	return len(c.InsertedOrUpdated) == 0 && len(c.Deleted) == 0
}

// Merge appends another change set's entries onto this one. Callers that
// build up a change set across several store operations (e.g. per-child
// updates) use Merge to fold the results together before returning.
func (c *ChangeSet) Merge(other ChangeSet) {
	c.InsertedOrUpdated = append(c.InsertedOrUpdated, other.InsertedOrUpdated...)
	c.Deleted = append(c.Deleted, other.Deleted...)
}

// Progress is an immutable snapshot of an in-flight transfer's byte counters.
type Progress struct {
	Total     int64
	Completed int64
}

// Fraction returns Completed/Total in [0,1], or 0 when Total is unknown.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	f := float64(p.Completed) / float64(p.Total)
	if f > 1 {
		return 1
	}
	return f
}

// PendingDownload is the in-memory record of one in-flight body transfer. It
// is never persisted. pkg/transfer keeps its own unexported per-download
// record and does not construct this type.
type PendingDownload struct {
	Resource ResourceID
	Progress Progress
	StartedAt time.Time
	Cancel    func()
}
