// Package store is the persistent, transactional representation of every
// configured account and its mirrored resource tree.
//
// BoltStore keeps two bbolt buckets: "accounts" (account id -> JSON Account,
// tagged with an insertion sequence number so Accounts() can report them in
// registration order) and "resources" (a composite key of account id and
// path components, joined by an ASCII unit separator, -> JSON Resource).
// The key encoding is chosen so every descendant of a path shares that
// path's key as a byte prefix: a single bbolt cursor scan answers both
// "what are p's direct children" and "delete p's entire subtree" without
// decoding a single key.
//
// Update applies the following algorithm at a path p, given the new
// properties `self` (nil means delete) and an optional `children` map
// (nil means "children of p are untouched"; non-nil is the authoritative
// full set of p's direct children):
//
//  1. Materialize every strict ancestor of p that does not yet exist, as an
//     empty, dirty collection placeholder. The account root (the empty
//     path) is not materialized; it is stored only when it is itself the
//     target of an Update.
//  2. If self is nil, delete p and its entire subtree, mark every non-root
//     ancestor of p dirty, and stop.
//  3. Otherwise: if a resource already exists at p and its IsCollection
//     flag differs from self's, prune every descendant of p (p itself
//     survives and transitions into its new form below).
//  4. Compute p's new Resource from self. If its Version differs from the
//     resource that existed at p before this call, any cached body is
//     invalidated (scheduled for removal once the transaction commits) and
//     the new resource's FileState resets to absent; otherwise the old
//     FileState carries forward unchanged.
//  5. If children is non-nil, recursively apply this same algorithm once
//     per entry (with that child's own children left nil), then delete any
//     existing child of p not named in the map, subtree and all.
//  6. p's own Dirty flag is false when self is a non-collection, or when
//     self is a collection and children was supplied (both cases leave p's
//     subtree fully known); otherwise it is true.
//  7. Write p only if something about it actually changed, so replaying an
//     identical update produces an empty ChangeSet. A self-only update to a
//     collection (children left nil) marks every already-existing non-root
//     ancestor of p dirty too, since whether p's own subtree is still accurate is
//     now unknown; a leaf write or a full children replacement does not.
//
// Every step above runs inside one bolt.Tx so a concurrent reader never
// observes an intermediate state, and the ChangeSet returned always
// partitions touched resources into disjoint inserted/updated and deleted
// sets keyed by resource identity.
//
// MoveFile is the other mutator: it adopts a downloaded temporary file as a
// resource's cached body, but only if the resource's Version still matches
// what the download was fetched against. A stale match is silently
// discarded rather than treated as an error, since losing a race against a
// newer property update is an expected outcome, not a failure.
package store
