package store

import (
	"github.com/meridianlabs/davsync/pkg/types"
)

// changeSetBuilder accumulates a ChangeSet across the recursive steps of a
// single Update call, keeping the insertedOrUpdated and deleted sets
// disjoint: the last write for a given path wins and evicts any prior entry
// for that path from the other set.
type changeSetBuilder struct {
	inserted map[string]types.Resource
	deleted  map[string]types.Resource
	order    []string // insertion order, for deterministic test output
}

func newChangeSetBuilder() *changeSetBuilder {
	return &changeSetBuilder{
		inserted: make(map[string]types.Resource),
		deleted:  make(map[string]types.Resource),
	}
}

func (b *changeSetBuilder) key(r types.Resource) string {
	return string(resourceKey(r.Account, r.Path))
}

func (b *changeSetBuilder) addInsertedOrUpdated(r types.Resource) {
	k := b.key(r)
	if _, ok := b.inserted[k]; !ok {
		b.order = append(b.order, "+"+k)
	}
	delete(b.deleted, k)
	b.inserted[k] = r
}

func (b *changeSetBuilder) addDeleted(rs ...types.Resource) {
	for _, r := range rs {
		k := b.key(r)
		if _, ok := b.deleted[k]; !ok {
			b.order = append(b.order, "-"+k)
		}
		delete(b.inserted, k)
		b.deleted[k] = r
	}
}

func (b *changeSetBuilder) build() types.ChangeSet {
	var cs types.ChangeSet
	for _, tag := range b.order {
		k := tag[1:]
		switch tag[0] {
		case '+':
			if r, ok := b.inserted[k]; ok {
				cs.InsertedOrUpdated = append(cs.InsertedOrUpdated, r)
			}
		case '-':
			if r, ok := b.deleted[k]; ok {
				cs.Deleted = append(cs.Deleted, r)
			}
		}
	}
	return cs
}
