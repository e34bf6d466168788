package reconcile

import (
	"strings"

	"github.com/jmoiron/questcompanion/internal/catalog"
	"github.com/jmoiron/questcompanion/internal/progress"
)

// Index holds lookup tables over one snapshot's records, each keyed by an
// upper-cased string. The first record wins on a key collision.
type Index struct {
	byID     map[string]*progress.Record
	byName   map[string]*progress.Record
	byFormID map[string]*progress.Record
}

// NewIndex builds the id, name and form id indices for snap. A nil snapshot
// yields an empty index that matches nothing.
func NewIndex(snap *progress.Snapshot) *Index {
	ix := &Index{
		byID:     make(map[string]*progress.Record),
		byName:   make(map[string]*progress.Record),
		byFormID: make(map[string]*progress.Record),
	}
	if snap == nil {
		return ix
	}
	for i := range snap.Quests {
		r := &snap.Quests[i]
		insert(ix.byID, strings.ToUpper(r.ID), r)
		insert(ix.byName, strings.ToUpper(r.Name), r)
		insert(ix.byFormID, progress.NormalizeFormID(r.FormID), r)
	}
	return ix
}

func insert(m map[string]*progress.Record, key string, r *progress.Record) {
	if key == "" {
		return
	}
	if _, ok := m[key]; !ok {
		m[key] = r
	}
}

// Match resolves a catalog quest to its progress record, or nil. The
// quest's id is looked up in the name index first and then in the id index;
// catalogs commonly use the progress source's quest name as their id.
func (ix *Index) Match(q catalog.Quest) *progress.Record {
	key := strings.ToUpper(q.ID)
	if key == "" {
		return nil
	}
	if r, ok := ix.byName[key]; ok {
		return r
	}
	if r, ok := ix.byID[key]; ok {
		return r
	}
	return nil
}

// ByID looks up a record by progress id.
func (ix *Index) ByID(id string) *progress.Record {
	return ix.byID[strings.ToUpper(id)]
}

// ByName looks up a record by progress name.
func (ix *Index) ByName(name string) *progress.Record {
	return ix.byName[strings.ToUpper(name)]
}

// ByFormID looks up a record by form id. Match does not consult this
// index; it is kept for alternate lookup strategies.
func (ix *Index) ByFormID(formID string) *progress.Record {
	if !progress.ValidFormID(formID) {
		return nil
	}
	return ix.byFormID[progress.NormalizeFormID(formID)]
}
