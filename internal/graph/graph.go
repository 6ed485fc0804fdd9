// Package graph is the id-keyed index behind a loaded configuration.
//
// Entities are stored once, keyed by id. Tree structure (parent and
// children) is kept as id lookups rather than pointers, and every entity is
// tagged with the file it came from so a file's entities can be listed
// without scanning the index.
package graph

import (
	"errors"

	"github.com/RoaringBitmap/roaring"
)

var ErrNotFound = errors.New("entity not found")

// Entity is anything addressable by a unique id.
type Entity interface {
	ID() string
}

// Index maps ids to entities and records tree links between them.
// It is not safe for concurrent mutation.
type Index struct {
	entities map[string]Entity

	parent   map[string]string   // child id -> winning parent id
	children map[string][]string // parent id -> child ids in link order
	claims   map[string][]string // child id -> every parent that listed it

	// file path -> bitmap of internal entity ids
	fileToEntities map[string]*roaring.Bitmap
	intID          map[string]uint32
	intToID        []string
}

func NewIndex() *Index {
	x := &Index{}
	x.Reset()
	return x
}

// Reset drops every entity and link.
func (x *Index) Reset() {
	x.entities = make(map[string]Entity)
	x.parent = make(map[string]string)
	x.children = make(map[string][]string)
	x.claims = make(map[string][]string)
	x.fileToEntities = make(map[string]*roaring.Bitmap)
	x.intID = make(map[string]uint32)
	x.intToID = nil
}

// Add registers e as originating from file. It reports false and leaves the
// index untouched when the id is already taken.
func (x *Index) Add(file string, e Entity) bool {
	id := e.ID()
	if _, dup := x.entities[id]; dup {
		return false
	}
	x.entities[id] = e

	n := uint32(len(x.intToID))
	x.intID[id] = n
	x.intToID = append(x.intToID, id)

	bm, ok := x.fileToEntities[file]
	if !ok {
		bm = roaring.New()
		x.fileToEntities[file] = bm
	}
	bm.Add(n)
	return true
}

// Get returns the entity with the given id.
func (x *Index) Get(id string) (Entity, error) {
	e, ok := x.entities[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// FileOf returns the file an entity was added from.
func (x *Index) FileOf(id string) (string, bool) {
	n, ok := x.intID[id]
	if !ok {
		return "", false
	}
	for file, bm := range x.fileToEntities {
		if bm.Contains(n) {
			return file, true
		}
	}
	return "", false
}

// InFile returns the ids of the entities added from file, in insertion order.
func (x *Index) InFile(file string) []string {
	bm, ok := x.fileToEntities[file]
	if !ok {
		return nil
	}
	out := make([]string, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, x.intToID[it.Next()])
	}
	return out
}

// Link records parent as the container of child. A later Link for the same
// child replaces the parent; the earlier parent keeps the child in its list,
// matching how the configuration files are read. Every claim is remembered
// so callers can report children listed by more than one parent.
func (x *Index) Link(parent, child string) {
	x.parent[child] = parent
	x.children[parent] = append(x.children[parent], child)
	x.claims[child] = append(x.claims[child], parent)
}

// Parent returns the id of child's container.
func (x *Index) Parent(child string) (string, bool) {
	p, ok := x.parent[child]
	return p, ok
}

// Children returns the ids linked under parent.
func (x *Index) Children(parent string) []string {
	return x.children[parent]
}

// Claims returns every parent that listed child, in link order.
func (x *Index) Claims(child string) []string {
	return x.claims[child]
}
