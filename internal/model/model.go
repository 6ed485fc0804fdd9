// Package model aggregates the configuration items of one directory into a
// linked, queryable configuration and applies mutations to it.
//
// A Model is loaded with LoadDirectory, which resets all state, parses every
// .cdm file below the directory and links the element tree. Entities are
// kept in an id-keyed graph.Index; tree links live there too. The model has
// no internal locking and expects a single writer.
package model

import (
	"errors"
	"slices"

	"github.com/agentic-research/cdmctl/internal/cdmfile"
	"github.com/agentic-research/cdmctl/internal/graph"
	"github.com/agentic-research/cdmctl/internal/migrate"
	billy "github.com/go-git/go-billy/v5"
)

var (
	ErrNoCdmFiles         = errors.New("no .cdm files found")
	ErrAmbiguousMappingCI = errors.New("more than one script to activity mapping CI loaded")
	ErrNotInModel         = errors.New("entity does not belong to the loaded model")
)

// DefaultMappingCIName names the mapping CI created when none is loaded.
const DefaultMappingCIName = "mappings"

// Progress receives load progress. SetProgress is called with a fraction in
// (0, 1] after every file; Done is called once when loading ends.
type Progress interface {
	SetProgress(fraction float64)
	Done()
}

type nopProgress struct{}

func (nopProgress) SetProgress(float64) {}
func (nopProgress) Done()               {}

// Mapping is a script or procedure mapping with both ends resolved. Source
// or Activity is nil when its href does not resolve to a loaded entity.
type Mapping struct {
	*cdmfile.Mapping
	Source   *cdmfile.Script
	Activity *cdmfile.Activity
}

// Dangling reports whether either end failed to resolve.
func (m *Mapping) Dangling() bool { return m.Source == nil || m.Activity == nil }

// Model is the loaded configuration of one directory.
type Model struct {
	fs       billy.Filesystem
	migrator *migrate.Engine

	// MappingCIName is the base file name used when a mapping CI has to be
	// created.
	MappingCIName string

	dir        string
	files      []*cdmfile.File
	byPath     map[string]*cdmfile.File
	loadErrors []error

	index       *graph.Index
	elements    []*cdmfile.Element
	roots       []*cdmfile.Element
	activities  []*cdmfile.Activity
	definitions []*cdmfile.Activity
	scripts     []*cdmfile.Script
	mappingCIs  []*cdmfile.File
	mappings    []*Mapping
	duplicates  []string
}

// New returns an empty model reading and writing through fs.
func New(fs billy.Filesystem) *Model {
	return NewWithEngine(fs, migrate.Default())
}

// NewWithEngine is New with a custom migration engine.
func NewWithEngine(fs billy.Filesystem, migrator *migrate.Engine) *Model {
	m := &Model{fs: fs, migrator: migrator, MappingCIName: DefaultMappingCIName}
	m.reset("")
	return m
}

func (m *Model) reset(dir string) {
	m.dir = dir
	m.files = nil
	m.byPath = make(map[string]*cdmfile.File)
	m.loadErrors = nil
	m.clearRegistries()
}

func (m *Model) clearRegistries() {
	if m.index == nil {
		m.index = graph.NewIndex()
	} else {
		m.index.Reset()
	}
	m.elements = nil
	m.roots = nil
	m.activities = nil
	m.definitions = nil
	m.scripts = nil
	m.mappingCIs = nil
	m.mappings = nil
	m.duplicates = nil
}

// Dir is the directory passed to the last LoadDirectory.
func (m *Model) Dir() string { return m.dir }

// Filesystem is the filesystem the model reads and writes.
func (m *Model) Filesystem() billy.Filesystem { return m.fs }

// Files returns the loaded files that are not marked deleted.
func (m *Model) Files() []*cdmfile.File {
	var out []*cdmfile.File
	for _, f := range m.files {
		if !f.Deleted() {
			out = append(out, f)
		}
	}
	return out
}

// File returns the loaded file at p, relative to Dir.
func (m *Model) File(p string) (*cdmfile.File, bool) {
	f, ok := m.byPath[p]
	return f, ok
}

// LoadErrors returns the per-file failures of the last load.
func (m *Model) LoadErrors() []error { return m.loadErrors }

func (m *Model) Elements() []*cdmfile.Element { return m.elements }

// Roots returns the elements no other element contains.
func (m *Model) Roots() []*cdmfile.Element { return m.roots }

// Activities returns every activity that references a definition.
func (m *Model) Activities() []*cdmfile.Activity { return m.activities }

func (m *Model) Definitions() []*cdmfile.Activity { return m.definitions }

// Scripts returns scripts and procedures.
func (m *Model) Scripts() []*cdmfile.Script { return m.scripts }

func (m *Model) MappingCIs() []*cdmfile.File { return m.mappingCIs }

func (m *Model) Mappings() []*Mapping { return m.mappings }

// Element returns the element with the given id.
func (m *Model) Element(id string) (*cdmfile.Element, error) { return lookup[*cdmfile.Element](m, id) }

// Activity returns the activity or definition with the given id.
func (m *Model) Activity(id string) (*cdmfile.Activity, error) { return lookup[*cdmfile.Activity](m, id) }

// Script returns the script or procedure with the given id.
func (m *Model) Script(id string) (*cdmfile.Script, error) { return lookup[*cdmfile.Script](m, id) }

func lookup[T graph.Entity](m *Model, id string) (T, error) {
	var zero T
	e, err := m.index.Get(id)
	if err != nil {
		return zero, err
	}
	t, ok := e.(T)
	if !ok {
		return zero, graph.ErrNotFound
	}
	return t, nil
}

// Versions returns the distinct versions declared by the live files, sorted.
// A file without a version contributes "".
func (m *Model) Versions() []string {
	var out []string
	for _, f := range m.Files() {
		if !slices.Contains(out, f.Version()) {
			out = append(out, f.Version())
		}
	}
	slices.Sort(out)
	return out
}

// fileEntity is an indexed entity read from a configuration file.
type fileEntity interface {
	graph.Entity
	File() *cdmfile.File
	Deleted() bool
}

// indexed returns the instance registered for e. Wrappers are rebuilt by
// element accessors and on every relink, so e matches when its id is
// indexed with the same type and file and neither is deleted.
func indexed[T fileEntity](m *Model, e T) (T, bool) {
	var zero T
	if e.Deleted() || e.File() == nil || e.File().Deleted() {
		return zero, false
	}
	got, err := lookup[T](m, e.ID())
	if err != nil || got.File() != e.File() {
		return zero, false
	}
	return got, true
}
