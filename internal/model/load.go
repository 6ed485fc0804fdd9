package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/agentic-research/cdmctl/internal/cdmfile"
	"github.com/agentic-research/cdmctl/internal/ctxlog"
	"github.com/agentic-research/cdmctl/internal/graph"
	"github.com/agentic-research/cdmctl/internal/uuidcodec"
	"github.com/go-git/go-billy/v5/util"
)

// LoadDirectory replaces the model's content with the configuration items
// found below dir. A file that cannot be read or parsed is logged, recorded
// in LoadErrors and left out; the load fails only when no file was found or
// none could be parsed. progress may be nil.
func (m *Model) LoadDirectory(ctx context.Context, dir string, progress Progress) error {
	log := ctxlog.FromContext(ctx)
	if progress == nil {
		progress = nopProgress{}
	}
	defer progress.Done()

	m.reset(dir)
	paths, err := m.findCdmFiles(dir)
	if err != nil {
		return fmt.Errorf("load %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("load %s: %w", dir, ErrNoCdmFiles)
	}

	for i, rel := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := m.readFile(rel)
		if err != nil {
			log.Warn("excluding file", "file", rel, "err", err)
			m.loadErrors = append(m.loadErrors, err)
		} else {
			m.addFile(f)
		}
		progress.SetProgress(float64(i+1) / float64(len(paths)))
	}

	if len(m.files) == 0 {
		return fmt.Errorf("load %s: %w: none of %d files parsed: %w",
			dir, ErrNoCdmFiles, len(paths), errors.Join(m.loadErrors...))
	}
	m.link(ctx)
	log.Info("loaded directory", "dir", dir, "files", len(m.files), "excluded", len(m.loadErrors),
		"elements", len(m.elements), "roots", len(m.roots))
	return nil
}

// findCdmFiles lists .cdm files below dir as sorted slash paths relative to dir.
func (m *Model) findCdmFiles(dir string) ([]string, error) {
	var out []string
	err := util.Walk(m.fs, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.EqualFold(filepath.Ext(p), cdmfile.Extension) {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	slices.Sort(out)
	return out, err
}

func (m *Model) fullPath(rel string) string {
	return path.Join(filepath.ToSlash(m.dir), rel)
}

func (m *Model) readFile(rel string) (*cdmfile.File, error) {
	data, err := util.ReadFile(m.fs, m.fullPath(rel))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return cdmfile.Parse(rel, data)
}

func (m *Model) addFile(f *cdmfile.File) {
	m.files = append(m.files, f)
	m.byPath[f.Path] = f
}

// link rebuilds every registry and the index from the live files.
//
// Pass one indexes all entities. Pass two resolves declared sub-element ids
// to elements; when two elements list the same child the one processed last
// becomes its parent. Pass three collects the elements left without a
// parent as roots. Mappings are resolved last.
func (m *Model) link(ctx context.Context) {
	log := ctxlog.FromContext(ctx)
	m.clearRegistries()

	var rawMappings []*cdmfile.Mapping
	for _, f := range m.Files() {
		switch f.Kind() {
		case cdmfile.KindMcm:
			for _, e := range cdmfile.Elements(ctx, f) {
				e.Attach(m.index)
				if !m.register(ctx, f, e) {
					continue
				}
				m.elements = append(m.elements, e)
				for _, d := range e.Definitions() {
					if m.register(ctx, f, d) {
						m.definitions = append(m.definitions, d)
					}
				}
				for _, a := range e.Activities() {
					if m.register(ctx, f, a) {
						m.activities = append(m.activities, a)
					}
				}
			}
		case cdmfile.KindScript:
			for _, s := range cdmfile.Scripts(ctx, f) {
				if m.register(ctx, f, s) {
					m.scripts = append(m.scripts, s)
				}
			}
		case cdmfile.KindScriptMapper:
			m.mappingCIs = append(m.mappingCIs, f)
			rawMappings = append(rawMappings, cdmfile.Mappings(ctx, f)...)
		}
	}

	for _, e := range m.elements {
		for _, id := range e.SubElementIDs() {
			ent, err := m.index.Get(id)
			if err != nil {
				log.Debug("unresolved sub-element", "element", e.ID(), "sub", id)
				continue
			}
			if _, ok := ent.(*cdmfile.Element); !ok {
				log.Debug("sub-element is not an element", "element", e.ID(), "sub", id)
				continue
			}
			m.index.Link(e.ID(), id)
		}
	}

	for _, e := range m.elements {
		if e.IsRoot() {
			m.roots = append(m.roots, e)
		}
	}

	for _, raw := range rawMappings {
		mp := m.resolveMapping(raw)
		if !m.register(ctx, raw.File(), mp) {
			continue
		}
		if mp.Dangling() {
			log.Warn("dangling mapping", "file", raw.File().Path, "mapping", raw.ID(),
				"source", raw.SourceHref(), "activity", raw.ActivityHref())
		}
		m.mappings = append(m.mappings, mp)
	}
}

// register indexes e and reports false for a duplicate id.
func (m *Model) register(ctx context.Context, f *cdmfile.File, e graph.Entity) bool {
	if m.index.Add(f.Path, e) {
		return true
	}
	other, _ := m.index.FileOf(e.ID())
	ctxlog.FromContext(ctx).Warn("duplicate id", "id", e.ID(), "file", f.Path, "first", other)
	m.duplicates = append(m.duplicates, fmt.Sprintf("%s: id %s already defined in %s", f.Path, e.ID(), other))
	return false
}

func (m *Model) resolveMapping(raw *cdmfile.Mapping) *Mapping {
	mp := &Mapping{Mapping: raw}
	if e, ok := m.resolveHref(raw.File(), raw.SourceHref()); ok {
		mp.Source, _ = e.(*cdmfile.Script)
	}
	if e, ok := m.resolveHref(raw.File(), raw.ActivityHref()); ok {
		mp.Activity, _ = e.(*cdmfile.Activity)
	}
	return mp
}

// resolveHref follows path#id in two hops: the path names a loaded file and
// the id must be defined in that file.
func (m *Model) resolveHref(from *cdmfile.File, href string) (any, bool) {
	target, ok := m.byPath[from.Resolve(href)]
	if !ok || target.Deleted() {
		return nil, false
	}
	id := uuidcodec.IDFromLink(href)
	if p, ok := m.index.FileOf(id); !ok || p != target.Path {
		return nil, false
	}
	e, err := m.index.Get(id)
	if err != nil {
		return nil, false
	}
	return e, true
}
