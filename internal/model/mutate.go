package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentic-research/cdmctl/internal/cdmfile"
	"github.com/agentic-research/cdmctl/internal/ctxlog"
	"github.com/agentic-research/cdmctl/internal/migrate"
)

// AddActivity adds an activity named name to el. The activity references
// the definition of the same name on el, which is created first when el
// has none.
func (m *Model) AddActivity(ctx context.Context, name, alias string, el *cdmfile.Element) (*cdmfile.Activity, error) {
	if name == "" {
		return nil, errors.New("add activity: empty name")
	}
	if el == nil {
		return nil, fmt.Errorf("add activity %s: element: %w", name, ErrNotInModel)
	}
	el, ok := indexed(m, el)
	if !ok {
		return nil, fmt.Errorf("add activity %s: element: %w", name, ErrNotInModel)
	}
	f := el.File()

	var def *cdmfile.Activity
	for _, d := range el.Definitions() {
		if d.Name() == name {
			def, _ = m.Activity(d.ID())
			break
		}
	}
	if def == nil {
		def = el.CreateActivity(name, "", "")
		if !m.register(ctx, f, def) {
			return nil, fmt.Errorf("add activity %s: id collision on %s", name, def.ID())
		}
		m.definitions = append(m.definitions, def)
	}

	a := el.CreateActivity(name, alias, def.ID())
	if !m.register(ctx, f, a) {
		return nil, fmt.Errorf("add activity %s: id collision on %s", name, a.ID())
	}
	m.activities = append(m.activities, a)
	ctxlog.FromContext(ctx).Info("added activity", "element", el.Path(), "name", name, "id", a.ID())
	return a, nil
}

// AddScriptToActivityMapping maps a script onto an activity in the single
// mapping CI of the model, creating that CI when there is none.
func (m *Model) AddScriptToActivityMapping(ctx context.Context, script *cdmfile.Script, activity *cdmfile.Activity) (*Mapping, error) {
	if script != nil && script.Procedure {
		return nil, fmt.Errorf("add script mapping: %s is a procedure", script.Name())
	}
	return m.addMapping(ctx, script, activity)
}

// AddProcedureToActivityMapping is AddScriptToActivityMapping for procedures.
func (m *Model) AddProcedureToActivityMapping(ctx context.Context, proc *cdmfile.Script, activity *cdmfile.Activity) (*Mapping, error) {
	if proc != nil && !proc.Procedure {
		return nil, fmt.Errorf("add procedure mapping: %s is a script", proc.Name())
	}
	return m.addMapping(ctx, proc, activity)
}

func (m *Model) addMapping(ctx context.Context, src *cdmfile.Script, activity *cdmfile.Activity) (*Mapping, error) {
	if src == nil {
		return nil, fmt.Errorf("add mapping: source: %w", ErrNotInModel)
	}
	src, ok := indexed(m, src)
	if !ok {
		return nil, fmt.Errorf("add mapping: source: %w", ErrNotInModel)
	}
	if activity == nil {
		return nil, fmt.Errorf("add mapping: activity: %w", ErrNotInModel)
	}
	if activity, ok = indexed(m, activity); !ok {
		return nil, fmt.Errorf("add mapping: activity: %w", ErrNotInModel)
	}
	if activity.IsDefinition() {
		return nil, fmt.Errorf("add mapping: %s is an activity definition", activity.Name())
	}

	ci, err := m.mappingCI(ctx)
	if err != nil {
		return nil, fmt.Errorf("add mapping: %w", err)
	}

	tag, srcTag, ctor := cdmfile.TagScriptMapping, cdmfile.TagScript, cdmfile.NewScriptMapping
	if src.Procedure {
		tag, srcTag, ctor = cdmfile.TagProcedureMapping, cdmfile.TagProcedure, cdmfile.NewProcedureMapping
	}

	taken := make(map[string]bool)
	for _, mp := range m.mappings {
		if mp.File() == ci {
			taken[mp.Name()] = true
		}
	}
	name := uniqueName(src.Name()+"_"+activity.Name(), func(n string) bool { return taken[n] })

	el := ci.CreateElement(ci.Root(), tag)
	el.CreateAttr(cdmfile.AttrName, name)
	el.CreateElement(srcTag).CreateAttr(cdmfile.AttrHref, ci.HrefTo(src.File(), src.ID()))
	el.CreateElement(cdmfile.TagMappedActivity).CreateAttr(cdmfile.AttrHref, ci.HrefTo(activity.File(), activity.ID()))

	n, err := cdmfile.NewNode(ci, el)
	if err != nil {
		return nil, fmt.Errorf("add mapping: %w", err)
	}
	raw, err := ctor(n)
	if err != nil {
		return nil, fmt.Errorf("add mapping: %w", err)
	}
	mp := m.resolveMapping(raw)
	if !m.register(ctx, ci, mp) {
		return nil, fmt.Errorf("add mapping %s: id collision on %s", name, mp.ID())
	}
	m.mappings = append(m.mappings, mp)
	ctxlog.FromContext(ctx).Info("added mapping", "file", ci.Path, "name", name, "id", mp.ID())
	return mp, nil
}

// mappingCI returns the model's only mapping CI, creating it if needed.
func (m *Model) mappingCI(ctx context.Context) (*cdmfile.File, error) {
	switch len(m.mappingCIs) {
	case 0:
	case 1:
		return m.mappingCIs[0], nil
	default:
		return nil, fmt.Errorf("%w: %d found", ErrAmbiguousMappingCI, len(m.mappingCIs))
	}

	version, prefix := m.commonVersion()
	base := m.MappingCIName
	if base == "" {
		base = DefaultMappingCIName
	}
	name := uniqueName(base, func(n string) bool {
		p := n + cdmfile.Extension
		if _, ok := m.byPath[p]; ok {
			return true
		}
		_, err := m.fs.Stat(m.fullPath(p))
		return err == nil
	})

	data, err := renderTemplate(mapperTemplate, templateData{Name: name, Version: version, Prefix: prefix})
	if err != nil {
		return nil, err
	}
	f, err := cdmfile.Parse(name+cdmfile.Extension, data)
	if err != nil {
		return nil, err
	}
	m.addFile(f)
	m.mappingCIs = append(m.mappingCIs, f)
	ctxlog.FromContext(ctx).Info("created mapping CI", "file", f.Path, "version", version)
	return f, nil
}

// commonVersion picks the version and prefix for new files: those of the
// first loaded file declaring a known version, else the baseline.
func (m *Model) commonVersion() (string, string) {
	for _, f := range m.Files() {
		if migrate.Known(f.Version()) && f.VersionPrefix() != "" {
			return f.Version(), f.VersionPrefix()
		}
	}
	p, _ := migrate.PrefixFor(migrate.Baseline)
	return migrate.Baseline, p
}

// uniqueName returns base, or base_1, base_2, ... whichever is first free.
func uniqueName(base string, taken func(string) bool) string {
	if !taken(base) {
		return base
	}
	for i := 1; ; i++ {
		c := fmt.Sprintf("%s_%d", base, i)
		if !taken(c) {
			return c
		}
	}
}

// DeleteFile marks f for removal on the next Save and drops its entities.
func (m *Model) DeleteFile(ctx context.Context, f *cdmfile.File) error {
	if got, ok := m.byPath[f.Path]; !ok || got != f {
		return fmt.Errorf("delete %s: %w", f.Path, ErrNotInModel)
	}
	dropped := len(m.index.InFile(f.Path))
	f.MarkDeleted()
	m.link(ctx)
	ctxlog.FromContext(ctx).Info("marked file deleted", "file", f.Path, "entities", dropped)
	return nil
}

// Migrate rewrites every live file to version to. prefix may be empty to
// use the version's canonical prefix. A file that fails is reported and
// the others are still migrated.
func (m *Model) Migrate(ctx context.Context, to, prefix string) error {
	log := ctxlog.FromContext(ctx)
	var errs []error
	for _, f := range m.Files() {
		from := f.Version()
		if err := m.migrator.Migrate(ctx, f, to, prefix); err != nil {
			log.Warn("migration failed", "file", f.Path, "from", from, "to", to, "err", err)
			errs = append(errs, err)
			continue
		}
		log.Info("migrated", "file", f.Path, "from", from, "to", to)
	}
	// Root renames change what a kind switch sees.
	m.link(ctx)
	return errors.Join(errs...)
}
