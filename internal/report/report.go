// Package report renders a loaded configuration as a generic JSON document
// and runs JSONPath queries against it.
package report

import (
	"fmt"

	"github.com/agentic-research/cdmctl/internal/cdmfile"
	"github.com/agentic-research/cdmctl/internal/model"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// Build summarizes m as nested map[string]any / []any values, the shape
// JSONPath expressions walk.
func Build(m *model.Model) map[string]any {
	files := []any{}
	for _, f := range m.Files() {
		files = append(files, map[string]any{
			"path":    f.Path,
			"kind":    f.Kind(),
			"version": f.Version(),
			"prefix":  f.VersionPrefix(),
		})
	}

	elements := []any{}
	for _, e := range m.Elements() {
		elements = append(elements, element(e))
	}

	roots := []any{}
	for _, r := range m.Roots() {
		roots = append(roots, r.Path())
	}

	scripts := []any{}
	for _, s := range m.Scripts() {
		kind := cdmfile.TagScript
		if s.Procedure {
			kind = cdmfile.TagProcedure
		}
		scripts = append(scripts, map[string]any{
			"id":   s.ID(),
			"name": s.Name(),
			"kind": kind,
			"file": s.File().Path,
		})
	}

	mappings := []any{}
	for _, mp := range m.Mappings() {
		entry := map[string]any{
			"id":       mp.ID(),
			"name":     mp.Name(),
			"file":     mp.File().Path,
			"dangling": mp.Dangling(),
		}
		if mp.Source != nil {
			entry["source"] = mp.Source.Name()
		}
		if mp.Activity != nil {
			entry["activity"] = mp.Activity.Name()
		}
		mappings = append(mappings, entry)
	}

	versions := []any{}
	for _, v := range m.Versions() {
		versions = append(versions, v)
	}
	_, msgs := m.CheckValidity()
	problems := []any{}
	for _, p := range msgs {
		problems = append(problems, p)
	}

	return map[string]any{
		"dir":      m.Dir(),
		"versions": versions,
		"files":    files,
		"roots":    roots,
		"elements": elements,
		"scripts":  scripts,
		"mappings": mappings,
		"problems": problems,
	}
}

func element(e *cdmfile.Element) map[string]any {
	activities := []any{}
	for _, a := range e.Activities() {
		activities = append(activities, map[string]any{
			"id":    a.ID(),
			"name":  a.Name(),
			"alias": a.Alias(),
		})
	}
	children := []any{}
	for c := range e.Children() {
		children = append(children, c.Name())
	}
	out := map[string]any{
		"id":         e.ID(),
		"name":       e.Name(),
		"path":       e.Path(),
		"file":       e.File().Path,
		"children":   children,
		"activities": activities,
	}
	if p := e.Parent(); p != nil {
		out["parent"] = p.ID()
	}
	return out
}

// Query evaluates a JSONPath expression against doc.
func Query(doc any, selector string) ([]any, error) {
	x, err := jp.ParseString(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
	}
	return x.Get(doc), nil
}

// JSON renders v as indented JSON with sorted keys.
func JSON(v any) string {
	return oj.JSON(v, &oj.Options{Indent: 2, Sort: true})
}
