package model

import (
	"fmt"
	"slices"
	"strings"

	"github.com/agentic-research/cdmctl/internal/migrate"
)

const noVersion = "(none)"

// CheckValidity reports the problems of the loaded configuration. It never
// fails; an empty message list means the configuration is consistent.
func (m *Model) CheckValidity() (int, []string) {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	var versions []string
	for _, f := range m.Files() {
		v, p := f.Version(), f.VersionPrefix()
		if v == "" {
			add("%s: no version declared", f.Path)
		}
		if p == "" {
			add("%s: no version prefix declared", f.Path)
		}
		if v != "" && p != "" {
			switch want, ok := migrate.PrefixFor(v); {
			case !ok:
				add("%s: unknown version %s", f.Path, v)
			case want != p:
				add("%s: version prefix %s does not match %s expected for version %s", f.Path, p, want, v)
			}
		}
		if v == "" {
			v = noVersion
		}
		if !slices.Contains(versions, v) {
			versions = append(versions, v)
		}
	}
	if len(versions) > 1 {
		slices.Sort(versions)
		add("configuration mixes %d versions: %s", len(versions), strings.Join(versions, ", "))
	}

	for _, e := range m.elements {
		claims := m.index.Claims(e.ID())
		if len(claims) < 2 {
			continue
		}
		var names []string
		for _, id := range claims {
			if p, err := m.Element(id); err == nil {
				names = append(names, p.Path())
			}
		}
		add("element %s is listed as sub-element by %d elements (%s); %s is used as parent",
			e.Name(), len(claims), strings.Join(names, ", "), e.Parent().Path())
	}

	problems = append(problems, m.duplicates...)

	for _, mp := range m.mappings {
		if mp.Source == nil {
			add("%s: mapping %s references unknown %s", mp.File().Path, mp.Name(), mp.SourceHref())
		}
		if mp.Activity == nil {
			add("%s: mapping %s references unknown activity %s", mp.File().Path, mp.Name(), mp.ActivityHref())
		}
	}
	return len(problems), problems
}
