// Package migrate moves configuration items between schema versions.
//
// Versions form a fixed, ordered list. A migration walks that list one
// adjacent step at a time, in either direction, and at each step applies
// every rule registered for (step from, step to, configuration item kind).
// Several steps are deliberately lossy; going down and up again is only a
// no-op where the rules for that pair say so.
package migrate

import (
	"context"
	"fmt"
	"slices"

	"github.com/agentic-research/cdmctl/internal/cdmfile"
	"github.com/agentic-research/cdmctl/internal/ctxlog"
)

// UnknownVersionPairError is returned when either end of a migration is
// not a known version. The file is left untouched.
type UnknownVersionPairError struct {
	From, To string
}

func (e *UnknownVersionPairError) Error() string {
	return fmt.Sprintf("unknown version pair %q -> %q", e.From, e.To)
}

// Step is the context handed to a rule.
type Step struct {
	Ctx    context.Context
	File   *cdmfile.File
	From   string
	To     string
	Prefix string // namespace prefix for the To version
}

// Rule is one structural transformation bound to an adjacent version pair.
// An empty Kinds applies to every configuration item kind.
type Rule struct {
	Name  string
	From  string
	To    string
	Kinds []string
	Apply func(*Step) error
}

func (r Rule) matches(kind string) bool {
	return len(r.Kinds) == 0 || slices.Contains(r.Kinds, kind)
}

type stepKey struct{ from, to string }

// Engine holds the version list and the registered rules.
type Engine struct {
	versions []string
	rules    map[stepKey][]Rule
}

// New returns an engine over versions with no rules.
func New(versions []string) *Engine {
	return &Engine{
		versions: versions,
		rules:    make(map[stepKey][]Rule),
	}
}

// Default returns an engine over Versions with namespace rewriting on every
// step plus the structural rules in DefaultRules.
func Default() *Engine {
	e := New(Versions)
	for i := 0; i+1 < len(Versions); i++ {
		e.Register(namespaceRule(Versions[i], Versions[i+1]))
		e.Register(namespaceRule(Versions[i+1], Versions[i]))
	}
	for _, r := range DefaultRules() {
		e.Register(r)
	}
	return e
}

// Register adds a rule. Rules of one step run in registration order.
func (e *Engine) Register(r Rule) {
	k := stepKey{r.From, r.To}
	e.rules[k] = append(e.rules[k], r)
}

// Versions returns the engine's version list, oldest first.
func (e *Engine) Versions() []string { return e.versions }

// Rules returns the rules registered for one step.
func (e *Engine) Rules(from, to string) []Rule { return e.rules[stepKey{from, to}] }

// Path lists the versions visited going from one version to another,
// both ends included.
func (e *Engine) Path(from, to string) ([]string, error) {
	fi, ti := slices.Index(e.versions, from), slices.Index(e.versions, to)
	if fi < 0 || ti < 0 {
		return nil, &UnknownVersionPairError{From: from, To: to}
	}
	path := []string{from}
	for fi != ti {
		if fi < ti {
			fi++
		} else {
			fi--
		}
		path = append(path, e.versions[fi])
	}
	return path, nil
}

// Migrate rewrites f in place from its declared version to version to.
// prefix, when not empty, becomes the namespace prefix of the result;
// otherwise the canonical prefix of each version is used.
func (e *Engine) Migrate(ctx context.Context, f *cdmfile.File, to, prefix string) error {
	log := ctxlog.FromContext(ctx)
	from := f.Version()
	path, err := e.Path(from, to)
	if err != nil {
		return err
	}

	if len(path) == 1 {
		if prefix != "" && prefix != f.VersionPrefix() {
			log.Debug("rewriting namespace prefix", "file", f.Path, "prefix", prefix)
			return rewriteNamespaces(&Step{Ctx: ctx, File: f, From: from, To: to, Prefix: prefix})
		}
		return nil
	}

	for i := 0; i+1 < len(path); i++ {
		step := &Step{Ctx: ctx, File: f, From: path[i], To: path[i+1]}
		step.Prefix, _ = PrefixFor(step.To)
		if i+2 == len(path) && prefix != "" {
			step.Prefix = prefix
		}
		kind := f.Kind()
		for _, r := range e.rules[stepKey{step.From, step.To}] {
			if !r.matches(kind) {
				continue
			}
			if err := r.Apply(step); err != nil {
				return fmt.Errorf("migrate %s %s -> %s (%s): %w", f.Path, step.From, step.To, r.Name, err)
			}
		}
		log.Debug("migrated step", "file", f.Path, "kind", kind, "from", step.From, "to", step.To)
	}
	return nil
}

func namespaceRule(from, to string) Rule {
	return Rule{
		Name:  "namespaces",
		From:  from,
		To:    to,
		Apply: rewriteNamespaces,
	}
}

// rewriteNamespaces rebuilds every versioned namespace declared on the root
// for the step's target version, plus the qudv namespace from its own table.
func rewriteNamespaces(s *Step) error {
	for ns := range namespacePaths {
		if !s.File.HasNamespaceDecl(ns) {
			continue
		}
		uri, _ := NamespaceURI(ns, s.Prefix, s.To)
		s.File.SetNamespaceDecl(ns, uri)
	}
	if s.File.HasNamespaceDecl(qudvPrefix) {
		if uri, ok := QUDVNamespace(s.To); ok {
			s.File.SetNamespaceDecl(qudvPrefix, uri)
		}
	}
	return nil
}
