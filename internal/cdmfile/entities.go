package cdmfile

import (
	"context"
	"errors"
	"iter"
	"strings"

	"github.com/agentic-research/cdmctl/internal/graph"
	"github.com/agentic-research/cdmctl/internal/uuidcodec"
	"github.com/beevik/etree"
)

// Element and attribute names of the entities read from configuration items.
const (
	TagElement     = "monitoringControlElement"
	TagSubElements = "subElements"
	TagAspect      = "monitoringControlElementAspects"

	TagScript            = "script"
	TagProcedure         = "procedure"
	TagScriptMapping     = "script2Activity"
	TagProcedureMapping  = "procedure2Activity"
	TagMappedActivity    = "activity"
	AttrScriptContent    = "scriptContent"
	AttrProcedureContent = "procedureContent"
	AttrBaseElement      = "baseElement"
	AttrAlias            = "alias"

	TypeActivity     = "Activity"
	AspectTypePrefix = "monitoringcontrolmodel:"
)

// Element is a monitoring control element (MCE), one node of the element
// tree. Tree links are resolved through the index it is attached to.
type Element struct {
	Node
	links *graph.Index
}

func NewElement(n Node) (*Element, error) {
	return &Element{Node: n}, nil
}

// SubElementIDs returns the declared child ids: the space separated
// subElements attribute followed by the ids of <subElements href=".."/>
// children, without duplicates.
func (e *Element) SubElementIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range strings.Fields(e.el.SelectAttrValue(TagSubElements, "")) {
		add(id)
	}
	for _, c := range e.el.SelectElements(TagSubElements) {
		add(uuidcodec.IDFromLink(c.SelectAttrValue(AttrHref, "")))
	}
	return ids
}

// Attach connects the element to the index holding its tree links.
func (e *Element) Attach(idx *graph.Index) { e.links = idx }

// Parent returns the containing element, or nil for a root.
func (e *Element) Parent() *Element {
	if e.links == nil {
		return nil
	}
	pid, ok := e.links.Parent(e.id)
	if !ok {
		return nil
	}
	p, err := e.links.Get(pid)
	if err != nil {
		return nil
	}
	pe, _ := p.(*Element)
	return pe
}

// IsRoot reports whether no element contains e.
func (e *Element) IsRoot() bool { return e.Parent() == nil }

// Children iterates over the resolved sub-elements. The sequence can be
// ranged over any number of times.
func (e *Element) Children() iter.Seq[*Element] {
	return func(yield func(*Element) bool) {
		if e.links == nil {
			return
		}
		for _, id := range e.links.Children(e.id) {
			c, err := e.links.Get(id)
			if err != nil {
				continue
			}
			ce, ok := c.(*Element)
			if !ok {
				continue
			}
			if !yield(ce) {
				return
			}
		}
	}
}

// SubElements returns the resolved sub-elements as a slice.
func (e *Element) SubElements() []*Element {
	var out []*Element
	for c := range e.Children() {
		out = append(out, c)
	}
	return out
}

// Path joins element names from the root down to e with dots.
func (e *Element) Path() string {
	var names []string
	seen := make(map[*Element]bool)
	for cur := e; cur != nil && !seen[cur]; cur = cur.Parent() {
		seen[cur] = true
		names = append(names, cur.Name())
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, ".")
}

// Activities returns the activities of e that reference a definition.
func (e *Element) Activities() []*Activity {
	var out []*Activity
	for _, a := range e.activityAspects() {
		if !a.IsDefinition() {
			out = append(out, a)
		}
	}
	return out
}

// Definitions returns the activity definitions of e.
func (e *Element) Definitions() []*Activity {
	var out []*Activity
	for _, a := range e.activityAspects() {
		if a.IsDefinition() {
			out = append(out, a)
		}
	}
	return out
}

func (e *Element) activityAspects() []*Activity {
	var out []*Activity
	for _, el := range e.el.SelectElements(TagAspect) {
		if TypeName(el) != TypeActivity {
			continue
		}
		n, err := NewNode(e.file, el)
		if err != nil {
			continue
		}
		out = append(out, &Activity{Node: n, ElementID: e.id})
	}
	return out
}

// CreateActivity appends a new activity aspect to e.
func (e *Element) CreateActivity(name, alias, baseElement string) *Activity {
	el := e.file.CreateElement(e.el, TagAspect)
	el.CreateAttr(AttrType, AspectTypePrefix+TypeActivity)
	el.CreateAttr(AttrName, name)
	if alias != "" {
		el.CreateAttr(AttrAlias, alias)
	}
	if baseElement != "" {
		el.CreateAttr(AttrBaseElement, baseElement)
	}
	n, _ := NewNode(e.file, el)
	return &Activity{Node: n, ElementID: e.id}
}

// Activity is an activity aspect of an element. A definition has no
// baseElement; a real activity points at its definition through it.
type Activity struct {
	Node
	ElementID string
}

func (a *Activity) Alias() string { return a.el.SelectAttrValue(AttrAlias, "") }

func (a *Activity) BaseElement() (string, bool) { return a.Get(AttrBaseElement) }

func (a *Activity) IsDefinition() bool {
	_, ok := a.BaseElement()
	return !ok
}

// Script is a script or procedure held by a ScriptCI.
type Script struct {
	Node
	Procedure bool
}

func NewScript(n Node) (*Script, error) { return &Script{Node: n}, nil }

func NewProcedure(n Node) (*Script, error) { return &Script{Node: n, Procedure: true}, nil }

func (s *Script) contentAttr() string {
	if s.Procedure {
		return AttrProcedureContent
	}
	return AttrScriptContent
}

// Source returns the script text.
func (s *Script) Source() string { return s.el.SelectAttrValue(s.contentAttr(), "") }

func (s *Script) SetSource(src string) { s.el.CreateAttr(s.contentAttr(), src) }

// Mapping links a script or procedure to an activity through two hrefs.
type Mapping struct {
	Node
	Procedure bool
}

func NewScriptMapping(n Node) (*Mapping, error) { return newMapping(n, false) }

func NewProcedureMapping(n Node) (*Mapping, error) { return newMapping(n, true) }

func newMapping(n Node, procedure bool) (*Mapping, error) {
	m := &Mapping{Node: n, Procedure: procedure}
	if m.SourceHref() == "" {
		return nil, errors.New("mapping has no " + m.sourceTag() + " href")
	}
	if m.ActivityHref() == "" {
		return nil, errors.New("mapping has no activity href")
	}
	return m, nil
}

func (m *Mapping) sourceTag() string {
	if m.Procedure {
		return TagProcedure
	}
	return TagScript
}

// SourceHref is the path#id reference to the mapped script or procedure.
func (m *Mapping) SourceHref() string { return childHref(m.el, m.sourceTag()) }

// ActivityHref is the path#id reference to the mapped activity.
func (m *Mapping) ActivityHref() string { return childHref(m.el, TagMappedActivity) }

func childHref(el *etree.Element, tag string) string {
	c := el.SelectElement(tag)
	if c == nil {
		return ""
	}
	return c.SelectAttrValue(AttrHref, "")
}

// Elements reads the MCEs of an McmCI.
func Elements(ctx context.Context, f *File) []*Element {
	return EntitiesOfKind(ctx, f, TagElement, NewElement)
}

// Scripts reads the scripts and procedures of a ScriptCI.
func Scripts(ctx context.Context, f *File) []*Script {
	out := EntitiesOfKind(ctx, f, TagScript, NewScript)
	return append(out, EntitiesOfKind(ctx, f, TagProcedure, NewProcedure)...)
}

// Mappings reads the script and procedure mappings of a mapper CI.
func Mappings(ctx context.Context, f *File) []*Mapping {
	out := EntitiesOfKind(ctx, f, TagScriptMapping, NewScriptMapping)
	return append(out, EntitiesOfKind(ctx, f, TagProcedureMapping, NewProcedureMapping)...)
}
