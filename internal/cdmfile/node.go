package cdmfile

import (
	"context"
	"errors"

	"github.com/agentic-research/cdmctl/internal/ctxlog"
	"github.com/beevik/etree"
)

var ErrMissingID = errors.New("element has no xmi:id")

// Node is the common view over one identified XML element. Every domain
// entity embeds a Node; the element stays owned by its File.
type Node struct {
	el      *etree.Element
	file    *File
	id      string
	deleted bool
}

// NewNode wraps el. The element must carry an xmi:id.
func NewNode(f *File, el *etree.Element) (Node, error) {
	id := el.SelectAttrValue(AttrID, "")
	if id == "" {
		return Node{}, ErrMissingID
	}
	return Node{el: el, file: f, id: id}, nil
}

func (n *Node) ID() string { return n.id }

func (n *Node) Name() string { return n.el.SelectAttrValue(AttrName, "") }

func (n *Node) SetName(name string) { n.el.CreateAttr(AttrName, name) }

// Namespace is the element's namespace prefix, empty for unqualified tags.
func (n *Node) Namespace() string { return n.el.Space }

// Get reads one attribute. The key may carry a prefix ("xsi:type").
func (n *Node) Get(attr string) (string, bool) {
	a := n.el.SelectAttr(attr)
	if a == nil {
		return "", false
	}
	return a.Value, true
}

// Set writes one attribute.
func (n *Node) Set(attr, value string) { n.el.CreateAttr(attr, value) }

// Element returns the wrapped XML element.
func (n *Node) Element() *etree.Element { return n.el }

// File returns the configuration item owning the node.
func (n *Node) File() *File { return n.file }

// Delete detaches the element from its parent.
func (n *Node) Delete() {
	if p := n.el.Parent(); p != nil {
		p.RemoveChild(n.el)
	}
	n.deleted = true
}

// Deleted reports whether Delete was called.
func (n *Node) Deleted() bool { return n.deleted }

// EntitiesOfKind builds a T for every direct child of the root whose tag is
// tag. Children the constructor rejects are skipped with a warning.
func EntitiesOfKind[T any](ctx context.Context, f *File, tag string, ctor func(Node) (T, error)) []T {
	log := ctxlog.FromContext(ctx)
	var out []T
	for _, el := range f.Root().SelectElements(tag) {
		n, err := NewNode(f, el)
		if err != nil {
			log.Warn("skipping element", "file", f.Path, "tag", tag, "err", err)
			continue
		}
		e, err := ctor(n)
		if err != nil {
			log.Warn("skipping element", "file", f.Path, "tag", tag, "id", n.ID(), "err", err)
			continue
		}
		out = append(out, e)
	}
	return out
}
