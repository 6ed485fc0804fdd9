// Package cdmfile wraps one configuration item (.cdm file) and the typed
// entities read from it.
//
// A configuration item is an XMI document whose root tag names its kind
// (configurationcontrol:McmCI, configurationcontrol:ScriptCI, ...). The
// xmlns:configurationcontrol declaration on the root carries the schema
// version as prefix + "ConfigurationTracking/" + version.
package cdmfile

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/agentic-research/cdmctl/internal/uuidcodec"
	"github.com/beevik/etree"
)

// Configuration item kinds, as found in the root element's local name.
const (
	KindMcm                = "McmCI"
	KindScript             = "ScriptCI"
	KindScriptMapper       = "Script2ActivityMapperCI"
	KindPacket             = "PacketCI"
	KindDataTypes          = "DataTypesCI"
	KindPUSServices        = "PUSServicesCI"
	KindUnitsAndQuantaties = "UnitsAndQuantatiesCI" // spelling used up to 1.13.0
	KindUnitsAndQuantities = "UnitsAndQuantitiesCI"
)

const (
	// PrimaryNamespace is the prefix whose declaration carries the version.
	PrimaryNamespace = "configurationcontrol"
	// TrackingPath separates the version prefix from the version.
	TrackingPath = "/ConfigurationTracking/"

	AttrID   = "xmi:id"
	AttrType = "xsi:type"
	AttrName = "name"
	AttrHref = "href"
)

// Extension is the file extension of configuration items.
const Extension = ".cdm"

var ErrUnsupportedBinaryFormat = errors.New("binary (EMF) resource format is not supported")

// emfSignature opens every EMF binary resource.
var emfSignature = []byte{0x89, 'e', 'm', 'f', '\n', '\r', 0x1a, '\n'}

// ParseError reports a file that is not well-formed XML.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// File is one configuration item. Path is relative to the loaded directory
// and always uses forward slashes.
type File struct {
	Path    string
	doc     *etree.Document
	deleted bool
}

// Parse reads a configuration item from data.
func Parse(p string, data []byte) (*File, error) {
	if isBinary(data) {
		return nil, fmt.Errorf("%s: %w", p, ErrUnsupportedBinaryFormat)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, &ParseError{Path: p, Err: err}
	}
	if doc.Root() == nil {
		return nil, &ParseError{Path: p, Err: errors.New("no root element")}
	}
	return &File{Path: filepath.ToSlash(p), doc: doc}, nil
}

// isBinary reports EMF binary resources and anything else carrying NUL
// bytes near the start, which no XML document can.
func isBinary(data []byte) bool {
	if bytes.HasPrefix(data, emfSignature) {
		return true
	}
	head := data
	if len(head) > 8000 {
		head = head[:8000]
	}
	return bytes.IndexByte(head, 0) >= 0
}

// Root returns the document's root element.
func (f *File) Root() *etree.Element { return f.doc.Root() }

// Kind is the root element's local name, e.g. "McmCI".
func (f *File) Kind() string { return f.Root().Tag }

// ID is the root element's xmi:id, if any.
func (f *File) ID() string { return f.Root().SelectAttrValue(AttrID, "") }

// Name is the root element's name attribute.
func (f *File) Name() string { return f.Root().SelectAttrValue(AttrName, "") }

// Version is the schema version declared by the primary namespace, or "".
func (f *File) Version() string {
	_, v, _ := SplitNamespace(f.NamespaceDecl(PrimaryNamespace))
	return v
}

// VersionPrefix is the part of the primary namespace before
// "ConfigurationTracking/", including its trailing slash, or "".
func (f *File) VersionPrefix() string {
	p, _, _ := SplitNamespace(f.NamespaceDecl(PrimaryNamespace))
	return p
}

// SplitNamespace splits prefix + "ConfigurationTracking/" + version.
func SplitNamespace(uri string) (prefix, version string, ok bool) {
	i := strings.Index(uri, TrackingPath)
	if i < 0 {
		return "", "", false
	}
	return uri[:i+1], uri[i+len(TrackingPath):], true
}

// NamespaceDecl returns the URI bound to prefix on the root element.
func (f *File) NamespaceDecl(prefix string) string {
	return f.Root().SelectAttrValue("xmlns:"+prefix, "")
}

// HasNamespaceDecl reports whether the root declares prefix.
func (f *File) HasNamespaceDecl(prefix string) bool {
	return f.Root().SelectAttr("xmlns:"+prefix) != nil
}

// SetNamespaceDecl binds prefix to uri on the root element.
func (f *File) SetNamespaceDecl(prefix, uri string) {
	f.Root().CreateAttr("xmlns:"+prefix, uri)
}

// RenameRoot gives the root element a new qualified tag.
func (f *File) RenameRoot(space, tag string) {
	r := f.Root()
	r.Space = space
	r.Tag = tag
}

// MarkDeleted flags the file for removal on the next save.
func (f *File) MarkDeleted() { f.deleted = true }

// Deleted reports whether the file is flagged for removal.
func (f *File) Deleted() bool { return f.deleted }

// CreateElement appends a child named tag to parent and gives it a fresh id.
func (f *File) CreateElement(parent *etree.Element, tag string) *etree.Element {
	el := parent.CreateElement(tag)
	el.CreateAttr(AttrID, uuidcodec.NewID())
	return el
}

// Bytes serializes the document with two-space indentation.
func (f *File) Bytes() ([]byte, error) {
	f.doc.Indent(2)
	return f.doc.WriteToBytes()
}

// Resolve returns the loaded-directory path of the file an href points to.
// An href without a path part points into f itself.
func (f *File) Resolve(href string) string {
	p := uuidcodec.PathFromLink(href)
	if p == "" {
		return f.Path
	}
	return path.Clean(path.Join(path.Dir(f.Path), filepath.ToSlash(p)))
}

// HrefTo builds an href from f to the entity id living in target.
func (f *File) HrefTo(target *File, id string) string {
	if target == f {
		return "#" + id
	}
	rel, err := filepath.Rel(filepath.FromSlash(path.Dir(f.Path)), filepath.FromSlash(target.Path))
	if err != nil {
		rel = target.Path
	}
	return filepath.ToSlash(rel) + "#" + id
}

// TypeName returns the local part of an element's xsi:type, e.g. "Activity"
// for "monitoringcontrolmodel:Activity".
func TypeName(el *etree.Element) string {
	t := el.SelectAttrValue(AttrType, "")
	if i := strings.LastIndexByte(t, ':'); i >= 0 {
		return t[i+1:]
	}
	return t
}

// SetTypeName replaces the local part of an element's xsi:type and keeps
// its prefix.
func SetTypeName(el *etree.Element, name string) {
	t := el.SelectAttrValue(AttrType, "")
	if i := strings.LastIndexByte(t, ':'); i >= 0 {
		el.CreateAttr(AttrType, t[:i+1]+name)
		return
	}
	el.CreateAttr(AttrType, name)
}
