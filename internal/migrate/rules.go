package migrate

import (
	"github.com/agentic-research/cdmctl/internal/cdmfile"
	"github.com/agentic-research/cdmctl/internal/ctxlog"
	"github.com/beevik/etree"
)

const (
	tagPackets             = "packets"
	tagDefaultValue        = "defaultValue"
	tagEnumerationLiterals = "enumerationLiterals"
	tagInnerParameters     = "innerParameters"
	tagInnerElements       = "innerElements"

	attrChecksumType  = "checksumType"
	attrIsSynchronous = "isSynchronous"
	attrElementType   = "elementType"
	attrValue         = "value"

	typeEnumeratedDataType = "EnumeratedDataType"
	elementTypeParameter   = "Parameter"
	placeholderLiteral     = "UNDEFINED"
)

// rawToEng is the closed set of value discriminators renamed in 1.13.0bd1,
// keyed by the aspect type they may appear under.
var rawToEng = map[string]map[string]string{
	"Parameter": {"ParameterRawValue": "ParameterEngValue"},
	"Argument":  {"ArgumentRawValue": "ArgumentEngValue"},
}

// DefaultRules returns the structural rules between adjacent known
// versions. Namespace rewriting is registered separately by Default.
func DefaultRules() []Rule {
	mcm := []string{cdmfile.KindMcm}
	types := []string{cdmfile.KindMcm, cdmfile.KindDataTypes}
	return []Rule{
		{Name: "packet checksum type", From: "1.12.0", To: "1.12.1", Kinds: []string{cdmfile.KindPacket},
			Apply: addPacketChecksum},
		{Name: "packet checksum type", From: "1.12.1", To: "1.12.0", Kinds: []string{cdmfile.KindPacket},
			Apply: removePacketChecksum},

		{Name: "raw to engineering values", From: "1.12.1", To: "1.13.0bd1", Kinds: mcm,
			Apply: func(s *Step) error { return substituteValueTypes(s, false) }},
		{Name: "engineering to raw values", From: "1.13.0bd1", To: "1.12.1", Kinds: mcm,
			Apply: func(s *Step) error { return substituteValueTypes(s, true) }},

		{Name: "activity synchronous flag", From: "1.13.0bd1", To: "1.13.0", Kinds: mcm,
			Apply: addSynchronousFlag},
		{Name: "activity synchronous flag", From: "1.13.0", To: "1.13.0bd1", Kinds: mcm,
			Apply: removeSynchronousFlag},
		// One way: 1.13.0bd1 accepts the synthesized literal, so going back
		// down leaves it in place.
		{Name: "enumeration literal required", From: "1.13.0bd1", To: "1.13.0", Kinds: types,
			Apply: ensureEnumerationLiteral},

		{Name: "inner parameters to inner elements", From: "1.13.0", To: "1.14.0", Kinds: types,
			Apply: innerParametersToElements},
		{Name: "inner elements to inner parameters", From: "1.14.0", To: "1.13.0", Kinds: types,
			Apply: innerElementsToParameters},

		{Name: "units CI renamed", From: "1.13.0", To: "1.14.0", Kinds: []string{cdmfile.KindUnitsAndQuantaties},
			Apply: func(s *Step) error { return renameRoot(s, cdmfile.KindUnitsAndQuantities) }},
		{Name: "units CI renamed", From: "1.14.0", To: "1.13.0", Kinds: []string{cdmfile.KindUnitsAndQuantities},
			Apply: func(s *Step) error { return renameRoot(s, cdmfile.KindUnitsAndQuantaties) }},
	}
}

// descendants returns every element below el matching keep, in document
// order. Collecting first lets callers mutate the tree safely.
func descendants(el *etree.Element, keep func(*etree.Element) bool) []*etree.Element {
	var out []*etree.Element
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		for _, c := range e.ChildElements() {
			if keep(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(el)
	return out
}

func byTag(tag string) func(*etree.Element) bool {
	return func(e *etree.Element) bool { return e.Tag == tag }
}

func addPacketChecksum(s *Step) error {
	for _, p := range s.File.Root().SelectElements(tagPackets) {
		if p.SelectAttr(attrChecksumType) == nil {
			p.CreateAttr(attrChecksumType, "NONE")
		}
	}
	return nil
}

func removePacketChecksum(s *Step) error {
	for _, p := range s.File.Root().SelectElements(tagPackets) {
		p.RemoveAttr(attrChecksumType)
	}
	return nil
}

func substituteValueTypes(s *Step, reverse bool) error {
	for _, aspect := range descendants(s.File.Root(), byTag(cdmfile.TagAspect)) {
		subst, ok := rawToEng[cdmfile.TypeName(aspect)]
		if !ok {
			continue
		}
		if reverse {
			subst = invert(subst)
		}
		for _, v := range aspect.SelectElements(tagDefaultValue) {
			if to, ok := subst[cdmfile.TypeName(v)]; ok {
				cdmfile.SetTypeName(v, to)
			}
		}
	}
	return nil
}

func invert(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

func isActivity(e *etree.Element) bool {
	return e.Tag == cdmfile.TagAspect && cdmfile.TypeName(e) == cdmfile.TypeActivity
}

func addSynchronousFlag(s *Step) error {
	for _, a := range descendants(s.File.Root(), isActivity) {
		if a.SelectAttr(attrIsSynchronous) == nil {
			a.CreateAttr(attrIsSynchronous, "false")
		}
	}
	return nil
}

func removeSynchronousFlag(s *Step) error {
	for _, a := range descendants(s.File.Root(), isActivity) {
		a.RemoveAttr(attrIsSynchronous)
	}
	return nil
}

func ensureEnumerationLiteral(s *Step) error {
	isEnum := func(e *etree.Element) bool { return cdmfile.TypeName(e) == typeEnumeratedDataType }
	for _, enum := range descendants(s.File.Root(), isEnum) {
		if enum.SelectElement(tagEnumerationLiterals) != nil {
			continue
		}
		lit := s.File.CreateElement(enum, tagEnumerationLiterals)
		lit.CreateAttr(cdmfile.AttrName, placeholderLiteral)
		lit.CreateAttr(attrValue, "0")
		ctxlog.FromContext(s.Ctx).Info("added placeholder enumeration literal",
			"file", s.File.Path, "type", enum.SelectAttrValue(cdmfile.AttrName, ""))
	}
	return nil
}

func innerParametersToElements(s *Step) error {
	for _, p := range descendants(s.File.Root(), byTag(tagInnerParameters)) {
		p.Tag = tagInnerElements
		p.CreateAttr(attrElementType, elementTypeParameter)
	}
	return nil
}

// innerElementsToParameters drops inner elements of any type other than
// Parameter, which 1.13.0 cannot express.
func innerElementsToParameters(s *Step) error {
	log := ctxlog.FromContext(s.Ctx)
	for _, e := range descendants(s.File.Root(), byTag(tagInnerElements)) {
		t := e.SelectAttrValue(attrElementType, elementTypeParameter)
		if t != elementTypeParameter {
			log.Warn("dropping inner element not representable in target version",
				"file", s.File.Path, "to", s.To, "elementType", t,
				"name", e.SelectAttrValue(cdmfile.AttrName, ""))
			e.Parent().RemoveChild(e)
			continue
		}
		e.Tag = tagInnerParameters
		e.RemoveAttr(attrElementType)
	}
	return nil
}

func renameRoot(s *Step, kind string) error {
	s.File.RenameRoot(s.File.Root().Space, kind)
	return nil
}
