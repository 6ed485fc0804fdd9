package migrate

import (
	"strings"
	"testing"

	"github.com/agentic-research/cdmctl/internal/cdmfile"
	"github.com/agentic-research/cdmctl/internal/cdmtest"
	"github.com/beevik/etree"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shape is a comparable view of an element tree with attribute order ignored.
type shape struct {
	Tag      string
	Attrs    map[string]string
	Text     string
	Children []shape
}

func shapeOf(el *etree.Element) shape {
	s := shape{Tag: el.FullTag(), Attrs: map[string]string{}, Text: strings.TrimSpace(el.Text())}
	for _, a := range el.Attr {
		s.Attrs[a.FullKey()] = a.Value
	}
	for _, c := range el.ChildElements() {
		s.Children = append(s.Children, shapeOf(c))
	}
	return s
}

func find(t *testing.T, f *cdmfile.File, path string) *etree.Element {
	t.Helper()
	el := f.Root().FindElement(path)
	require.NotNil(t, el, "no element at %s", path)
	return el
}

// richMcm exercises every structural rule between 1.12.0 and 1.14.0 in a
// form that survives a full round trip.
func richMcm(version, prefix string) string {
	body := `  <monitoringControlElement xmi:id="` + cdmtest.ID("root") + `" name="root">
    <monitoringControlElementAspects xsi:type="monitoringcontrolmodel:Activity" xmi:id="` + cdmtest.ID("act") + `" name="act" isSynchronous="false"/>
    <monitoringControlElementAspects xsi:type="monitoringcontrolmodel:Parameter" xmi:id="` + cdmtest.ID("param") + `" name="param">
      <defaultValue xsi:type="monitoringcontrolmodel:ParameterEngValue" xmi:id="` + cdmtest.ID("paramValue") + `" value="1"/>
    </monitoringControlElementAspects>
  </monitoringControlElement>
  <dataTypes xsi:type="datatypes:StructuredDataType" xmi:id="` + cdmtest.ID("struct") + `" name="struct">
    <innerElements xmi:id="` + cdmtest.ID("inner") + `" name="inner" elementType="Parameter"/>
  </dataTypes>
  <dataTypes xsi:type="datatypes:EnumeratedDataType" xmi:id="` + cdmtest.ID("enum") + `" name="enum">
    <enumerationLiterals xmi:id="` + cdmtest.ID("on") + `" name="ON" value="1"/>
  </dataTypes>`
	return cdmtest.Mcm(version, prefix, body)
}

func TestRoundTripThroughOldestVersion(t *testing.T) {
	f := parse(t, richMcm("1.14.0", cdmtest.CurrentPrefix))
	want := shapeOf(f.Root())
	e := Default()

	require.NoError(t, e.Migrate(testCtx(), f, "1.12.0", ""))
	assert.Equal(t, "1.12.0", f.Version())
	assert.Equal(t, cdmtest.LegacyPrefix, f.VersionPrefix())

	require.NoError(t, e.Migrate(testCtx(), f, "1.14.0", ""))
	if diff := cmp.Diff(want, shapeOf(f.Root())); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTripAddsNoDuplicateLiterals(t *testing.T) {
	f := parse(t, richMcm("1.14.0", cdmtest.CurrentPrefix))
	e := Default()

	for range 2 {
		require.NoError(t, e.Migrate(testCtx(), f, "1.13.0bd1", ""))
		require.NoError(t, e.Migrate(testCtx(), f, "1.14.0", ""))
	}
	enum := find(t, f, "./dataTypes[@name='enum']")
	assert.Len(t, enum.SelectElements("enumerationLiterals"), 1)
}

func TestPacketChecksumType(t *testing.T) {
	body := `  <packets xmi:id="` + cdmtest.ID("tm") + `" name="tm"/>
  <packets xmi:id="` + cdmtest.ID("tc") + `" name="tc" checksumType="CRC16"/>`
	f := parse(t, cdmtest.CI(cdmfile.KindPacket, "1.12.0", cdmtest.LegacyPrefix, "packets", body))
	e := Default()

	require.NoError(t, e.Migrate(testCtx(), f, "1.12.1", ""))
	assert.Equal(t, "NONE", find(t, f, "./packets[@name='tm']").SelectAttrValue("checksumType", ""))
	assert.Equal(t, "CRC16", find(t, f, "./packets[@name='tc']").SelectAttrValue("checksumType", ""))

	require.NoError(t, e.Migrate(testCtx(), f, "1.12.0", ""))
	for _, p := range f.Root().SelectElements("packets") {
		assert.Nil(t, p.SelectAttr("checksumType"))
	}
}

func TestPacketRuleIgnoresOtherKinds(t *testing.T) {
	body := `  <packets xmi:id="` + cdmtest.ID("tm") + `" name="tm"/>`
	f := parse(t, cdmtest.Mcm("1.12.0", cdmtest.LegacyPrefix, body))
	require.NoError(t, Default().Migrate(testCtx(), f, "1.12.1", ""))
	assert.Nil(t, find(t, f, "./packets").SelectAttr("checksumType"))
}

func TestValueTypeSubstitution(t *testing.T) {
	body := `  <monitoringControlElement xmi:id="` + cdmtest.ID("root") + `" name="root">
    <monitoringControlElementAspects xsi:type="monitoringcontrolmodel:Parameter" xmi:id="` + cdmtest.ID("p") + `" name="p">
      <defaultValue xsi:type="monitoringcontrolmodel:ParameterRawValue" xmi:id="` + cdmtest.ID("pv") + `"/>
    </monitoringControlElementAspects>
    <monitoringControlElementAspects xsi:type="monitoringcontrolmodel:Argument" xmi:id="` + cdmtest.ID("a") + `" name="a">
      <defaultValue xsi:type="monitoringcontrolmodel:ArgumentRawValue" xmi:id="` + cdmtest.ID("av") + `"/>
    </monitoringControlElementAspects>
    <monitoringControlElementAspects xsi:type="monitoringcontrolmodel:Event" xmi:id="` + cdmtest.ID("ev") + `" name="ev">
      <defaultValue xsi:type="monitoringcontrolmodel:ParameterRawValue" xmi:id="` + cdmtest.ID("evv") + `"/>
    </monitoringControlElementAspects>
  </monitoringControlElement>`
	f := parse(t, cdmtest.Mcm("1.12.1", cdmtest.LegacyPrefix, body))
	e := Default()
	valueType := func(aspect string) string {
		return find(t, f, "./monitoringControlElement/monitoringControlElementAspects[@name='"+aspect+"']/defaultValue").
			SelectAttrValue("xsi:type", "")
	}

	require.NoError(t, e.Migrate(testCtx(), f, "1.13.0bd1", ""))
	assert.Equal(t, "monitoringcontrolmodel:ParameterEngValue", valueType("p"))
	assert.Equal(t, "monitoringcontrolmodel:ArgumentEngValue", valueType("a"))
	assert.Equal(t, "monitoringcontrolmodel:ParameterRawValue", valueType("ev"), "only parameter and argument aspects change")

	require.NoError(t, e.Migrate(testCtx(), f, "1.12.1", ""))
	assert.Equal(t, "monitoringcontrolmodel:ParameterRawValue", valueType("p"))
	assert.Equal(t, "monitoringcontrolmodel:ArgumentRawValue", valueType("a"))
}

func TestSynchronousFlag(t *testing.T) {
	body := cdmtest.Element("root", nil, cdmtest.Activity("def", "")+"\n"+cdmtest.Activity("act", "def"))
	f := parse(t, cdmtest.Mcm("1.13.0bd1", cdmtest.CurrentPrefix, body))
	e := Default()

	require.NoError(t, e.Migrate(testCtx(), f, "1.13.0", ""))
	acts := f.Root().FindElements("./monitoringControlElement/monitoringControlElementAspects")
	require.Len(t, acts, 2)
	for _, a := range acts {
		assert.Equal(t, "false", a.SelectAttrValue("isSynchronous", ""))
	}

	require.NoError(t, e.Migrate(testCtx(), f, "1.13.0bd1", ""))
	for _, a := range acts {
		assert.Nil(t, a.SelectAttr("isSynchronous"))
	}
}

func TestEnumerationPlaceholderLiteral(t *testing.T) {
	body := `  <dataTypes xsi:type="datatypes:EnumeratedDataType" xmi:id="` + cdmtest.ID("empty") + `" name="empty"/>
  <dataTypes xsi:type="datatypes:EnumeratedDataType" xmi:id="` + cdmtest.ID("full") + `" name="full">
    <enumerationLiterals xmi:id="` + cdmtest.ID("on") + `" name="ON" value="1"/>
  </dataTypes>`
	f := parse(t, cdmtest.CI(cdmfile.KindDataTypes, "1.13.0bd1", cdmtest.CurrentPrefix, "types", body))
	e := Default()

	require.NoError(t, e.Migrate(testCtx(), f, "1.13.0", ""))
	lits := find(t, f, "./dataTypes[@name='empty']").SelectElements("enumerationLiterals")
	require.Len(t, lits, 1)
	assert.Equal(t, "UNDEFINED", lits[0].SelectAttrValue("name", ""))
	assert.Equal(t, "0", lits[0].SelectAttrValue("value", ""))
	assert.NotEmpty(t, lits[0].SelectAttrValue("xmi:id", ""))
	assert.Len(t, find(t, f, "./dataTypes[@name='full']").SelectElements("enumerationLiterals"), 1)

	// Going back down keeps the placeholder.
	require.NoError(t, e.Migrate(testCtx(), f, "1.13.0bd1", ""))
	assert.Len(t, find(t, f, "./dataTypes[@name='empty']").SelectElements("enumerationLiterals"), 1)
}

func TestInnerElements(t *testing.T) {
	body := `  <dataTypes xsi:type="datatypes:StructuredDataType" xmi:id="` + cdmtest.ID("s") + `" name="s">
    <innerParameters xmi:id="` + cdmtest.ID("p1") + `" name="p1"/>
    <innerParameters xmi:id="` + cdmtest.ID("p2") + `" name="p2"/>
  </dataTypes>`
	f := parse(t, cdmtest.CI(cdmfile.KindDataTypes, "1.13.0", cdmtest.CurrentPrefix, "types", body))
	e := Default()

	require.NoError(t, e.Migrate(testCtx(), f, "1.14.0", ""))
	s := find(t, f, "./dataTypes")
	assert.Empty(t, s.SelectElements("innerParameters"))
	inner := s.SelectElements("innerElements")
	require.Len(t, inner, 2)
	for _, el := range inner {
		assert.Equal(t, "Parameter", el.SelectAttrValue("elementType", ""))
	}

	// An element type 1.13.0 cannot express is dropped going down.
	arg := f.CreateElement(s, "innerElements")
	arg.CreateAttr("name", "arg")
	arg.CreateAttr("elementType", "Argument")

	require.NoError(t, e.Migrate(testCtx(), f, "1.13.0", ""))
	assert.Empty(t, s.SelectElements("innerElements"))
	params := s.SelectElements("innerParameters")
	require.Len(t, params, 2)
	assert.Equal(t, "p1", params[0].SelectAttrValue("name", ""))
	assert.Nil(t, params[0].SelectAttr("elementType"))
}

func TestUnitsRootRename(t *testing.T) {
	f := parse(t, cdmtest.CI(cdmfile.KindUnitsAndQuantaties, "1.13.0", cdmtest.CurrentPrefix, "units", ""))
	e := Default()

	require.NoError(t, e.Migrate(testCtx(), f, "1.14.0", ""))
	assert.Equal(t, cdmfile.KindUnitsAndQuantities, f.Kind())
	assert.Equal(t, cdmfile.PrimaryNamespace, f.Root().Space)

	require.NoError(t, e.Migrate(testCtx(), f, "1.13.0", ""))
	assert.Equal(t, cdmfile.KindUnitsAndQuantaties, f.Kind())
}
