// Package cdmtest builds configuration item documents for tests.
package cdmtest

import (
	"fmt"
	"strings"
	"testing"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
)

// Canonical namespace prefixes, duplicated here so fixtures do not depend
// on the code under test.
const (
	LegacyPrefix  = "http://www.egscc.esa.int/cdm/"
	CurrentPrefix = "http://www.esa.int/egscc/cdm/"
)

// ID returns a deterministic compact id derived from name.
func ID(name string) string {
	if len(name) > 22 {
		name = name[:22]
	}
	return "_" + name + strings.Repeat("A", 22-len(name))
}

// CI renders a configuration item of the given kind. An empty version
// leaves out the configurationcontrol namespace declaration.
func CI(kind, version, prefix, name, body string) string {
	var ns strings.Builder
	if version != "" {
		fmt.Fprintf(&ns, ` xmlns:configurationcontrol="%sConfigurationTracking/%s"`, prefix, version)
		fmt.Fprintf(&ns, ` xmlns:monitoringcontrolmodel="%sMonitoringControl/MonitoringControlModel/%s"`, prefix, version)
		fmt.Fprintf(&ns, ` xmlns:datatypes="%sDataTypes/%s"`, prefix, version)
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<configurationcontrol:%s xmi:version="2.0" xmlns:xmi="http://www.omg.org/XMI" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"%s xmi:id="%s" name="%s">
%s
</configurationcontrol:%s>
`, kind, ns.String(), ID(name+"CI"), name, body, kind)
}

// Mcm renders an McmCI with the given elements.
func Mcm(version, prefix, body string) string {
	return CI("McmCI", version, prefix, "mcm", body)
}

// Element renders one monitoring control element. Sub-elements are listed
// in the subElements attribute; inner is placed inside the element.
func Element(name string, subs []string, inner string) string {
	attr := ""
	if len(subs) > 0 {
		ids := make([]string, len(subs))
		for i, s := range subs {
			ids[i] = ID(s)
		}
		attr = fmt.Sprintf(` subElements="%s"`, strings.Join(ids, " "))
	}
	if inner == "" {
		return fmt.Sprintf(`  <monitoringControlElement xmi:id="%s" name="%s"%s/>`, ID(name), name, attr)
	}
	return fmt.Sprintf("  <monitoringControlElement xmi:id=\"%s\" name=\"%s\"%s>\n%s\n  </monitoringControlElement>",
		ID(name), name, attr, inner)
}

// Activity renders an activity aspect. An empty base renders a definition.
func Activity(name, base string) string {
	if base == "" {
		return fmt.Sprintf(`    <monitoringControlElementAspects xsi:type="monitoringcontrolmodel:Activity" xmi:id="%s" name="%s"/>`,
			ID(name), name)
	}
	return fmt.Sprintf(`    <monitoringControlElementAspects xsi:type="monitoringcontrolmodel:Activity" xmi:id="%s" name="%s" baseElement="%s"/>`,
		ID(name), name, ID(base))
}

// Scripts renders a ScriptCI holding one script per name.
func Scripts(version, prefix string, names ...string) string {
	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "  <script xmi:id=\"%s\" name=\"%s\" scriptContent=\"print('%s')\"/>\n", ID(n), n, n)
	}
	return CI("ScriptCI", version, prefix, "scripts", strings.TrimRight(b.String(), "\n"))
}

// Mapper renders a Script2ActivityMapperCI with one mapping.
func Mapper(version, prefix, name, scriptHref, activityHref string) string {
	body := fmt.Sprintf(`  <script2Activity xmi:id="%s" name="%s">
    <script href="%s"/>
    <activity href="%s"/>
  </script2Activity>`, ID(name), name, scriptHref, activityHref)
	return CI("Script2ActivityMapperCI", version, prefix, "mapper", body)
}

// FS returns an in-memory filesystem holding files (path -> content).
func FS(t testing.TB, files map[string]string) billy.Filesystem {
	t.Helper()
	fs := memfs.New()
	for p, content := range files {
		if err := util.WriteFile(fs, p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	return fs
}

// Directory is a small consistent configuration: an element tree
// root{A{C}, B} with one activity on A, one script and one mapping between
// them, all at version 1.14.0.
func Directory() map[string]string {
	v, p := "1.14.0", CurrentPrefix
	mcm := Mcm(v, p, strings.Join([]string{
		Element("root", []string{"A", "B"}, ""),
		Element("A", []string{"C"}, Activity("startDef", "")+"\n"+Activity("start", "startDef")),
		Element("B", nil, ""),
		Element("C", nil, ""),
	}, "\n"))
	return map[string]string{
		"cdm/mcm/mcm.cdm":         mcm,
		"cdm/scripts/scripts.cdm": Scripts(v, p, "s1"),
		"cdm/mappings/map.cdm": Mapper(v, p, "s1_start",
			"../scripts/scripts.cdm#"+ID("s1"), "../mcm/mcm.cdm#"+ID("start")),
	}
}
