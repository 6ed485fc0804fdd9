package migrate

import "slices"

// Versions lists the known schema versions, oldest first.
var Versions = []string{
	"1.12.0",
	"1.12.1",
	"1.13.0bd1",
	"1.13.0",
	"1.14.0",
}

// Baseline is the version the built-in templates are written against.
const Baseline = "1.12.1"

const (
	legacyPrefix  = "http://www.egscc.esa.int/cdm/"
	currentPrefix = "http://www.esa.int/egscc/cdm/"
)

// prefixes holds the canonical namespace prefix of every known version.
var prefixes = map[string]string{
	"1.12.0":    legacyPrefix,
	"1.12.1":    legacyPrefix,
	"1.13.0bd1": currentPrefix,
	"1.13.0":    currentPrefix,
	"1.14.0":    currentPrefix,
}

// qudvNamespaces does not follow the prefix + path + version scheme; the
// units library was versioned on its own.
var qudvNamespaces = map[string]string{
	"1.12.0":    "http://www.omg.org/spec/SysML/20100301/QUDV",
	"1.12.1":    "http://www.omg.org/spec/SysML/20100301/QUDV",
	"1.13.0bd1": "http://www.esa.int/egscc/cdm/QUDV/1.0",
	"1.13.0":    "http://www.esa.int/egscc/cdm/QUDV/1.0",
	"1.14.0":    "http://www.esa.int/egscc/cdm/QUDV/1.1",
}

// namespacePaths maps each versioned namespace prefix to the path between
// the version prefix and the version.
var namespacePaths = map[string]string{
	"configurationcontrol":   "ConfigurationTracking/",
	"monitoringcontrolmodel": "MonitoringControl/MonitoringControlModel/",
	"packetization":          "Packetization/",
	"pusservices":            "PUSServices/",
	"datatypes":              "DataTypes/",
	"automation":             "Automation/",
}

const qudvPrefix = "qudv"

// PrefixFor returns the canonical namespace prefix of version.
func PrefixFor(version string) (string, bool) {
	p, ok := prefixes[version]
	return p, ok
}

// QUDVNamespace returns the units namespace used by version.
func QUDVNamespace(version string) (string, bool) {
	ns, ok := qudvNamespaces[version]
	return ns, ok
}

// NamespaceURI builds the URI of a versioned namespace such as
// "datatypes" for the given version prefix and version.
func NamespaceURI(nsPrefix, versionPrefix, version string) (string, bool) {
	path, ok := namespacePaths[nsPrefix]
	if !ok {
		return "", false
	}
	return versionPrefix + path + version, true
}

// Known reports whether version is in the version list.
func Known(version string) bool {
	return slices.Contains(Versions, version)
}
