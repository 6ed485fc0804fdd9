package model

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/agentic-research/cdmctl/internal/cdmfile"
	"github.com/agentic-research/cdmctl/internal/cdmtest"
	"github.com/agentic-research/cdmctl/internal/ctxlog"
	"github.com/agentic-research/cdmctl/internal/migrate"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCtx() context.Context {
	return ctxlog.WithLogger(context.Background(), ctxlog.Discard())
}

type recorder struct {
	fractions []float64
	done      int
}

func (r *recorder) SetProgress(f float64) { r.fractions = append(r.fractions, f) }
func (r *recorder) Done()                 { r.done++ }

func load(t *testing.T, files map[string]string) *Model {
	t.Helper()
	m := New(cdmtest.FS(t, files))
	require.NoError(t, m.LoadDirectory(testCtx(), "cdm", nil))
	return m
}

func elementByName(t *testing.T, m *Model, name string) *cdmfile.Element {
	t.Helper()
	for _, e := range m.Elements() {
		if e.Name() == name {
			return e
		}
	}
	t.Fatalf("no element named %s", name)
	return nil
}

func TestLoadDirectoryClassifiesFiles(t *testing.T) {
	m := load(t, cdmtest.Directory())

	assert.Len(t, m.Files(), 3)
	assert.Len(t, m.Elements(), 4)
	require.Len(t, m.Roots(), 1)
	assert.Equal(t, "root", m.Roots()[0].Name())
	assert.Len(t, m.Scripts(), 1)
	assert.Len(t, m.Activities(), 1)
	assert.Len(t, m.Definitions(), 1)
	assert.Len(t, m.MappingCIs(), 1)
	require.Len(t, m.Mappings(), 1)
	assert.Empty(t, m.LoadErrors())

	mp := m.Mappings()[0]
	assert.False(t, mp.Dangling())
	assert.Equal(t, "s1", mp.Source.Name())
	assert.Equal(t, "start", mp.Activity.Name())
}

func TestTreePath(t *testing.T) {
	m := load(t, cdmtest.Directory())

	c, err := m.Element(cdmtest.ID("C"))
	require.NoError(t, err)
	assert.Equal(t, "root.A.C", c.Path())

	var names []string
	for child := range m.Roots()[0].Children() {
		names = append(names, child.Name())
	}
	assert.Equal(t, []string{"A", "B"}, names)

	_, err = m.Element(cdmtest.ID("start"))
	assert.Error(t, err, "an activity id is not an element")
}

func TestLoadProgress(t *testing.T) {
	m := New(cdmtest.FS(t, cdmtest.Directory()))
	var r recorder
	require.NoError(t, m.LoadDirectory(testCtx(), "cdm", &r))

	require.Len(t, r.fractions, 3)
	assert.InDelta(t, 1.0/3, r.fractions[0], 1e-9)
	assert.InDelta(t, 1.0, r.fractions[2], 1e-9)
	assert.Equal(t, 1, r.done)
}

func TestLoadExcludesBadFiles(t *testing.T) {
	files := cdmtest.Directory()
	files["cdm/broken.cdm"] = `<configurationcontrol:McmCI><unclosed>`
	files["cdm/binary.cdm"] = "\x89emf\n\r\x1a\nrest"
	files["cdm/notes.txt"] = "ignored"
	m := load(t, files)

	assert.Len(t, m.Files(), 3)
	errs := m.LoadErrors()
	require.Len(t, errs, 2)

	var parseErrs, binary int
	for _, err := range errs {
		var pe *cdmfile.ParseError
		switch {
		case errors.As(err, &pe):
			parseErrs++
			assert.Equal(t, "broken.cdm", pe.Path)
		case errors.Is(err, cdmfile.ErrUnsupportedBinaryFormat):
			binary++
		}
	}
	assert.Equal(t, 1, parseErrs)
	assert.Equal(t, 1, binary)
}

func TestLoadWithoutCdmFiles(t *testing.T) {
	m := New(cdmtest.FS(t, map[string]string{"cdm/readme.txt": "nothing here"}))
	err := m.LoadDirectory(testCtx(), "cdm", nil)
	require.ErrorIs(t, err, ErrNoCdmFiles)
}

func TestLoadWithOnlyBrokenFiles(t *testing.T) {
	var r recorder
	m := New(cdmtest.FS(t, map[string]string{"cdm/a.cdm": "<a>", "cdm/b.cdm": "\x00\x01"}))
	err := m.LoadDirectory(testCtx(), "cdm", &r)
	require.ErrorIs(t, err, ErrNoCdmFiles)
	require.ErrorIs(t, err, cdmfile.ErrUnsupportedBinaryFormat)
	assert.Len(t, m.LoadErrors(), 2)
	assert.Equal(t, 1, r.done)
}

func TestLoadMissingDirectory(t *testing.T) {
	m := New(cdmtest.FS(t, nil))
	assert.Error(t, m.LoadDirectory(testCtx(), "nowhere", nil))
}

func TestLoadResetsState(t *testing.T) {
	fs := cdmtest.FS(t, cdmtest.Directory())
	require.NoError(t, util.WriteFile(fs, "other/mcm.cdm",
		[]byte(cdmtest.Mcm("1.14.0", cdmtest.CurrentPrefix, cdmtest.Element("solo", nil, ""))), 0o644))
	m := New(fs)
	require.NoError(t, m.LoadDirectory(testCtx(), "cdm", nil))
	require.NoError(t, m.LoadDirectory(testCtx(), "other", nil))

	assert.Len(t, m.Files(), 1)
	assert.Len(t, m.Elements(), 1)
	assert.Empty(t, m.Scripts())
	assert.Empty(t, m.Mappings())
}

func TestCheckValidityConsistent(t *testing.T) {
	m := load(t, cdmtest.Directory())
	n, msgs := m.CheckValidity()
	assert.Equal(t, 0, n, msgs)
}

func TestCheckValidityMixedVersions(t *testing.T) {
	m := load(t, map[string]string{
		"cdm/old.cdm": cdmtest.Mcm("1.12.1", cdmtest.LegacyPrefix, cdmtest.Element("old", nil, "")),
		"cdm/new.cdm": cdmtest.Mcm("1.14.0", cdmtest.CurrentPrefix, cdmtest.Element("new", nil, "")),
	})
	n, msgs := m.CheckValidity()
	require.Equal(t, 1, n, msgs)
	assert.Contains(t, msgs[0], "1.12.1")
	assert.Contains(t, msgs[0], "1.14.0")
}

func TestCheckValidityMissingVersion(t *testing.T) {
	m := load(t, map[string]string{
		"cdm/versioned.cdm": cdmtest.Mcm("1.14.0", cdmtest.CurrentPrefix, cdmtest.Element("a", nil, "")),
		"cdm/bare.cdm":      cdmtest.CI(cdmfile.KindScript, "", "", "bare", ""),
	})
	n, msgs := m.CheckValidity()
	require.Equal(t, 3, n, msgs)
	assert.Contains(t, msgs[0], "no version declared")
	assert.Contains(t, msgs[1], "no version prefix")
	assert.Contains(t, msgs[2], "(none)")
}

func TestCheckValidityPrefixMismatch(t *testing.T) {
	m := load(t, map[string]string{
		"cdm/mcm.cdm": cdmtest.Mcm("1.14.0", cdmtest.LegacyPrefix, cdmtest.Element("a", nil, "")),
	})
	n, msgs := m.CheckValidity()
	require.Equal(t, 1, n, msgs)
	assert.Contains(t, msgs[0], "does not match")
}

func TestSharedChildLastParentWins(t *testing.T) {
	body := strings.Join([]string{
		cdmtest.Element("first", []string{"X"}, ""),
		cdmtest.Element("second", []string{"X"}, ""),
		cdmtest.Element("X", nil, ""),
	}, "\n")
	m := load(t, map[string]string{"cdm/mcm.cdm": cdmtest.Mcm("1.14.0", cdmtest.CurrentPrefix, body)})

	x := elementByName(t, m, "X")
	assert.Equal(t, "second.X", x.Path())
	assert.Len(t, m.Roots(), 2)

	n, msgs := m.CheckValidity()
	require.Equal(t, 1, n, msgs)
	assert.Contains(t, msgs[0], "first, second")
}

func TestDuplicateIDsAreReported(t *testing.T) {
	m := load(t, map[string]string{
		"cdm/a.cdm": cdmtest.Mcm("1.14.0", cdmtest.CurrentPrefix, cdmtest.Element("same", nil, "")),
		"cdm/b.cdm": cdmtest.Mcm("1.14.0", cdmtest.CurrentPrefix, cdmtest.Element("same", nil, "")),
	})
	assert.Len(t, m.Elements(), 1)
	n, msgs := m.CheckValidity()
	require.Equal(t, 1, n, msgs)
	assert.Contains(t, msgs[0], "already defined in a.cdm")
}

func TestDanglingMapping(t *testing.T) {
	files := cdmtest.Directory()
	delete(files, "cdm/scripts/scripts.cdm")
	m := load(t, files)

	require.Len(t, m.Mappings(), 1)
	assert.True(t, m.Mappings()[0].Dangling())
	assert.NotNil(t, m.Mappings()[0].Activity)

	n, msgs := m.CheckValidity()
	require.Equal(t, 1, n, msgs)
	assert.Contains(t, msgs[0], "../scripts/scripts.cdm")
}

func TestMappingHrefMustPointIntoNamedFile(t *testing.T) {
	files := cdmtest.Directory()
	// Right id, wrong file.
	files["cdm/mappings/map.cdm"] = cdmtest.Mapper("1.14.0", cdmtest.CurrentPrefix, "m",
		"../mcm/mcm.cdm#"+cdmtest.ID("s1"), "../mcm/mcm.cdm#"+cdmtest.ID("start"))
	m := load(t, files)
	require.Len(t, m.Mappings(), 1)
	assert.Nil(t, m.Mappings()[0].Source)
}

func TestModelMigrate(t *testing.T) {
	m := load(t, cdmtest.Directory())
	require.NoError(t, m.Migrate(testCtx(), "1.12.1", ""))

	assert.Equal(t, []string{"1.12.1"}, m.Versions())
	n, msgs := m.CheckValidity()
	assert.Equal(t, 0, n, msgs)
	assert.Len(t, m.Mappings(), 1)

	require.NoError(t, m.Save(testCtx()))
	require.NoError(t, m.LoadDirectory(testCtx(), "cdm", nil))
	assert.Equal(t, []string{"1.12.1"}, m.Versions())
	assert.Equal(t, migrate.Baseline, m.Files()[0].Version())
}

func TestModelMigrateReportsUnknownVersions(t *testing.T) {
	files := cdmtest.Directory()
	files["cdm/odd.cdm"] = cdmtest.Mcm("0.9", cdmtest.CurrentPrefix, cdmtest.Element("odd", nil, ""))
	m := load(t, files)

	err := m.Migrate(testCtx(), "1.13.0", "")
	var pairErr *migrate.UnknownVersionPairError
	require.ErrorAs(t, err, &pairErr)
	assert.Equal(t, "0.9", pairErr.From)
	assert.ElementsMatch(t, []string{"0.9", "1.13.0"}, m.Versions())
}
