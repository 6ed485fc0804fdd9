package report

import (
	"context"
	"strings"
	"testing"

	"github.com/agentic-research/cdmctl/internal/cdmtest"
	"github.com/agentic-research/cdmctl/internal/ctxlog"
	"github.com/agentic-research/cdmctl/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T) *model.Model {
	t.Helper()
	m := model.New(cdmtest.FS(t, cdmtest.Directory()))
	ctx := ctxlog.WithLogger(context.Background(), ctxlog.Discard())
	require.NoError(t, m.LoadDirectory(ctx, "cdm", nil))
	return m
}

func TestQueryElementNames(t *testing.T) {
	doc := Build(loadFixture(t))

	names, err := Query(doc, "$.elements[*].name")
	require.NoError(t, err)
	assert.Equal(t, []any{"root", "A", "B", "C"}, names)

	paths, err := Query(doc, "$.elements[?(@.name == 'C')].path")
	require.NoError(t, err)
	assert.Equal(t, []any{"root.A.C"}, paths)

	acts, err := Query(doc, "$.elements[*].activities[*].name")
	require.NoError(t, err)
	assert.Equal(t, []any{"start"}, acts)
}

func TestBuildSummary(t *testing.T) {
	doc := Build(loadFixture(t))

	assert.Equal(t, []any{"1.14.0"}, doc["versions"])
	assert.Equal(t, []any{"root"}, doc["roots"])
	assert.Empty(t, doc["problems"])

	mapped, err := Query(doc, "$.mappings[0].source")
	require.NoError(t, err)
	assert.Equal(t, []any{"s1"}, mapped)
}

func TestQueryInvalidExpression(t *testing.T) {
	_, err := Query(map[string]any{}, "$[")
	require.Error(t, err)
}

func TestJSONSortsKeys(t *testing.T) {
	out := JSON(map[string]any{"b": 1, "a": []any{"x"}})
	assert.Less(t, strings.Index(out, `"a"`), strings.Index(out, `"b"`))
}
