package export

import (
	"context"
	"database/sql"
	"path/filepath"
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
	require.NoError(t, m.LoadDirectory(testCtx(), "cdm", nil))
	return m
}

func testCtx() context.Context {
	return ctxlog.WithLogger(context.Background(), ctxlog.Discard())
}

func count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestExportWritesOneRowPerEntity(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cdm.db")
	c, err := Model(testCtx(), loadFixture(t), dbPath)
	require.NoError(t, err)
	assert.Equal(t, Counts{Files: 3, Elements: 4, Activities: 2, Scripts: 1, Mappings: 1}, c)

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	assert.Equal(t, 3, count(t, db, "files"))
	assert.Equal(t, 4, count(t, db, "elements"))
	assert.Equal(t, 2, count(t, db, "activities"))
	assert.Equal(t, 1, count(t, db, "scripts"))
	assert.Equal(t, 1, count(t, db, "mappings"))

	var path string
	var parent sql.NullString
	require.NoError(t, db.QueryRow("SELECT path, parent_id FROM elements WHERE name = 'C'").Scan(&path, &parent))
	assert.Equal(t, "root.A.C", path)
	assert.Equal(t, cdmtest.ID("A"), parent.String)

	var rootParent sql.NullString
	require.NoError(t, db.QueryRow("SELECT parent_id FROM elements WHERE name = 'root'").Scan(&rootParent))
	assert.False(t, rootParent.Valid)

	var sourceID, activityID string
	require.NoError(t, db.QueryRow("SELECT source_id, activity_id FROM mappings").Scan(&sourceID, &activityID))
	assert.Equal(t, cdmtest.ID("s1"), sourceID)
	assert.Equal(t, cdmtest.ID("start"), activityID)

	var definitions int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM activities WHERE definition = 1").Scan(&definitions))
	assert.Equal(t, 1, definitions)
}

func TestExportIsRepeatable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cdm.db")
	m := loadFixture(t)
	_, err := Model(testCtx(), m, dbPath)
	require.NoError(t, err)
	_, err = Model(testCtx(), m, dbPath)
	require.NoError(t, err)

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	assert.Equal(t, 4, count(t, db, "elements"))
}

func TestExportBadPath(t *testing.T) {
	_, err := Model(testCtx(), loadFixture(t), filepath.Join(t.TempDir(), "missing", "dir", "cdm.db"))
	require.Error(t, err)
}
