// Package export writes a loaded configuration to a SQLite database for
// ad-hoc querying.
package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/agentic-research/cdmctl/internal/cdmfile"
	"github.com/agentic-research/cdmctl/internal/ctxlog"
	"github.com/agentic-research/cdmctl/internal/model"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS files (
	path TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	version TEXT,
	prefix TEXT
);

CREATE TABLE IF NOT EXISTS elements (
	id TEXT PRIMARY KEY,
	parent_id TEXT,
	name TEXT NOT NULL,
	path TEXT NOT NULL,
	file TEXT NOT NULL,
	attrs JSON
);

CREATE TABLE IF NOT EXISTS activities (
	id TEXT PRIMARY KEY,
	element_id TEXT NOT NULL,
	name TEXT NOT NULL,
	alias TEXT,
	base_element TEXT,
	definition INTEGER NOT NULL,
	file TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scripts (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	procedure INTEGER NOT NULL,
	source TEXT,
	file TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS mappings (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	procedure INTEGER NOT NULL,
	source_id TEXT,
	activity_id TEXT,
	source_href TEXT NOT NULL,
	activity_href TEXT NOT NULL,
	file TEXT NOT NULL
);
`

// SQLiteWriter writes entities inside a single transaction committed by Close.
type SQLiteWriter struct {
	db *sql.DB
	tx *sql.Tx

	stmtFile     *sql.Stmt
	stmtElement  *sql.Stmt
	stmtActivity *sql.Stmt
	stmtScript   *sql.Stmt
	stmtMapping  *sql.Stmt
}

// NewSQLiteWriter opens (or creates) dbPath and prepares the schema.
func NewSQLiteWriter(dbPath string) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = MEMORY"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	w := &SQLiteWriter{db: db}
	if err := w.begin(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *SQLiteWriter) begin() error {
	var err error
	if w.tx, err = w.db.Begin(); err != nil {
		return err
	}
	prepare := func(q string) *sql.Stmt {
		if err != nil {
			return nil
		}
		var s *sql.Stmt
		s, err = w.tx.Prepare(q)
		return s
	}
	w.stmtFile = prepare(`INSERT OR REPLACE INTO files (path, kind, version, prefix) VALUES (?, ?, ?, ?)`)
	w.stmtElement = prepare(`INSERT OR REPLACE INTO elements (id, parent_id, name, path, file, attrs) VALUES (?, ?, ?, ?, ?, ?)`)
	w.stmtActivity = prepare(`INSERT OR REPLACE INTO activities (id, element_id, name, alias, base_element, definition, file) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	w.stmtScript = prepare(`INSERT OR REPLACE INTO scripts (id, name, procedure, source, file) VALUES (?, ?, ?, ?, ?)`)
	w.stmtMapping = prepare(`INSERT OR REPLACE INTO mappings (id, name, procedure, source_id, activity_id, source_href, activity_href, file) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	return err
}

func (w *SQLiteWriter) AddFile(f *cdmfile.File) error {
	_, err := w.stmtFile.Exec(f.Path, f.Kind(), nullable(f.Version()), nullable(f.VersionPrefix()))
	return err
}

func (w *SQLiteWriter) AddElement(e *cdmfile.Element) error {
	var parentID *string
	if p := e.Parent(); p != nil {
		id := p.ID()
		parentID = &id
	}
	attrs := make(map[string]string)
	for _, a := range e.Element().Attr {
		attrs[a.FullKey()] = a.Value
	}
	record, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	_, err = w.stmtElement.Exec(e.ID(), parentID, e.Name(), e.Path(), e.File().Path, record)
	return err
}

func (w *SQLiteWriter) AddActivity(a *cdmfile.Activity) error {
	base, _ := a.BaseElement()
	_, err := w.stmtActivity.Exec(a.ID(), a.ElementID, a.Name(), nullable(a.Alias()), nullable(base),
		a.IsDefinition(), a.File().Path)
	return err
}

func (w *SQLiteWriter) AddScript(s *cdmfile.Script) error {
	_, err := w.stmtScript.Exec(s.ID(), s.Name(), s.Procedure, s.Source(), s.File().Path)
	return err
}

func (w *SQLiteWriter) AddMapping(m *model.Mapping) error {
	var sourceID, activityID *string
	if m.Source != nil {
		id := m.Source.ID()
		sourceID = &id
	}
	if m.Activity != nil {
		id := m.Activity.ID()
		activityID = &id
	}
	_, err := w.stmtMapping.Exec(m.ID(), m.Name(), m.Procedure, sourceID, activityID,
		m.SourceHref(), m.ActivityHref(), m.File().Path)
	return err
}

// Close commits the transaction and closes the database.
func (w *SQLiteWriter) Close() error {
	for _, s := range []*sql.Stmt{w.stmtFile, w.stmtElement, w.stmtActivity, w.stmtScript, w.stmtMapping} {
		if s != nil {
			_ = s.Close()
		}
	}
	if err := w.tx.Commit(); err != nil {
		_ = w.db.Close()
		return err
	}
	return w.db.Close()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Counts is the number of rows written per table.
type Counts struct {
	Files, Elements, Activities, Scripts, Mappings int
}

// Model writes every live entity of m to a new or existing database at
// dbPath. Rows are replaced by id.
func Model(ctx context.Context, m *model.Model, dbPath string) (Counts, error) {
	var c Counts
	w, err := NewSQLiteWriter(dbPath)
	if err != nil {
		return c, err
	}

	err = func() error {
		for _, f := range m.Files() {
			if err := w.AddFile(f); err != nil {
				return fmt.Errorf("file %s: %w", f.Path, err)
			}
			c.Files++
		}
		for _, e := range m.Elements() {
			if err := w.AddElement(e); err != nil {
				return fmt.Errorf("element %s: %w", e.ID(), err)
			}
			c.Elements++
		}
		for _, list := range [][]*cdmfile.Activity{m.Definitions(), m.Activities()} {
			for _, a := range list {
				if err := w.AddActivity(a); err != nil {
					return fmt.Errorf("activity %s: %w", a.ID(), err)
				}
				c.Activities++
			}
		}
		for _, s := range m.Scripts() {
			if err := w.AddScript(s); err != nil {
				return fmt.Errorf("script %s: %w", s.ID(), err)
			}
			c.Scripts++
		}
		for _, mp := range m.Mappings() {
			if err := w.AddMapping(mp); err != nil {
				return fmt.Errorf("mapping %s: %w", mp.ID(), err)
			}
			c.Mappings++
		}
		return nil
	}()
	if err != nil {
		_ = w.tx.Rollback()
		_ = w.db.Close()
		return c, fmt.Errorf("export %s: %w", dbPath, err)
	}
	if err := w.Close(); err != nil {
		return c, fmt.Errorf("export %s: %w", dbPath, err)
	}
	ctxlog.FromContext(ctx).Info("exported configuration", "db", dbPath,
		"files", c.Files, "elements", c.Elements, "activities", c.Activities,
		"scripts", c.Scripts, "mappings", c.Mappings)
	return c, nil
}
