package model

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/agentic-research/cdmctl/internal/cdmfile"
	"github.com/agentic-research/cdmctl/internal/ctxlog"
	"github.com/go-git/go-billy/v5/util"
)

// Save writes every live file back to its path and removes the files marked
// deleted. Failures are collected; a file that could not be removed stays
// marked for the next Save.
func (m *Model) Save(ctx context.Context) error {
	log := ctxlog.FromContext(ctx)
	var errs []error
	kept := m.files[:0]
	for _, f := range m.files {
		full := m.fullPath(f.Path)
		if f.Deleted() {
			if err := m.fs.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("remove %s: %w", f.Path, err))
				kept = append(kept, f)
				continue
			}
			delete(m.byPath, f.Path)
			log.Info("removed file", "file", f.Path)
			continue
		}
		if err := m.writeFile(full, f); err != nil {
			errs = append(errs, err)
		}
		kept = append(kept, f)
	}
	m.files = kept
	return errors.Join(errs...)
}

func (m *Model) writeFile(full string, f *cdmfile.File) error {
	data, err := f.Bytes()
	if err != nil {
		return fmt.Errorf("serialize %s: %w", f.Path, err)
	}
	if err := util.WriteFile(m.fs, full, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	return nil
}
