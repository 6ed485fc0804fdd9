package model

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"path"
	"slices"
	"strings"
	"text/template"

	"github.com/agentic-research/cdmctl/internal/cdmfile"
	"github.com/agentic-research/cdmctl/internal/ctxlog"
	"github.com/agentic-research/cdmctl/internal/migrate"
	"github.com/agentic-research/cdmctl/internal/uuidcodec"
	"github.com/go-git/go-billy/v5/util"
)

// Built-in skeletons for CreateNewCdm, all written against migrate.Baseline.
const (
	TemplateRoot             = "root"
	TemplateRootRouteSAP     = "root_route_sap"
	TemplateRootRouteSAPType = "root_route_sap_ex_type"

	mapperTemplate = "mapper"
)

// Templates lists the names accepted by CreateNewCdm.
var Templates = []string{TemplateRoot, TemplateRootRouteSAP, TemplateRootRouteSAPType}

// NewCdmFileName is the file CreateNewCdm writes into the target directory.
const NewCdmFileName = "mcm" + cdmfile.Extension

//go:embed templates/*.tmpl
var templateFS embed.FS

var tmplFuncs = template.FuncMap{
	"newID": uuidcodec.NewID,
}

var templates = template.Must(template.New("").Funcs(tmplFuncs).ParseFS(templateFS, "templates/*.tmpl"))

type templateData struct {
	Name    string
	Version string
	Prefix  string
}

func renderTemplate(name string, data templateData) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name+".cdm.tmpl", data); err != nil {
		return nil, fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// CreateNewCdm writes a new McmCI built from template into dir, migrated
// to version and prefix (empty for the canonical one), then loads dir. dir
// must already exist.
func (m *Model) CreateNewCdm(ctx context.Context, dir, version, prefix, tmpl string) error {
	info, err := m.fs.Stat(dir)
	if err != nil {
		return fmt.Errorf("create cdm: directory %s does not exist: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("create cdm: %s is not a directory", dir)
	}
	if !slices.Contains(Templates, tmpl) {
		return fmt.Errorf("create cdm: unknown template %q, want one of %s", tmpl, strings.Join(Templates, ", "))
	}
	if !slices.Contains(m.migrator.Versions(), version) {
		return fmt.Errorf("create cdm: %w", &migrate.UnknownVersionPairError{From: migrate.Baseline, To: version})
	}
	target := path.Join(dir, NewCdmFileName)
	if _, err := m.fs.Stat(target); err == nil {
		return fmt.Errorf("create cdm: %s already exists", target)
	}

	basePrefix, _ := migrate.PrefixFor(migrate.Baseline)
	data, err := renderTemplate(tmpl, templateData{Name: tmpl, Version: migrate.Baseline, Prefix: basePrefix})
	if err != nil {
		return fmt.Errorf("create cdm: %w", err)
	}
	f, err := cdmfile.Parse(NewCdmFileName, data)
	if err != nil {
		return fmt.Errorf("create cdm: %w", err)
	}
	if err := m.migrator.Migrate(ctx, f, version, prefix); err != nil {
		return fmt.Errorf("create cdm: %w", err)
	}
	out, err := f.Bytes()
	if err != nil {
		return fmt.Errorf("create cdm: %w", err)
	}
	if err := util.WriteFile(m.fs, target, out, 0o644); err != nil {
		return fmt.Errorf("create cdm: %w", err)
	}
	ctxlog.FromContext(ctx).Info("created configuration", "file", target, "template", tmpl, "version", version)
	return m.LoadDirectory(ctx, dir, nil)
}
