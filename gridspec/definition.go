package gridspec

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-gridexport/export"
	exportmemory "github.com/goliatone/go-gridexport/sources/memory"
	exportsql "github.com/goliatone/go-gridexport/sources/sql"
)

// LoadItems decodes a JSON array of objects.
func LoadItems(r io.Reader) ([]any, error) {
	var raw []map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, export.NewError(export.KindValidation, "data must be a JSON array of objects", err)
	}
	items := make([]any, len(raw))
	for i, item := range raw {
		items[i] = item
	}
	return items, nil
}

// Definition builds the grid definition. JSON data is read once, when the
// definition is built. db is required only for sql specs.
func (s Spec) Definition(db *bun.DB) (export.GridDefinition, error) {
	if err := s.Validate(); err != nil {
		return export.GridDefinition{}, err
	}
	columns, err := convertColumns(s.Columns)
	if err != nil {
		return export.GridDefinition{}, err
	}
	provider, err := s.provider(db)
	if err != nil {
		return export.GridDefinition{}, err
	}

	return export.GridDefinition{
		Name:            s.Name,
		Options:         s.Options(),
		DefaultFilename: s.Filename,
		Build: func(ctx context.Context, req export.ExportRequest) (export.Grid, error) {
			return export.Grid{
				Columns:  append([]export.Column(nil), columns...),
				Provider: provider,
			}, nil
		},
	}, nil
}

func (s Spec) provider(db *bun.DB) (export.DataProvider, error) {
	switch {
	case s.SQL != nil:
		if db == nil {
			return nil, export.NewError(export.KindNotImpl, fmt.Sprintf("grid %q needs a database", s.Name), nil)
		}
		provider := exportsql.NewProvider(db, s.SQL.Table, s.SQL.Columns...)
		provider.PageSize = s.SQL.PageSize
		return provider, nil
	case s.Data != "":
		path := s.Data
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.Dir, path)
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, export.NewError(export.KindNotFound, fmt.Sprintf("grid %q data", s.Name), err)
		}
		defer f.Close()
		items, err := LoadItems(f)
		if err != nil {
			return nil, fmt.Errorf("grid %q: %w", s.Name, err)
		}
		return exportmemory.NewListProvider(items...), nil
	default:
		return exportmemory.NewListProvider(), nil
	}
}

// Register adds every spec to the registry.
func Register(reg *export.GridRegistry, specs []Spec, db *bun.DB) error {
	if reg == nil {
		return export.NewError(export.KindInternal, "grid registry is nil", nil)
	}
	for _, spec := range specs {
		def, err := spec.Definition(db)
		if err != nil {
			return err
		}
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}
