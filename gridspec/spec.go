// Package gridspec loads grid definitions from YAML files.
//
//	name: orders
//	title: Open orders
//	filename: "orders_{{.Date}}"
//	template: invoice
//	placeholders:
//	  org: Acme
//	data: orders.json
//	columns:
//	  - key: number
//	    header: Number
//	  - key: amount
//	    header: Amount
//	    align: end
//	    type: number
//	    pattern: "#,##0.00"
//	    format: "0.00"
//
// A spec reads its items either from a JSON file (data) or from a database
// table (sql).
package gridspec

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-gridexport/export"
)

// Column is the YAML form of export.Column.
type Column struct {
	Key        string `yaml:"key"`
	Header     string `yaml:"header"`
	Footer     string `yaml:"footer"`
	Align      string `yaml:"align"`
	Hidden     bool   `yaml:"hidden"`
	Exportable *bool  `yaml:"exportable"`
	Type       string `yaml:"type"`
	Pattern    string `yaml:"pattern"`
	Format     string `yaml:"format"`
	Position   *int   `yaml:"position"`
}

// SQLSource points a grid at a database table.
type SQLSource struct {
	Table    string   `yaml:"table"`
	Columns  []string `yaml:"columns"`
	PageSize int      `yaml:"page_size"`
}

// Spec is a grid declared in YAML.
type Spec struct {
	Name         string            `yaml:"name"`
	Title        string            `yaml:"title"`
	Filename     string            `yaml:"filename"`
	Template     string            `yaml:"template"`
	Sheet        int               `yaml:"sheet"`
	Timezone     string            `yaml:"timezone"`
	MaxRows      int               `yaml:"max_rows"`
	AutoMerge    *bool             `yaml:"auto_merge_title"`
	AutoSize     *bool             `yaml:"auto_size_columns"`
	Placeholders map[string]string `yaml:"placeholders"`
	Data         string            `yaml:"data"`
	SQL          *SQLSource        `yaml:"sql"`
	Columns      []Column          `yaml:"columns"`

	// Dir is the directory the grid file was loaded from. Data paths resolve
	// against it.
	Dir string `yaml:"-"`
}

// Parse decodes a single grid spec.
func Parse(data []byte) (Spec, error) {
	var spec Spec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return Spec{}, export.NewError(export.KindValidation, "invalid grid spec", err)
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

// ParseColumns decodes a YAML list of columns.
func ParseColumns(data []byte) ([]export.Column, error) {
	var raw []Column
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil {
		return nil, export.NewError(export.KindValidation, "invalid column spec", err)
	}
	return convertColumns(raw)
}

// LoadFile reads a grid spec from path.
func LoadFile(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, err
	}
	spec, err := Parse(data)
	if err != nil {
		return Spec{}, fmt.Errorf("%s: %w", path, err)
	}
	spec.Dir = filepath.Dir(path)
	return spec, nil
}

// LoadDir reads every *.yaml and *.yml file in dir, sorted by file name.
func LoadDir(dir string) ([]Spec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	specs := make([]Spec, 0, len(names))
	seen := map[string]string{}
	for _, name := range names {
		spec, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[spec.Name]; ok {
			return nil, export.NewError(export.KindValidation, fmt.Sprintf("grid %q declared in %s and %s", spec.Name, prev, name), nil)
		}
		seen[spec.Name] = name
		specs = append(specs, spec)
	}
	return specs, nil
}

// Validate checks the grid declaration without touching its data source.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return export.NewError(export.KindValidation, "grid spec name is required", nil)
	}
	if len(s.Columns) == 0 {
		return export.NewError(export.KindValidation, fmt.Sprintf("grid %q has no columns", s.Name), nil)
	}
	if s.Data != "" && s.SQL != nil {
		return export.NewError(export.KindValidation, fmt.Sprintf("grid %q declares both data and sql", s.Name), nil)
	}
	if s.SQL != nil && strings.TrimSpace(s.SQL.Table) == "" {
		return export.NewError(export.KindValidation, fmt.Sprintf("grid %q sql table is required", s.Name), nil)
	}
	_, err := convertColumns(s.Columns)
	return err
}

// Options returns the declared template options.
func (s Spec) Options() export.Options {
	placeholders := make(map[string]string, len(s.Placeholders))
	for key, value := range s.Placeholders {
		placeholders[export.PlaceholderToken(key)] = value
	}
	if len(placeholders) == 0 {
		placeholders = nil
	}
	return export.Options{
		Title:                  s.Title,
		Template:               s.Template,
		SheetIndex:             s.Sheet,
		MaxRows:                s.MaxRows,
		AutoMergeTitle:         s.AutoMerge,
		AutoSizeColumns:        s.AutoSize,
		AdditionalPlaceholders: placeholders,
		Format:                 export.FormatOptions{Timezone: s.Timezone},
	}
}

func convertColumns(raw []Column) ([]export.Column, error) {
	columns := make([]export.Column, 0, len(raw))
	for i, col := range raw {
		converted, err := col.ExportColumn()
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i+1, err)
		}
		columns = append(columns, converted)
	}
	return columns, nil
}

// ExportColumn converts the YAML column.
func (c Column) ExportColumn() (export.Column, error) {
	if strings.TrimSpace(c.Key) == "" {
		return export.Column{}, export.NewError(export.KindValidation, "column key is required", nil)
	}
	align, err := parseAlign(c.Align)
	if err != nil {
		return export.Column{}, err
	}
	colType, err := parseType(c.Type)
	if err != nil {
		return export.Column{}, err
	}
	return export.Column{
		Key:          c.Key,
		Header:       c.Header,
		Footer:       c.Footer,
		TextAlign:    align,
		Hidden:       c.Hidden,
		Exportable:   c.Exportable,
		Type:         colType,
		ParsePattern: c.Pattern,
		ExcelFormat:  c.Format,
		Position:     c.Position,
	}, nil
}

func parseAlign(raw string) (export.TextAlign, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return "", nil
	case "start", "left":
		return export.AlignStart, nil
	case "center":
		return export.AlignCenter, nil
	case "end", "right":
		return export.AlignEnd, nil
	default:
		return "", export.NewError(export.KindValidation, fmt.Sprintf("unknown alignment %q", raw), nil)
	}
}

func parseType(raw string) (export.ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "auto":
		return export.ColumnTypeAuto, nil
	case "number":
		return export.ColumnTypeNumber, nil
	case "date":
		return export.ColumnTypeDate, nil
	default:
		return "", export.NewError(export.KindValidation, fmt.Sprintf("unknown column type %q", raw), nil)
	}
}
