package exportsql

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-gridexport/export"
	exportcallback "github.com/goliatone/go-gridexport/sources/callback"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// DefaultPageSize is the number of rows read per query page.
const DefaultPageSize = 500

// Provider serves grid items from a database table through Bun. Items are
// rows as map[string]any keyed by column name.
type Provider struct {
	DB       *bun.DB
	Table    string
	Columns  []string
	PageSize int

	// KeyColumns close every ORDER BY so pages do not overlap. When empty,
	// SQLite orders by rowid and other dialects by the first column.
	KeyColumns []string
}

// NewProvider creates a table-backed provider.
func NewProvider(db *bun.DB, table string, columns ...string) *Provider {
	return &Provider{DB: db, Table: table, Columns: columns}
}

// Fetch streams matching rows page by page.
func (p *Provider) Fetch(ctx context.Context, q export.Query) (export.ItemIterator, error) {
	if err := p.validate(q); err != nil {
		return nil, err
	}
	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	pages := &exportcallback.Provider{FetchPage: p.fetchPage, PageSize: pageSize}
	return pages.Fetch(ctx, q)
}

// Size counts the rows matching the query filter.
func (p *Provider) Size(ctx context.Context, q export.Query) (int, error) {
	if err := p.validate(q); err != nil {
		return 0, err
	}
	query, err := p.selectQuery(q.Filter)
	if err != nil {
		return 0, err
	}
	return query.Count(ctx)
}

func (p *Provider) fetchPage(ctx context.Context, q export.Query) ([]any, error) {
	query, err := p.selectQuery(q.Filter)
	if err != nil {
		return nil, err
	}
	if len(p.Columns) > 0 {
		query = query.Column(p.Columns...)
	}
	for _, order := range q.Sorts {
		direction := "ASC"
		if order.Direction == export.SortDescending {
			direction = "DESC"
		}
		query = query.OrderExpr("? "+direction, bun.Ident(order.Key))
	}
	for _, key := range p.pageOrder() {
		query = query.OrderExpr("? ASC", bun.Ident(key))
	}
	query = query.Offset(q.Offset).Limit(q.Limit)

	rows := make([]map[string]any, 0, q.Limit)
	if err := query.Scan(ctx, &rows); err != nil {
		return nil, err
	}
	items := make([]any, len(rows))
	for i, row := range rows {
		for key, value := range row {
			if raw, ok := value.([]byte); ok {
				row[key] = string(raw)
			}
		}
		items[i] = row
	}
	return items, nil
}

func (p *Provider) pageOrder() []string {
	if len(p.KeyColumns) > 0 {
		return p.KeyColumns
	}
	if p.DB.Dialect().Name() == dialect.SQLite {
		return []string{"rowid"}
	}
	if len(p.Columns) > 0 {
		return p.Columns[:1]
	}
	return nil
}

func (p *Provider) selectQuery(filter any) (*bun.SelectQuery, error) {
	values, err := filterValues(filter)
	if err != nil {
		return nil, err
	}
	query := p.DB.NewSelect().TableExpr("?", bun.Ident(p.Table))

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !p.allowed(key) {
			return nil, export.NewError(export.KindValidation, fmt.Sprintf("column %q cannot be filtered", key), nil)
		}
		query = query.Where("? = ?", bun.Ident(key), values[key])
	}
	return query, nil
}

func (p *Provider) validate(q export.Query) error {
	if p == nil || p.DB == nil {
		return export.NewError(export.KindNotImpl, "sql provider database not configured", nil)
	}
	if strings.TrimSpace(p.Table) == "" {
		return export.NewError(export.KindValidation, "sql provider table is required", nil)
	}
	for _, order := range q.Sorts {
		if !p.allowed(order.Key) {
			return export.NewError(export.KindValidation, fmt.Sprintf("column %q cannot be sorted", order.Key), nil)
		}
	}
	for _, key := range p.KeyColumns {
		if !isIdentifier(key) {
			return export.NewError(export.KindValidation, fmt.Sprintf("invalid key column %q", key), nil)
		}
	}
	return nil
}

// allowed reports whether a column may appear in WHERE or ORDER BY. With no
// configured columns, any plain identifier is accepted.
func (p *Provider) allowed(column string) bool {
	if len(p.Columns) == 0 {
		return isIdentifier(column)
	}
	for _, candidate := range p.Columns {
		if candidate == column {
			return true
		}
	}
	return false
}

func isIdentifier(value string) bool {
	if value == "" {
		return false
	}
	for i, r := range value {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func filterValues(filter any) (map[string]any, error) {
	switch f := filter.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return f, nil
	case map[string]string:
		out := make(map[string]any, len(f))
		for key, value := range f {
			out[key] = value
		}
		return out, nil
	default:
		return nil, export.NewError(export.KindValidation, fmt.Sprintf("unsupported filter type %T", filter), nil)
	}
}
