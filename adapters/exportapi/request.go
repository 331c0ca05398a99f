package exportapi

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/goliatone/go-gridexport/export"
)

// Request provides minimal request access for transport adapters.
type Request interface {
	Context() context.Context
	Method() string
	Path() string
	URL() *url.URL
	Header(name string) string
	Query(name string) string
}

const (
	placeholderPrefix = "ph."
	filterPrefix      = "f."
)

// DecodeQuery builds an export request for grid from querystring values.
//
//	title=Report          overrides the title
//	ph.org=Acme           replaces ${org} in the sheet
//	sort=-amount,name     sorts by amount desc then name
//	f.status=open         keeps items whose status equals "open"
func DecodeQuery(grid string, values url.Values) (export.ExportRequest, error) {
	req := export.ExportRequest{
		Grid:  strings.TrimSpace(grid),
		Title: strings.TrimSpace(values.Get("title")),
	}
	if req.Grid == "" {
		return export.ExportRequest{}, export.NewError(export.KindValidation, "grid name is required", nil)
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	filter := map[string]string{}
	for _, key := range keys {
		value := values.Get(key)
		switch {
		case strings.HasPrefix(key, placeholderPrefix):
			name := strings.TrimPrefix(key, placeholderPrefix)
			if name == "" {
				return export.ExportRequest{}, export.NewError(export.KindValidation, "placeholder name is required", nil)
			}
			if req.Placeholders == nil {
				req.Placeholders = map[string]string{}
			}
			req.Placeholders[export.PlaceholderToken(name)] = value
		case strings.HasPrefix(key, filterPrefix):
			field := strings.TrimPrefix(key, filterPrefix)
			if field == "" {
				return export.ExportRequest{}, export.NewError(export.KindValidation, "filter field is required", nil)
			}
			filter[field] = value
		}
	}
	if len(filter) > 0 {
		req.Filter = filter
	}
	req.Sorts = parseSortOrder(values.Get("sort"))
	return req, nil
}

func parseSortOrder(raw string) []export.SortOrder {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	sorts := make([]export.SortOrder, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		direction := export.SortAscending
		field := ""
		if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "+") {
			if strings.HasPrefix(trimmed, "-") {
				direction = export.SortDescending
			}
			field = strings.TrimSpace(trimmed[1:])
		} else {
			fields := strings.Fields(trimmed)
			if len(fields) > 0 {
				field = fields[0]
			}
			if len(fields) > 1 && strings.EqualFold(fields[1], "desc") {
				direction = export.SortDescending
			}
		}
		if field == "" {
			continue
		}
		sorts = append(sorts, export.SortOrder{Key: field, Direction: direction})
	}
	return sorts
}
