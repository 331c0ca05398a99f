package export

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// IsExportable reports whether the column takes part in exports. Visible
// columns export unless excluded; hidden columns only when forced.
func (c Column) IsExportable() bool {
	if c.Hidden {
		return c.Exportable != nil && *c.Exportable
	}
	return c.Exportable == nil || *c.Exportable
}

// HeaderText returns the header label, falling back to the key.
func (c Column) HeaderText() string {
	if c.Header != "" {
		return c.Header
	}
	return c.Key
}

// ExportableColumns returns the exported columns in export order.
func ExportableColumns(grid Grid) []Column {
	type indexed struct {
		col   Column
		index int
	}
	selected := make([]indexed, 0, len(grid.Columns))
	for i, col := range grid.Columns {
		if col.IsExportable() {
			selected = append(selected, indexed{col: col, index: i})
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		left, right := selected[i].col.Position, selected[j].col.Position
		switch {
		case left != nil && right != nil:
			return *left < *right
		case left != nil:
			return true
		default:
			return false
		}
	})

	out := make([]Column, len(selected))
	for i, item := range selected {
		out[i] = item.col
	}
	return out
}

func (g Grid) query(ctx context.Context) (Query, error) {
	q := Query{Filter: g.Filter, Sorts: g.Sorts}
	if sizer, ok := g.Provider.(Sizer); ok {
		size, err := sizer.Size(ctx, q)
		if err != nil {
			return Query{}, err
		}
		q.Limit = size
	}
	return q, nil
}

// ExtractValue resolves the value of a column for an item.
func ExtractValue(col Column, item any) (any, error) {
	if col.Value != nil {
		return col.Value(item)
	}
	if col.Key == "" {
		return nil, NewError(KindValidation, "column has no key or value provider", nil)
	}
	value, ok := propertyValue(item, col.Key)
	if !ok {
		return nil, NewError(KindValidation, fmt.Sprintf("column %q has no matching property", col.Key), nil)
	}
	return value, nil
}

// propertyValue reads a named property from maps and structs. Struct
// fields match by name, then by export or json tag.
func propertyValue(item any, key string) (any, bool) {
	if item == nil {
		return nil, false
	}
	switch m := item.(type) {
	case map[string]any:
		value, ok := m[key]
		return value, ok
	case map[string]string:
		value, ok := m[key]
		return value, ok
	}

	v := reflect.ValueOf(item)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		value := v.MapIndex(reflect.ValueOf(key).Convert(v.Type().Key()))
		if !value.IsValid() {
			return nil, false
		}
		return value.Interface(), true
	case reflect.Struct:
		field, ok := structField(v, key)
		if !ok {
			return nil, false
		}
		if !field.IsValid() {
			return nil, true
		}
		return field.Interface(), true
	default:
		return nil, false
	}
}

// structField returns an invalid value with ok set when the field is
// promoted through a nil embedded pointer.
func structField(v reflect.Value, key string) (reflect.Value, bool) {
	t := v.Type()
	if field, ok := t.FieldByName(key); ok && field.IsExported() {
		value, err := v.FieldByIndexErr(field.Index)
		if err != nil {
			return reflect.Value{}, true
		}
		return value, true
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		if tagName(field.Tag.Get("export")) == key || tagName(field.Tag.Get("json")) == key {
			return v.Field(i), true
		}
		if strings.EqualFold(field.Name, key) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func tagName(tag string) string {
	if idx := strings.IndexByte(tag, ','); idx >= 0 {
		tag = tag[:idx]
	}
	return strings.TrimSpace(tag)
}
