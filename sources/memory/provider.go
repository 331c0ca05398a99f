package exportmemory

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-gridexport/export"
)

// Predicate selects the items an export includes.
type Predicate func(item any) bool

// ListProvider serves grid items from an in-memory list.
type ListProvider struct {
	Items []any
}

// NewListProvider creates a provider over items.
func NewListProvider(items ...any) *ListProvider {
	return &ListProvider{Items: items}
}

// FromSlice creates a provider over a typed slice.
func FromSlice[T any](items []T) *ListProvider {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}
	return &ListProvider{Items: out}
}

// Fetch filters, sorts and pages the list.
func (p *ListProvider) Fetch(ctx context.Context, q export.Query) (export.ItemIterator, error) {
	_ = ctx
	items, err := p.matching(q.Filter)
	if err != nil {
		return nil, err
	}
	if len(q.Sorts) > 0 {
		if err := sortItems(items, q.Sorts); err != nil {
			return nil, err
		}
	}

	if q.Offset > 0 {
		if q.Offset >= len(items) {
			items = nil
		} else {
			items = items[q.Offset:]
		}
	}
	if q.Limit > 0 && q.Limit < len(items) {
		items = items[:q.Limit]
	}
	return &listIterator{items: items}, nil
}

// Size counts the items matching the query filter.
func (p *ListProvider) Size(ctx context.Context, q export.Query) (int, error) {
	_ = ctx
	items, err := p.matching(q.Filter)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (p *ListProvider) matching(filter any) ([]any, error) {
	if p == nil {
		return nil, nil
	}
	match, err := predicate(filter)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(p.Items))
	for _, item := range p.Items {
		if match == nil || match(item) {
			out = append(out, item)
		}
	}
	return out, nil
}

// predicate accepts a Predicate, a func(any) bool or an equality map of
// property values.
func predicate(filter any) (Predicate, error) {
	switch f := filter.(type) {
	case nil:
		return nil, nil
	case Predicate:
		return f, nil
	case func(any) bool:
		return f, nil
	case map[string]any:
		return equalityPredicate(f), nil
	case map[string]string:
		values := make(map[string]any, len(f))
		for key, value := range f {
			values[key] = value
		}
		return equalityPredicate(values), nil
	default:
		return nil, export.NewError(export.KindValidation, fmt.Sprintf("unsupported filter type %T", filter), nil)
	}
}

func equalityPredicate(values map[string]any) Predicate {
	return func(item any) bool {
		for key, want := range values {
			got, err := export.ExtractValue(export.Column{Key: key}, item)
			if err != nil {
				return false
			}
			if fmt.Sprint(got) != fmt.Sprint(want) {
				return false
			}
		}
		return true
	}
}

func sortItems(items []any, sorts []export.SortOrder) error {
	var sortErr error
	sort.SliceStable(items, func(i, j int) bool {
		for _, order := range sorts {
			left, err := export.ExtractValue(export.Column{Key: order.Key}, items[i])
			if err != nil {
				sortErr = err
				return false
			}
			right, err := export.ExtractValue(export.Column{Key: order.Key}, items[j])
			if err != nil {
				sortErr = err
				return false
			}
			cmp := compareValues(left, right)
			if cmp == 0 {
				continue
			}
			if order.Direction == export.SortDescending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return sortErr
}

// compareValues orders nil first, then numbers, times, booleans and
// strings by their natural order. Mixed kinds compare as text.
func compareValues(left, right any) int {
	left, right = deref(left), deref(right)
	switch {
	case left == nil && right == nil:
		return 0
	case left == nil:
		return -1
	case right == nil:
		return 1
	}

	if lf, ok := number(left); ok {
		if rf, ok := number(right); ok {
			return compareOrdered(lf, rf)
		}
	}
	if lt, ok := left.(time.Time); ok {
		if rt, ok := right.(time.Time); ok {
			return lt.Compare(rt)
		}
	}
	if lb, ok := left.(bool); ok {
		if rb, ok := right.(bool); ok {
			switch {
			case lb == rb:
				return 0
			case !lb:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(fmt.Sprint(left), fmt.Sprint(right))
}

func compareOrdered(left, right float64) int {
	switch {
	case left < right:
		return -1
	case left > right:
		return 1
	default:
		return 0
	}
}

func deref(value any) any {
	if value == nil {
		return nil
	}
	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	return v.Interface()
}

func number(value any) (float64, bool) {
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	default:
		return 0, false
	}
}

type listIterator struct {
	items []any
	index int
}

func (it *listIterator) Next(ctx context.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.index >= len(it.items) {
		return nil, io.EOF
	}
	item := it.items[it.index]
	it.index++
	return item, nil
}

func (it *listIterator) Close() error {
	it.items = nil
	return nil
}
