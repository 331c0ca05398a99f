package exportcallback

import (
	"context"
	"io"

	"github.com/goliatone/go-gridexport/export"
)

// DefaultPageSize is the page size used when Provider.PageSize is unset.
const DefaultPageSize = 50

// FetchFunc returns one page of items. q.Offset and q.Limit describe the
// page; a page shorter than q.Limit ends the stream.
type FetchFunc func(ctx context.Context, q export.Query) ([]any, error)

// CountFunc counts the items matching a query.
type CountFunc func(ctx context.Context, q export.Query) (int, error)

// Provider pages through a backend callback, the way a lazy grid loads
// its items.
type Provider struct {
	FetchPage FetchFunc
	Count     CountFunc
	PageSize  int
}

// NewProvider creates a paging provider.
func NewProvider(fetch FetchFunc, count CountFunc) *Provider {
	return &Provider{FetchPage: fetch, Count: count}
}

// Fetch returns an iterator that requests pages on demand.
func (p *Provider) Fetch(ctx context.Context, q export.Query) (export.ItemIterator, error) {
	_ = ctx
	if p == nil || p.FetchPage == nil {
		return nil, export.NewError(export.KindValidation, "callback provider requires a fetch function", nil)
	}
	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &pageIterator{
		fetch:     p.FetchPage,
		query:     q,
		pageSize:  pageSize,
		offset:    q.Offset,
		remaining: q.Limit,
	}, nil
}

// Size reports the item count. Without a count function it returns zero,
// which leaves the query unbounded.
func (p *Provider) Size(ctx context.Context, q export.Query) (int, error) {
	if p == nil || p.Count == nil {
		return 0, nil
	}
	return p.Count(ctx, q)
}

type pageIterator struct {
	fetch     FetchFunc
	query     export.Query
	pageSize  int
	offset    int
	remaining int
	page      []any
	index     int
	last      bool
}

func (it *pageIterator) Next(ctx context.Context) (any, error) {
	for it.index >= len(it.page) {
		if it.last {
			return nil, io.EOF
		}
		if err := it.load(ctx); err != nil {
			return nil, err
		}
	}
	item := it.page[it.index]
	it.index++
	return item, nil
}

func (it *pageIterator) load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	limit := it.pageSize
	if it.query.Limit > 0 {
		if it.remaining <= 0 {
			it.last = true
			it.page, it.index = nil, 0
			return nil
		}
		if it.remaining < limit {
			limit = it.remaining
		}
	}

	q := it.query
	q.Offset = it.offset
	q.Limit = limit
	page, err := it.fetch(ctx, q)
	if err != nil {
		return err
	}
	if len(page) > limit {
		page = page[:limit]
	}

	it.page, it.index = page, 0
	it.offset += len(page)
	if it.query.Limit > 0 {
		it.remaining -= len(page)
	}
	if len(page) < limit {
		it.last = true
	}
	return nil
}

func (it *pageIterator) Close() error {
	it.page = nil
	it.last = true
	return nil
}

// ProviderFunc adapts a function into a DataProvider.
type ProviderFunc func(ctx context.Context, q export.Query) (export.ItemIterator, error)

// Fetch delegates to the function.
func (f ProviderFunc) Fetch(ctx context.Context, q export.Query) (export.ItemIterator, error) {
	if f == nil {
		return nil, export.NewError(export.KindValidation, "callback provider requires a function", nil)
	}
	return f(ctx, q)
}

// IteratorFunc yields an item or io.EOF.
type IteratorFunc func(ctx context.Context) (any, error)

// FuncIterator wraps a function into an ItemIterator.
type FuncIterator struct {
	NextFunc  IteratorFunc
	CloseFunc func() error
}

func (it *FuncIterator) Next(ctx context.Context) (any, error) {
	if it == nil || it.NextFunc == nil {
		return nil, export.NewError(export.KindValidation, "iterator requires NextFunc", nil)
	}
	return it.NextFunc(ctx)
}

func (it *FuncIterator) Close() error {
	if it == nil || it.CloseFunc == nil {
		return nil
	}
	return it.CloseFunc()
}
