package exportmemory

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/goliatone/go-gridexport/export"
	"github.com/xuri/excelize/v2"
)

type user struct {
	Name    string
	Age     int
	Active  bool
	Joined  time.Time
	Manager *string
}

func users() []user {
	boss := "zoe"
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	return []user{
		{Name: "carol", Age: 41, Active: true, Joined: day(3)},
		{Name: "alice", Age: 30, Active: false, Joined: day(1), Manager: &boss},
		{Name: "bob", Age: 30, Active: true, Joined: day(2)},
	}
}

func names(t *testing.T, it export.ItemIterator) []string {
	t.Helper()
	var out []string
	for {
		item, err := it.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		out = append(out, item.(user).Name)
	}
	_ = it.Close()
	return out
}

func join(values []string) string {
	out := ""
	for i, value := range values {
		if i > 0 {
			out += ","
		}
		out += value
	}
	return out
}

func TestListProvider_SortsByKeys(t *testing.T) {
	provider := FromSlice(users())
	cases := []struct {
		sorts []export.SortOrder
		want  string
	}{
		{nil, "carol,alice,bob"},
		{[]export.SortOrder{{Key: "Name"}}, "alice,bob,carol"},
		{[]export.SortOrder{{Key: "Age", Direction: export.SortDescending}}, "carol,alice,bob"},
		{[]export.SortOrder{{Key: "Age"}, {Key: "Joined", Direction: export.SortDescending}}, "bob,alice,carol"},
		{[]export.SortOrder{{Key: "Active"}, {Key: "Name"}}, "alice,bob,carol"},
		{[]export.SortOrder{{Key: "Manager", Direction: export.SortDescending}}, "alice,carol,bob"},
	}
	for _, tc := range cases {
		it, err := provider.Fetch(context.Background(), export.Query{Sorts: tc.sorts})
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if got := join(names(t, it)); got != tc.want {
			t.Fatalf("sorts %+v: expected %s, got %s", tc.sorts, tc.want, got)
		}
	}
}

func TestListProvider_FiltersAndPages(t *testing.T) {
	provider := FromSlice(users())
	ctx := context.Background()

	active := Predicate(func(item any) bool { return item.(user).Active })
	size, err := provider.Size(ctx, export.Query{Filter: active})
	if err != nil || size != 2 {
		t.Fatalf("expected 2 active users, got %d %v", size, err)
	}

	it, err := provider.Fetch(ctx, export.Query{Filter: map[string]string{"Age": "30"}, Sorts: []export.SortOrder{{Key: "Name"}}})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := join(names(t, it)); got != "alice,bob" {
		t.Fatalf("expected equality filter, got %s", got)
	}

	it, err = provider.Fetch(ctx, export.Query{Offset: 1, Limit: 1})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := join(names(t, it)); got != "alice" {
		t.Fatalf("expected paged item, got %s", got)
	}

	it, err = provider.Fetch(ctx, export.Query{Offset: 10})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := names(t, it); len(got) != 0 {
		t.Fatalf("expected no items past the end, got %v", got)
	}

	if _, err := provider.Fetch(ctx, export.Query{Filter: 42}); export.KindFromError(err) != export.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := provider.Fetch(ctx, export.Query{Sorts: []export.SortOrder{{Key: "Missing"}}}); export.KindFromError(err) != export.KindValidation {
		t.Fatalf("expected validation error for unknown sort key, got %v", err)
	}
}

func TestListProvider_ExportsThroughTemplate(t *testing.T) {
	grid := export.Grid{
		Columns: []export.Column{
			{Key: "Name", Header: "Name"},
			{Key: "Joined", Header: "Joined", ExcelFormat: "dd/mm/yyyy"},
		},
		Provider: FromSlice(users()),
		Filter:   func(item any) bool { return item.(user).Active },
		Sorts:    []export.SortOrder{{Key: "Name"}},
	}

	buf := &bytes.Buffer{}
	stats, err := export.NewExporter(grid, export.Options{Title: "Active users"}).Export(context.Background(), buf)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if stats.Rows != 2 {
		t.Fatalf("expected 2 rows, got %d", stats.Rows)
	}

	file, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer func() {
		_ = file.Close()
	}()
	sheet := file.GetSheetName(0)
	for cell, want := range map[string]string{"A4": "bob", "A5": "carol", "B4": "02/01/2024"} {
		got, err := file.GetCellValue(sheet, cell)
		if err != nil || got != want {
			t.Fatalf("%s: expected %q, got %q (%v)", cell, want, got, err)
		}
	}
}
