package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

type person struct {
	Name   string
	Age    int
	Salary float64
	Born   time.Time `export:"born"`
}

type stubProvider struct {
	items   []any
	size    int
	queries []Query
	err     error
}

func (p *stubProvider) Fetch(ctx context.Context, q Query) (ItemIterator, error) {
	_ = ctx
	p.queries = append(p.queries, q)
	if p.err != nil {
		return nil, p.err
	}
	return &stubIterator{items: p.items}, nil
}

type sizedProvider struct {
	stubProvider
}

func (p *sizedProvider) Size(ctx context.Context, q Query) (int, error) {
	_ = ctx
	_ = q
	return len(p.items), nil
}

type stubIterator struct {
	items  []any
	idx    int
	closed bool
}

func (it *stubIterator) Next(ctx context.Context) (any, error) {
	_ = ctx
	if it.idx >= len(it.items) {
		return nil, io.EOF
	}
	item := it.items[it.idx]
	it.idx++
	return item, nil
}

func (it *stubIterator) Close() error {
	it.closed = true
	return nil
}

func peopleGrid(items ...any) Grid {
	return Grid{
		Columns: []Column{
			{Key: "Name", Header: "Full Name", Footer: "Total"},
			{Key: "Age", Header: "Age", TextAlign: AlignEnd},
			{Key: "Salary", Header: "Salary", ExcelFormat: "0.00", Footer: "42"},
		},
		Provider: &stubProvider{items: items},
	}
}

func openWorkbook(t *testing.T, data []byte) (*excelize.File, string) {
	t.Helper()
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	t.Cleanup(func() {
		_ = file.Close()
	})
	return file, file.GetSheetName(0)
}

func cellValue(t *testing.T, file *excelize.File, sheet, cell string) string {
	t.Helper()
	value, err := file.GetCellValue(sheet, cell)
	if err != nil {
		t.Fatalf("get %s: %v", cell, err)
	}
	return value
}

func templateBytes(t *testing.T, build func(file *excelize.File, sheet string)) []byte {
	t.Helper()
	file := excelize.NewFile()
	defer func() {
		_ = file.Close()
	}()
	build(file, file.GetSheetName(0))
	buf := &bytes.Buffer{}
	if _, err := file.WriteTo(buf); err != nil {
		t.Fatalf("write template: %v", err)
	}
	return buf.Bytes()
}

func TestTemplateRenderer_DefaultTemplate(t *testing.T) {
	buf := &bytes.Buffer{}
	grid := peopleGrid(
		person{Name: "alice", Age: 30, Salary: 12.5},
		&person{Name: "bob", Age: 41, Salary: 20},
	)

	stats, err := TemplateRenderer{}.Render(context.Background(), grid, buf, Options{Title: "People"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if stats.Rows != 2 {
		t.Fatalf("expected 2 rows, got %d", stats.Rows)
	}
	if stats.Bytes == 0 || stats.Bytes != int64(buf.Len()) {
		t.Fatalf("expected byte count %d, got %d", buf.Len(), stats.Bytes)
	}

	file, sheet := openWorkbook(t, buf.Bytes())
	expected := map[string]string{
		"A1": "People",
		"A3": "Full Name",
		"B3": "Age",
		"C3": "Salary",
		"A4": "alice",
		"B4": "30",
		"C4": "12.50",
		"A5": "bob",
		"B5": "41",
		"C5": "20.00",
		"A6": "Total",
		"B6": "",
		"C6": "42",
	}
	for cell, want := range expected {
		if got := cellValue(t, file, sheet, cell); got != want {
			t.Fatalf("expected %s=%q, got %q", cell, want, got)
		}
	}

	merged, err := file.GetMergeCells(sheet)
	if err != nil {
		t.Fatalf("merge cells: %v", err)
	}
	if len(merged) != 1 || merged[0].GetStartAxis() != "A1" || merged[0].GetEndAxis() != "C1" {
		t.Fatalf("expected title merged across A1:C1, got %v", merged)
	}
}

func TestTemplateRenderer_ShiftsTrailingContent(t *testing.T) {
	templates := NewMemoryTemplates()
	if err := templates.Add("report", templateBytes(t, func(file *excelize.File, sheet string) {
		_ = file.SetCellStr(sheet, "B2", "${headers}")
		_ = file.SetCellStr(sheet, "B3", "${data}")
		_ = file.SetCellStr(sheet, "B4", "${footers}")
		_ = file.SetCellStr(sheet, "B6", "Generated by ${user}")
		_ = file.SetCellStr(sheet, "D6", "${user}")
	})); err != nil {
		t.Fatalf("add template: %v", err)
	}

	items := make([]any, 0, 300)
	for i := 0; i < 300; i++ {
		items = append(items, map[string]any{"Name": fmt.Sprintf("user-%d", i), "Age": i})
	}
	grid := Grid{
		Columns: []Column{
			{Key: "Name", Footer: "end"},
			{Key: "Age"},
		},
		Provider: &sizedProvider{stubProvider{items: items}},
	}

	buf := &bytes.Buffer{}
	_, err := TemplateRenderer{Templates: templates}.Render(context.Background(), grid, buf, Options{
		Template:               "report",
		AdditionalPlaceholders: map[string]string{"${user}": "tester"},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	file, sheet := openWorkbook(t, buf.Bytes())
	if got := cellValue(t, file, sheet, "B2"); got != "Name" {
		t.Fatalf("expected header fallback to key, got %q", got)
	}
	if got := cellValue(t, file, sheet, "B3"); got != "user-0" {
		t.Fatalf("expected first data row, got %q", got)
	}
	if got := cellValue(t, file, sheet, "B302"); got != "user-299" {
		t.Fatalf("expected last data row, got %q", got)
	}
	if got := cellValue(t, file, sheet, "B303"); got != "end" {
		t.Fatalf("expected footer after data, got %q", got)
	}
	if got := cellValue(t, file, sheet, "B305"); got != "Generated by ${user}" {
		t.Fatalf("expected partial match to stay untouched, got %q", got)
	}
	if got := cellValue(t, file, sheet, "D305"); got != "tester" {
		t.Fatalf("expected additional placeholder replaced, got %q", got)
	}
}

func TestTemplateRenderer_UsesSizerForQuery(t *testing.T) {
	provider := &sizedProvider{stubProvider{items: []any{map[string]any{"Name": "a"}}}}
	grid := Grid{
		Columns:  []Column{{Key: "Name"}},
		Provider: provider,
		Filter:   "active",
		Sorts:    []SortOrder{{Key: "Name", Direction: SortDescending}},
	}
	if _, err := (TemplateRenderer{}).Render(context.Background(), grid, &bytes.Buffer{}, Options{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(provider.queries) != 1 {
		t.Fatalf("expected one fetch, got %d", len(provider.queries))
	}
	q := provider.queries[0]
	if q.Limit != 1 || q.Filter != "active" || len(q.Sorts) != 1 {
		t.Fatalf("unexpected query: %+v", q)
	}
}

func TestTemplateRenderer_ColumnSelection(t *testing.T) {
	first, second := 1, 0
	grid := Grid{
		Columns: []Column{
			{Key: "Name"},
			{Key: "Age", Hidden: true},
			{Key: "Salary", Exportable: BoolPtr(false)},
			{Key: "born", Header: "Born", Hidden: true, Exportable: BoolPtr(true), Position: &first},
			{Key: "Name", Header: "Again", Position: &second},
		},
		Provider: &stubProvider{items: []any{person{Name: "alice", Born: time.Date(2020, 5, 6, 0, 0, 0, 0, time.UTC)}}},
	}

	buf := &bytes.Buffer{}
	if _, err := (TemplateRenderer{}).Render(context.Background(), grid, buf, Options{Format: FormatOptions{Timezone: "UTC"}}); err != nil {
		t.Fatalf("render: %v", err)
	}
	file, sheet := openWorkbook(t, buf.Bytes())

	headers := []string{"Again", "Born", "Name", ""}
	for i, want := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 3)
		if got := cellValue(t, file, sheet, cell); got != want {
			t.Fatalf("expected header %s=%q, got %q", cell, want, got)
		}
	}
	if got := cellValue(t, file, sheet, "B4"); got != "2020-05-06" {
		t.Fatalf("expected default date format, got %q", got)
	}
}

func TestTemplateRenderer_ParsesPatternedStrings(t *testing.T) {
	grid := Grid{
		Columns: []Column{
			{Key: "amount", Type: ColumnTypeNumber, ParsePattern: "$#,##0.00", ExcelFormat: "0.00"},
			{Key: "day", Type: ColumnTypeDate, ParsePattern: "dd/MM/yyyy", ExcelFormat: "yyyy-mm-dd"},
		},
		Provider: &stubProvider{items: []any{
			map[string]any{"amount": "$1,234.50", "day": "31/12/2023"},
		}},
	}

	buf := &bytes.Buffer{}
	if _, err := (TemplateRenderer{}).Render(context.Background(), grid, buf, Options{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	file, sheet := openWorkbook(t, buf.Bytes())
	if got := cellValue(t, file, sheet, "A4"); got != "1234.50" {
		t.Fatalf("expected parsed number, got %q", got)
	}
	if got := cellValue(t, file, sheet, "B4"); got != "2023-12-31" {
		t.Fatalf("expected parsed date, got %q", got)
	}
	cellType, err := file.GetCellType(sheet, "A4")
	if err != nil {
		t.Fatalf("cell type: %v", err)
	}
	if cellType == excelize.CellTypeSharedString || cellType == excelize.CellTypeInlineString {
		t.Fatalf("expected numeric cell, got %v", cellType)
	}
}

func TestTemplateRenderer_PatternDateInTimezone(t *testing.T) {
	grid := Grid{
		Columns: []Column{
			{Key: "ref", Header: "Ref"},
			{Key: "day", Header: "Day", Type: ColumnTypeDate, ParsePattern: "dd/MM/yyyy"},
		},
		Provider: &stubProvider{items: []any{
			map[string]any{"ref": "r1", "day": "01/02/2024"},
			map[string]any{"ref": "r2", "day": "5/3/2024"},
		}},
	}

	buf := &bytes.Buffer{}
	opts := Options{Format: FormatOptions{Timezone: "America/New_York"}}
	if _, err := (TemplateRenderer{}).Render(context.Background(), grid, buf, opts); err != nil {
		t.Fatalf("render: %v", err)
	}
	file, sheet := openWorkbook(t, buf.Bytes())
	if got := cellValue(t, file, sheet, "B4"); got != "2024-02-01" {
		t.Fatalf("expected 2024-02-01, got %q", got)
	}
	if got := cellValue(t, file, sheet, "B5"); got != "2024-03-05" {
		t.Fatalf("expected 2024-03-05, got %q", got)
	}
}

func TestTemplateRenderer_ParseFailure(t *testing.T) {
	grid := Grid{
		Columns:  []Column{{Key: "amount", Type: ColumnTypeNumber, ParsePattern: "#,##0.00"}},
		Provider: &stubProvider{items: []any{map[string]any{"amount": "lots"}}},
	}
	_, err := TemplateRenderer{}.Render(context.Background(), grid, &bytes.Buffer{}, Options{})
	if err == nil {
		t.Fatalf("expected parse error")
	}
	var exportErr *ExportError
	if !errors.As(err, &exportErr) || exportErr.Kind != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if exportErr.Msg != "problem parsing grid cell value with format: #,##0.00" {
		t.Fatalf("unexpected message %q", exportErr.Msg)
	}
}

func TestTemplateRenderer_EmptyData(t *testing.T) {
	buf := &bytes.Buffer{}
	stats, err := TemplateRenderer{}.Render(context.Background(), peopleGrid(), buf, Options{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if stats.Rows != 0 {
		t.Fatalf("expected no rows, got %d", stats.Rows)
	}
	file, sheet := openWorkbook(t, buf.Bytes())
	if got := cellValue(t, file, sheet, "A4"); got != "" {
		t.Fatalf("expected data placeholder cleared, got %q", got)
	}
	if got := cellValue(t, file, sheet, "A5"); got != "Total" {
		t.Fatalf("expected footer in place, got %q", got)
	}
	if got := cellValue(t, file, sheet, "A1"); got != "" {
		t.Fatalf("expected empty title, got %q", got)
	}
}

func TestTemplateRenderer_Errors(t *testing.T) {
	noHeaders := NewMemoryTemplates()
	_ = noHeaders.Add("bare", templateBytes(t, func(file *excelize.File, sheet string) {
		_ = file.SetCellStr(sheet, "A1", "${data}")
	}))
	numericPlaceholder := NewMemoryTemplates()
	_ = numericPlaceholder.Add("numeric", templateBytes(t, func(file *excelize.File, sheet string) {
		_ = file.SetCellStr(sheet, "A1", "${headers}")
		_ = file.SetCellInt(sheet, "A2", 7)
	}))

	cases := []struct {
		name     string
		grid     Grid
		renderer TemplateRenderer
		opts     Options
		kind     ErrorKind
	}{
		{"no columns", Grid{Provider: &stubProvider{}}, TemplateRenderer{}, Options{}, KindValidation},
		{"hidden columns", Grid{Columns: []Column{{Key: "a", Hidden: true}}, Provider: &stubProvider{}}, TemplateRenderer{}, Options{}, KindValidation},
		{"no provider", Grid{Columns: []Column{{Key: "a"}}}, TemplateRenderer{}, Options{}, KindValidation},
		{"no template source", peopleGrid(), TemplateRenderer{}, Options{Template: "missing"}, KindValidation},
		{"missing template", peopleGrid(), TemplateRenderer{Templates: NewMemoryTemplates()}, Options{Template: "missing"}, KindNotFound},
		{"missing sheet", peopleGrid(), TemplateRenderer{}, Options{SheetIndex: 3}, KindValidation},
		{"missing headers", peopleGrid(), TemplateRenderer{Templates: noHeaders}, Options{Template: "bare"}, KindNotFound},
		{"non string placeholder", peopleGrid(), TemplateRenderer{Templates: numericPlaceholder}, Options{Template: "numeric", DataPlaceholder: "7"}, KindNotFound},
		{"bad timezone", peopleGrid(), TemplateRenderer{}, Options{Format: FormatOptions{Timezone: "Nowhere/Else"}}, KindValidation},
		{"missing property", Grid{Columns: []Column{{Key: "nope"}}, Provider: &stubProvider{items: []any{person{}}}}, TemplateRenderer{}, Options{}, KindValidation},
		{"max rows", peopleGrid(person{}, person{}), TemplateRenderer{}, Options{MaxRows: 1}, KindValidation},
		{"max bytes", peopleGrid(person{}), TemplateRenderer{}, Options{MaxBytes: 10}, KindValidation},
	}

	for _, tc := range cases {
		_, err := tc.renderer.Render(context.Background(), tc.grid, &bytes.Buffer{}, tc.opts)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if kind := KindFromError(err); kind != tc.kind {
			t.Fatalf("%s: expected %s, got %s (%v)", tc.name, tc.kind, kind, err)
		}
	}
}

func TestTemplateRenderer_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := TemplateRenderer{}.Render(ctx, peopleGrid(person{}), &bytes.Buffer{}, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled error, got %v", err)
	}
}

func TestTemplateRenderer_ProviderError(t *testing.T) {
	grid := peopleGrid()
	grid.Provider = &stubProvider{err: errors.New("backend down")}
	_, err := TemplateRenderer{}.Render(context.Background(), grid, &bytes.Buffer{}, Options{})
	if err == nil || err.Error() != "backend down" {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestTemplateRenderer_AutoSizeAndMergeToggles(t *testing.T) {
	grid := peopleGrid(person{Name: "a name long enough to widen the column"})

	buf := &bytes.Buffer{}
	if _, err := (TemplateRenderer{}).Render(context.Background(), grid, buf, Options{Title: "T"}); err != nil {
		t.Fatalf("render: %v", err)
	}
	file, sheet := openWorkbook(t, buf.Bytes())
	width, err := file.GetColWidth(sheet, "A")
	if err != nil {
		t.Fatalf("col width: %v", err)
	}
	if width < 30 {
		t.Fatalf("expected auto-sized column, got %v", width)
	}

	buf.Reset()
	if _, err := (TemplateRenderer{}).Render(context.Background(), peopleGrid(person{}), buf, Options{
		Title:           "T",
		AutoMergeTitle:  BoolPtr(false),
		AutoSizeColumns: BoolPtr(false),
	}); err != nil {
		t.Fatalf("render: %v", err)
	}
	file, sheet = openWorkbook(t, buf.Bytes())
	merged, err := file.GetMergeCells(sheet)
	if err != nil {
		t.Fatalf("merge cells: %v", err)
	}
	if len(merged) != 0 {
		t.Fatalf("expected no merged cells, got %d", len(merged))
	}
}

func TestTemplateRenderer_AutoSizeCountsTemplateText(t *testing.T) {
	templates := NewMemoryTemplates()
	_ = templates.Add("notes", templateBytes(t, func(file *excelize.File, sheet string) {
		_ = file.SetCellStr(sheet, "A1", "${title}")
		_ = file.SetCellStr(sheet, "A2", "${headers}")
		_ = file.SetCellStr(sheet, "A3", "${data}")
		_ = file.SetCellStr(sheet, "B5", "prepared by the finance operations team")
		_ = file.SetCellStr(sheet, "A6", "a banner merged over both columns of the sheet")
		_ = file.MergeCell(sheet, "A6", "B6")
	}))
	grid := Grid{
		Columns:  []Column{{Key: "a", Header: "A"}, {Key: "b", Header: "B"}},
		Provider: &stubProvider{items: []any{map[string]any{"a": "x", "b": "y"}}},
	}

	buf := &bytes.Buffer{}
	if _, err := (TemplateRenderer{Templates: templates}).Render(context.Background(), grid, buf, Options{
		Template: "notes",
		Title:    "T",
	}); err != nil {
		t.Fatalf("render: %v", err)
	}
	file, sheet := openWorkbook(t, buf.Bytes())
	widthA, err := file.GetColWidth(sheet, "A")
	if err != nil {
		t.Fatalf("col width: %v", err)
	}
	widthB, err := file.GetColWidth(sheet, "B")
	if err != nil {
		t.Fatalf("col width: %v", err)
	}
	if widthB < 39 {
		t.Fatalf("expected column B to fit template text, got %v", widthB)
	}
	if widthA > 10 {
		t.Fatalf("expected merged banner to be ignored, got %v", widthA)
	}

	buf.Reset()
	single := Grid{
		Columns:  []Column{{Key: "a", Header: "A"}},
		Provider: &stubProvider{items: []any{map[string]any{"a": "x"}}},
	}
	if _, err := (TemplateRenderer{}).Render(context.Background(), single, buf, Options{Title: "Quarterly payroll summary"}); err != nil {
		t.Fatalf("render: %v", err)
	}
	file, sheet = openWorkbook(t, buf.Bytes())
	width, err := file.GetColWidth(sheet, "A")
	if err != nil {
		t.Fatalf("col width: %v", err)
	}
	if width < 25 {
		t.Fatalf("expected column A to fit the unmerged title, got %v", width)
	}
}

func TestTemplateRenderer_SheetIndex(t *testing.T) {
	templates := NewMemoryTemplates()
	_ = templates.Add("two-sheets", templateBytes(t, func(file *excelize.File, sheet string) {
		_ = file.SetCellStr(sheet, "A1", "cover")
		if _, err := file.NewSheet("Data"); err != nil {
			t.Fatalf("new sheet: %v", err)
		}
		_ = file.SetCellStr("Data", "A1", "${headers}")
		_ = file.SetCellStr("Data", "A2", "${data}")
	}))

	buf := &bytes.Buffer{}
	grid := peopleGrid(person{Name: "zed"})
	if _, err := (TemplateRenderer{Templates: templates}).Render(context.Background(), grid, buf, Options{
		Template:   "two-sheets",
		SheetIndex: 1,
	}); err != nil {
		t.Fatalf("render: %v", err)
	}
	file, _ := openWorkbook(t, buf.Bytes())
	if got := cellValue(t, file, "Data", "A2"); got != "zed" {
		t.Fatalf("expected data on second sheet, got %q", got)
	}
	if got := cellValue(t, file, file.GetSheetName(0), "A1"); got != "cover" {
		t.Fatalf("expected first sheet untouched, got %q", got)
	}
}

func TestTemplateRenderer_AlignmentStyles(t *testing.T) {
	buf := &bytes.Buffer{}
	if _, err := (TemplateRenderer{}).Render(context.Background(), peopleGrid(person{Age: 1}), buf, Options{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	file, sheet := openWorkbook(t, buf.Bytes())
	styleID, err := file.GetCellStyle(sheet, "B4")
	if err != nil {
		t.Fatalf("cell style: %v", err)
	}
	style, err := file.GetStyle(styleID)
	if err != nil {
		t.Fatalf("style: %v", err)
	}
	if style.Alignment == nil || style.Alignment.Horizontal != "right" {
		t.Fatalf("expected right aligned data cell, got %+v", style.Alignment)
	}

	headerID, err := file.GetCellStyle(sheet, "C3")
	if err != nil {
		t.Fatalf("cell style: %v", err)
	}
	header, err := file.GetStyle(headerID)
	if err != nil {
		t.Fatalf("style: %v", err)
	}
	if header.Font == nil || !header.Font.Bold {
		t.Fatalf("expected header style cloned from placeholder")
	}
}
