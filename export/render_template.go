package export

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const (
	excelMaxRows      = 1048576
	excelMaxColWidth  = 255
	defaultSheetName  = "Sheet1"
	defaultDateFormat = "yyyy-mm-dd"
	defaultDateTime   = "yyyy-mm-dd hh:mm:ss"
	dataBatchSize     = 256

	DefaultTitlePlaceholder   = "${title}"
	DefaultHeadersPlaceholder = "${headers}"
	DefaultDataPlaceholder    = "${data}"
	DefaultFootersPlaceholder = "${footers}"
)

// TemplateRenderer fills template workbooks with grid content.
type TemplateRenderer struct {
	Templates TemplateSource
}

// Render fills the template and writes the workbook to w.
func (r TemplateRenderer) Render(ctx context.Context, grid Grid, w io.Writer, opts Options) (RenderStats, error) {
	file, stats, err := r.Fill(ctx, grid, opts)
	if err != nil {
		return stats, err
	}
	defer func() {
		_ = file.Close()
	}()

	written, err := writeWorkbook(file, w, opts.MaxBytes)
	stats.Bytes = written
	return stats, err
}

// Fill opens the template and fills it with grid content. The caller owns
// the returned file.
func (r TemplateRenderer) Fill(ctx context.Context, grid Grid, opts Options) (*excelize.File, RenderStats, error) {
	opts = opts.withDefaults()

	columns := ExportableColumns(grid)
	if len(columns) == 0 {
		return nil, RenderStats{}, NewError(KindValidation, "grid has no columns", nil)
	}
	if grid.Provider == nil {
		return nil, RenderStats{}, NewError(KindValidation, "grid has no data provider", nil)
	}

	formatter, err := newFormatContext(opts.Format)
	if err != nil {
		return nil, RenderStats{}, err
	}

	file, err := r.openTemplate(ctx, opts.Template)
	if err != nil {
		return nil, RenderStats{}, err
	}

	stats, err := fillWorkbook(ctx, file, grid, columns, formatter, opts)
	if err != nil {
		_ = file.Close()
		return nil, stats, err
	}
	return file, stats, nil
}

func (r TemplateRenderer) openTemplate(ctx context.Context, name string) (*excelize.File, error) {
	if strings.TrimSpace(name) == "" {
		return DefaultTemplate()
	}
	if r.Templates == nil {
		return nil, NewError(KindValidation, "template source is not configured", nil)
	}
	rc, err := r.Templates.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rc.Close()
	}()

	file, err := excelize.OpenReader(rc)
	if err != nil {
		return nil, NewError(KindValidation, "problem creating workbook", err)
	}
	return file, nil
}

func fillWorkbook(ctx context.Context, file *excelize.File, grid Grid, columns []Column, formatter formatContext, opts Options) (RenderStats, error) {
	sheets := file.GetSheetList()
	if opts.SheetIndex < 0 || opts.SheetIndex >= len(sheets) {
		return RenderStats{}, NewError(KindValidation, fmt.Sprintf("template has no sheet %d", opts.SheetIndex), nil)
	}

	s := &sheetFiller{
		file:      file,
		sheet:     sheets[opts.SheetIndex],
		formatter: formatter,
		styles:    newStyleCache(file),
		widths:    make(map[int]int),
	}

	titleCell, titleFound, err := s.find(opts.TitlePlaceholder)
	if err != nil {
		return RenderStats{}, err
	}
	if titleFound {
		if err := s.file.SetCellStr(s.sheet, titleCell, opts.Title); err != nil {
			return RenderStats{}, err
		}
	}

	headersCell, found, err := s.find(opts.HeadersPlaceholder)
	if err != nil {
		return RenderStats{}, err
	}
	if !found {
		return RenderStats{}, NewError(KindNotFound, fmt.Sprintf("headers placeholder %q not found", opts.HeadersPlaceholder), nil)
	}
	headers := make([]any, len(columns))
	for i, col := range columns {
		headers[i] = col.HeaderText()
	}
	if err := s.fillLine(headersCell, columns, headers, false); err != nil {
		return RenderStats{}, err
	}

	if opts.autoMergeTitle() && titleFound && len(columns) > 1 {
		if err := s.mergeAcross(titleCell, len(columns)); err != nil {
			return RenderStats{}, err
		}
	}

	dataCell, found, err := s.find(opts.DataPlaceholder)
	if err != nil {
		return RenderStats{}, err
	}
	if !found {
		return RenderStats{}, NewError(KindNotFound, fmt.Sprintf("data placeholder %q not found", opts.DataPlaceholder), nil)
	}
	stats, err := s.fillData(ctx, dataCell, grid, columns, opts)
	if err != nil {
		return stats, err
	}

	footersCell, found, err := s.find(opts.FootersPlaceholder)
	if err != nil {
		return stats, err
	}
	if found {
		footers := make([]any, len(columns))
		for i, col := range columns {
			if col.Footer != "" {
				footers[i] = col.Footer
			}
		}
		if err := s.fillLine(footersCell, columns, footers, true); err != nil {
			return stats, err
		}
	}

	if err := s.replacePlaceholders(opts.AdditionalPlaceholders); err != nil {
		return stats, err
	}

	if opts.autoSizeColumns() {
		if err := s.autoSize(dataCell, len(columns)); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

type sheetFiller struct {
	file      *excelize.File
	sheet     string
	formatter formatContext
	styles    *styleCache
	widths    map[int]int
}

// find returns the first string cell, scanning rows top to bottom, whose
// trimmed text equals placeholder.
func (s *sheetFiller) find(placeholder string) (string, bool, error) {
	cells, err := s.findAll(placeholder, 1)
	if err != nil || len(cells) == 0 {
		return "", false, err
	}
	return cells[0], true, nil
}

func (s *sheetFiller) findAll(placeholder string, limit int) ([]string, error) {
	if placeholder == "" {
		return nil, nil
	}
	rows, err := s.file.GetRows(s.sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	var cells []string
	for r, row := range rows {
		for c, value := range row {
			if strings.TrimSpace(value) != placeholder {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}
			cellType, err := s.file.GetCellType(s.sheet, cell)
			if err != nil {
				return nil, err
			}
			if cellType != excelize.CellTypeSharedString && cellType != excelize.CellTypeInlineString {
				continue
			}
			cells = append(cells, cell)
			if limit > 0 && len(cells) >= limit {
				return cells, nil
			}
		}
	}
	return cells, nil
}

// fillLine writes one value per column, left to right from start. Cells
// without a style of their own take the style of start.
func (s *sheetFiller) fillLine(start string, columns []Column, values []any, parse bool) error {
	col, row, err := excelize.CellNameToCoordinates(start)
	if err != nil {
		return err
	}
	baseStyle, err := s.file.GetCellStyle(s.sheet, start)
	if err != nil {
		return err
	}

	for i, column := range columns {
		cell, err := excelize.CoordinatesToCellName(col+i, row)
		if err != nil {
			return err
		}
		styleID := baseStyle
		if i > 0 {
			existing, err := s.file.GetCellStyle(s.sheet, cell)
			if err != nil {
				return err
			}
			if existing != 0 {
				styleID = existing
			}
		}

		value := values[i]
		if parse && value != nil {
			value, err = s.formatter.cellValue(column, value)
			if err != nil {
				return err
			}
		}
		if err := s.writeCell(cell, col+i, column, value, styleID, column.alignment()); err != nil {
			return err
		}
	}
	return nil
}

func (s *sheetFiller) mergeAcross(start string, width int) error {
	col, row, err := excelize.CellNameToCoordinates(start)
	if err != nil {
		return err
	}
	end, err := excelize.CoordinatesToCellName(col+width-1, row)
	if err != nil {
		return err
	}
	return s.file.MergeCell(s.sheet, start, end)
}

// fillData writes one row per item starting at the data placeholder. Rows
// below the data block are pushed down in batches so trailing template
// content stays under the data.
func (s *sheetFiller) fillData(ctx context.Context, start string, grid Grid, columns []Column, opts Options) (RenderStats, error) {
	stats := RenderStats{}
	col, row, err := excelize.CellNameToCoordinates(start)
	if err != nil {
		return stats, err
	}
	baseStyle, err := s.file.GetCellStyle(s.sheet, start)
	if err != nil {
		return stats, err
	}

	q, err := grid.query(ctx)
	if err != nil {
		return stats, err
	}
	iter, err := grid.Provider.Fetch(ctx, q)
	if err != nil {
		return stats, err
	}
	defer func() {
		_ = iter.Close()
	}()

	maxRows := opts.MaxRows
	if maxRows <= 0 || maxRows > excelMaxRows {
		maxRows = excelMaxRows
	}

	nextRow := row
	available := 1
	batch := make([]any, 0, dataBatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if extra := len(batch) - available; extra > 0 {
			if err := s.file.InsertRows(s.sheet, nextRow+available, extra); err != nil {
				return err
			}
			available = 0
		} else {
			available -= len(batch)
		}
		for _, item := range batch {
			if err := s.writeRow(item, col, nextRow, columns, baseStyle); err != nil {
				return err
			}
			nextRow++
		}
		batch = batch[:0]
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		item, err := iter.Next(ctx)
		if err != nil {
			if err == io.EOF {
				break
			}
			return stats, err
		}

		stats.Rows++
		if stats.Rows > int64(maxRows) {
			return stats, NewError(KindValidation, "max rows exceeded", nil)
		}
		if row+int(stats.Rows)-1 > excelMaxRows {
			return stats, NewError(KindValidation, "xlsx row limit exceeded", nil)
		}

		batch = append(batch, item)
		if len(batch) >= dataBatchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := flush(); err != nil {
		return stats, err
	}

	if stats.Rows == 0 {
		if err := s.file.SetCellValue(s.sheet, start, nil); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// writeRow fills one data row. The first cell keeps the placeholder
// style; the others get a copy aligned for their column.
func (s *sheetFiller) writeRow(item any, col, row int, columns []Column, baseStyle int) error {
	for i, column := range columns {
		raw, err := ExtractValue(column, item)
		if err != nil {
			return err
		}
		value, err := s.formatter.cellValue(column, raw)
		if err != nil {
			return err
		}
		cell, err := excelize.CoordinatesToCellName(col+i, row)
		if err != nil {
			return err
		}
		align := ""
		if i > 0 {
			align = column.alignment()
		}
		if err := s.writeCell(cell, col+i, column, value, baseStyle, align); err != nil {
			return err
		}
	}
	return nil
}

func (s *sheetFiller) writeCell(cell string, colIndex int, column Column, value any, baseStyle int, align string) error {
	numFmt := ""
	switch v := value.(type) {
	case float64:
		numFmt = column.ExcelFormat
	case time.Time:
		numFmt = column.ExcelFormat
		if numFmt == "" {
			numFmt = defaultDateFormat
			if v.Hour() != 0 || v.Minute() != 0 || v.Second() != 0 {
				numFmt = defaultDateTime
			}
		}
	}

	if err := s.file.SetCellValue(s.sheet, cell, value); err != nil {
		return err
	}
	styleID, err := s.styles.derive(baseStyle, align, numFmt)
	if err != nil {
		return err
	}
	if err := s.file.SetCellStyle(s.sheet, cell, cell, styleID); err != nil {
		return err
	}

	s.track(colIndex, displayWidth(value, numFmt))
	return nil
}

func (s *sheetFiller) track(colIndex, width int) {
	if width > s.widths[colIndex] {
		s.widths[colIndex] = width
	}
}

// autoSize widens each exported column to fit its longest value. Cells
// already in the template count too, except those inside ranges merged
// across several columns.
func (s *sheetFiller) autoSize(start string, count int) error {
	col, _, err := excelize.CellNameToCoordinates(start)
	if err != nil {
		return err
	}
	if err := s.measureSheet(col, col+count-1); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		width, ok := s.widths[col+i]
		if !ok {
			continue
		}
		name, err := excelize.ColumnNumberToName(col + i)
		if err != nil {
			return err
		}
		size := float64(width + 2)
		if size > excelMaxColWidth {
			size = excelMaxColWidth
		}
		if err := s.file.SetColWidth(s.sheet, name, name, size); err != nil {
			return err
		}
	}
	return nil
}

func (s *sheetFiller) measureSheet(first, last int) error {
	spanned, err := s.multiColumnMerges()
	if err != nil {
		return err
	}
	rows, err := s.file.GetRows(s.sheet)
	if err != nil {
		return err
	}
	for r, row := range rows {
		for c := first; c <= last && c <= len(row); c++ {
			text := row[c-1]
			if text == "" || spanned[[2]int{c, r + 1}] {
				continue
			}
			s.track(c, displayWidth(text, ""))
		}
	}
	return nil
}

// multiColumnMerges returns the cells covered by merged ranges wider than
// one column, keyed by column and row.
func (s *sheetFiller) multiColumnMerges() (map[[2]int]bool, error) {
	merges, err := s.file.GetMergeCells(s.sheet)
	if err != nil {
		return nil, err
	}
	cells := make(map[[2]int]bool)
	for _, merge := range merges {
		startCol, startRow, err := excelize.CellNameToCoordinates(merge.GetStartAxis())
		if err != nil {
			return nil, err
		}
		endCol, endRow, err := excelize.CellNameToCoordinates(merge.GetEndAxis())
		if err != nil {
			return nil, err
		}
		if endCol == startCol {
			continue
		}
		for r := startRow; r <= endRow; r++ {
			for c := startCol; c <= endCol; c++ {
				cells[[2]int{c, r}] = true
			}
		}
	}
	return cells, nil
}

// replacePlaceholders sets every cell matching a key to its value. Keys are
// processed in sorted order so overlapping values resolve the same way on
// every run.
func (s *sheetFiller) replacePlaceholders(values map[string]string) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		if strings.TrimSpace(key) != "" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		cells, err := s.findAll(key, 0)
		if err != nil {
			return err
		}
		for _, cell := range cells {
			if err := s.file.SetCellStr(s.sheet, cell, values[key]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c Column) alignment() string {
	switch c.TextAlign {
	case AlignCenter:
		return "center"
	case AlignEnd:
		return "right"
	default:
		return "left"
	}
}

func displayWidth(value any, numFmt string) int {
	switch v := value.(type) {
	case nil:
		return 0
	case string:
		longest := 0
		for _, line := range strings.Split(v, "\n") {
			if n := utf8.RuneCountInString(line); n > longest {
				longest = n
			}
		}
		return longest
	case float64:
		text := strconv.FormatFloat(v, 'f', -1, 64)
		if n := len(numFmt); n > len(text) {
			return n
		}
		return len(text)
	case time.Time:
		return len(numFmt)
	case bool:
		return len(strconv.FormatBool(v))
	default:
		return utf8.RuneCountInString(stringify(v))
	}
}

type styleKey struct {
	base   int
	align  string
	numFmt string
}

type styleCache struct {
	file *excelize.File
	ids  map[styleKey]int
}

func newStyleCache(file *excelize.File) *styleCache {
	return &styleCache{file: file, ids: make(map[styleKey]int)}
}

// derive returns a style equal to base with the given alignment and
// number format applied. Derived styles are shared per combination.
func (c *styleCache) derive(base int, align, numFmt string) (int, error) {
	if align == "" && numFmt == "" {
		return base, nil
	}
	key := styleKey{base: base, align: align, numFmt: numFmt}
	if id, ok := c.ids[key]; ok {
		return id, nil
	}

	style, err := c.file.GetStyle(base)
	if err != nil {
		return 0, err
	}
	if style == nil {
		style = &excelize.Style{}
	}
	if align != "" {
		alignment := excelize.Alignment{}
		if style.Alignment != nil {
			alignment = *style.Alignment
		}
		alignment.Horizontal = align
		style.Alignment = &alignment
	}
	if numFmt != "" {
		format := numFmt
		style.NumFmt = 0
		style.CustomNumFmt = &format
	}

	id, err := c.file.NewStyle(style)
	if err != nil {
		return 0, err
	}
	c.ids[key] = id
	return id, nil
}

func writeWorkbook(file *excelize.File, w io.Writer, maxBytes int64) (int64, error) {
	lw := newLimitedWriter(w, maxBytes)
	if _, err := file.WriteTo(lw); err != nil {
		return lw.count, err
	}
	return lw.count, nil
}
