package export

import (
	"context"
	"io"
	"time"
)

// TextAlign is the horizontal alignment of a grid column.
type TextAlign string

const (
	AlignStart  TextAlign = "start"
	AlignCenter TextAlign = "center"
	AlignEnd    TextAlign = "end"
)

// ColumnType drives parsing of string values that carry a pattern.
type ColumnType string

const (
	ColumnTypeAuto   ColumnType = ""
	ColumnTypeNumber ColumnType = "number"
	ColumnTypeDate   ColumnType = "date"
)

// ValueFunc provides the exported value of a column for an item.
type ValueFunc func(item any) (any, error)

// Column describes a grid column.
type Column struct {
	Key          string
	Header       string
	Footer       string
	TextAlign    TextAlign
	Hidden       bool
	Exportable   *bool
	Value        ValueFunc
	Type         ColumnType
	ParsePattern string
	ExcelFormat  string
	Position     *int
}

// SortDirection orders a sort key.
type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// SortOrder sorts by a key.
type SortOrder struct {
	Key       string
	Direction SortDirection
}

// Query describes the items requested from a provider.
type Query struct {
	Offset int
	Limit  int
	Filter any
	Sorts  []SortOrder
}

// ItemIterator streams grid items.
type ItemIterator interface {
	Next(ctx context.Context) (any, error)
	Close() error
}

// DataProvider supplies grid items.
type DataProvider interface {
	Fetch(ctx context.Context, q Query) (ItemIterator, error)
}

// Sizer is implemented by providers that can count items for a query.
type Sizer interface {
	Size(ctx context.Context, q Query) (int, error)
}

// Grid is the exported data grid.
type Grid struct {
	Columns  []Column
	Provider DataProvider
	Filter   any
	Sorts    []SortOrder
}

// FormatOptions configures time handling.
type FormatOptions struct {
	Timezone string
}

// Options configures template filling.
type Options struct {
	Title                  string
	TitlePlaceholder       string
	HeadersPlaceholder     string
	DataPlaceholder        string
	FootersPlaceholder     string
	SheetIndex             int
	AutoMergeTitle         *bool
	AutoSizeColumns        *bool
	AdditionalPlaceholders map[string]string
	Template               string
	MaxRows                int
	MaxBytes               int64
	Format                 FormatOptions
}

// RenderStats capture renderer output.
type RenderStats struct {
	Rows  int64
	Bytes int64
}

// GridFactory builds the grid for a request.
type GridFactory func(ctx context.Context, req ExportRequest) (Grid, error)

// GridDefinition declares an exportable grid.
type GridDefinition struct {
	Name            string
	Options         Options
	DefaultFilename string
	Build           GridFactory
}

// ExportRequest captures an export request.
type ExportRequest struct {
	// ID fixes the export ID. The runner generates one when empty.
	ID           string
	Grid         string
	Title        string
	Placeholders map[string]string
	Filter       any
	Sorts        []SortOrder
	Output       io.Writer
}

// ExportResult captures a completed export.
type ExportResult struct {
	ID       string
	Grid     string
	Rows     int64
	Bytes    int64
	Filename string
	Artifact *ArtifactRef
}

// ArtifactMeta captures stored artifact metadata.
type ArtifactMeta struct {
	ContentType string
	Size        int64
	Filename    string
	CreatedAt   time.Time
}

// ArtifactRef references a stored artifact.
type ArtifactRef struct {
	Key  string
	Meta ArtifactMeta
}

// ArtifactStore stores export artifacts.
type ArtifactStore interface {
	Put(ctx context.Context, key string, r io.Reader, meta ArtifactMeta) (ArtifactRef, error)
	Open(ctx context.Context, key string) (io.ReadCloser, ArtifactMeta, error)
	Delete(ctx context.Context, key string) error
}

// TemplateSource resolves template workbooks by name.
type TemplateSource interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Logger provides logging hooks.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// ChangeEvent describes lifecycle events.
type ChangeEvent struct {
	Name      string
	ExportID  string
	Grid      string
	Timestamp time.Time
	Metadata  map[string]any
}

// ChangeEmitter emits lifecycle events.
type ChangeEmitter interface {
	Emit(ctx context.Context, evt ChangeEvent) error
}

// ChangeEmitterFunc adapts a function to a ChangeEmitter.
type ChangeEmitterFunc func(ctx context.Context, evt ChangeEvent) error

func (f ChangeEmitterFunc) Emit(ctx context.Context, evt ChangeEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, evt)
}

// ContentTypeXLSX is the media type of exported workbooks.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
