package export

import (
	"context"
	"errors"
	"io"
)

// Exporter exports a single grid through a template.
type Exporter struct {
	Grid      Grid
	Options   Options
	Templates TemplateSource
	Logger    Logger
}

// NewExporter creates an exporter for grid.
func NewExporter(grid Grid, opts Options) *Exporter {
	return &Exporter{Grid: grid, Options: opts, Logger: NopLogger{}}
}

// Export writes the filled workbook to w.
func (e *Exporter) Export(ctx context.Context, w io.Writer) (RenderStats, error) {
	if e == nil {
		return RenderStats{}, NewError(KindInternal, "exporter is nil", nil)
	}
	if w == nil {
		return RenderStats{}, NewError(KindValidation, "output writer is required", nil)
	}
	return e.renderer().Render(ctx, e.Grid, w, e.Options)
}

// Open fills the workbook and returns a reader streaming its bytes along
// with the row count. The workbook is written by a producer goroutine;
// closing the reader early stops it.
func (e *Exporter) Open(ctx context.Context) (io.ReadCloser, RenderStats, error) {
	if e == nil {
		return nil, RenderStats{}, NewError(KindInternal, "exporter is nil", nil)
	}
	file, stats, err := e.renderer().Fill(ctx, e.Grid, e.Options)
	if err != nil {
		return nil, stats, err
	}

	logger := e.logger()
	pr, pw := io.Pipe()
	go func() {
		defer func() {
			_ = file.Close()
		}()
		written, err := writeWorkbook(file, pw, e.Options.MaxBytes)
		if err != nil && !errors.Is(err, io.ErrClosedPipe) {
			logger.Errorf("problem generating export: %v", err)
		}
		logger.Debugf("export stream finished: rows=%d bytes=%d", stats.Rows, written)
		_ = pw.CloseWithError(err)
	}()
	return pr, stats, nil
}

func (e *Exporter) renderer() TemplateRenderer {
	return TemplateRenderer{Templates: e.Templates}
}

func (e *Exporter) logger() Logger {
	if e.Logger == nil {
		return NopLogger{}
	}
	return e.Logger
}

// NopLogger is a no-op logger.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}
