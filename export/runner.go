package export

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Runner resolves registered grids and runs their exports.
type Runner struct {
	Grids       *GridRegistry
	Templates   TemplateSource
	Store       ArtifactStore
	Logger      Logger
	Emitter     ChangeEmitter
	Now         func() time.Time
	IDGenerator func() string
}

// NewRunner creates a runner with an empty grid registry.
func NewRunner() *Runner {
	return &Runner{
		Grids:       NewGridRegistry(),
		Logger:      NopLogger{},
		Now:         time.Now,
		IDGenerator: uuid.NewString,
	}
}

// PreparedExport is a resolved export ready to render.
type PreparedExport struct {
	ID       string
	Grid     string
	Filename string
	Exporter *Exporter
}

// Prepare resolves the grid definition and builds its exporter.
func (r *Runner) Prepare(ctx context.Context, req ExportRequest) (PreparedExport, error) {
	if r == nil {
		return PreparedExport{}, NewError(KindInternal, "runner is nil", nil)
	}
	if r.Grids == nil {
		return PreparedExport{}, NewError(KindInternal, "runner grid registry is not configured", nil)
	}
	if req.Grid == "" {
		return PreparedExport{}, NewError(KindValidation, "grid name is required", nil)
	}
	if req.ID == "." || req.ID == ".." || strings.ContainsAny(req.ID, "/\\") {
		return PreparedExport{}, NewError(KindValidation, "invalid export id", nil)
	}

	def, err := r.Grids.Resolve(req.Grid)
	if err != nil {
		return PreparedExport{}, err
	}

	grid, err := def.Build(ctx, req)
	if err != nil {
		return PreparedExport{}, err
	}
	if req.Filter != nil {
		grid.Filter = req.Filter
	}
	if len(req.Sorts) > 0 {
		grid.Sorts = req.Sorts
	}

	opts := mergeOptions(def.Options, Options{
		Title:                  req.Title,
		AdditionalPlaceholders: req.Placeholders,
	})

	filename, err := renderFilename(def, opts.Title, r.now())
	if err != nil {
		return PreparedExport{}, err
	}

	return PreparedExport{
		ID:       r.exportID(req.ID),
		Grid:     def.Name,
		Filename: filename,
		Exporter: &Exporter{
			Grid:      grid,
			Options:   opts,
			Templates: r.Templates,
			Logger:    r.logger(),
		},
	}, nil
}

// Run renders the export into req.Output.
func (r *Runner) Run(ctx context.Context, req ExportRequest) (ExportResult, error) {
	if req.Output == nil {
		return ExportResult{}, AsGoError(NewError(KindValidation, "output writer is required", nil))
	}
	prepared, err := r.Prepare(ctx, req)
	if err != nil {
		return ExportResult{}, AsGoError(err)
	}

	startedAt := r.now()
	r.emit(ctx, prepared, "export.started", nil)

	stats, err := prepared.Exporter.Export(ctx, req.Output)
	if err != nil {
		r.fail(ctx, prepared, startedAt, err)
		return ExportResult{}, AsGoError(err)
	}

	result := resultFromStats(prepared, stats)
	r.complete(ctx, prepared, startedAt, stats, nil)
	return result, nil
}

// Stream starts the export and returns a reader over the workbook bytes.
// Template and data errors are reported before any byte is produced.
func (r *Runner) Stream(ctx context.Context, req ExportRequest) (PreparedExport, io.ReadCloser, error) {
	prepared, err := r.Prepare(ctx, req)
	if err != nil {
		return PreparedExport{}, nil, AsGoError(err)
	}

	startedAt := r.now()
	r.emit(ctx, prepared, "export.started", nil)

	rc, stats, err := prepared.Exporter.Open(ctx)
	if err != nil {
		r.fail(ctx, prepared, startedAt, err)
		return PreparedExport{}, nil, AsGoError(err)
	}
	return prepared, &trackedStream{
		ReadCloser: rc,
		done: func(n int64, err error) {
			if err != io.EOF {
				r.fail(ctx, prepared, startedAt, err)
				return
			}
			stats.Bytes = n
			r.complete(ctx, prepared, startedAt, stats, nil)
		},
	}, nil
}

// Save renders the export into the artifact store.
func (r *Runner) Save(ctx context.Context, req ExportRequest) (ExportResult, error) {
	if r == nil || r.Store == nil {
		return ExportResult{}, AsGoError(NewError(KindNotImpl, "artifact store is not configured", nil))
	}
	prepared, err := r.Prepare(ctx, req)
	if err != nil {
		return ExportResult{}, AsGoError(err)
	}

	startedAt := r.now()
	r.emit(ctx, prepared, "export.started", nil)

	rc, stats, err := prepared.Exporter.Open(ctx)
	if err != nil {
		r.fail(ctx, prepared, startedAt, err)
		return ExportResult{}, AsGoError(err)
	}
	defer func() {
		_ = rc.Close()
	}()

	counter := &countingReader{r: rc}
	ref, err := r.Store.Put(ctx, ArtifactKey(prepared.ID), counter, ArtifactMeta{
		ContentType: ContentTypeXLSX,
		Filename:    prepared.Filename,
		CreatedAt:   r.now(),
	})
	if err != nil {
		r.fail(ctx, prepared, startedAt, err)
		return ExportResult{}, AsGoError(err)
	}

	stats.Bytes = counter.count
	if ref.Meta.Size > 0 {
		stats.Bytes = ref.Meta.Size
	}
	result := resultFromStats(prepared, stats)
	result.Artifact = &ref
	r.complete(ctx, prepared, startedAt, stats, map[string]any{"artifact_key": ref.Key})
	return result, nil
}

// trackedStream reports the end of a stream exactly once: io.EOF on a
// full read, or the read error, or errStreamClosed when closed early.
type trackedStream struct {
	io.ReadCloser
	count int64
	once  sync.Once
	done  func(n int64, err error)
}

var errStreamClosed = NewError(KindCanceled, "export stream closed before completion", nil)

func (s *trackedStream) Read(p []byte) (int, error) {
	n, err := s.ReadCloser.Read(p)
	s.count += int64(n)
	if err != nil {
		s.finish(err)
	}
	return n, err
}

func (s *trackedStream) Close() error {
	err := s.ReadCloser.Close()
	s.finish(errStreamClosed)
	return err
}

func (s *trackedStream) finish(err error) {
	s.once.Do(func() {
		s.done(s.count, err)
	})
}

// ArtifactKey returns the store key of the artifact saved for an export.
func ArtifactKey(id string) string {
	return fmt.Sprintf("exports/%s%s", id, xlsxExtension)
}

func resultFromStats(prepared PreparedExport, stats RenderStats) ExportResult {
	return ExportResult{
		ID:       prepared.ID,
		Grid:     prepared.Grid,
		Rows:     stats.Rows,
		Bytes:    stats.Bytes,
		Filename: prepared.Filename,
	}
}

func (r *Runner) complete(ctx context.Context, prepared PreparedExport, startedAt time.Time, stats RenderStats, extra map[string]any) {
	r.logger().Infof("export %s of grid %q completed: rows=%d bytes=%d", prepared.ID, prepared.Grid, stats.Rows, stats.Bytes)
	meta := map[string]any{
		"rows":     stats.Rows,
		"bytes":    stats.Bytes,
		"duration": r.now().Sub(startedAt),
	}
	for key, value := range extra {
		meta[key] = value
	}
	r.emit(context.WithoutCancel(ctx), prepared, "export.completed", meta)
}

// fail and complete record terminal events even when ctx is already
// canceled, as it is when a client disconnects mid-stream.
func (r *Runner) fail(ctx context.Context, prepared PreparedExport, startedAt time.Time, err error) {
	r.logger().Errorf("export %s of grid %q failed: %v", prepared.ID, prepared.Grid, err)
	r.emit(context.WithoutCancel(ctx), prepared, "export.failed", map[string]any{
		"error":      err.Error(),
		"error_kind": KindFromError(err),
		"duration":   r.now().Sub(startedAt),
	})
}

func (r *Runner) emit(ctx context.Context, prepared PreparedExport, name string, meta map[string]any) {
	if r.Emitter == nil {
		return
	}
	base := map[string]any{"filename": prepared.Filename}
	for key, value := range meta {
		base[key] = value
	}
	if err := r.Emitter.Emit(ctx, ChangeEvent{
		Name:      name,
		ExportID:  prepared.ID,
		Grid:      prepared.Grid,
		Timestamp: r.now(),
		Metadata:  base,
	}); err != nil {
		r.logger().Debugf("emit %s: %v", name, err)
	}
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Runner) exportID(requested string) string {
	if requested != "" {
		return requested
	}
	if r.IDGenerator == nil {
		return uuid.NewString()
	}
	return r.IDGenerator()
}

func (r *Runner) logger() Logger {
	if r.Logger == nil {
		return NopLogger{}
	}
	return r.Logger
}
