package exportapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	errorslib "github.com/goliatone/go-errors"
	"github.com/goliatone/go-gridexport/export"
)

// DefaultMaxBufferBytes is the fallback buffer limit when streaming is unavailable.
const DefaultMaxBufferBytes int64 = 8 * 1024 * 1024

// DefaultBasePath is the mount point used when Config.BasePath is empty.
const DefaultBasePath = "/exports"

const (
	artifactsSegment          = "artifacts"
	jobsSegment               = "jobs"
	statusClientClosedRequest = 499
)

// JobScheduler queues stored exports for background rendering.
type JobScheduler interface {
	Schedule(ctx context.Context, req export.ExportRequest) (string, error)
	Cancel(ctx context.Context, exportID string) error
}

// Config configures the shared export API controller.
type Config struct {
	Runner         *export.Runner
	Store          export.ArtifactStore
	Jobs           JobScheduler
	BasePath       string
	Logger         export.Logger
	MaxBufferBytes int64
}

// Controller exposes grid export handlers for multiple transports.
//
//	GET    <base>                  list grids
//	GET    <base>/<grid>           stream the workbook
//	POST   <base>/<grid>           render into the artifact store
//	POST   <base>/<grid>/jobs      queue a render into the artifact store
//	GET    <base>/artifacts/<id>   download a stored workbook
//	DELETE <base>/artifacts/<id>   delete a stored workbook
//	DELETE <base>/jobs/<id>        cancel a running job
type Controller struct {
	runner         *export.Runner
	store          export.ArtifactStore
	jobs           JobScheduler
	basePath       string
	logger         export.Logger
	maxBufferBytes int64
}

// NewController creates a shared export API controller.
func NewController(cfg Config) *Controller {
	basePath := strings.TrimRight(cfg.BasePath, "/")
	if basePath == "" {
		basePath = DefaultBasePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = export.NopLogger{}
	}
	maxBuffer := cfg.MaxBufferBytes
	if maxBuffer <= 0 {
		maxBuffer = DefaultMaxBufferBytes
	}
	store := cfg.Store
	if store == nil && cfg.Runner != nil {
		store = cfg.Runner.Store
	}
	return &Controller{
		runner:         cfg.Runner,
		store:          store,
		jobs:           cfg.Jobs,
		basePath:       basePath,
		logger:         logger,
		maxBufferBytes: maxBuffer,
	}
}

// BasePath returns the configured base path.
func (c *Controller) BasePath() string {
	if c == nil {
		return ""
	}
	return c.basePath
}

// Serve routes export endpoints using the shared controller.
func (c *Controller) Serve(req Request, res Response) {
	if res == nil {
		return
	}
	if c == nil {
		WriteError(res, export.NewError(export.KindInternal, "handler is nil", nil))
		return
	}
	if req == nil {
		WriteError(res, export.NewError(export.KindInternal, "request is nil", nil))
		return
	}
	if c.runner == nil {
		WriteError(res, export.NewError(export.KindNotImpl, "export runner not configured", nil))
		return
	}
	if req.Path() != c.basePath && !strings.HasPrefix(req.Path(), c.basePath+"/") {
		writeNotFound(res)
		return
	}

	pathSuffix := strings.Trim(strings.TrimPrefix(req.Path(), c.basePath), "/")
	parts := []string{}
	if pathSuffix != "" {
		parts = strings.Split(pathSuffix, "/")
	}

	switch req.Method() {
	case http.MethodGet:
		switch {
		case len(parts) == 0:
			c.handleList(res)
		case len(parts) == 1:
			c.handleStream(req, res, parts[0])
		case len(parts) == 2 && parts[0] == artifactsSegment:
			c.handleArtifact(req, res, parts[1])
		default:
			writeNotFound(res)
		}
	case http.MethodPost:
		switch {
		case len(parts) == 1:
			c.handleSave(req, res, parts[0])
		case len(parts) == 2 && parts[1] == jobsSegment:
			c.handleSchedule(req, res, parts[0])
		default:
			writeNotFound(res)
		}
	case http.MethodDelete:
		switch {
		case len(parts) == 2 && parts[0] == artifactsSegment:
			c.handleDelete(req, res, parts[1])
		case len(parts) == 2 && parts[0] == jobsSegment:
			c.handleCancel(req, res, parts[1])
		default:
			writeNotFound(res)
		}
	default:
		res.SetHeader("Allow", "GET,POST,DELETE")
		res.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (c *Controller) handleList(res Response) {
	names := []string{}
	if c.runner.Grids != nil {
		names = append(names, c.runner.Grids.Names()...)
	}
	writeJSON(res, http.StatusOK, GridListResponse{Grids: names})
}

func (c *Controller) handleStream(req Request, res Response, grid string) {
	exportReq, err := DecodeQuery(grid, queryValues(req))
	if err != nil {
		WriteError(res, err)
		return
	}

	prepared, reader, err := c.runner.Stream(req.Context(), exportReq)
	if err != nil {
		WriteError(res, err)
		return
	}
	defer reader.Close()

	setDownloadHeaders(res, prepared.ID, sanitizeFilename(prepared.Filename), export.ContentTypeXLSX)
	c.writeBody(res, reader)
}

func (c *Controller) handleSave(req Request, res Response, grid string) {
	if c.runner.Store == nil {
		WriteError(res, export.NewError(export.KindNotImpl, "artifact store not configured", nil))
		return
	}
	exportReq, err := DecodeQuery(grid, queryValues(req))
	if err != nil {
		WriteError(res, err)
		return
	}

	result, err := c.runner.Save(req.Context(), exportReq)
	if err != nil {
		WriteError(res, err)
		return
	}

	payload := SaveResponse{
		ID:          result.ID,
		Grid:        result.Grid,
		Filename:    result.Filename,
		Rows:        result.Rows,
		Bytes:       result.Bytes,
		DownloadURL: c.artifactURL(result.ID),
	}
	if result.Artifact != nil {
		payload.CreatedAt = result.Artifact.Meta.CreatedAt
	}
	writeJSON(res, http.StatusCreated, payload)
}

func (c *Controller) handleSchedule(req Request, res Response, grid string) {
	if c.jobs == nil {
		WriteError(res, export.NewError(export.KindNotImpl, "job scheduler not configured", nil))
		return
	}
	exportReq, err := DecodeQuery(grid, queryValues(req))
	if err != nil {
		WriteError(res, err)
		return
	}

	exportID, err := c.jobs.Schedule(req.Context(), exportReq)
	if err != nil {
		WriteError(res, err)
		return
	}
	res.SetHeader("X-Export-Id", exportID)
	writeJSON(res, http.StatusAccepted, JobResponse{
		ID:          exportID,
		Grid:        grid,
		DownloadURL: c.artifactURL(exportID),
	})
}

func (c *Controller) handleCancel(req Request, res Response, exportID string) {
	if c.jobs == nil {
		WriteError(res, export.NewError(export.KindNotImpl, "job scheduler not configured", nil))
		return
	}
	if err := validateExportID(exportID); err != nil {
		WriteError(res, err)
		return
	}
	if err := c.jobs.Cancel(req.Context(), exportID); err != nil {
		WriteError(res, err)
		return
	}
	res.WriteHeader(http.StatusNoContent)
}

func (c *Controller) handleArtifact(req Request, res Response, exportID string) {
	if c.store == nil {
		WriteError(res, export.NewError(export.KindNotImpl, "artifact store not configured", nil))
		return
	}
	if err := validateExportID(exportID); err != nil {
		WriteError(res, err)
		return
	}

	reader, meta, err := c.store.Open(req.Context(), export.ArtifactKey(exportID))
	if err != nil {
		WriteError(res, err)
		return
	}
	defer reader.Close()

	contentType := meta.ContentType
	if contentType == "" {
		contentType = export.ContentTypeXLSX
	}
	filename := meta.Filename
	if filename == "" {
		filename = exportID + ".xlsx"
	}
	setDownloadHeaders(res, exportID, sanitizeFilename(filename), contentType)
	if meta.Size > 0 {
		res.SetHeader("Content-Length", fmt.Sprintf("%d", meta.Size))
	}
	c.writeBody(res, reader)
}

func (c *Controller) handleDelete(req Request, res Response, exportID string) {
	if c.store == nil {
		WriteError(res, export.NewError(export.KindNotImpl, "artifact store not configured", nil))
		return
	}
	if err := validateExportID(exportID); err != nil {
		WriteError(res, err)
		return
	}
	if err := c.store.Delete(req.Context(), export.ArtifactKey(exportID)); err != nil {
		WriteError(res, err)
		return
	}
	res.WriteHeader(http.StatusNoContent)
}

// writeBody copies reader to the transport writer, or buffers it when the
// transport has none. Errors after the status line are only logged.
func (c *Controller) writeBody(res Response, reader io.Reader) {
	if writer, ok := res.Writer(); ok {
		res.WriteHeader(http.StatusOK)
		if _, err := io.Copy(writer, reader); err != nil {
			c.logger.Errorf("download copy failed: %v", err)
		}
		return
	}

	buffer := newLimitedBuffer(c.maxBufferBytes)
	if _, err := io.Copy(buffer, reader); err != nil {
		clearDownloadHeaders(res)
		WriteError(res, err)
		return
	}

	res.WriteHeader(http.StatusOK)
	if _, err := res.Write(buffer.Bytes()); err != nil {
		c.logger.Errorf("download buffer write failed: %v", err)
	}
}

func (c *Controller) artifactURL(exportID string) string {
	return c.basePath + "/" + artifactsSegment + "/" + url.PathEscape(exportID)
}

func queryValues(req Request) url.Values {
	if parsed := req.URL(); parsed != nil {
		return parsed.Query()
	}
	return url.Values{}
}

func validateExportID(exportID string) error {
	if exportID == "" || exportID == "." || exportID == ".." || strings.ContainsAny(exportID, "/\\") {
		return export.NewError(export.KindValidation, "invalid export id", nil)
	}
	return nil
}

func writeNotFound(res Response) {
	res.SetHeader("Content-Type", "text/plain; charset=utf-8")
	res.SetHeader("X-Content-Type-Options", "nosniff")
	res.WriteHeader(http.StatusNotFound)
	_, _ = res.Write([]byte("404 page not found\n"))
}

// WriteError writes err as a JSON error payload with its mapped status.
func WriteError(res Response, err error) {
	if err == nil {
		res.WriteHeader(http.StatusNoContent)
		return
	}
	ge := export.AsGoError(err)
	payload := ErrorResponse{
		Error: ErrorBody{
			Message: ge.Message,
			Code:    ge.TextCode,
		},
	}
	writeJSON(res, StatusForError(ge), payload)
}

func writeJSON(res Response, status int, payload any) {
	_ = res.WriteJSON(status, payload)
}

// StatusForError maps a go-errors error to an HTTP status code.
func StatusForError(err *errorslib.Error) int {
	if err == nil {
		return http.StatusInternalServerError
	}
	switch err.TextCode {
	case "not_implemented":
		return http.StatusNotImplemented
	case "canceled":
		return statusClientClosedRequest
	case "timeout":
		return http.StatusGatewayTimeout
	}
	switch err.Category {
	case errorslib.CategoryValidation:
		return http.StatusBadRequest
	case errorslib.CategoryAuthz:
		return http.StatusForbidden
	case errorslib.CategoryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func sanitizeFilename(filename string) string {
	name := strings.TrimSpace(filename)
	name = strings.ReplaceAll(name, "\"", "")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	if name == "" {
		name = "export.xlsx"
	}
	return name
}

func setDownloadHeaders(res Response, exportID, filename, contentType string) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	res.SetHeader("Content-Type", contentType)
	res.SetHeader("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if exportID != "" {
		res.SetHeader("X-Export-Id", exportID)
	}
}

func clearDownloadHeaders(res Response) {
	res.DelHeader("Content-Disposition")
	res.DelHeader("Content-Type")
	res.DelHeader("Content-Length")
	res.DelHeader("X-Export-Id")
}

type limitedBuffer struct {
	buf     bytes.Buffer
	maxSize int64
}

func newLimitedBuffer(maxSize int64) *limitedBuffer {
	if maxSize <= 0 {
		maxSize = DefaultMaxBufferBytes
	}
	return &limitedBuffer{maxSize: maxSize}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if int64(b.buf.Len()+len(p)) > b.maxSize {
		return 0, export.NewError(export.KindInternal, "buffer limit exceeded", nil)
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}
