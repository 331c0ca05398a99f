package command

import (
	"context"

	gcmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-gridexport/export"
)

// ExportSaver renders exports into an artifact store. *export.Runner
// implements it.
type ExportSaver interface {
	Save(ctx context.Context, req export.ExportRequest) (export.ExportResult, error)
}

// GenerateGridExportHandler handles GenerateGridExport.
type GenerateGridExportHandler struct {
	Saver ExportSaver
}

func NewGenerateGridExportHandler(saver ExportSaver) *GenerateGridExportHandler {
	return &GenerateGridExportHandler{Saver: saver}
}

func (h *GenerateGridExportHandler) Execute(ctx context.Context, msg GenerateGridExport) error {
	if h == nil || h.Saver == nil {
		return errors.New("export runner is required", errors.CategoryInternal).
			WithTextCode("RUNNER_REQUIRED")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	result, err := h.Saver.Save(ctx, msg.Request)
	if err != nil {
		return err
	}
	if msg.Result != nil {
		*msg.Result = result
	}
	if res := gcmd.ResultFromContext[export.ExportResult](ctx); res != nil {
		res.Store(result)
	}
	return nil
}

// DeleteGridExportHandler handles DeleteGridExport.
type DeleteGridExportHandler struct {
	Store export.ArtifactStore
}

func NewDeleteGridExportHandler(store export.ArtifactStore) *DeleteGridExportHandler {
	return &DeleteGridExportHandler{Store: store}
}

func (h *DeleteGridExportHandler) Execute(ctx context.Context, msg DeleteGridExport) error {
	if h == nil || h.Store == nil {
		return errors.New("artifact store is required", errors.CategoryInternal).
			WithTextCode("STORE_REQUIRED")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return h.Store.Delete(ctx, export.ArtifactKey(msg.ExportID))
}
