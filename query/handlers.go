package query

import (
	"context"

	"github.com/goliatone/go-errors"
	trackerbun "github.com/goliatone/go-gridexport/adapters/tracker/bun"
)

// History reads tracked export runs. *trackerbun.Tracker implements it.
type History interface {
	Status(ctx context.Context, id string) (trackerbun.Record, error)
	List(ctx context.Context, filter trackerbun.Filter) ([]trackerbun.Record, error)
}

// ExportStatusHandler returns a single export record.
type ExportStatusHandler struct {
	History History
}

func NewExportStatusHandler(history History) *ExportStatusHandler {
	return &ExportStatusHandler{History: history}
}

func (h *ExportStatusHandler) Query(ctx context.Context, msg ExportStatus) (trackerbun.Record, error) {
	if h == nil || h.History == nil {
		return trackerbun.Record{}, errors.New("export history is required", errors.CategoryInternal).
			WithTextCode("HISTORY_REQUIRED")
	}
	if err := msg.Validate(); err != nil {
		return trackerbun.Record{}, err
	}
	return h.History.Status(ctx, msg.ExportID)
}

// ExportHistoryHandler returns export history.
type ExportHistoryHandler struct {
	History History
}

func NewExportHistoryHandler(history History) *ExportHistoryHandler {
	return &ExportHistoryHandler{History: history}
}

func (h *ExportHistoryHandler) Query(ctx context.Context, msg ExportHistory) ([]trackerbun.Record, error) {
	if h == nil || h.History == nil {
		return nil, errors.New("export history is required", errors.CategoryInternal).
			WithTextCode("HISTORY_REQUIRED")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return h.History.List(ctx, msg.filter())
}
