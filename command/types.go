package command

import (
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-gridexport/export"
)

// GenerateGridExport renders a grid export into the artifact store.
type GenerateGridExport struct {
	Request export.ExportRequest
	Result  *export.ExportResult
}

func (GenerateGridExport) Type() string { return "gridexport:generate" }

func (msg GenerateGridExport) Validate() error {
	if strings.TrimSpace(msg.Request.Grid) == "" {
		return errors.New("grid name is required", errors.CategoryValidation).
			WithTextCode("GRID_REQUIRED")
	}
	if msg.Request.Output != nil {
		return errors.New("stored exports do not take an output writer", errors.CategoryValidation).
			WithTextCode("OUTPUT_NOT_ALLOWED")
	}
	return nil
}

// DeleteGridExport removes a stored export artifact.
type DeleteGridExport struct {
	ExportID string
}

func (DeleteGridExport) Type() string { return "gridexport:delete" }

func (msg DeleteGridExport) Validate() error {
	if strings.TrimSpace(msg.ExportID) == "" {
		return errors.New("export ID is required", errors.CategoryValidation).
			WithTextCode("EXPORT_ID_REQUIRED")
	}
	return nil
}
