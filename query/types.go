package query

import (
	"time"

	"github.com/goliatone/go-errors"
	trackerbun "github.com/goliatone/go-gridexport/adapters/tracker/bun"
)

// ExportStatus requests the tracked record of one export.
type ExportStatus struct {
	ExportID string
}

func (ExportStatus) Type() string { return "gridexport:status" }

func (msg ExportStatus) Validate() error {
	if msg.ExportID == "" {
		return errors.New("export ID is required", errors.CategoryValidation).
			WithTextCode("EXPORT_ID_REQUIRED")
	}
	return nil
}

// ExportHistory requests tracked exports, newest first.
type ExportHistory struct {
	Grid  string
	State trackerbun.State
	Since time.Time
	Limit int
}

func (ExportHistory) Type() string { return "gridexport:history" }

func (msg ExportHistory) Validate() error {
	switch msg.State {
	case "", trackerbun.StateRunning, trackerbun.StateCompleted, trackerbun.StateFailed:
	default:
		return errors.New("unknown export state", errors.CategoryValidation).
			WithTextCode("STATE_INVALID")
	}
	if msg.Limit < 0 {
		return errors.New("limit must not be negative", errors.CategoryValidation).
			WithTextCode("LIMIT_INVALID")
	}
	return nil
}

func (msg ExportHistory) filter() trackerbun.Filter {
	return trackerbun.Filter{
		Grid:  msg.Grid,
		State: msg.State,
		Since: msg.Since,
		Limit: msg.Limit,
	}
}
