package trackerbun

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-gridexport/export"
	"github.com/uptrace/bun"
)

// State is the lifecycle state of a tracked export.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Record is a tracked export run.
type Record struct {
	ID          string
	Grid        string
	State       State
	Filename    string
	Rows        int64
	Bytes       int64
	ArtifactKey string
	Error       string
	ErrorKind   string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Filter narrows List results.
type Filter struct {
	Grid  string
	State State
	Since time.Time
	Limit int
}

// Tracker records export lifecycle events in a Bun-backed database. It
// implements export.ChangeEmitter.
type Tracker struct {
	DB  *bun.DB
	Now func() time.Time
}

// NewTracker creates a Bun-backed tracker.
func NewTracker(db *bun.DB) *Tracker {
	return &Tracker{DB: db, Now: time.Now}
}

// CreateTable creates the tracker table when it does not exist.
func (t *Tracker) CreateTable(ctx context.Context) error {
	if t == nil || t.DB == nil {
		return export.NewError(export.KindNotImpl, "tracker database not configured", nil)
	}
	_, err := t.DB.NewCreateTable().Model((*recordModel)(nil)).IfNotExists().Exec(ctx)
	return err
}

// Emit applies a runner change event to the matching record.
func (t *Tracker) Emit(ctx context.Context, evt export.ChangeEvent) error {
	if t == nil || t.DB == nil {
		return export.NewError(export.KindNotImpl, "tracker database not configured", nil)
	}
	if evt.ExportID == "" {
		return export.NewError(export.KindValidation, "export ID is required", nil)
	}

	switch evt.Name {
	case "export.started":
		return t.start(ctx, evt)
	case "export.completed":
		query := t.DB.NewUpdate().Model((*recordModel)(nil)).
			Set("state = ?", string(StateCompleted)).
			Set("completed_at = ?", t.timestamp(evt)).
			Where("id = ?", evt.ExportID)
		if rows, ok := evt.Metadata["rows"].(int64); ok {
			query = query.Set("row_count = ?", rows)
		}
		if bytes, ok := evt.Metadata["bytes"].(int64); ok {
			query = query.Set("byte_count = ?", bytes)
		}
		if key, ok := evt.Metadata["artifact_key"].(string); ok {
			query = query.Set("artifact_key = ?", key)
		}
		return t.update(ctx, evt.ExportID, query)
	case "export.failed":
		message, _ := evt.Metadata["error"].(string)
		kind := ""
		if value, ok := evt.Metadata["error_kind"]; ok {
			kind = fmt.Sprint(value)
		}
		query := t.DB.NewUpdate().Model((*recordModel)(nil)).
			Set("state = ?", string(StateFailed)).
			Set("error_message = ?", message).
			Set("error_kind = ?", kind).
			Set("completed_at = ?", t.timestamp(evt)).
			Where("id = ?", evt.ExportID)
		return t.update(ctx, evt.ExportID, query)
	default:
		return nil
	}
}

func (t *Tracker) start(ctx context.Context, evt export.ChangeEvent) error {
	filename, _ := evt.Metadata["filename"].(string)
	model := recordModel{
		ID:        evt.ExportID,
		Grid:      evt.Grid,
		State:     string(StateRunning),
		Filename:  filename,
		StartedAt: t.timestamp(evt),
	}
	_, err := t.DB.NewInsert().Model(&model).Exec(ctx)
	return err
}

func (t *Tracker) update(ctx context.Context, id string, query *bun.UpdateQuery) error {
	res, err := query.Exec(ctx)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return export.NewError(export.KindNotFound, fmt.Sprintf("export %q not found", id), nil)
	}
	return nil
}

// Status returns a record by ID.
func (t *Tracker) Status(ctx context.Context, id string) (Record, error) {
	if t == nil || t.DB == nil {
		return Record{}, export.NewError(export.KindNotImpl, "tracker database not configured", nil)
	}
	if id == "" {
		return Record{}, export.NewError(export.KindValidation, "export ID is required", nil)
	}

	model := new(recordModel)
	err := t.DB.NewSelect().Model(model).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, export.NewError(export.KindNotFound, fmt.Sprintf("export %q not found", id), nil)
		}
		return Record{}, err
	}
	return model.toRecord(), nil
}

// List returns records matching a filter, newest first.
func (t *Tracker) List(ctx context.Context, filter Filter) ([]Record, error) {
	if t == nil || t.DB == nil {
		return nil, export.NewError(export.KindNotImpl, "tracker database not configured", nil)
	}

	models := make([]recordModel, 0)
	query := t.DB.NewSelect().Model(&models)
	if filter.Grid != "" {
		query = query.Where("grid = ?", filter.Grid)
	}
	if filter.State != "" {
		query = query.Where("state = ?", string(filter.State))
	}
	if !filter.Since.IsZero() {
		query = query.Where("started_at >= ?", filter.Since)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	query = query.Order("started_at DESC")

	if err := query.Scan(ctx); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(models))
	for _, model := range models {
		records = append(records, model.toRecord())
	}
	return records, nil
}

type recordModel struct {
	bun.BaseModel `bun:"table:grid_exports,alias:grid_exports"`

	ID          string    `bun:",pk"`
	Grid        string    `bun:",notnull"`
	State       string    `bun:",notnull"`
	Filename    string    `bun:"filename"`
	Rows        int64     `bun:"row_count"`
	Bytes       int64     `bun:"byte_count"`
	ArtifactKey string    `bun:"artifact_key"`
	Error       string    `bun:"error_message"`
	ErrorKind   string    `bun:"error_kind"`
	StartedAt   time.Time `bun:"started_at"`
	CompletedAt time.Time `bun:"completed_at,nullzero"`
}

func (m recordModel) toRecord() Record {
	return Record{
		ID:          m.ID,
		Grid:        m.Grid,
		State:       State(m.State),
		Filename:    m.Filename,
		Rows:        m.Rows,
		Bytes:       m.Bytes,
		ArtifactKey: m.ArtifactKey,
		Error:       m.Error,
		ErrorKind:   m.ErrorKind,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}
}

func (t *Tracker) timestamp(evt export.ChangeEvent) time.Time {
	if !evt.Timestamp.IsZero() {
		return evt.Timestamp
	}
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}
