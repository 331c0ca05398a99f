package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	trackerbun "github.com/goliatone/go-gridexport/adapters/tracker/bun"
	"github.com/goliatone/go-gridexport/export"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestTracker(t *testing.T) *trackerbun.Tracker {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_ = db.Close()
	})
	tracker := trackerbun.NewTracker(db)
	if err := tracker.CreateTable(context.Background()); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return tracker
}

func seed(t *testing.T, tracker *trackerbun.Tracker) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	events := []export.ChangeEvent{
		{Name: "export.started", ExportID: "exp-1", Grid: "users", Timestamp: base},
		{Name: "export.completed", ExportID: "exp-1", Grid: "users", Timestamp: base.Add(time.Second), Metadata: map[string]any{"rows": int64(3)}},
		{Name: "export.started", ExportID: "exp-2", Grid: "orders", Timestamp: base.Add(time.Minute)},
		{Name: "export.failed", ExportID: "exp-2", Grid: "orders", Timestamp: base.Add(2 * time.Minute), Metadata: map[string]any{"error": "boom"}},
	}
	for _, evt := range events {
		if err := tracker.Emit(ctx, evt); err != nil {
			t.Fatalf("emit %s: %v", evt.Name, err)
		}
	}
}

func TestExportStatusHandler(t *testing.T) {
	tracker := newTestTracker(t)
	seed(t, tracker)

	record, err := NewExportStatusHandler(tracker).Query(context.Background(), ExportStatus{ExportID: "exp-1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if record.State != trackerbun.StateCompleted || record.Rows != 3 {
		t.Fatalf("unexpected record %+v", record)
	}

	_, err = NewExportStatusHandler(tracker).Query(context.Background(), ExportStatus{ExportID: "missing"})
	if export.KindFromError(err) != export.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := NewExportStatusHandler(tracker).Query(context.Background(), ExportStatus{}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestExportHistoryHandler(t *testing.T) {
	tracker := newTestTracker(t)
	seed(t, tracker)
	handler := NewExportHistoryHandler(tracker)

	all, err := handler.Query(context.Background(), ExportHistory{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all) != 2 || all[0].ID != "exp-2" {
		t.Fatalf("expected newest first, got %+v", all)
	}

	failed, err := handler.Query(context.Background(), ExportHistory{State: trackerbun.StateFailed})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(failed) != 1 || failed[0].Grid != "orders" || failed[0].Error != "boom" {
		t.Fatalf("unexpected failed records %+v", failed)
	}

	if _, err := handler.Query(context.Background(), ExportHistory{State: "queued"}); err == nil {
		t.Fatalf("expected invalid state error")
	}
	if _, err := handler.Query(context.Background(), ExportHistory{Limit: -1}); err == nil {
		t.Fatalf("expected invalid limit error")
	}
}

func TestHandlers_RequireHistory(t *testing.T) {
	if _, err := NewExportStatusHandler(nil).Query(context.Background(), ExportStatus{ExportID: "x"}); err == nil {
		t.Fatalf("expected error without history")
	}
	if _, err := NewExportHistoryHandler(nil).Query(context.Background(), ExportHistory{}); err == nil {
		t.Fatalf("expected error without history")
	}
}
