package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	exportzap "github.com/goliatone/go-gridexport/adapters/logger/zap"
	storefs "github.com/goliatone/go-gridexport/adapters/store/fs"
	trackerbun "github.com/goliatone/go-gridexport/adapters/tracker/bun"
	"github.com/goliatone/go-gridexport/cmd/gridexport/config"
	"github.com/goliatone/go-gridexport/export"
	"github.com/goliatone/go-gridexport/gridspec"
)

// runtime holds the long lived pieces shared by serve and batch.
type runtime struct {
	runner  *export.Runner
	tracker *trackerbun.Tracker
	db      *bun.DB
}

func openRuntime(ctx context.Context, cfg config.Config, logger *zap.Logger) (*runtime, error) {
	db, err := openDB(cfg.Export.Database)
	if err != nil {
		return nil, err
	}

	tracker := trackerbun.NewTracker(db)
	if err := tracker.CreateTable(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create export history table: %w", err)
	}

	runner := export.NewRunner()
	runner.Logger = exportzap.New(logger).Named("runner")
	runner.Emitter = tracker
	runner.Store = storefs.NewStore(cfg.Export.ArtifactDir)
	if cfg.Export.TemplateDir != "" {
		runner.Templates = export.FSTemplates{FS: os.DirFS(cfg.Export.TemplateDir)}
	}

	specs, err := gridspec.LoadDir(cfg.Export.GridDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = db.Close()
		return nil, fmt.Errorf("load grids: %w", err)
	}
	for i := range specs {
		if specs[i].MaxRows == 0 {
			specs[i].MaxRows = cfg.Export.MaxRows
		}
	}
	if err := gridspec.Register(runner.Grids, specs, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("register grids: %w", err)
	}
	logger.Info("grids loaded", zap.String("dir", cfg.Export.GridDir), zap.Strings("grids", runner.Grids.Names()))

	return &runtime{runner: runner, tracker: tracker, db: db}, nil
}

func openDB(path string) (*bun.DB, error) {
	sqldb, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

func (r *runtime) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
