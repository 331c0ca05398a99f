package exportjob

import (
	"context"

	"github.com/google/uuid"

	exportcmd "github.com/goliatone/go-gridexport/command"
	"github.com/goliatone/go-gridexport/export"
	job "github.com/goliatone/go-job"
)

// Enqueuer delivers execution messages to go-job.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg *job.ExecutionMessage) error
}

// EnqueuerFunc adapts a function to an Enqueuer.
type EnqueuerFunc func(ctx context.Context, msg *job.ExecutionMessage) error

func (f EnqueuerFunc) Enqueue(ctx context.Context, msg *job.ExecutionMessage) error {
	if f == nil {
		return export.NewError(export.KindInternal, "enqueuer is nil", nil)
	}
	return f(ctx, msg)
}

// Config configures the export job scheduler.
type Config struct {
	Enqueuer       Enqueuer
	Grids          *export.GridRegistry
	CancelRegistry *CancelRegistry
	TaskID         string
	TaskPath       string
	IDGenerator    func() string
	Logger         export.Logger
}

// Scheduler queues stored grid exports for background rendering.
type Scheduler struct {
	enqueuer    Enqueuer
	grids       *export.GridRegistry
	cancels     *CancelRegistry
	taskID      string
	taskPath    string
	idGenerator func() string
	logger      export.Logger
}

func NewScheduler(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = export.NopLogger{}
	}
	taskID := cfg.TaskID
	if taskID == "" {
		taskID = DefaultGenerateTaskID
	}
	taskPath := cfg.TaskPath
	if taskPath == "" {
		taskPath = DefaultGenerateTaskPath
	}
	idGenerator := cfg.IDGenerator
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}

	return &Scheduler{
		enqueuer:    cfg.Enqueuer,
		grids:       cfg.Grids,
		cancels:     cfg.CancelRegistry,
		taskID:      taskID,
		taskPath:    taskPath,
		idGenerator: idGenerator,
		logger:      logger,
	}
}

// Schedule enqueues req and returns the export ID the job will store its
// workbook under. Unknown grids are rejected before anything is queued.
func (s *Scheduler) Schedule(ctx context.Context, req export.ExportRequest) (string, error) {
	if s == nil {
		return "", export.NewError(export.KindInternal, "scheduler is nil", nil)
	}
	if s.enqueuer == nil {
		return "", export.NewError(export.KindNotImpl, "job enqueuer not configured", nil)
	}
	if err := (exportcmd.GenerateGridExport{Request: req}).Validate(); err != nil {
		return "", err
	}
	if s.grids != nil {
		if _, err := s.grids.Resolve(req.Grid); err != nil {
			return "", err
		}
	}

	batchReq, err := toBatchRequest(req)
	if err != nil {
		return "", err
	}
	exportID := req.ID
	if exportID == "" {
		exportID = s.idGenerator()
	}
	encoded, err := EncodePayload(Payload{ExportID: exportID, Request: batchReq})
	if err != nil {
		return "", err
	}

	msg := &job.ExecutionMessage{
		JobID:      s.taskID,
		ScriptPath: s.taskPath,
		Parameters: map[string]any{"payload": encoded},
	}
	if err := s.enqueuer.Enqueue(ctx, msg); err != nil {
		return "", err
	}
	s.logger.Debugf("export %s queued for grid %s", exportID, req.Grid)
	return exportID, nil
}

// Cancel stops a running export job.
func (s *Scheduler) Cancel(ctx context.Context, exportID string) error {
	_ = ctx
	if s == nil || s.cancels == nil {
		return export.NewError(export.KindNotImpl, "job cancellation not configured", nil)
	}
	return s.cancels.Cancel(exportID)
}

func toBatchRequest(req export.ExportRequest) (exportcmd.BatchRequest, error) {
	out := exportcmd.BatchRequest{
		Grid:         req.Grid,
		Title:        req.Title,
		Placeholders: req.Placeholders,
		Sorts:        req.Sorts,
	}
	switch filter := req.Filter.(type) {
	case nil:
	case map[string]string:
		out.Filter = filter
	default:
		return exportcmd.BatchRequest{}, export.NewError(export.KindValidation, "queued exports only take field filters", nil)
	}
	return out, nil
}
