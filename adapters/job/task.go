package exportjob

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/goliatone/go-command/dispatcher"
	errorslib "github.com/goliatone/go-errors"
	exportcmd "github.com/goliatone/go-gridexport/command"
	"github.com/goliatone/go-gridexport/export"
	job "github.com/goliatone/go-job"
)

const (
	DefaultGenerateTaskID   = "gridexport:generate"
	DefaultGenerateTaskPath = "gridexport:generate"
)

var (
	backoffRand   = rand.New(rand.NewSource(time.Now().UnixNano()))
	backoffRandMu sync.Mutex
)

// Payload captures the job execution input.
type Payload struct {
	ExportID string                 `json:"export_id"`
	Request  exportcmd.BatchRequest `json:"request"`
}

// ExportRequest returns the runner request pinned to the payload export ID.
func (p Payload) ExportRequest() export.ExportRequest {
	req := p.Request.ExportRequest()
	req.ID = p.ExportID
	return req
}

// MessageBuilderFunc builds an execution message for non-queue paths.
type MessageBuilderFunc func(ctx context.Context) (*job.ExecutionMessage, error)

// GenerateDispatch dispatches a grid export generation command.
type GenerateDispatch func(ctx context.Context, msg exportcmd.GenerateGridExport) error

// TaskConfig configures the grid export generation task.
type TaskConfig struct {
	ID             string
	Path           string
	Config         job.Config
	HandlerOptions job.HandlerOptions
	RetryPolicy    RetryPolicy
	CancelRegistry *CancelRegistry
	Store          export.ArtifactStore
	Logger         export.Logger
	Dispatch       GenerateDispatch
	MessageBuilder MessageBuilderFunc
}

// GenerateTask renders queued grid exports into the artifact store.
type GenerateTask struct {
	id             string
	path           string
	config         job.Config
	handlerOptions job.HandlerOptions
	retryPolicy    RetryPolicy
	cancelRegistry *CancelRegistry
	store          export.ArtifactStore
	logger         export.Logger
	dispatch       GenerateDispatch
	messageBuilder MessageBuilderFunc
}

// NewGenerateTask creates a grid export generation task. Without a Dispatch
// function it goes through the go-command dispatcher.
func NewGenerateTask(cfg TaskConfig) *GenerateTask {
	logger := cfg.Logger
	if logger == nil {
		logger = export.NopLogger{}
	}
	id := cfg.ID
	if id == "" {
		id = DefaultGenerateTaskID
	}
	path := cfg.Path
	if path == "" {
		path = DefaultGenerateTaskPath
	}
	dispatch := cfg.Dispatch
	if dispatch == nil {
		dispatch = func(ctx context.Context, msg exportcmd.GenerateGridExport) error {
			return dispatcher.Dispatch(ctx, msg)
		}
	}

	return &GenerateTask{
		id:             id,
		path:           path,
		config:         cfg.Config,
		handlerOptions: cfg.HandlerOptions,
		retryPolicy:    cfg.RetryPolicy,
		cancelRegistry: cfg.CancelRegistry,
		store:          cfg.Store,
		logger:         logger,
		dispatch:       dispatch,
		messageBuilder: cfg.MessageBuilder,
	}
}

func (t *GenerateTask) GetID() string { return t.id }

// GetHandler returns a handler for non-queue execution paths.
func (t *GenerateTask) GetHandler() func() error {
	return func() error {
		if t == nil {
			return export.NewError(export.KindInternal, "task is nil", nil)
		}
		if t.messageBuilder == nil {
			return export.NewError(export.KindNotImpl, "job message builder not configured", nil)
		}

		ctx := context.Background()
		msg, err := t.messageBuilder(ctx)
		if err != nil {
			return err
		}
		if msg == nil {
			return export.NewError(export.KindValidation, "execution message is required", nil)
		}
		return t.Execute(ctx, msg)
	}
}

func (t *GenerateTask) GetHandlerConfig() job.HandlerOptions { return t.handlerOptions }

func (t *GenerateTask) GetConfig() job.Config { return t.config }

func (t *GenerateTask) GetPath() string { return t.path }

// GetEngine returns nil because this task is code-driven.
func (t *GenerateTask) GetEngine() job.Engine { return nil }

// Execute renders the export described by the message payload, retrying
// retryable failures after removing any partial artifact.
func (t *GenerateTask) Execute(ctx context.Context, msg *job.ExecutionMessage) error {
	if t == nil {
		return export.NewError(export.KindInternal, "task is nil", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := DecodePayload(msg)
	if err != nil {
		return err
	}
	if payload.ExportID == "" {
		return export.NewError(export.KindValidation, "export ID is required", nil)
	}

	execCtx := ctx
	if t.cancelRegistry != nil {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithCancel(ctx)
		defer cancel()
		release := t.cancelRegistry.Register(payload.ExportID, cancel)
		defer release()
	}

	policy := t.retryPolicy
	attempt := 0
	for {
		if err := execCtx.Err(); err != nil {
			return err
		}

		err := t.dispatch(execCtx, exportcmd.GenerateGridExport{Request: payload.ExportRequest()})
		if err == nil {
			return nil
		}
		if !policy.shouldRetry(err) || attempt >= policy.MaxRetries {
			return err
		}

		t.logger.Infof("export %s attempt %d failed, retrying: %v", payload.ExportID, attempt+1, err)
		if cerr := t.cleanupArtifact(payload.ExportID); cerr != nil {
			return cerr
		}

		attempt++
		if serr := sleepWithContext(execCtx, policy.backoffDelay(attempt)); serr != nil {
			return serr
		}
	}
}

func (t *GenerateTask) cleanupArtifact(exportID string) error {
	if t.store == nil {
		return nil
	}
	if err := t.store.Delete(context.Background(), export.ArtifactKey(exportID)); err != nil {
		if export.KindFromError(err) == export.KindNotFound {
			return nil
		}
		return err
	}
	return nil
}

// EncodePayload serializes payload for an execution message.
func EncodePayload(payload Payload) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, export.NewError(export.KindValidation, "payload is not serializable", err)
	}
	return json.RawMessage(raw), nil
}

// DecodePayload reads the payload parameter of msg.
func DecodePayload(msg *job.ExecutionMessage) (Payload, error) {
	if msg == nil || msg.Parameters == nil {
		return Payload{}, export.NewError(export.KindValidation, "job payload is required", nil)
	}

	raw, ok := msg.Parameters["payload"]
	if !ok {
		return Payload{}, export.NewError(export.KindValidation, "job payload missing", nil)
	}

	switch value := raw.(type) {
	case Payload:
		return value, nil
	case *Payload:
		if value == nil {
			return Payload{}, export.NewError(export.KindValidation, "job payload is nil", nil)
		}
		return *value, nil
	case json.RawMessage:
		return unmarshalPayload(value)
	case []byte:
		return unmarshalPayload(value)
	case string:
		return unmarshalPayload([]byte(value))
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return Payload{}, export.NewError(export.KindValidation, "job payload is invalid", err)
		}
		return unmarshalPayload(data)
	}
}

func unmarshalPayload(data []byte) (Payload, error) {
	if len(data) == 0 {
		return Payload{}, export.NewError(export.KindValidation, "job payload is empty", nil)
	}
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Payload{}, export.NewError(export.KindValidation, "job payload is invalid", err)
	}
	return payload, nil
}

// RetryPolicy determines retry behavior for retryable errors.
type RetryPolicy struct {
	MaxRetries int
	Backoff    job.BackoffConfig
	Retryable  func(error) bool
}

func (p RetryPolicy) shouldRetry(err error) bool {
	if err == nil || p.MaxRetries <= 0 {
		return false
	}
	if errors.Is(err, context.Canceled) || export.KindFromError(err) == export.KindCanceled {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return defaultRetryable(err)
}

func (p RetryPolicy) backoffDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return computeBackoffDelay(attempt, p.Backoff)
}

func defaultRetryable(err error) bool {
	if errorslib.IsRetryableError(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	switch export.KindFromError(err) {
	case export.KindTimeout, export.KindInternal:
		return true
	}
	return false
}

func computeBackoffDelay(attempt int, cfg job.BackoffConfig) time.Duration {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	maxInterval := cfg.MaxInterval
	if maxInterval <= 0 {
		maxInterval = 5 * time.Second
	}

	switch cfg.Strategy {
	case job.BackoffFixed:
		return applyJitter(interval, cfg.Jitter)
	case job.BackoffExponential:
		delay := interval
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay > maxInterval {
				delay = maxInterval
				break
			}
		}
		return applyJitter(delay, cfg.Jitter)
	default:
		return 0
	}
}

func applyJitter(delay time.Duration, jitter bool) time.Duration {
	if !jitter || delay <= 0 {
		return delay
	}
	// +/-50%
	half := float64(delay) * 0.5
	backoffRandMu.Lock()
	offset := (backoffRand.Float64()*2 - 1) * half
	backoffRandMu.Unlock()
	return time.Duration(float64(delay) + offset)
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
