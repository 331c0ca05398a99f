package command

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	gcmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-gridexport/export"
)

// BatchRequest describes one stored export of a scheduled batch.
type BatchRequest struct {
	Grid         string             `json:"grid"`
	Title        string             `json:"title,omitempty"`
	Placeholders map[string]string  `json:"placeholders,omitempty"`
	Filter       map[string]string  `json:"filter,omitempty"`
	Sorts        []export.SortOrder `json:"sorts,omitempty"`
}

// ExportRequest converts the batch item into a runner request.
func (b BatchRequest) ExportRequest() export.ExportRequest {
	req := export.ExportRequest{
		Grid:         b.Grid,
		Title:        b.Title,
		Placeholders: b.Placeholders,
		Sorts:        b.Sorts,
	}
	if len(b.Filter) > 0 {
		req.Filter = b.Filter
	}
	return req
}

// BatchLoader loads batch requests from a source.
type BatchLoader func(ctx context.Context) ([]BatchRequest, error)

// BatchCommand wires CLI/Cron execution for batch grid exports.
type BatchCommand struct {
	saver      ExportSaver
	loader     BatchLoader
	cliConfig  gcmd.CLIConfig
	cronConfig gcmd.HandlerConfig
	limits     BatchLimits
	sleep      func(time.Duration)
	onResult   func(export.ExportResult)
}

// BatchOption customizes batch commands.
type BatchOption func(*BatchCommand)

// BatchLimits bounds batch execution throughput.
type BatchLimits struct {
	MaxRequests int
	MinInterval time.Duration
}

// WithBatchCLIConfig overrides CLI configuration.
func WithBatchCLIConfig(cfg gcmd.CLIConfig) BatchOption {
	return func(cmd *BatchCommand) {
		cmd.cliConfig = cfg
	}
}

// WithBatchCronConfig overrides cron configuration.
func WithBatchCronConfig(cfg gcmd.HandlerConfig) BatchOption {
	return func(cmd *BatchCommand) {
		cmd.cronConfig = cfg
	}
}

// WithBatchLimits overrides batch execution limits.
func WithBatchLimits(limits BatchLimits) BatchOption {
	return func(cmd *BatchCommand) {
		cmd.limits = limits
	}
}

// WithBatchResultHook is called after each stored export.
func WithBatchResultHook(fn func(export.ExportResult)) BatchOption {
	return func(cmd *BatchCommand) {
		cmd.onResult = fn
	}
}

// NewScheduledExportsCommand creates a scheduled exports CLI/Cron command.
func NewScheduledExportsCommand(saver ExportSaver, loader BatchLoader, opts ...BatchOption) *BatchCommand {
	cmd := &BatchCommand{
		saver:  saver,
		loader: loader,
		cliConfig: gcmd.CLIConfig{
			Path:        []string{"gridexports-scheduled"},
			Description: "Run scheduled grid exports",
			Group:       "gridexports",
		},
		cronConfig: gcmd.HandlerConfig{Expression: "0 * * * *"},
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cmd)
		}
	}
	return cmd
}

// CronHandler executes scheduled batch exports.
func (c *BatchCommand) CronHandler() func() error {
	return func() error {
		_, err := c.Run(context.Background(), "")
		return err
	}
}

// CronOptions returns cron configuration.
func (c *BatchCommand) CronOptions() gcmd.HandlerConfig {
	if c == nil {
		return gcmd.HandlerConfig{}
	}
	return c.cronConfig
}

// CLIHandler exposes the CLI handler.
func (c *BatchCommand) CLIHandler() any {
	return &batchCLI{cmd: c}
}

// CLIOptions returns CLI configuration.
func (c *BatchCommand) CLIOptions() gcmd.CLIConfig {
	if c == nil {
		return gcmd.CLIConfig{}
	}
	return c.cliConfig
}

// Run stores every loaded export and returns how many were stored. A
// non-empty from reads the batch from that JSON file instead of the loader.
func (c *BatchCommand) Run(ctx context.Context, from string) (int, error) {
	if c == nil {
		return 0, errors.New("batch command is nil", errors.CategoryInternal).
			WithTextCode("BATCH_CMD_NIL")
	}
	if c.saver == nil {
		return 0, errors.New("export runner is required", errors.CategoryValidation).
			WithTextCode("RUNNER_REQUIRED")
	}

	requests, err := c.loadRequests(ctx, from)
	if err != nil {
		return 0, err
	}

	handler := NewGenerateGridExportHandler(c.saver)
	count := 0
	for _, item := range requests {
		if c.limits.MaxRequests > 0 && count >= c.limits.MaxRequests {
			break
		}
		var result export.ExportResult
		if err := handler.Execute(ctx, GenerateGridExport{Request: item.ExportRequest(), Result: &result}); err != nil {
			return count, err
		}
		if c.onResult != nil {
			c.onResult(result)
		}
		count++
		if c.limits.MinInterval > 0 && c.sleep != nil {
			c.sleep(c.limits.MinInterval)
		}
	}
	return count, nil
}

func (c *BatchCommand) loadRequests(ctx context.Context, from string) ([]BatchRequest, error) {
	if strings.TrimSpace(from) != "" {
		return LoadBatchFile(from)
	}
	if c.loader == nil {
		return nil, errors.New("batch loader not configured", errors.CategoryValidation).
			WithTextCode("LOADER_REQUIRED")
	}
	return c.loader(ctx)
}

type batchCLI struct {
	cmd  *BatchCommand
	From string `kong:"name='from',help='Path to JSON batch export requests'"`
}

func (c *batchCLI) Run() error {
	if c == nil || c.cmd == nil {
		return errors.New("batch command is required", errors.CategoryInternal).
			WithTextCode("BATCH_CMD_NIL")
	}
	_, err := c.cmd.Run(context.Background(), c.From)
	return err
}

// LoadBatchFile reads a JSON array of batch requests.
func LoadBatchFile(path string) ([]BatchRequest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryExternal, "read batch file failed").
			WithTextCode("BATCH_FILE_READ")
	}

	var requests []BatchRequest
	if err := json.Unmarshal(content, &requests); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "batch file invalid JSON").
			WithTextCode("BATCH_FILE_INVALID")
	}
	return requests, nil
}
