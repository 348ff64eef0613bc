package temporal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/brojonat/arbledger/service/metrics"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
)

// Client is a production implementation of Scheduler that talks to Temporal.
// It also starts one-off exports.
type Client struct {
	client    client.Client
	taskQueue string
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewClient dials Temporal. If metrics is nil, no metrics will be recorded.
func NewClient(host, namespace, taskQueue string, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	logger.Debug("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    tlog.NewStructuredLogger(logger.With("component", "temporal_sdk")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		metrics:   m,
		logger:    logger,
	}, nil
}

// StartExport starts ExportLedgerWorkflow and returns without waiting.
func (c *Client) StartExport(ctx context.Context, input ExportLedgerInput) (client.WorkflowRun, error) {
	id := workflowID(input.Address, time.Now())
	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: c.taskQueue,
	}, ExportLedgerWorkflow, input)
	if err != nil {
		return nil, fmt.Errorf("failed to start export %q: %w", id, err)
	}

	c.logger.InfoContext(ctx, "export started",
		"address", input.Address,
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)
	return run, nil
}

// RunExport starts an export and waits for its result.
func (c *Client) RunExport(ctx context.Context, input ExportLedgerInput) (*ExportLedgerResult, error) {
	start := time.Now()
	run, err := c.StartExport(ctx, input)
	if err != nil {
		return nil, err
	}

	var result ExportLedgerResult
	err = run.Get(ctx, &result)
	if c.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordWorkflowDuration(status, time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("export %q failed: %w", run.GetID(), err)
	}
	return &result, nil
}

// CreateExportSchedule creates a schedule that exports input every interval.
func (c *Client) CreateExportSchedule(ctx context.Context, input ExportLedgerInput, interval time.Duration) error {
	id := scheduleID(input.Address)

	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: id,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
		},
		Action: c.exportAction(input),
		Memo: map[string]interface{}{
			"address":    input.Address,
			"output":     input.OutputPath,
			"created_by": "arbledger",
		},
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to create schedule",
			"address", input.Address,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to create schedule %q: %w", id, err)
	}

	c.logger.InfoContext(ctx, "export schedule created",
		"address", input.Address,
		"schedule_id", id,
		"interval", interval,
	)
	return nil
}

// UpsertExportSchedule creates the schedule, or updates the interval and
// export parameters of an existing one.
func (c *Client) UpsertExportSchedule(ctx context.Context, input ExportLedgerInput, interval time.Duration) error {
	id := scheduleID(input.Address)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if _, err := handle.Describe(ctx); err != nil {
		c.logger.DebugContext(ctx, "schedule not found, creating new one",
			"schedule_id", id,
			"error", err,
		)
		return c.CreateExportSchedule(ctx, input, interval)
	}

	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(in client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			in.Description.Schedule.Spec = &client.ScheduleSpec{
				Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
			}
			in.Description.Schedule.Action = c.exportAction(input)
			return &client.ScheduleUpdate{Schedule: &in.Description.Schedule}, nil
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update schedule %q: %w", id, err)
	}

	c.logger.InfoContext(ctx, "export schedule updated",
		"address", input.Address,
		"schedule_id", id,
		"interval", interval,
	)
	return nil
}

// DeleteExportSchedule stops the recurring export of an address.
func (c *Client) DeleteExportSchedule(ctx context.Context, address string) error {
	id := scheduleID(address)
	if err := c.client.ScheduleClient().GetHandle(ctx, id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete schedule %q: %w", id, err)
	}
	c.logger.InfoContext(ctx, "export schedule deleted",
		"address", address,
		"schedule_id", id,
	)
	return nil
}

func (c *Client) exportAction(input ExportLedgerInput) *client.ScheduleWorkflowAction {
	return &client.ScheduleWorkflowAction{
		ID:        scheduleID(input.Address),
		Workflow:  ExportLedgerWorkflow,
		TaskQueue: c.taskQueue,
		Args:      []interface{}{input},
	}
}

// SDKClient returns the underlying Temporal SDK client.
func (c *Client) SDKClient() client.Client {
	return c.client
}

func (c *Client) TaskQueue() string {
	return c.taskQueue
}

func (c *Client) Close() {
	c.client.Close()
}
