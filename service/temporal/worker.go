package temporal

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/brojonat/arbledger/service/metrics"
	"github.com/brojonat/arbledger/service/tokens"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string

	Fetcher   TransactionFetcher
	Prices    PriceCache         // Optional: valued exports fail without it
	Registry  *tokens.Registry   // Optional: defaults to the Arbitrum allow-list
	Publisher PublisherInterface // Optional: publishing exports fail without it
	Metrics   *metrics.Metrics   // Optional: if nil, no metrics will be recorded
	Logger    *slog.Logger
}

// Worker wraps a Temporal worker and provides lifecycle management.
type Worker struct {
	client client.Client
	worker worker.Worker
	logger *slog.Logger
}

// NewWorker connects to Temporal and registers the export workflow and its
// activities on the configured task queue.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.Fetcher == nil {
		return nil, fmt.Errorf("worker requires a transaction fetcher")
	}

	logger := config.Logger.With("component", "temporal_worker")

	logger.Info("creating temporal worker",
		"host", config.TemporalHost,
		"namespace", config.TemporalNamespace,
		"task_queue", config.TaskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  config.TemporalHost,
		Namespace: config.TemporalNamespace,
		Logger:    tlog.NewStructuredLogger(config.Logger.With("component", "temporal_sdk")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal: %w", err)
	}

	w := worker.New(c, config.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     10,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	w.RegisterWorkflow(ExportLedgerWorkflow)

	activities := NewActivities(
		config.Fetcher,
		config.Prices,
		config.Registry,
		config.Publisher,
		config.Metrics,
		logger,
	)
	w.RegisterActivity(activities.FetchTransactions)
	w.RegisterActivity(activities.BuildLedger)
	w.RegisterActivity(activities.WriteLedger)

	logger.Info("registered workflow and activities",
		"workflow", "ExportLedgerWorkflow",
		"activities", []string{"FetchTransactions", "BuildLedger", "WriteLedger"},
	)

	return &Worker{
		client: c,
		worker: w,
		logger: logger,
	}, nil
}

// Start processes workflows and activities until an interrupt signal arrives.
func (w *Worker) Start() error {
	w.logger.Info("starting temporal worker")
	if err := w.worker.Run(worker.InterruptCh()); err != nil {
		return fmt.Errorf("worker stopped with error: %w", err)
	}
	w.logger.Info("worker stopped gracefully")
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.worker.Stop()
	w.client.Close()
	w.logger.Info("temporal worker stopped")
}
