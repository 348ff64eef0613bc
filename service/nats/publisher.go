package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/brojonat/arbledger/service/metrics"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher publishes ledger splits to NATS.
type Publisher interface {
	// PublishSplit publishes a single split to "ledger.{address}".
	PublishSplit(ctx context.Context, event *SplitEvent) error

	// PublishSplitBatch publishes every event and reports all failures.
	PublishSplitBatch(ctx context.Context, events []*SplitEvent) error

	Close() error
}

// JetStreamPublisher publishes split events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

const (
	StreamName     = "LEDGER"
	SubjectPrefix  = "ledger."
	StreamSubjects = SubjectPrefix + "*"

	// StreamRetention bounds how long splits stay in the stream.
	StreamRetention = 90 * 24 * time.Hour

	// metricsSubject keeps the publish metrics free of per-address labels.
	metricsSubject = "ledger"
)

// NewPublisher connects to NATS and ensures the stream exists.
// If metrics is nil, no metrics will be recorded.
func NewPublisher(ctx context.Context, natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	nc, err := nats.Connect(natsURL,
		nats.Name("arbledger-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(5),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}

	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.InfoContext(ctx, "NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)
	return p, nil
}

func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		if info, err := stream.Info(ctx); err == nil {
			p.logger.DebugContext(ctx, "JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	p.logger.InfoContext(ctx, "creating JetStream stream", "stream", StreamName)
	_, err = p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Ledger splits exported per tracked address",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// PublishSplit publishes a single split event.
func (p *JetStreamPublisher) PublishSplit(ctx context.Context, event *SplitEvent) error {
	subject := event.Subject()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal split event: %w", err)
	}

	start := time.Now()
	_, err = p.js.Publish(ctx, subject, data)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordNATSPublish(metricsSubject, status, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to publish split: %w", err)
	}

	p.logger.DebugContext(ctx, "published split event",
		"subject", subject,
		"tx_hash", event.TxHash,
		"commodity", event.Commodity,
	)
	return nil
}

// PublishSplitBatch publishes events in order. A failed event does not stop
// the batch; all failures are joined into the returned error.
func (p *JetStreamPublisher) PublishSplitBatch(ctx context.Context, events []*SplitEvent) error {
	var errs []error
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := p.PublishSplit(ctx, event); err != nil {
			p.logger.ErrorContext(ctx, "failed to publish split in batch",
				"tx_hash", event.TxHash,
				"commodity", event.Commodity,
				"error", err,
			)
			errs = append(errs, err)
		}
	}

	p.logger.DebugContext(ctx, "published split batch",
		"count", len(events),
		"failed", len(errs),
	)
	return errors.Join(errs...)
}

// Close drains the connection.
func (p *JetStreamPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	p.logger.Info("NATS publisher closed")
	return nil
}
