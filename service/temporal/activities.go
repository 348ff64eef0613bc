package temporal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/arbledger/service/explorer"
	"github.com/brojonat/arbledger/service/ledger"
	"github.com/brojonat/arbledger/service/metrics"
	natspkg "github.com/brojonat/arbledger/service/nats"
	"github.com/brojonat/arbledger/service/tags"
	"github.com/brojonat/arbledger/service/tokens"
	"github.com/ethereum/go-ethereum/common"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// ExportLedgerInput describes one ledger export.
type ExportLedgerInput struct {
	Address        string   `json:"address"`
	OutputPath     string   `json:"output_path"`
	TagsPath       string   `json:"tags_path,omitempty"`
	CategoriesPath string   `json:"categories_path,omitempty"`
	Valuation      bool     `json:"valuation"`
	Tokens         []string `json:"tokens,omitempty"` // extra ADDRESS=SYMBOL entries
	Publish        bool     `json:"publish"`
}

// ExportLedgerResult summarizes an export.
type ExportLedgerResult struct {
	Address          string    `json:"address"`
	OutputPath       string    `json:"output_path"`
	TransactionCount int       `json:"transaction_count"`
	SplitCount       int       `json:"split_count"`
	Published        int       `json:"published"`
	ExportTime       time.Time `json:"export_time"`
	Error            *string   `json:"error,omitempty"`
}

type FetchTransactionsInput struct {
	Address string `json:"address"`
}

type FetchTransactionsResult struct {
	Transactions []*explorer.Transaction `json:"transactions"`
}

type BuildLedgerInput struct {
	Address        string                  `json:"address"`
	Transactions   []*explorer.Transaction `json:"transactions"`
	TagsPath       string                  `json:"tags_path,omitempty"`
	CategoriesPath string                  `json:"categories_path,omitempty"`
	Valuation      bool                    `json:"valuation"`
	Tokens         []string                `json:"tokens,omitempty"`
}

type BuildLedgerResult struct {
	Splits []ledger.Split `json:"splits"`
}

type WriteLedgerInput struct {
	Address    string         `json:"address"`
	OutputPath string         `json:"output_path"`
	Splits     []ledger.Split `json:"splits"`
	WithValue  bool           `json:"with_value"`
	Publish    bool           `json:"publish"`
}

type WriteLedgerResult struct {
	Rows      int `json:"rows"`
	Published int `json:"published"`
}

// TransactionFetcher is satisfied by *explorer.Client.
type TransactionFetcher interface {
	Fetch(ctx context.Context, address common.Address) ([]*explorer.Transaction, error)
}

// PriceCache is satisfied by *prices.Cache.
type PriceCache interface {
	ledger.PriceSource
	Save(ctx context.Context) error
}

// PublisherInterface defines the NATS publishing operations needed by activities.
type PublisherInterface interface {
	PublishSplitBatch(ctx context.Context, events []*natspkg.SplitEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	fetcher   TransactionFetcher
	prices    PriceCache
	registry  *tokens.Registry
	publisher PublisherInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// The price cache is not safe for concurrent use and a worker may run
	// several exports at once.
	buildMu sync.Mutex
}

// NewActivities creates a new Activities instance with explicit dependencies.
// prices may be nil when no export asks for valuation; publisher may be nil
// when no export publishes. If metrics is nil, no metrics will be recorded.
func NewActivities(
	fetcher TransactionFetcher,
	prices PriceCache,
	registry *tokens.Registry,
	publisher PublisherInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if registry == nil {
		registry = tokens.Arbitrum()
	}
	return &Activities{
		fetcher:   fetcher,
		prices:    prices,
		registry:  registry,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

func (a *Activities) recordDuration(activity string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordActivityDuration(activity, time.Since(start).Seconds())
	}
}

// FetchTransactions pulls the full history of an address.
func (a *Activities) FetchTransactions(ctx context.Context, input FetchTransactionsInput) (*FetchTransactionsResult, error) {
	defer a.recordDuration("FetchTransactions", time.Now())

	address, err := parseAddress(input.Address)
	if err != nil {
		return nil, err
	}

	a.logger.DebugContext(ctx, "fetching transactions", "address", input.Address)
	txs, err := a.fetcher.Fetch(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	a.logger.InfoContext(ctx, "fetched transactions",
		"address", input.Address,
		"count", len(txs),
	)
	return &FetchTransactionsResult{Transactions: txs}, nil
}

// BuildLedger annotates transactions and turns them into splits. On valued
// runs the price cache is saved whether or not the build succeeded.
func (a *Activities) BuildLedger(ctx context.Context, input BuildLedgerInput) (*BuildLedgerResult, error) {
	defer a.recordDuration("BuildLedger", time.Now())

	address, err := parseAddress(input.Address)
	if err != nil {
		return nil, err
	}

	mapping, err := tags.LoadFiles(input.TagsPath, input.CategoriesPath)
	if err != nil {
		return nil, temporalsdk.NewNonRetryableApplicationError(
			"failed to load annotations", "ConfigParseError", err)
	}

	extra, err := tokens.ParseEntries(input.Tokens)
	if err != nil {
		return nil, temporalsdk.NewNonRetryableApplicationError(
			"invalid token entry", "InvalidInput", err)
	}

	if input.Valuation && a.prices == nil {
		return nil, temporalsdk.NewNonRetryableApplicationError(
			"valuation requested but the worker has no price cache", "InvalidInput", nil)
	}

	tags.Annotate(input.Transactions, mapping)

	builder := ledger.NewBuilder(a.registry.With(extra), ledger.Options{Valuation: input.Valuation}, a.metrics, a.logger)

	a.buildMu.Lock()
	defer a.buildMu.Unlock()

	var ps ledger.PriceSource
	if input.Valuation {
		ps = a.prices
	}
	splits, buildErr := builder.BuildSplits(ctx, address, input.Transactions, ps)

	if input.Valuation {
		if err := a.prices.Save(ctx); err != nil {
			if buildErr != nil {
				a.logger.ErrorContext(ctx, "failed to save price cache", "error", err)
			} else {
				return nil, fmt.Errorf("failed to save price cache: %w", err)
			}
		}
	}
	if buildErr != nil {
		return nil, fmt.Errorf("failed to build ledger: %w", buildErr)
	}

	a.logger.InfoContext(ctx, "built ledger",
		"address", input.Address,
		"transactions", len(input.Transactions),
		"splits", len(splits),
		"valued", input.Valuation,
	)
	return &BuildLedgerResult{Splits: splits}, nil
}

// WriteLedger writes the CSV and optionally publishes every split.
func (a *Activities) WriteLedger(ctx context.Context, input WriteLedgerInput) (*WriteLedgerResult, error) {
	defer a.recordDuration("WriteLedger", time.Now())

	address, err := parseAddress(input.Address)
	if err != nil {
		return nil, err
	}
	if input.Publish && a.publisher == nil {
		return nil, temporalsdk.NewNonRetryableApplicationError(
			"publishing requested but the worker has no NATS publisher", "InvalidInput", nil)
	}

	if input.OutputPath == "" {
		return nil, temporalsdk.NewNonRetryableApplicationError("output path is required", "InvalidInput", nil)
	}
	// Written atomically so a retried activity never sees a partial ledger.
	if err := ledger.WriteCSVFile(input.OutputPath, input.Splits, input.WithValue); err != nil {
		return nil, err
	}
	result := &WriteLedgerResult{Rows: len(input.Splits)}

	if input.Publish && len(input.Splits) > 0 {
		events := natspkg.FromSplits(address, input.Splits)
		if err := a.publisher.PublishSplitBatch(ctx, events); err != nil {
			return nil, fmt.Errorf("failed to publish splits: %w", err)
		}
		result.Published = len(events)
	}

	a.logger.InfoContext(ctx, "wrote ledger",
		"address", input.Address,
		"output", input.OutputPath,
		"rows", result.Rows,
		"published", result.Published,
	)
	return result, nil
}

var errInvalidAddress = errors.New("invalid address")

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, temporalsdk.NewNonRetryableApplicationError(
			fmt.Sprintf("%q is not a hex address", s), "InvalidInput", errInvalidAddress)
	}
	return common.HexToAddress(s), nil
}
