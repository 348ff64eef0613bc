package explorer

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/brojonat/arbledger/service/metrics"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// DefaultPageSize is the number of records requested per page.
const DefaultPageSize = 100

// Client aggregates an address's normal transactions and token transfer
// events into enriched transactions. It holds no state between fetches.
type Client struct {
	api      API
	pageSize int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewClient creates a new aggregator over api. A pageSize below 1 uses
// DefaultPageSize. If metrics is nil, no metrics will be recorded.
func NewClient(api API, pageSize int, m *metrics.Metrics, logger *slog.Logger) *Client {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		api:      api,
		pageSize: pageSize,
		logger:   logger,
		metrics:  m,
	}
}

// Fetch pages through both listings for address, groups transfer events by
// transaction hash and attaches each group to its normal transaction.
// The result follows the order in which normal transactions arrived.
// Any page failure aborts the fetch with a *FetchError.
func (c *Client) Fetch(ctx context.Context, address common.Address) ([]*Transaction, error) {
	var (
		rawTxs    []NormalTransaction
		rawEvents []TokenTransferEvent
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rawTxs, err = paginate(gctx, c, StreamTransactions, func(ctx context.Context, p PageParams) ([]NormalTransaction, error) {
			return c.api.ListTransactions(ctx, address, p)
		})
		return err
	})
	g.Go(func() error {
		var err error
		rawEvents, err = paginate(gctx, c, StreamTokenTransfers, func(ctx context.Context, p PageParams) ([]TokenTransferEvent, error) {
			return c.api.ListTokenTransfers(ctx, address, p)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		c.logger.ErrorContext(ctx, "fetch failed",
			"address", address.Hex(),
			"error", err,
		)
		return nil, err
	}

	groups := c.groupTransfers(ctx, rawEvents)

	txs := make([]*Transaction, 0, len(rawTxs))
	seen := make(map[common.Hash]struct{}, len(rawTxs))
	for _, raw := range rawTxs {
		tx, valueOK, err := transactionFromWire(raw)
		if err != nil {
			c.skip(ctx, StreamTransactions, err)
			continue
		}
		if _, dup := seen[tx.Hash]; dup {
			c.skip(ctx, StreamTransactions, &recordError{reason: reasonDuplicate, detail: tx.Hash.Hex()})
			continue
		}
		seen[tx.Hash] = struct{}{}

		if !valueOK {
			c.logger.WarnContext(ctx, "unparseable transaction value, using 0",
				"hash", tx.Hash.Hex(),
				"value", raw.Value,
			)
		}

		// Move the group out so no transfer can attach to two transactions.
		if transfers, ok := groups[tx.Hash]; ok {
			tx.Transfers = transfers
			delete(groups, tx.Hash)
		}
		txs = append(txs, tx)
	}

	orphans := 0
	for hash, transfers := range groups {
		orphans += len(transfers)
		c.logger.DebugContext(ctx, "dropping transfers without a parent transaction",
			"hash", hash.Hex(),
			"count", len(transfers),
		)
	}
	if c.metrics != nil && orphans > 0 {
		c.metrics.RecordOrphanTransfers(orphans)
	}

	c.logger.InfoContext(ctx, "fetched transactions",
		"address", address.Hex(),
		"transactions", len(txs),
		"transfer_events", len(rawEvents),
		"orphan_transfers", orphans,
	)

	return txs, nil
}

// groupTransfers buckets transfer events by hash, preserving arrival order
// within each bucket.
func (c *Client) groupTransfers(ctx context.Context, events []TokenTransferEvent) map[common.Hash][]TokenTransfer {
	groups := make(map[common.Hash][]TokenTransfer)
	for _, raw := range events {
		hash, transfer, err := transferFromWire(raw)
		if err != nil {
			c.skip(ctx, StreamTokenTransfers, err)
			continue
		}
		groups[hash] = append(groups[hash], transfer)
	}
	return groups
}

func (c *Client) skip(ctx context.Context, stream string, err error) {
	reason := "malformed"
	var rerr *recordError
	if errors.As(err, &rerr) {
		reason = rerr.reason
	}
	c.logger.WarnContext(ctx, "skipping malformed record",
		"stream", stream,
		"reason", reason,
		"error", err,
	)
	if c.metrics != nil {
		c.metrics.RecordRecordSkipped(stream, reason)
	}
}

// paginate requests pages 1, 2, ... until the first empty page and returns
// the concatenated records.
func paginate[T any](ctx context.Context, c *Client, stream string, list func(context.Context, PageParams) ([]T, error)) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, &FetchError{Stream: stream, Page: page, Err: err}
		}

		records, err := list(ctx, PageParams{Page: page, Offset: c.pageSize})
		if err != nil {
			return nil, &FetchError{Stream: stream, Page: page, Err: err}
		}

		c.logger.DebugContext(ctx, "fetched page",
			"stream", stream,
			"page", page,
			"count", len(records),
		)
		if c.metrics != nil {
			c.metrics.RecordRecordsPerPage(stream, len(records))
			c.metrics.RecordRecordsFetched(stream, len(records))
		}

		if len(records) == 0 {
			return all, nil
		}
		all = append(all, records...)
	}
}
