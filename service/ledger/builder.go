package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"

	"github.com/brojonat/arbledger/service/explorer"
	"github.com/brojonat/arbledger/service/metrics"
	"github.com/brojonat/arbledger/service/prices"
	"github.com/brojonat/arbledger/service/tokens"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	// NativeDecimals is the precision of the chain's native asset.
	NativeDecimals = 18

	DefaultNativeSymbol = "ETH"
	UnknownAccount      = "Unknown"
)

// Options controls split construction.
type Options struct {
	// Valuation attaches a USD value to every split.
	Valuation bool
	// NativeSymbol is the commodity of native-asset splits. Defaults to ETH.
	NativeSymbol string
}

// Builder turns transactions into splits for one tracked address.
type Builder struct {
	registry *tokens.Registry
	opts     Options
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewBuilder creates a Builder that trusts only the tokens in registry.
// If metrics is nil, no metrics will be recorded.
func NewBuilder(registry *tokens.Registry, opts Options, m *metrics.Metrics, logger *slog.Logger) *Builder {
	if opts.NativeSymbol == "" {
		opts.NativeSymbol = DefaultNativeSymbol
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Builder{
		registry: registry,
		opts:     opts,
		metrics:  m,
		logger:   logger,
	}
}

// BuildSplits produces the splits for txs as seen from address.
//
// A transaction whose recipient is address is a deposit described by the
// sender's tag; anything else is a withdrawal described by the recipient's
// tag. A nonzero native value yields one native split. Each transfer of a
// registered token yields one split, negative when address sent it;
// transfers of other tokens are dropped.
//
// With valuation on, every split is valued through ps and the first price
// failure aborts the build with a *ValuationError. With valuation off, ps is
// never used and may be nil.
func (b *Builder) BuildSplits(ctx context.Context, address common.Address, txs []*explorer.Transaction, ps PriceSource) ([]Split, error) {
	if b.opts.Valuation && ps == nil {
		return nil, errors.New("valuation requested without a price source")
	}

	var splits []Split
	for _, tx := range txs {
		day := tx.Day()
		description, account, deposit := labels(tx, address)

		if tx.Value != nil && tx.Value.Sign() != 0 {
			amount := units(tx.Value, NativeDecimals)
			if !deposit {
				amount = -amount
			}
			split := Split{
				Date:        day,
				Description: description,
				Account:     account,
				Commodity:   b.opts.NativeSymbol,
				Amount:      amount,
				TxHash:      tx.Hash,
			}
			if err := b.value(ctx, ps, &split, prices.Native()); err != nil {
				return nil, err
			}
			splits = append(splits, split)
			b.recordSplit(split.Commodity)
		}

		for _, tr := range tx.Transfers {
			symbol, ok := b.registry.Symbol(tr.Contract)
			if !ok {
				b.logger.DebugContext(ctx, "dropping transfer of unregistered token",
					"hash", tx.Hash.Hex(),
					"contract", tr.Contract.Hex(),
					"reported_symbol", tr.TokenSymbol,
				)
				if b.metrics != nil {
					b.metrics.RecordTransferDropped("unregistered_token")
				}
				continue
			}

			amount := units(tr.Value, tr.Decimals)
			if tr.From == address && amount != 0 {
				amount = -amount
			}
			split := Split{
				Date:        day,
				Description: description,
				Account:     account,
				Commodity:   symbol,
				Amount:      amount,
				TxHash:      tx.Hash,
			}
			if err := b.value(ctx, ps, &split, prices.Token(tr.Contract)); err != nil {
				return nil, err
			}
			splits = append(splits, split)
			b.recordSplit(symbol)
		}
	}

	b.logger.DebugContext(ctx, "built splits",
		"address", address.Hex(),
		"transactions", len(txs),
		"splits", len(splits),
		"valued", b.opts.Valuation,
	)
	return splits, nil
}

func (b *Builder) value(ctx context.Context, ps PriceSource, split *Split, asset prices.AssetID) error {
	if !b.opts.Valuation {
		return nil
	}
	price, err := ps.Price(ctx, asset, split.Date)
	if err != nil {
		return &ValuationError{TxHash: split.TxHash, Asset: asset, Err: err}
	}
	v := split.Amount * price
	split.Value = &v
	return nil
}

func (b *Builder) recordSplit(commodity string) {
	if b.metrics != nil {
		b.metrics.RecordSplitBuilt(commodity)
	}
}

// labels derives the description and account of a transaction's splits.
func labels(tx *explorer.Transaction, address common.Address) (description, account string, deposit bool) {
	if tx.IsRecipient(address) {
		if tx.FromTag != nil {
			return "from " + *tx.FromTag, *tx.FromTag, true
		}
		return "deposit", UnknownAccount, true
	}
	if tx.ToTag != nil {
		return "to " + *tx.ToTag, *tx.ToTag, false
	}
	return "withdrawal", UnknownAccount, false
}

// units converts a smallest-unit integer into a unit amount.
func units(v *big.Int, decimals uint8) float64 {
	if v == nil {
		return 0
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).InexactFloat64()
}
