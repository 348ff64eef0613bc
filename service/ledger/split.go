// Package ledger turns enriched transactions into signed ledger splits.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/brojonat/arbledger/service/prices"
	"github.com/ethereum/go-ethereum/common"
)

// Split is one signed ledger line for a single commodity.
type Split struct {
	Date        time.Time   `json:"date"`
	Description string      `json:"description"`
	Account     string      `json:"account"`
	Commodity   string      `json:"commodity"`
	Amount      float64     `json:"amount"`
	Value       *float64    `json:"value,omitempty"` // USD, only on valued runs
	TxHash      common.Hash `json:"tx_hash"`
}

// PriceSource resolves a daily USD price. *prices.Cache implements it.
type PriceSource interface {
	Price(ctx context.Context, asset prices.AssetID, day time.Time) (float64, error)
}

// ValuationError reports a price that could not be resolved while valuing
// a transaction. No splits are returned alongside it.
type ValuationError struct {
	TxHash common.Hash
	Asset  prices.AssetID
	Err    error
}

func (e *ValuationError) Error() string {
	return fmt.Sprintf("failed to value %s in tx %s: %v", e.Asset, e.TxHash.Hex(), e.Err)
}

func (e *ValuationError) Unwrap() error {
	return e.Err
}
