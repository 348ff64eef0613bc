package explorer

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Stream names, matching the explorer's action parameter.
const (
	StreamTransactions   = "txlist"
	StreamTokenTransfers = "tokentx"
)

// PageParams selects one page of a listing. Pages are 1-based.
type PageParams struct {
	Page   int
	Offset int
}

// API is the subset of an Etherscan-compatible explorer the aggregator needs.
// This allows us to swap the HTTP adapter for in-memory fakes in tests.
type API interface {
	ListTransactions(ctx context.Context, address common.Address, page PageParams) ([]NormalTransaction, error)
	ListTokenTransfers(ctx context.Context, address common.Address, page PageParams) ([]TokenTransferEvent, error)
}

// PriceAPI looks up the USD daily price of the native asset (contract nil)
// or of a token contract. A figure that is missing or unparseable is
// reported as 0 with a nil error.
type PriceAPI interface {
	DailyPrice(ctx context.Context, contract *common.Address, day time.Time) (float64, error)
}
