package explorer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/brojonat/arbledger/service/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	trackedAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	otherAddr   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	usdcAddr    = common.HexToAddress("0xff970a61a04b1ca14834a43f5de4533ebddb5cc8")
)

// mockAPI implements API for testing.
// Pages are served in order; anything past the configured pages is empty.
type mockAPI struct {
	mu        sync.Mutex
	txPages   [][]NormalTransaction
	evPages   [][]TokenTransferEvent
	txErrPage int // 1-based page that fails, 0 for none
	evErrPage int
	err       error
	txCalls   []PageParams
	evCalls   []PageParams
}

func (m *mockAPI) ListTransactions(ctx context.Context, address common.Address, p PageParams) ([]NormalTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCalls = append(m.txCalls, p)
	if m.txErrPage == p.Page {
		return nil, m.err
	}
	if p.Page-1 < len(m.txPages) {
		return m.txPages[p.Page-1], nil
	}
	return nil, nil
}

func (m *mockAPI) ListTokenTransfers(ctx context.Context, address common.Address, p PageParams) ([]TokenTransferEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evCalls = append(m.evCalls, p)
	if m.evErrPage == p.Page {
		return nil, m.err
	}
	if p.Page-1 < len(m.evPages) {
		return m.evPages[p.Page-1], nil
	}
	return nil, nil
}

func newTestClient(api API, pageSize int) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(api, pageSize, nil, logger)
}

func hashHex(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

func rawTx(n int, from, to common.Address, value string) NormalTransaction {
	return NormalTransaction{
		BlockNumber: fmt.Sprint(1000 + n),
		TimeStamp:   "1700000000",
		Hash:        hashHex(n),
		From:        from.Hex(),
		To:          to.Hex(),
		Value:       value,
	}
}

func rawTransfer(n int, contract, from, to common.Address, value string) TokenTransferEvent {
	return TokenTransferEvent{
		BlockNumber:     fmt.Sprint(1000 + n),
		TimeStamp:       "1700000000",
		Hash:            hashHex(n),
		From:            from.Hex(),
		ContractAddress: contract.Hex(),
		To:              to.Hex(),
		Value:           value,
		TokenName:       "USD Coin",
		TokenSymbol:     "USDC",
		TokenDecimal:    "6",
	}
}

func TestFetch_RequestsUntilEmptyPage(t *testing.T) {
	ctx := context.Background()

	// Two full pages of size 2, then an empty page.
	api := &mockAPI{
		txPages: [][]NormalTransaction{
			{rawTx(1, otherAddr, trackedAddr, "1"), rawTx(2, otherAddr, trackedAddr, "2")},
			{rawTx(3, otherAddr, trackedAddr, "3"), rawTx(4, otherAddr, trackedAddr, "4")},
		},
	}
	client := newTestClient(api, 2)

	txs, err := client.Fetch(ctx, trackedAddr)
	require.NoError(t, err)

	assert.Len(t, api.txCalls, 3, "N full pages plus one empty page")
	assert.Len(t, api.evCalls, 1)
	for i, call := range api.txCalls {
		assert.Equal(t, i+1, call.Page)
		assert.Equal(t, 2, call.Offset)
	}

	require.Len(t, txs, 4)
	for i, tx := range txs {
		assert.Equal(t, common.HexToHash(hashHex(i+1)), tx.Hash, "arrival order preserved")
		assert.Equal(t, big.NewInt(int64(i+1)), tx.Value)
	}
}

func TestFetch_AttachesTransfersByHash(t *testing.T) {
	ctx := context.Background()

	api := &mockAPI{
		txPages: [][]NormalTransaction{{
			rawTx(1, trackedAddr, otherAddr, "0"),
			rawTx(2, otherAddr, trackedAddr, "5"),
		}},
		evPages: [][]TokenTransferEvent{{
			rawTransfer(1, usdcAddr, trackedAddr, otherAddr, "1000000"),
			rawTransfer(1, usdcAddr, otherAddr, trackedAddr, "250000"),
			rawTransfer(9, usdcAddr, otherAddr, trackedAddr, "42"), // no parent
		}},
	}
	client := newTestClient(api, 100)

	txs, err := client.Fetch(ctx, trackedAddr)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	require.Len(t, txs[0].Transfers, 2)
	assert.Equal(t, big.NewInt(1000000), txs[0].Transfers[0].Value)
	assert.Equal(t, big.NewInt(250000), txs[0].Transfers[1].Value)
	assert.Equal(t, usdcAddr, txs[0].Transfers[0].Contract)
	assert.Equal(t, uint8(6), txs[0].Transfers[0].Decimals)
	assert.Empty(t, txs[1].Transfers)

	// No transfer appears under a transaction with a different hash.
	for _, tx := range txs {
		for _, tr := range tx.Transfers {
			assert.NotEqual(t, big.NewInt(42), tr.Value)
		}
	}
}

func TestFetch_SkipsMalformedRecords(t *testing.T) {
	ctx := context.Background()

	missingHash := rawTx(1, otherAddr, trackedAddr, "1")
	missingHash.Hash = ""
	missingFrom := rawTx(2, otherAddr, trackedAddr, "1")
	missingFrom.From = ""
	badValue := rawTx(3, otherAddr, trackedAddr, "lots")
	badValue.BlockNumber = "n/a"
	duplicate := rawTx(3, otherAddr, trackedAddr, "7")

	api := &mockAPI{
		txPages: [][]NormalTransaction{{missingHash, missingFrom, badValue, duplicate}},
	}
	reg := prometheus.NewRegistry()
	client := NewClient(api, 100, metrics.NewMetrics(reg), nil)

	txs, err := client.Fetch(ctx, trackedAddr)
	require.NoError(t, err)
	require.Len(t, txs, 1)

	assert.Equal(t, common.HexToHash(hashHex(3)), txs[0].Hash)
	assert.Equal(t, 0, txs[0].Value.Sign(), "unparseable value defaults to zero")
	assert.Equal(t, uint64(0), txs[0].BlockNumber, "unparseable block number defaults to zero")
	assert.Equal(t, uint64(1700000000), txs[0].Timestamp)
}

func TestFetch_ContractCreationHasNoRecipient(t *testing.T) {
	raw := rawTx(1, trackedAddr, otherAddr, "0")
	raw.To = ""
	api := &mockAPI{txPages: [][]NormalTransaction{{raw}}}

	txs, err := newTestClient(api, 10).Fetch(context.Background(), trackedAddr)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Nil(t, txs[0].To)
	assert.False(t, txs[0].IsRecipient(trackedAddr))
}

func TestFetch_PageFailureAbortsFetch(t *testing.T) {
	tests := []struct {
		name       string
		api        *mockAPI
		wantStream string
		wantPage   int
	}{
		{
			name: "transactions fail on second page",
			api: &mockAPI{
				txPages:   [][]NormalTransaction{{rawTx(1, otherAddr, trackedAddr, "1")}},
				txErrPage: 2,
			},
			wantStream: StreamTransactions,
			wantPage:   2,
		},
		{
			name: "transfers fail on first page",
			api: &mockAPI{
				txPages:   [][]NormalTransaction{{rawTx(1, otherAddr, trackedAddr, "1")}},
				evErrPage: 1,
			},
			wantStream: StreamTokenTransfers,
			wantPage:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.api.err = errors.New("connection reset")
			client := newTestClient(tt.api, 1)

			txs, err := client.Fetch(context.Background(), trackedAddr)
			require.Error(t, err)
			assert.Nil(t, txs, "no partial results")

			var fetchErr *FetchError
			require.True(t, errors.As(err, &fetchErr))
			assert.Equal(t, tt.wantStream, fetchErr.Stream)
			assert.Equal(t, tt.wantPage, fetchErr.Page)
			assert.Contains(t, err.Error(), "connection reset")
		})
	}
}

func TestFetch_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	api := &mockAPI{}
	_, err := newTestClient(api, 10).Fetch(ctx, trackedAddr)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, api.txCalls)
}

func TestFetch_EmptyHistory(t *testing.T) {
	txs, err := newTestClient(&mockAPI{}, 10).Fetch(context.Background(), trackedAddr)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestTransferFromWire(t *testing.T) {
	t.Run("unparseable decimals default to 18", func(t *testing.T) {
		raw := rawTransfer(1, usdcAddr, otherAddr, trackedAddr, "5")
		raw.TokenDecimal = ""
		_, tr, err := transferFromWire(raw)
		require.NoError(t, err)
		assert.Equal(t, uint8(DefaultDecimals), tr.Decimals)
	})

	t.Run("missing sender is malformed", func(t *testing.T) {
		raw := rawTransfer(1, usdcAddr, otherAddr, trackedAddr, "5")
		raw.From = "not-an-address"
		_, _, err := transferFromWire(raw)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedRecord)
	})

	t.Run("short hash is malformed", func(t *testing.T) {
		raw := rawTransfer(1, usdcAddr, otherAddr, trackedAddr, "5")
		raw.Hash = "0xabc"
		_, _, err := transferFromWire(raw)
		assert.ErrorIs(t, err, ErrMalformedRecord)
	})
}

func TestTransaction_Day(t *testing.T) {
	tx := &Transaction{Timestamp: 1700000000} // 2023-11-14T22:13:20Z
	assert.Equal(t, "2023-11-14", tx.Day().Format("2006-01-02"))
	assert.Equal(t, 0, tx.Day().Hour())
}
