package prices

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brojonat/arbledger/service/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var usdc = common.HexToAddress("0xff970a61a04b1ca14834a43f5de4533ebddb5cc8")

// MockFetcher is a testify mock of Fetcher.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) DailyPrice(ctx context.Context, contract *common.Address, day time.Time) (float64, error) {
	args := m.Called(ctx, contract, day)
	return args.Get(0).(float64), args.Error(1)
}

// memStore is an in-memory Store.
type memStore struct {
	entries map[string]float64
	loadErr error
	saveErr error
	saves   int
}

func (s *memStore) Name() string { return "memory" }

func (s *memStore) Load(ctx context.Context) (map[string]float64, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := map[string]float64{}
	for k, v := range s.entries {
		out[k] = v
	}
	return out, nil
}

func (s *memStore) Save(ctx context.Context, entries map[string]float64) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.entries = map[string]float64{}
	for k, v := range entries {
		s.entries[k] = v
	}
	return nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAssetID_Key(t *testing.T) {
	ts := time.Date(2024, 3, 5, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "eth_2024-03-05", Native().Key(ts))
	assert.Equal(t, "0xff970a61a04b1ca14834a43f5de4533ebddb5cc8_2024-03-05", Token(usdc).Key(ts))

	// Keys use the UTC calendar day.
	east := time.FixedZone("UTC+9", 9*3600)
	assert.Equal(t, "eth_2024-03-05", Native().Key(time.Date(2024, 3, 6, 8, 0, 0, 0, east)))
}

func TestParseAssetID(t *testing.T) {
	a, err := ParseAssetID("ETH")
	require.NoError(t, err)
	assert.True(t, a.IsNative())

	a, err = ParseAssetID("0xFF970A61A04B1CA14834A43F5DE4533EBDDB5CC8")
	require.NoError(t, err)
	require.NotNil(t, a.Contract)
	assert.Equal(t, usdc, *a.Contract)

	_, err = ParseAssetID("btc")
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	asset, d, err := ParseKey("0xff970a61a04b1ca14834a43f5de4533ebddb5cc8_2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, usdc, *asset.Contract)
	assert.Equal(t, day(2024, 3, 5), d)

	_, _, err = ParseKey("eth-2024-03-05")
	assert.Error(t, err)
	_, _, err = ParseKey("eth_yesterday")
	assert.Error(t, err)
}

func TestCache_OneRemoteCallPerKey(t *testing.T) {
	ctx := context.Background()
	fetcher := &MockFetcher{}
	fetcher.On("DailyPrice", mock.Anything, (*common.Address)(nil), day(2024, 3, 5)).Return(3800.0, nil).Once()

	reg := prometheus.NewRegistry()
	cache := NewCache(ctx, nil, fetcher, metrics.NewMetrics(reg), nil)

	for i := 0; i < 3; i++ {
		p, err := cache.Price(ctx, Native(), day(2024, 3, 5))
		require.NoError(t, err)
		assert.Equal(t, 3800.0, p)
	}

	fetcher.AssertNumberOfCalls(t, "DailyPrice", 1)
	assert.Equal(t, 1, cache.Len())

	hits, err := testutil.GatherAndCount(reg, "price_cache_lookups_total")
	require.NoError(t, err)
	assert.Equal(t, 2, hits, "one hit and one miss series")
}

func TestCache_ZeroPriceIsCached(t *testing.T) {
	ctx := context.Background()
	fetcher := &MockFetcher{}
	fetcher.On("DailyPrice", mock.Anything, &usdc, day(2024, 1, 1)).Return(0.0, nil).Once()

	cache := NewCache(ctx, nil, fetcher, nil, nil)
	for i := 0; i < 2; i++ {
		p, err := cache.Price(ctx, Token(usdc), day(2024, 1, 1))
		require.NoError(t, err)
		assert.Zero(t, p)
	}
	fetcher.AssertExpectations(t)
}

func TestCache_LookupErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	fetcher := &MockFetcher{}
	fetcher.On("DailyPrice", mock.Anything, mock.Anything, mock.Anything).Return(0.0, errors.New("dial tcp: timeout")).Twice()

	cache := NewCache(ctx, nil, fetcher, nil, nil)
	for i := 0; i < 2; i++ {
		_, err := cache.Price(ctx, Native(), day(2024, 1, 1))
		require.Error(t, err)

		var lookupErr *PriceLookupError
		require.ErrorAs(t, err, &lookupErr)
		assert.True(t, lookupErr.Asset.IsNative())
		assert.Contains(t, err.Error(), "eth price for 2024-01-01")
	}
	assert.Zero(t, cache.Len())
	fetcher.AssertExpectations(t)
}

func TestCache_NoFetcher(t *testing.T) {
	cache := NewCache(context.Background(), &memStore{entries: map[string]float64{"eth_2024-01-01": 2300}}, nil, nil, nil)

	p, err := cache.Price(context.Background(), Native(), day(2024, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, 2300.0, p)

	_, err = cache.Price(context.Background(), Native(), day(2024, 1, 2))
	var lookupErr *PriceLookupError
	assert.ErrorAs(t, err, &lookupErr)
}

func TestCache_SaveReloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache", "prices.json")

	fetcher := &MockFetcher{}
	fetcher.On("DailyPrice", mock.Anything, (*common.Address)(nil), day(2024, 3, 5)).Return(3800.5, nil).Once()
	fetcher.On("DailyPrice", mock.Anything, &usdc, day(2024, 3, 5)).Return(1.0, nil).Once()

	first := NewCache(ctx, NewFileStore(path), fetcher, nil, nil)
	_, err := first.Price(ctx, Native(), day(2024, 3, 5))
	require.NoError(t, err)
	_, err = first.Price(ctx, Token(usdc), day(2024, 3, 5))
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx))
	fetcher.AssertExpectations(t)

	// A fresh cache over the same file answers without any remote call.
	offline := &MockFetcher{}
	second := NewCache(ctx, NewFileStore(path), offline, nil, nil)
	assert.Equal(t, 2, second.Len())

	p, err := second.Price(ctx, Native(), day(2024, 3, 5))
	require.NoError(t, err)
	assert.Equal(t, 3800.5, p)
	p, err = second.Price(ctx, Token(usdc), day(2024, 3, 5))
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)
	offline.AssertNotCalled(t, "DailyPrice", mock.Anything, mock.Anything, mock.Anything)
}

func TestCache_SaveOnlyWhenChanged(t *testing.T) {
	ctx := context.Background()
	store := &memStore{entries: map[string]float64{"eth_2024-01-01": 2300}}

	cache := NewCache(ctx, store, nil, nil, nil)
	require.NoError(t, cache.Save(ctx))
	assert.Zero(t, store.saves)

	cache.Put("eth_2024-01-02", 2400)
	require.NoError(t, cache.Save(ctx))
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, 2400.0, store.entries["eth_2024-01-02"])
	assert.Equal(t, 2300.0, store.entries["eth_2024-01-01"])

	require.NoError(t, cache.Save(ctx))
	assert.Equal(t, 1, store.saves)
}

func TestCache_SaveError(t *testing.T) {
	ctx := context.Background()
	store := &memStore{saveErr: errors.New("disk full")}

	cache := NewCache(ctx, store, nil, nil, nil)
	cache.Put("eth_2024-01-02", 2400)
	err := cache.Save(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestNewCache_UnreadableStoreStartsEmpty(t *testing.T) {
	ctx := context.Background()

	cache := NewCache(ctx, &memStore{loadErr: errors.New("connection refused")}, nil, nil, nil)
	assert.Zero(t, cache.Len())

	path := filepath.Join(t.TempDir(), "prices.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	cache = NewCache(ctx, NewFileStore(path), nil, nil, nil)
	assert.Zero(t, cache.Len())
}

func TestCache_EntriesIsACopy(t *testing.T) {
	cache := NewCache(context.Background(), nil, nil, nil, nil)
	cache.Put("eth_2024-01-01", 1)

	entries := cache.Entries()
	entries["eth_2024-01-01"] = 99
	p, ok := cache.Lookup("eth_2024-01-01")
	require.True(t, ok)
	assert.Equal(t, 1.0, p)
}

func TestNewCache_FlatCacheFileServesLookups(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prices.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"eth_2023-11-14":2054.17}`), 0o600))

	offline := &MockFetcher{}
	cache := NewCache(ctx, NewFileStore(path), offline, nil, nil)
	assert.Equal(t, 1, cache.Len())

	p, err := cache.Price(ctx, Native(), day(2023, 11, 14))
	require.NoError(t, err)
	assert.Equal(t, 2054.17, p)
	offline.AssertNotCalled(t, "DailyPrice", mock.Anything, mock.Anything, mock.Anything)
}
