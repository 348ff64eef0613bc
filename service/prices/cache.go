package prices

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"time"

	"github.com/brojonat/arbledger/service/metrics"
	"github.com/ethereum/go-ethereum/common"
)

// Fetcher resolves a daily USD price from a remote source. contract is nil
// for the native asset.
type Fetcher interface {
	DailyPrice(ctx context.Context, contract *common.Address, day time.Time) (float64, error)
}

// PriceLookupError reports that the remote price source could not be reached
// or returned an unusable response. Nothing is cached for the key.
type PriceLookupError struct {
	Asset AssetID
	Day   time.Time
	Err   error
}

func (e *PriceLookupError) Error() string {
	return fmt.Sprintf("failed to look up %s price for %s: %v", e.Asset, e.Day.UTC().Format(time.DateOnly), e.Err)
}

func (e *PriceLookupError) Unwrap() error {
	return e.Err
}

var errNoFetcher = errors.New("no price source configured")

// Cache memoizes daily prices by (asset, day). Each key is fetched at most
// once per process and never refreshed.
//
// A Cache is not safe for concurrent use.
type Cache struct {
	entries map[string]float64
	store   Store
	fetcher Fetcher
	metrics *metrics.Metrics
	logger  *slog.Logger
	dirty   bool
}

// NewCache creates a cache seeded from store. A store that is empty,
// unreadable or corrupt yields an empty cache; that is logged, not returned.
// store and fetcher may be nil.
func NewCache(ctx context.Context, store Store, fetcher Fetcher, m *metrics.Metrics, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Cache{
		entries: map[string]float64{},
		store:   store,
		fetcher: fetcher,
		metrics: m,
		logger:  logger,
	}

	if store != nil {
		start := time.Now()
		entries, err := store.Load(ctx)
		if c.metrics != nil {
			c.metrics.RecordPriceStoreOp(store.Name(), "load", time.Since(start).Seconds(), err)
		}
		if err != nil {
			logger.WarnContext(ctx, "failed to load price cache, starting empty",
				"store", store.Name(),
				"error", err,
			)
		} else if entries != nil {
			c.entries = entries
		}
	}

	logger.DebugContext(ctx, "price cache ready", "entries", len(c.entries))
	c.recordSize()
	return c
}

// Price returns the USD price of asset on the UTC day of day. On a miss the
// fetcher is called exactly once and the result is stored, including a zero
// price for a figure the source could not provide.
func (c *Cache) Price(ctx context.Context, asset AssetID, day time.Time) (float64, error) {
	key := asset.Key(day)
	if p, ok := c.entries[key]; ok {
		c.recordLookup("hit")
		return p, nil
	}

	if c.fetcher == nil {
		c.recordLookup("error")
		return 0, &PriceLookupError{Asset: asset, Day: day, Err: errNoFetcher}
	}

	start := time.Now()
	price, err := c.fetcher.DailyPrice(ctx, asset.Contract, day)
	if c.metrics != nil {
		kind := "token"
		if asset.IsNative() {
			kind = "native"
		}
		c.metrics.RecordPriceFetch(kind, time.Since(start).Seconds())
	}
	if err != nil {
		c.recordLookup("error")
		return 0, &PriceLookupError{Asset: asset, Day: day, Err: err}
	}

	c.recordLookup("miss")
	c.logger.DebugContext(ctx, "fetched price",
		"key", key,
		"price", price,
	)
	c.entries[key] = price
	c.dirty = true
	c.recordSize()
	return price, nil
}

// Lookup returns a cached entry without fetching.
func (c *Cache) Lookup(key string) (float64, bool) {
	p, ok := c.entries[key]
	return p, ok
}

// Put stores an entry as if it had been fetched.
func (c *Cache) Put(key string, price float64) {
	c.entries[key] = price
	c.dirty = true
	c.recordSize()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Entries returns a copy of all cached entries.
func (c *Cache) Entries() map[string]float64 {
	return maps.Clone(c.entries)
}

// Save writes every entry back to the store. It does nothing when there is
// no store or nothing changed since the cache was loaded.
func (c *Cache) Save(ctx context.Context) error {
	if c.store == nil || !c.dirty {
		return nil
	}

	start := time.Now()
	err := c.store.Save(ctx, c.entries)
	if c.metrics != nil {
		c.metrics.RecordPriceStoreOp(c.store.Name(), "save", time.Since(start).Seconds(), err)
	}
	if err != nil {
		return fmt.Errorf("failed to save price cache: %w", err)
	}

	c.dirty = false
	c.logger.DebugContext(ctx, "saved price cache",
		"store", c.store.Name(),
		"entries", len(c.entries),
	)
	return nil
}

func (c *Cache) recordLookup(result string) {
	if c.metrics != nil {
		c.metrics.RecordPriceLookup(result)
	}
}

func (c *Cache) recordSize() {
	if c.metrics != nil {
		c.metrics.SetPriceCacheEntries(len(c.entries))
	}
}
