package prices

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS price_cache (
	key   TEXT PRIMARY KEY,
	price DOUBLE PRECISION NOT NULL
)`
	selectPricesSQL = `SELECT key, price FROM price_cache`
	upsertPriceSQL  = `INSERT INTO price_cache (key, price) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET price = EXCLUDED.price`
)

// PGStore keeps the cache in the price_cache table.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a new PGStore with the given connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Name() string { return "postgres" }

// EnsureSchema creates the price_cache table if it does not exist.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create price_cache table: %w", err)
	}
	return nil
}

func (s *PGStore) Load(ctx context.Context) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx, selectPricesSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	entries := map[string]float64{}
	for rows.Next() {
		var (
			key   string
			price float64
		)
		if err := rows.Scan(&key, &price); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		entries[key] = price
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read prices: %w", err)
	}
	return entries, nil
}

// Save upserts every entry in one transaction. Rows not present in entries
// are left untouched, since entries are never removed from a cache.
func (s *PGStore) Save(ctx context.Context, entries map[string]float64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	keys := slices.Sorted(maps.Keys(entries))
	batch := &pgx.Batch{}
	for _, k := range keys {
		batch.Queue(upsertPriceSQL, k, entries[k])
	}

	results := tx.SendBatch(ctx, batch)
	for _, k := range keys {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to upsert price %s: %w", k, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit prices: %w", err)
	}
	return nil
}

// OpenStore returns a PGStore when databaseURL is set and a FileStore at path
// otherwise. The returned func releases the store's resources.
func OpenStore(ctx context.Context, databaseURL, path string) (Store, func(), error) {
	if databaseURL == "" {
		return NewFileStore(path), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to price cache database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping price cache database: %w", err)
	}

	store := NewPGStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}
