package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/brojonat/arbledger/service/config"
	"github.com/brojonat/arbledger/service/explorer"
	"github.com/brojonat/arbledger/service/metrics"
	"github.com/brojonat/arbledger/service/prices"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

const envKey = "env"

// appEnv carries what setup resolved to every command.
type appEnv struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

// setup loads .env and configuration, then builds the logger and metrics.
func setup(c *cli.Context) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.LoadWithFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.LogFormat = c.String("log-format")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(c.App.ErrWriter, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	c.App.Metadata[envKey] = &appEnv{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  metrics.NewMetrics(registry),
	}
	return nil
}

func getAppEnv(c *cli.Context) *appEnv {
	return c.App.Metadata[envKey].(*appEnv)
}

// newLogger builds the slog handler selected by format.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json", "":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// explorerAPI returns the HTTP adapter with request metrics on its transport.
func (e *appEnv) explorerAPI() *explorer.HTTPAPI {
	return explorer.NewHTTPAPI(explorer.HTTPOptions{
		BaseURL: e.cfg.ExplorerAPIURL,
		APIKey:  e.cfg.ExplorerAPIKey,
		HTTPClient: &http.Client{
			Timeout:   e.cfg.HTTPTimeout,
			Transport: metrics.InstrumentedTransport(e.metrics, http.DefaultTransport),
		},
		Metrics: e.metrics,
		Logger:  e.logger,
	})
}

// openPriceCache loads the configured price store into a cache that fetches
// misses through api.
func (e *appEnv) openPriceCache(ctx context.Context, api prices.Fetcher) (*prices.Cache, func(), error) {
	store, closeStore, err := prices.OpenStore(ctx, e.cfg.PriceCacheDatabaseURL, e.cfg.PriceCachePath)
	if err != nil {
		return nil, nil, err
	}
	return prices.NewCache(ctx, store, api, e.metrics, e.logger), closeStore, nil
}

func parseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%q is not a hex address", s)
	}
	return common.HexToAddress(s), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
