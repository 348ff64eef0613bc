package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/brojonat/arbledger/service/explorer"
	"github.com/brojonat/arbledger/service/ledger"
	natspkg "github.com/brojonat/arbledger/service/nats"
	"github.com/brojonat/arbledger/service/tags"
	"github.com/brojonat/arbledger/service/tokens"
	"github.com/itchyny/gojq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

func annotationFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "tags",
			Usage: "File mapping addresses to display tags",
		},
		&cli.StringFlag{
			Name:  "categories",
			Usage: "File mapping addresses to categories and descriptions",
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write the ledger CSV of an address",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "address",
				Aliases:  []string{"a"},
				Usage:    "Tracked address",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Usage:    "CSV file to write (- for stdout)",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "value",
				Usage: "Value every split in USD using daily prices",
			},
			&cli.StringSliceFlag{
				Name:  "token",
				Usage: "Extra token to keep, as ADDRESS=SYMBOL (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq expression each split must satisfy (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "summary",
				Usage: "Print per-commodity totals after writing",
			},
			&cli.BoolFlag{
				Name:  "publish",
				Usage: "Publish every split to NATS (requires NATS_URL)",
			},
			&cli.StringFlag{
				Name:  "metrics-file",
				Usage: "Write run metrics in Prometheus text format to this file",
			},
		}, annotationFlags()...),
		Action: runExport,
	}
}

func runExport(c *cli.Context) (err error) {
	env := getAppEnv(c)
	ctx := c.Context
	start := time.Now()

	if path := c.String("metrics-file"); path != "" {
		defer func() {
			if werr := prometheus.WriteToTextfile(path, env.registry); werr != nil {
				env.logger.ErrorContext(ctx, "failed to write metrics file", "path", path, "error", werr)
			}
		}()
	}

	address, err := parseAddress(c.String("address"))
	if err != nil {
		return err
	}
	filters, err := compileFilters(c.StringSlice("jq"))
	if err != nil {
		return err
	}
	extra, err := tokens.ParseEntries(c.StringSlice("token"))
	if err != nil {
		return err
	}
	mapping, err := tags.LoadFiles(c.String("tags"), c.String("categories"))
	if err != nil {
		return err
	}
	if c.Bool("publish") && env.cfg.NATSURL == "" {
		return fmt.Errorf("--publish requires NATS_URL")
	}

	api := env.explorerAPI()
	txs, err := explorer.NewClient(api, env.cfg.ExplorerPageSize, env.metrics, env.logger).Fetch(ctx, address)
	if err != nil {
		return fmt.Errorf("failed to fetch history: %w", err)
	}
	tags.Annotate(txs, mapping)

	valued := c.Bool("value")
	builder := ledger.NewBuilder(tokens.Arbitrum().With(extra), ledger.Options{Valuation: valued}, env.metrics, env.logger)

	var ps ledger.PriceSource
	if valued {
		priceCache, closeStore, cerr := env.openPriceCache(ctx, api)
		if cerr != nil {
			return cerr
		}
		defer closeStore()
		ps = priceCache
		// Resolved prices are kept even when a later lookup fails.
		defer func() {
			if serr := priceCache.Save(ctx); serr != nil {
				env.logger.ErrorContext(ctx, "failed to save price cache", "error", serr)
				if err == nil {
					err = serr
				}
			}
		}()
	}

	splits, err := builder.BuildSplits(ctx, address, txs, ps)
	if err != nil {
		return fmt.Errorf("failed to build ledger: %w", err)
	}
	splits, err = filterSplits(splits, filters)
	if err != nil {
		return err
	}

	if err := writeLedger(c, c.String("output"), splits, valued); err != nil {
		return err
	}

	if c.Bool("publish") {
		pub, err := natspkg.NewPublisher(ctx, env.cfg.NATSURL, env.metrics, env.logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		if err := pub.PublishSplitBatch(ctx, natspkg.FromSplits(address, splits)); err != nil {
			return fmt.Errorf("failed to publish splits: %w", err)
		}
	}

	if c.Bool("summary") {
		if err := printSummary(c.App.Writer, address.Hex(), splits); err != nil {
			return err
		}
	}

	env.logger.InfoContext(ctx, "exported ledger",
		"address", address.Hex(),
		"transactions", len(txs),
		"splits", len(splits),
		"valued", valued,
		"output", c.String("output"),
		"duration", time.Since(start),
	)
	return nil
}

func writeLedger(c *cli.Context, path string, splits []ledger.Split, withValue bool) error {
	if path == "-" {
		return ledger.WriteCSV(c.App.Writer, splits, withValue)
	}
	return ledger.WriteCSVFile(path, splits, withValue)
}

func printSummary(w io.Writer, address string, splits []ledger.Split) error {
	md := ledger.SummaryMarkdown(address, ledger.Summarize(splits))
	out, err := ledger.RenderSummary(md, 100)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func compileFilters(exprs []string) ([]*gojq.Code, error) {
	codes := make([]*gojq.Code, len(exprs))
	for i, expr := range exprs {
		query, err := gojq.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
		}
		codes[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
		}
	}
	return codes, nil
}

// filterSplits keeps the splits for which every filter yields a truthy value.
// Filters see a split in its JSON form.
func filterSplits(splits []ledger.Split, filters []*gojq.Code) ([]ledger.Split, error) {
	if len(filters) == 0 {
		return splits, nil
	}
	kept := splits[:0:0]
	for _, s := range splits {
		doc, err := toJQValue(s)
		if err != nil {
			return nil, err
		}
		ok, err := matchAll(doc, filters)
		if err != nil {
			return nil, fmt.Errorf("jq filter failed on split of %s: %w", s.TxHash.Hex(), err)
		}
		if ok {
			kept = append(kept, s)
		}
	}
	return kept, nil
}

func toJQValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode split: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode split: %w", err)
	}
	return doc, nil
}

func matchAll(doc any, filters []*gojq.Code) (bool, error) {
	for _, code := range filters {
		iter := code.Run(doc)
		v, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if err, isErr := v.(error); isErr {
			return false, err
		}
		if !isTruthy(v) {
			return false, nil
		}
	}
	return true, nil
}

func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	// Everything else (numbers, strings, objects, arrays) is truthy
	return true
}

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Dump the annotated transaction history of an address as JSON",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "address",
				Aliases:  []string{"a"},
				Usage:    "Tracked address",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "JSON file to write (- for stdout)",
				Value:   "-",
			},
		}, annotationFlags()...),
		Action: func(c *cli.Context) error {
			env := getAppEnv(c)

			address, err := parseAddress(c.String("address"))
			if err != nil {
				return err
			}
			mapping, err := tags.LoadFiles(c.String("tags"), c.String("categories"))
			if err != nil {
				return err
			}

			client := explorer.NewClient(env.explorerAPI(), env.cfg.ExplorerPageSize, env.metrics, env.logger)
			txs, err := client.Fetch(c.Context, address)
			if err != nil {
				return fmt.Errorf("failed to fetch history: %w", err)
			}
			tags.Annotate(txs, mapping)
			if txs == nil {
				txs = []*explorer.Transaction{}
			}

			path := c.String("output")
			if path == "-" {
				return writeJSON(c.App.Writer, txs)
			}
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", path, err)
			}
			defer f.Close()
			return writeJSON(f, txs)
		},
	}
}
