package main

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/brojonat/arbledger/service/prices"
	"github.com/urfave/cli/v2"
)

func pricesGetCommand() *cli.Command {
	return &cli.Command{
		Name:  "get",
		Usage: "Resolve one daily price, fetching and caching it on a miss",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "asset",
				Usage: "eth or a token contract address",
				Value: "eth",
			},
			&cli.StringFlag{
				Name:     "date",
				Usage:    "Day in YYYY-MM-DD (UTC)",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			env := getAppEnv(c)
			ctx := c.Context

			asset, err := prices.ParseAssetID(c.String("asset"))
			if err != nil {
				return err
			}
			day, err := time.Parse(time.DateOnly, c.String("date"))
			if err != nil {
				return fmt.Errorf("invalid --date %q: %w", c.String("date"), err)
			}

			cache, closeStore, err := env.openPriceCache(ctx, env.explorerAPI())
			if err != nil {
				return err
			}
			defer closeStore()

			price, err := cache.Price(ctx, asset, day)
			if err != nil {
				return err
			}
			if err := cache.Save(ctx); err != nil {
				return err
			}

			if c.Bool("json") {
				return writeJSON(c.App.Writer, map[string]any{
					"key":   asset.Key(day),
					"price": price,
				})
			}
			fmt.Fprintf(c.App.Writer, "%s\t%s\n", asset.Key(day), strconv.FormatFloat(price, 'f', -1, 64))
			return nil
		},
	}
}

func pricesShowCommand() *cli.Command {
	return &cli.Command{
		Name:    "show",
		Aliases: []string{"ls"},
		Usage:   "List every cached price",
		Action: func(c *cli.Context) error {
			env := getAppEnv(c)
			ctx := c.Context

			store, closeStore, err := prices.OpenStore(ctx, env.cfg.PriceCacheDatabaseURL, env.cfg.PriceCachePath)
			if err != nil {
				return err
			}
			defer closeStore()

			entries, err := store.Load(ctx)
			if err != nil {
				return fmt.Errorf("failed to load price cache: %w", err)
			}

			if c.Bool("json") {
				return writeJSON(c.App.Writer, entries)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ASSET\tDATE\tPRICE (USD)")
			for _, key := range slices.Sorted(maps.Keys(entries)) {
				asset, day, err := prices.ParseKey(key)
				if err != nil {
					env.logger.WarnContext(ctx, "skipping malformed cache key", "key", key, "error", err)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", asset, day.Format(time.DateOnly), strconv.FormatFloat(entries[key], 'f', -1, 64))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d prices (%s store)\n", len(entries), store.Name())
			return nil
		},
	}
}
