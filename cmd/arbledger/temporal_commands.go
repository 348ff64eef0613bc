package main

import (
	"fmt"
	"time"

	"github.com/brojonat/arbledger/service/temporal"
	"github.com/brojonat/arbledger/service/tokens"
	"github.com/urfave/cli/v2"
)

const defaultScheduleInterval = 24 * time.Hour

// exportInputFlags are the export parameters shared by the Temporal commands.
func exportInputFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{
			Name:     "address",
			Aliases:  []string{"a"},
			Usage:    "Tracked address",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "output",
			Aliases:  []string{"o"},
			Usage:    "CSV path on the worker host",
			Required: true,
		},
		&cli.BoolFlag{
			Name:  "value",
			Usage: "Value every split in USD",
		},
		&cli.StringSliceFlag{
			Name:  "token",
			Usage: "Extra token to keep, as ADDRESS=SYMBOL (repeatable)",
		},
		&cli.BoolFlag{
			Name:  "publish",
			Usage: "Publish every split to NATS from the worker",
		},
	}, annotationFlags()...)
}

// exportInput validates the flags before anything reaches Temporal.
func exportInput(c *cli.Context) (temporal.ExportLedgerInput, error) {
	address, err := parseAddress(c.String("address"))
	if err != nil {
		return temporal.ExportLedgerInput{}, err
	}
	if _, err := tokens.ParseEntries(c.StringSlice("token")); err != nil {
		return temporal.ExportLedgerInput{}, err
	}
	return temporal.ExportLedgerInput{
		Address:        address.Hex(),
		OutputPath:     c.String("output"),
		TagsPath:       c.String("tags"),
		CategoriesPath: c.String("categories"),
		Valuation:      c.Bool("value"),
		Tokens:         c.StringSlice("token"),
		Publish:        c.Bool("publish"),
	}, nil
}

func newTemporalClient(c *cli.Context) (*temporal.Client, error) {
	env := getAppEnv(c)
	return temporal.NewClient(env.cfg.TemporalHost, env.cfg.TemporalNamespace, env.cfg.TemporalTaskQueue, env.metrics, env.logger)
}

func temporalExportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Run ExportLedgerWorkflow once",
		Flags: append(exportInputFlags(), &cli.BoolFlag{
			Name:  "wait",
			Usage: "Wait for the workflow and print its result",
		}),
		Action: func(c *cli.Context) error {
			input, err := exportInput(c)
			if err != nil {
				return err
			}
			tc, err := newTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			if !c.Bool("wait") {
				run, err := tc.StartExport(c.Context, input)
				if err != nil {
					return err
				}
				if c.Bool("json") {
					return writeJSON(c.App.Writer, map[string]string{
						"workflow_id": run.GetID(),
						"run_id":      run.GetRunID(),
					})
				}
				fmt.Fprintf(c.App.Writer, "Started %s (run %s)\n", run.GetID(), run.GetRunID())
				return nil
			}

			result, err := tc.RunExport(c.Context, input)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return writeJSON(c.App.Writer, result)
			}
			fmt.Fprintf(c.App.Writer, "Address:       %s\n", result.Address)
			fmt.Fprintf(c.App.Writer, "Output:        %s\n", result.OutputPath)
			fmt.Fprintf(c.App.Writer, "Transactions:  %d\n", result.TransactionCount)
			fmt.Fprintf(c.App.Writer, "Splits:        %d\n", result.SplitCount)
			fmt.Fprintf(c.App.Writer, "Published:     %d\n", result.Published)
			return nil
		},
	}
}

func temporalScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Create or update the recurring export of an address",
		Flags: append(exportInputFlags(), &cli.DurationFlag{
			Name:  "interval",
			Usage: "Time between exports",
			Value: defaultScheduleInterval,
		}),
		Action: func(c *cli.Context) error {
			input, err := exportInput(c)
			if err != nil {
				return err
			}
			if c.Duration("interval") <= 0 {
				return fmt.Errorf("--interval must be positive")
			}
			tc, err := newTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			return scheduleExport(c, tc, input)
		},
	}
}

func temporalUnscheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "unschedule",
		Usage: "Delete the recurring export of an address",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "address",
				Aliases:  []string{"a"},
				Usage:    "Tracked address",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			address, err := parseAddress(c.String("address"))
			if err != nil {
				return err
			}
			tc, err := newTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			return unscheduleExport(c, tc, address.Hex())
		},
	}
}

func scheduleExport(c *cli.Context, s temporal.Scheduler, input temporal.ExportLedgerInput) error {
	interval := c.Duration("interval")
	if err := s.UpsertExportSchedule(c.Context, input, interval); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Scheduled export of %s every %s\n", input.Address, interval)
	return nil
}

func unscheduleExport(c *cli.Context, s temporal.Scheduler, address string) error {
	if err := s.DeleteExportSchedule(c.Context, address); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Deleted export schedule of %s\n", address)
	return nil
}
