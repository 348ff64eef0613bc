package main

import (
	"fmt"

	"github.com/brojonat/arbledger/service/tags"
	"github.com/urfave/cli/v2"
)

func tagsCheckCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Parse a tag or category file and report what it contains",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: file path")
			}

			doc, err := tags.LoadDocument(c.Args().First())
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return writeJSON(c.App.Writer, map[string]any{
					"path":    doc.Path,
					"schema":  doc.Schema,
					"entries": len(doc.Entries),
				})
			}
			fmt.Fprintf(c.App.Writer, "Path:     %s\n", doc.Path)
			fmt.Fprintf(c.App.Writer, "Schema:   %s\n", doc.Schema)
			fmt.Fprintf(c.App.Writer, "Entries:  %d\n", len(doc.Entries))
			return nil
		},
	}
}
