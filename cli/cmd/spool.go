package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/docbroker/cli/render"
	"github.com/pithecene-io/docbroker/spool"
	"github.com/pithecene-io/docbroker/types"
)

// SpoolCommand returns the spool command group. Both subcommands read the
// spool directory directly and never contact a running broker.
func SpoolCommand() *cli.Command {
	return &cli.Command{
		Name:  "spool",
		Usage: "Inspect the local document spool",
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Print a finalized entry as stored (base64 text)",
				ArgsUsage: "<identifier>",
				Flags:     []cli.Flag{ConfigFlag, SpoolDirFlag},
				Action:    spoolGetAction,
			},
			{
				Name:   "list",
				Usage:  "List spool entries by digest",
				Flags:  ReadOnlyFlags(),
				Action: spoolListAction,
			},
		},
	}
}

func openSpool(c *cli.Context) (*spool.Store, error) {
	cfg, err := resolveConfig(c)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return spool.New(cfg.Spool.Dir)
}

func spoolGetAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("spool get requires exactly one identifier", 2)
	}
	store, err := openSpool(c)
	if err != nil {
		return err
	}

	text, err := store.ReadText(types.Identifier(c.Args().First()))
	if err != nil {
		if errors.Is(err, types.ErrNoIdentifier) {
			return cli.Exit(fmt.Sprintf("no finalized entry for %q", c.Args().First()), 1)
		}
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, text)
	return err
}

func spoolListAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	store, err := openSpool(c)
	if err != nil {
		return err
	}
	entries, err := store.Entries()
	if err != nil {
		return err
	}
	return r.Render(entryTable(entries))
}

// entryTable renders spool entries one per row. It encodes to json and
// yaml exactly like the underlying slice.
type entryTable []spool.EntryInfo

func (t entryTable) Header() []string {
	return []string{"DIGEST", "SIZE", "STATE", "MODIFIED"}
}

func (t entryTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, e := range t {
		state := "final"
		if e.InProgress {
			state = "uploading"
		}
		rows[i] = []string{e.Digest, strconv.FormatInt(e.Size, 10), state, e.Modified.Format(time.RFC3339)}
	}
	return rows
}
