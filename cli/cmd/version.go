package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/docbroker/cli/render"
	"github.com/pithecene-io/docbroker/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// Header implements render.Table.
func (v VersionResponse) Header() []string { return nil }

// Rows implements render.Table.
func (v VersionResponse) Rows() [][]string {
	return render.KeyValues{{"version", v.Version}, {"commit", v.Commit}}.Rows()
}

// VersionCommand returns the version command. It never contacts the engine.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  []cli.Flag{FormatFlag},
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}
		return r.Render(VersionResponse{
			Version: types.Version,
			Commit:  commit,
		})
	}
}
