package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/docbroker/auth"
)

// HashPasswordCommand returns the hash-password command, which prints an
// argon2id hash for use in auth.users[].password_hash.
func HashPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:  "hash-password",
		Usage: "Hash a password for the static authenticator (reads one line from stdin)",
		Action: func(c *cli.Context) error {
			sc := bufio.NewScanner(c.App.Reader)
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return err
				}
				return cli.Exit("no password on stdin", 2)
			}
			password := strings.TrimRight(sc.Text(), "\r")

			hash, err := auth.HashPassword(password)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			_, err = fmt.Fprintln(c.App.Writer, hash)
			return err
		},
	}
}
