package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/livequery/internal/config"
)

// LsCmd returns the ls command.
func LsCmd(cfg *config.Config) *Command {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	titles := fs.Bool("titles", false, "print only the section index titles")

	return &Command{
		Flags: fs,
		Usage: "ls [--titles]",
		Short: "Print the sectioned contact list",
		Long:  "Fetch active contacts once and print them grouped by initial.",
		Exec: func(ctx context.Context, o *IO, _ []string) (err error) {
			s, err := openSession(ctx, o, cfg)
			if err != nil {
				return err
			}

			defer func() { err = errors.Join(err, s.close()) }()

			if *titles {
				return s.run(ctx, "titles", nil)
			}

			s.printSections()

			return nil
		},
	}
}
