package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/livequery/internal/config"
	"github.com/calvinalkan/livequery/pkg/livequery"
)

// CacheClearCmd returns the cache-clear command.
func CacheClearCmd(cfg *config.Config) *Command {
	fs := flag.NewFlagSet("cache-clear", flag.ContinueOnError)
	all := fs.Bool("all", false, "delete cached layouts of every cache name")

	return &Command{
		Flags: fs,
		Usage: "cache-clear [name] [--all]",
		Short: "Delete cached section layouts",
		Long: "Delete cached section layouts stored under name (default: the configured\n" +
			"cache_name), or under every name with --all.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if cfg.CacheDirAbs == "" {
				o.Warn("no cache_dir configured", "set cache_dir or pass --cache-dir")

				return nil
			}

			name := cfg.CacheName

			switch {
			case *all && len(args) > 0:
				return errors.New("cache-clear: name and --all are exclusive")
			case *all:
				name = ""
			case len(args) > 0:
				name = args[0]
			}

			cache, err := openCache(cfg)
			if err != nil {
				return err
			}

			err = livequery.DeleteCache(cache, name)
			if err != nil {
				return err
			}

			if name == "" {
				o.Println("cleared all cached layouts")
			} else {
				o.Printf("cleared cached layouts for %q\n", name)
			}

			return nil
		},
	}
}
