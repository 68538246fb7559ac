package cli

import (
	"context"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/livequery/internal/config"
	"github.com/calvinalkan/livequery/pkg/livequery"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(cfg *config.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			return execPrintConfig(io, cfg)
		},
	}
}

func execPrintConfig(io *IO, cfg *config.Config) error {
	mode := cfg.Mode()

	io.Println("effective_cwd=" + cfg.EffectiveCwd)
	io.Println("mode=" + mode.String())
	io.Println("apply_changes_immediately=" + strconv.FormatBool(mode != livequery.ModeBuffered))
	io.Println("apply_on_commit_only=" + strconv.FormatBool(mode == livequery.ModeOnCommit))
	io.Println("cache_name=" + cfg.CacheName)
	io.Println("cache_dir=" + orDefault(cfg.CacheDirAbs, "(memory)"))
	io.Println("db_path=" + orDefault(cfg.DBPathAbs, "(memory)"))

	io.Println("")
	io.Println("# sources")

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
		io.Println("(defaults only)")
	} else {
		if cfg.Sources.Global != "" {
			io.Println("global_config=" + cfg.Sources.Global)
		}

		if cfg.Sources.Project != "" {
			io.Println("project_config=" + cfg.Sources.Project)
		}
	}

	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}

	return s
}
