// Package cli implements lq, a playground for live queries over a contact
// list.
package cli

import (
	"context"
	goflag "flag"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/livequery/internal/config"
	"github.com/calvinalkan/livequery/pkg/livequery"
)

// LogFlags, when set, are accepted as global flags. cmd/lq passes the standard
// flag set, where glog registers -v, -logtostderr and friends.
var LogFlags *goflag.FlagSet

type globalFlags struct {
	workDir    string
	configPath string
	dbPath     string
	cacheDir   string
	mode       string
	help       bool
}

func newGlobalFlagSet(g *globalFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("lq", flag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(io.Discard)

	fs.StringVarP(&g.workDir, "cwd", "C", "", "run as if started in `dir`")
	fs.StringVarP(&g.configPath, "config", "c", "", "use the specified config `file`")
	fs.StringVar(&g.dbPath, "db", "", "SQLite database `path` (default: in-memory store)")
	fs.StringVar(&g.cacheDir, "cache-dir", "", "section cache `dir` (default: in-memory cache)")
	fs.StringVar(&g.mode, "mode", "", "change delivery: immediate, on-commit or buffered")
	fs.BoolVarP(&g.help, "help", "h", false, "show help")

	if LogFlags != nil {
		fs.AddGoFlagSet(LogFlags)
	}

	return fs
}

// Run is the main entry point. Returns exit code.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string) int {
	var g globalFlags

	fs := newGlobalFlagSet(&g)

	if len(args) > 0 {
		args = args[1:]
	}

	err := fs.Parse(args)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		printUsage(errOut, fs)

		return 1
	}

	if g.help {
		printUsage(out, fs)

		return 0
	}

	var overrides config.Overrides

	overrides.DBPath = g.dbPath
	overrides.CacheDir = g.cacheDir

	if g.mode != "" {
		overrides.Mode, err = livequery.ParseMode(g.mode)
		if err != nil {
			fmt.Fprintln(errOut, "error: --mode:", err)

			return 1
		}
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: g.workDir,
		ConfigPath:      g.configPath,
		Env:             env,
		Overrides:       overrides,
	})
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)

		return 1
	}

	rest := fs.Args()

	name := "repl"
	if len(rest) > 0 {
		name, rest = rest[0], rest[1:]
	}

	env = withDefaults(env)
	commands := allCommands(&cfg, in, env)

	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd.Run(context.Background(), NewIO(out, errOut), rest)
		}
	}

	if name == "help" {
		printUsage(out, fs)

		return 0
	}

	fmt.Fprintln(errOut, "error: unknown command:", name)
	printUsage(errOut, fs)

	return 1
}

func withDefaults(env map[string]string) map[string]string {
	if env == nil {
		return map[string]string{}
	}

	return env
}

func allCommands(cfg *config.Config, in io.Reader, env map[string]string) []*Command {
	return []*Command{
		ReplCmd(cfg, in, env),
		LsCmd(cfg),
		CacheClearCmd(cfg),
		PrintConfigCmd(cfg),
	}
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	var b strings.Builder

	b.WriteString("lq - live query playground\n\n")
	b.WriteString("Usage: lq [options] [command] [args]\n\n")
	b.WriteString("Options:\n")

	fs.SetOutput(&b)
	fs.PrintDefaults()
	fs.SetOutput(io.Discard)

	b.WriteString("\nCommands:\n")

	for _, cmd := range allCommands(&config.Config{}, nil, nil) {
		b.WriteString(cmd.HelpLine())
		b.WriteString("\n")
	}

	fmt.Fprint(w, b.String())
}
