// Command lq is a playground for live queries over a contact list.
//
// Usage:
//
//	lq [options] [repl]          Interactive session (default)
//	lq [options] ls [--titles]   Print the sectioned list once
//	lq [options] cache-clear     Delete cached section layouts
//	lq [options] print-config    Show resolved configuration
//
// Run "lq --help" for options; glog flags (-v, -logtostderr) are accepted too.
package main

import (
	"flag"
	"os"
	"strings"

	"github.com/golang/glog"

	"github.com/calvinalkan/livequery/internal/cli"
)

func main() {
	environ := os.Environ()
	env := make(map[string]string, len(environ))

	for _, e := range environ {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = v
		}
	}

	cli.LogFlags = flag.CommandLine

	exitCode := cli.Run(os.Stdin, os.Stdout, os.Stderr, os.Args, env)

	glog.Flush()
	os.Exit(exitCode)
}
