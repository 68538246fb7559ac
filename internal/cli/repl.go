package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/calvinalkan/livequery/internal/config"
	"github.com/calvinalkan/livequery/pkg/livequery"
)

const replHelp = `Commands:
  add <name> [email]       Add a contact (prints its key)
  seed [count]             Add sample contacts (default 10)
  rename <ref> <name>      Rename a contact
  email <ref> <email>      Change a contact's email
  archive <ref>            Hide a contact from the list
  unarchive <ref>          Show an archived contact again
  rm <ref>                 Delete a contact
  commit                   Commit pending store writes
  ls                       Print the sectioned list
  titles                   Print the section index titles
  jump <title>             Find the section for an index title
  mode [mode]              Show or set delivery mode
  pending                  Show the number of buffered changes
  apply                    Apply buffered changes
  refetch                  Re-run the query
  cache-clear [name]       Delete cached layouts (all names when omitted)
  help                     Show this help
  quit                     Exit

<ref> is a contact key or an exact name.`

// ReplCmd returns the repl command.
func ReplCmd(cfg *config.Config, in io.Reader, env map[string]string) *Command {
	return &Command{
		Flags: flag.NewFlagSet("repl", flag.ContinueOnError),
		Usage: "repl",
		Short: "Interactive playground (default)",
		Long: "Edit contacts and watch the live query report section and object changes.\n\n" +
			replHelp,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return execRepl(ctx, o, cfg, in, env)
		},
	}
}

// lineReader is liner on a terminal and a plain scanner otherwise.
type lineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

type scanReader struct {
	sc *bufio.Scanner
}

func (r scanReader) Prompt(string) (string, error) {
	if r.sc.Scan() {
		return r.sc.Text(), nil
	}

	if err := r.sc.Err(); err != nil {
		return "", err
	}

	return "", io.EOF
}

func (scanReader) Close() error { return nil }

type termReader struct {
	*liner.State
	history string
}

func newTermReader(env map[string]string) *termReader {
	r := &termReader{State: liner.NewLiner()}
	r.SetCtrlCAborts(true)
	r.SetCompleter(complete)

	if home := env["HOME"]; home != "" {
		r.history = filepath.Join(home, ".lq_history")

		if f, err := os.Open(r.history); err == nil {
			_, _ = r.ReadHistory(f)
			_ = f.Close()
		}
	}

	return r
}

func (r *termReader) Prompt(prompt string) (string, error) {
	line, err := r.State.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}

	if err == nil && strings.TrimSpace(line) != "" {
		r.AppendHistory(line)
	}

	return line, err
}

func (r *termReader) Close() error {
	if r.history != "" {
		if f, err := os.Create(r.history); err == nil {
			_, _ = r.WriteHistory(f)
			_ = f.Close()
		}
	}

	return r.State.Close()
}

var replCommands = []string{
	"add", "seed", "rename", "email", "archive", "unarchive", "rm", "commit", "ls", "titles",
	"jump", "mode", "pending", "apply", "refetch", "cache-clear", "help", "quit",
}

func complete(line string) []string {
	var out []string

	for _, c := range replCommands {
		if strings.HasPrefix(c, strings.ToLower(line)) {
			out = append(out, c)
		}
	}

	return out
}

func openReader(in io.Reader, env map[string]string) lineReader {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return newTermReader(env)
	}

	if in == nil {
		in = strings.NewReader("")
	}

	return scanReader{sc: bufio.NewScanner(in)}
}

func execRepl(ctx context.Context, o *IO, cfg *config.Config, in io.Reader, env map[string]string) (err error) {
	s, err := openSession(ctx, o, cfg)
	if err != nil {
		return err
	}

	defer func() {
		if s.store.Pending() {
			o.Warn("uncommitted writes discarded", "run commit before quit")
		}

		err = errors.Join(err, s.close())
	}()

	r := openReader(in, env)

	defer func() { _ = r.Close() }()

	o.Printf("lq: %s store, mode %s, %d contacts\n", s.store.Kind(), s.ctrl.Mode(), len(s.ctrl.FetchedObjects()))

	for {
		line, err := r.Prompt("lq> ")
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		fields := strings.Fields(line)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		quit, err := s.exec(ctx, strings.ToLower(fields[0]), fields[1:])
		if err != nil {
			o.ErrPrintln("error:", err)
		}

		if quit {
			return nil
		}
	}
}

var errUsage = errors.New("usage")

func need(args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("%w: %s", errUsage, usage)
	}

	return nil
}

// exec runs one REPL command. quit is true for quit commands.
func (s *session) exec(ctx context.Context, cmd string, args []string) (bool, error) {
	switch cmd {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		s.o.Println(replHelp)

		return false, nil
	}

	return false, s.run(ctx, cmd, args)
}

func (s *session) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "add":
		err := need(args, 1, "add <name> [email]")
		if err != nil {
			return err
		}

		c := Contact{Key: newID(), Name: args[0]}
		if len(args) > 1 {
			c.Email = args[1]
		}

		err = s.store.Put(ctx, c)
		if err != nil {
			return err
		}

		s.o.Println("added", c.Key)

		return nil

	case "seed":
		n, err := parseCount(args, 10)
		if err != nil {
			return err
		}

		for i := range n {
			c := Contact{Key: newID(), Name: sampleNames[i%len(sampleNames)]}
			if i >= len(sampleNames) {
				c.Name += strconv.Itoa(i / len(sampleNames))
			}

			err = s.store.Put(ctx, c)
			if err != nil {
				return err
			}
		}

		s.o.Printf("seeded %d contacts\n", n)

		return nil

	case "rename", "email":
		err := need(args, 2, cmd+" <ref> <value>")
		if err != nil {
			return err
		}

		return s.edit(ctx, args[0], func(c *Contact) {
			if cmd == "rename" {
				c.Name = args[1]
			} else {
				c.Email = args[1]
			}
		})

	case "archive", "unarchive":
		err := need(args, 1, cmd+" <ref>")
		if err != nil {
			return err
		}

		return s.edit(ctx, args[0], func(c *Contact) { c.Archived = cmd == "archive" })

	case "rm", "delete":
		err := need(args, 1, "rm <ref>")
		if err != nil {
			return err
		}

		c, err := s.resolve(ctx, args[0])
		if err != nil {
			return err
		}

		return s.store.Delete(ctx, c.Key)

	case "commit":
		return s.store.Commit(ctx)

	case "ls", "list":
		s.printSections()

		return nil

	case "titles":
		s.o.Println(strings.Join(s.ctrl.SectionIndexTitles(), " "))

		return nil

	case "jump":
		err := need(args, 1, "jump <title>")
		if err != nil {
			return err
		}

		idx, err := s.ctrl.SectionForIndexTitle(args[0])
		if err != nil {
			return err
		}

		s.o.Printf("%s -> section %d %q\n", args[0], idx, s.ctrl.Sections()[idx].Name())

		return nil

	case "mode":
		if len(args) == 0 {
			s.o.Println(s.ctrl.Mode())

			return nil
		}

		m, err := livequery.ParseMode(args[0])
		if err != nil {
			return err
		}

		return s.ctrl.SetMode(m)

	case "pending":
		s.o.Println(s.ctrl.PendingChanges())

		return nil

	case "apply":
		_, err := s.ctrl.ApplyPendingChanges()

		return err

	case "refetch":
		err := s.ctrl.PerformFetch(ctx)
		if err != nil {
			return err
		}

		s.o.Printf("fetched %d contacts\n", len(s.ctrl.FetchedObjects()))

		return nil

	case "cache-clear":
		name := ""
		if len(args) > 0 {
			name = args[0]
		}

		return livequery.DeleteCache(s.cache, name)

	default:
		return fmt.Errorf("unknown command %q (type 'help' for commands)", cmd)
	}
}

func (s *session) edit(ctx context.Context, ref string, fn func(*Contact)) error {
	c, err := s.resolve(ctx, ref)
	if err != nil {
		return err
	}

	fn(&c)

	return s.store.Put(ctx, c)
}

var sampleNames = []string{
	"Ada", "Alan", "Barbara", "Brian", "Claude", "Dennis", "Edsger", "Frances", "Grace", "Ken",
}

func parseCount(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}

	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid count %q", args[0])
	}

	return n, nil
}
