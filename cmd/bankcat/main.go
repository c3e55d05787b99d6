// Command bankcat imports bank exports, categorizes them with rules and a
// trained model, and maintains the labeled dataset.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jask/bankcat/internal/config"
	"github.com/jask/bankcat/internal/logger"
)

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"import":     {"import [-dir DIR]", cmdImport},
	"categorize": {"categorize [-threshold F] [-save-labels] [-show N]", cmdCategorize},
	"label":      {"label ID CATEGORY [SUBCATEGORY] | label -export FILE | label -import FILE", cmdLabel},
	"suggest":    {"suggest [-k N] ID", cmdSuggest},
	"train":      {"train", cmdTrain},
	"rules":      {"rules list|add|preview|toggle|delete", cmdRules},
	"categories": {"categories list|add|add-sub|rename|rename-sub|toggle|delete|seed", cmdCategories},
	"backup":     {"backup", cmdBackup},
	"restore":    {"restore [-transactions] [-labels] FILE", cmdRestore},
	"reset":      {"reset [-yes]", cmdReset},
	"stats":      {"stats", cmdStats},
}

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("bankcat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dataDir := fs.String("data", "", "data directory (overrides data.dir and every derived path)")
	verbose := fs.Bool("v", false, "debug logging")
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		usage(stderr)
		return 2
	}
	name, rest := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintln(stderr, errorStyle.Render("unknown command: "+name))
		usage(stderr)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, errorStyle.Render(err.Error()))
		return 1
	}
	if *dataDir != "" {
		cfg = config.Config{Data: config.DataConfig{Dir: *dataDir}, ML: cfg.ML, Log: cfg.Log}.Resolve()
	}
	level := cfg.Log.Level
	if *verbose {
		level = "debug"
	}
	log := logger.New(logger.Config{Level: level, JSON: cfg.Log.JSON, Output: stderr})

	a, err := newApp(cfg, log, stdin, stdout)
	if err != nil {
		fmt.Fprintln(stderr, errorStyle.Render(err.Error()))
		return 1
	}
	defer a.Close()

	if err := cmd.run(a.context(context.Background()), a, rest); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, "usage: bankcat "+cmd.usage)
			return 2
		}
		fmt.Fprintln(stderr, errorStyle.Render(err.Error()))
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, titleStyle.Render("bankcat")+" [-data DIR] [-v] COMMAND")
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintln(w, "  "+commands[n].usage)
	}
}

// flags returns a flag set that reports errors instead of exiting.
func flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// confirm prints token and reads it back from a.in. With yes set the token
// is accepted without prompting.
func (a *app) confirm(what, token string, yes bool) (string, error) {
	if yes {
		return token, nil
	}
	fmt.Fprintf(a.out, "%s\n", warnStyle.Render("delete "+what+"?"))
	fmt.Fprintf(a.out, "type %s to confirm: ", infoStyle.Render(token))
	var typed string
	if _, err := fmt.Fscanln(a.in, &typed); err != nil {
		return "", fmt.Errorf("confirmation: %w", err)
	}
	return strings.TrimSpace(typed), nil
}
