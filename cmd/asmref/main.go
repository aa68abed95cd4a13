// Command asmref inspects .NET assemblies and resolves their references.
//
//	asmref inspect bin/App.dll
//	asmref resolve bin/App.dll "Newtonsoft.Json, Version=13.0.0.0"
//	asmref locate obj/ref/Contoso.Core.dll "M:Contoso.Widget.Spin(System.Int32)"
package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	asmref "github.com/albertocavalcante/go-asmref"
	"github.com/albertocavalcante/go-asmref/finder"
)

// CLI is the command line grammar.
type CLI struct {
	Verbose bool   `help:"Enable debug logging on stderr." short:"v"`
	Format  string `help:"Output format." enum:"text,json,yaml" default:"text" short:"f"`
	Config  string `help:"Finder configuration file (TOML)." type:"existingfile" short:"c"`

	Inspect InspectCmd `cmd:"" help:"Show the identity, target framework and references of an assembly."`
	Resolve ResolveCmd `cmd:"" help:"Resolve references of an assembly to files."`
	Locate  LocateCmd  `cmd:"" help:"Find the assembly implementing a documentation comment id."`
}

// App carries what every subcommand needs.
type App struct {
	Out     io.Writer
	Format  string
	Logger  *slog.Logger
	Options []asmref.Option
}

// newApp builds the session options from the global flags.
func newApp(cli *CLI, out, errOut io.Writer) (*App, error) {
	level := slog.LevelWarn
	if cli.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))

	opts := []asmref.Option{asmref.WithLogger(logger)}
	if cli.Config != "" {
		cfg, err := finder.LoadConfig(cli.Config)
		if err != nil {
			return nil, err
		}
		opts = append(opts, asmref.WithFinderConfig(cfg))
	}
	return &App{Out: out, Format: cli.Format, Logger: logger, Options: opts}, nil
}

func run(args []string, out, errOut io.Writer, exit func(int)) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("asmref"),
		kong.Description("Resolve references between compiled .NET assemblies."),
		kong.Writers(out, errOut),
		kong.Exit(exit),
		kong.UsageOnError(),
	)
	if err != nil {
		return err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	app, err := newApp(&cli, out, errOut)
	if err != nil {
		return err
	}
	return ctx.Run(app)
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr, os.Exit); err != nil {
		slog.Error("asmref failed", "error", err)
		os.Exit(1)
	}
}
