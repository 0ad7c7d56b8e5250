package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dogpushhq/dogpush/internal/command"
	"github.com/dogpushhq/dogpush/internal/config"
	"github.com/dogpushhq/dogpush/internal/errs"
	"github.com/dogpushhq/dogpush/internal/logging"
	"github.com/dogpushhq/dogpush/internal/metrics"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, nil)
	stop()
	os.Exit(code)
}

type cli struct {
	app *kingpin.Application

	configPath *string
	logLevel   *string
	logFormat  *string
	noColor    *bool
	textfile   *string
	initCmd    *kingpin.CmdClause
	initOutput *string
	pushCmd    *kingpin.CmdClause
	pushDelete *bool
	diffCmd    *kingpin.CmdClause
	diffIgnore *bool
	diffExit   *bool
	muteCmd    *kingpin.CmdClause
}

func newCLI(stderr io.Writer) *cli {
	app := kingpin.New(command.ProgramName, "Keep Datadog monitors in sync with YAML declarations.")
	app.HelpFlag.Short('h')
	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)

	c := &cli{app: app}
	c.configPath = app.Flag("config", "Path to the dogpush configuration file.").
		Short('c').Default(config.DefaultConfigPath).String()
	c.logLevel = app.Flag("log.level", "Only log messages with the given severity or above.").
		Default("info").Enum("debug", "info", "warn", "error")
	c.logFormat = app.Flag("log.format", "Output format of log messages.").
		Default("text").Enum("text", "json")
	c.noColor = app.Flag("no-color", "Disable coloured output.").Bool()
	c.textfile = app.Flag("metrics.textfile", "Write run metrics to this file in the Prometheus text format.").
		PlaceHolder("PATH").String()

	c.initCmd = app.Command("init", "Print a starter rule file built from the remote monitors.")
	c.initOutput = c.initCmd.Flag("output", "Write the starter file here instead of stdout.").
		Short('o').PlaceHolder("FILE").String()

	c.pushCmd = app.Command("push", "Create and update remote monitors to match the local rules.")
	c.pushDelete = c.pushCmd.Flag("delete-untracked", "Delete remote monitors that have no local declaration.").Bool()

	c.diffCmd = app.Command("diff", "Show the differences between local rules and remote monitors.")
	c.diffIgnore = c.diffCmd.Flag("ignore-untracked", "Do not report remote monitors without a local declaration.").Bool()
	c.diffExit = c.diffCmd.Flag("exitstatus", "Exit with status 1 when differences are found.").
		Default("true").Bool()

	c.muteCmd = app.Command("mute", "Mute alerts whose mute_when condition currently holds.")
	return c
}

// run parses args, executes one subcommand and returns the process exit code.
// api overrides the Datadog client when non-nil.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, api command.API) int {
	c := newCLI(stderr)

	exited := -1
	c.app.Terminate(func(code int) {
		if exited < 0 {
			exited = code
		}
	})
	selected, err := c.app.Parse(args)
	if exited >= 0 {
		return exited
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v, try --help\n", command.ProgramName, err)
		return exitUsage
	}

	logger, err := logging.New(stderr, *c.logLevel, *c.logFormat)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", command.ProgramName, err)
		return exitUsage
	}
	log := logger.WithFields(logrus.Fields{
		"run_id":  uuid.NewString(),
		"command": selected,
	})

	registry := metrics.New(selected)
	err = execute(ctx, c, selected, stdout, log, registry, api)

	if *c.textfile != "" {
		if werr := registry.WriteTextfile(*c.textfile, time.Now()); werr != nil {
			log.WithError(werr).Error("write metrics textfile")
			if err == nil {
				err = werr
			}
		}
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, command.ErrDrift):
		return exitError
	default:
		log.WithField("kind", errs.KindOf(err)).Debug("command failed")
		fmt.Fprintf(stderr, "%s %s failed: %v\n", command.ProgramName, selected, err)
		return exitError
	}
}

func execute(ctx context.Context, c *cli, selected string, stdout io.Writer, log logrus.FieldLogger, registry *metrics.Registry, api command.API) error {
	cfg, err := config.Load(ctx, *c.configPath)
	if err != nil {
		return err
	}
	log.WithField("config", *c.configPath).Debug("configuration loaded")

	if api == nil {
		client, err := command.NewAPIClient(cfg, log, registry)
		if err != nil {
			return err
		}
		api = client
	}

	runner, err := command.NewRunner(cfg, command.Dependencies{
		API:     api,
		Out:     stdout,
		Logger:  log,
		Metrics: registry,
		Color:   !*c.noColor && !color.NoColor,
	})
	if err != nil {
		return err
	}

	switch selected {
	case c.initCmd.FullCommand():
		return runner.Init(ctx, command.InitOptions{Output: *c.initOutput})
	case c.pushCmd.FullCommand():
		return runner.Push(ctx, command.PushOptions{DeleteUntracked: *c.pushDelete})
	case c.diffCmd.FullCommand():
		return runner.Diff(ctx, command.DiffOptions{
			IgnoreUntracked: *c.diffIgnore,
			ExitStatus:      *c.diffExit,
		})
	case c.muteCmd.FullCommand():
		return runner.Mute(ctx)
	default:
		return fmt.Errorf("unknown command %q", selected)
	}
}
