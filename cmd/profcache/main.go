// Command profcache inspects and checks an autotuning profile cache location.
//
// Usage:
//
//	profcache [flags] <command> [command flags]
//
// Commands:
//
//	tables    list every table with its entry count, size and age
//	dump      print the entries of one table as JSON
//	doctor    run the cache location health checks
//	versions  print the active cache versions and table names for a target
//
// The cache location and versions come from the PROFCACHE_* environment
// variables; -dir overrides the location.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonwraymond/profcache/config"
	"github.com/jonwraymond/profcache/observe"
)

const serviceName = "profcache"

// version is set at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// env is what every command receives.
type env struct {
	cfg    config.Config
	logger observe.Logger
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, e env, args []string) error
}

var commands = []command{
	{"tables", "list every table with its entry count, size and age", runTables},
	{"dump", "print the entries of one table as JSON", runDump},
	{"doctor", "run the cache location health checks", runDoctor},
	{"versions", "print the active cache versions and table names", runVersions},
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("dir", "", "Cache location. Overrides "+config.EnvCacheDir+".")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error). Overrides "+config.EnvLogLevel+".")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [flags] <command> [command flags]\n\nCommands:\n", serviceName)
		for _, c := range commands {
			fmt.Fprintf(stderr, "  %-9s %s\n", c.name, c.usage)
		}
		fmt.Fprintln(stderr, "\nFlags:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == fs.Arg(0) {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "%s: unknown command %q\n", serviceName, fs.Arg(0))
		fs.Usage()
		return 2
	}

	cfg, err := config.FromEnv()
	if err == nil {
		if *dir != "" {
			cfg.CacheDir, err = config.ExpandPath(*dir)
		}
		if *logLevel != "" {
			cfg.LogLevel = *logLevel
		}
	}
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", serviceName, err)
		return 1
	}

	obsCfg := cfg.Observe(serviceName, version)
	obsCfg.Logging.Writer = stderr
	obs, err := observe.NewObserver(ctx, obsCfg)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", serviceName, err)
		return 1
	}
	defer func() { _ = obs.Shutdown(context.WithoutCancel(ctx)) }()

	e := env{cfg: cfg, logger: obs.Logger(), stdout: stdout, stderr: stderr}
	if err := cmd.run(ctx, e, fs.Args()[1:]); err != nil {
		if err != errUnhealthy && !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "%s %s: %v\n", serviceName, cmd.name, err)
		}
		return 1
	}
	return 0
}
