// fabctl joins the fabric under a disposable hidden identity, performs
// exactly one remote control action against the named target node, and
// writes a single JSON report to stdout. Exit code 0 on success, 1 on
// any failure; diagnostics go to stderr only.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/fabctl/internal/action"
	"github.com/danmuck/fabctl/internal/config"
	"github.com/danmuck/fabctl/internal/discovery"
	"github.com/danmuck/fabctl/internal/fabric"
	"github.com/danmuck/fabctl/internal/identity"
	"github.com/danmuck/fabctl/internal/invoke"
	"github.com/danmuck/fabctl/internal/logging"
	"github.com/danmuck/fabctl/internal/report"
)

func main() {
	os.Exit(run())
}

func run() int {
	defaultsPath := flag.String("defaults", "fabctl.toml", "optional operator defaults file")
	flag.Parse()

	logging.ConfigureRuntime("fabctl")

	if flag.NArg() != 1 {
		return emit(report.Failure("", "usage: fabctl [-defaults fabctl.toml] <args-file>"))
	}

	args, err := config.LoadArgs(flag.Arg(0))
	if err != nil {
		return emit(report.Failure("", err.Error()))
	}
	defaults, err := config.LoadDefaults(*defaultsPath)
	if err != nil {
		return emit(report.Failure("", err.Error()))
	}

	mode := identity.NameModeShort
	if args.NameType == config.NameTypeLong {
		mode = identity.NameModeLong
	}
	local, target := identity.Resolve(args.Node, identity.DefaultSuffix, os.Getpid(), mode)
	log.Debug().
		Str("local", local.String()).
		Str("target", target.String()).
		Str("action", args.Action).
		Msg("identity resolved")

	ctx := context.Background()

	ensure := discovery.DefaultEnsureConfig()
	ensure.Addr = "" // filled from DiscoveryPort by Join
	ensure.BinPath = defaults.DaemonBinary
	node, err := fabric.Join(ctx, fabric.JoinConfig{
		Identity:      local,
		Cookie:        args.Cookie,
		DiscoveryPort: defaults.DiscoveryPort,
		Discovery:     ensure,
		DialTimeout:   defaults.DialTimeout,
	})
	if err != nil {
		return emit(report.Failure("", err.Error()))
	}
	defer func() {
		if err := node.Leave(); err != nil {
			log.Debug().Err(err).Msg("leave failed")
		}
	}()

	rep := action.Run(ctx, invoke.NewEngine(node), target, args)
	return emit(rep)
}

func emit(rep report.Report) int {
	if err := rep.Write(os.Stdout); err != nil {
		log.Error().Err(err).Msg("report write failed")
		return 1
	}
	return rep.ExitCode()
}
