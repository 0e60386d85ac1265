package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mvacoimbra/where-is-teemo/internal/config"
	"github.com/mvacoimbra/where-is-teemo/internal/control"
	"github.com/mvacoimbra/where-is-teemo/internal/domain"
	ilog "github.com/mvacoimbra/where-is-teemo/internal/log"
	"github.com/mvacoimbra/where-is-teemo/internal/orchestrator"
)

// runProxy starts the orchestrator and blocks until ctx is cancelled
// (SIGINT/SIGTERM). If --game is given it launches that game
// immediately, which starts the relay and config endpoint; otherwise
// no listener is started and it only waits for ctx to be cancelled.
func runProxy(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	game := fs.String("game", "", "Game to launch immediately: league_of_legends|valorant")
	region := fs.String("region", "", "Region override code (e.g. NA, EUW); empty uses observation")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.ParseFlags(fs.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 2
	}
	logger := ilog.New(cfg.LogLevel)

	orch, err := orchestrator.New(orchestrator.Options{
		AppDataDir:         cfg.AppDataDir,
		RelayListenAddr:    cfg.RelayListen,
		ConfigListenAddr:   cfg.ConfigListen,
		UpstreamConfigHost: cfg.UpstreamConfigHost,
		StartMode:          cfg.StartMode,
		Log:                logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "orchestrator error:", err)
		return 1
	}
	surface := control.New(orch)

	if *region != "" {
		if err := surface.SetRegion(*region); err != nil {
			fmt.Fprintln(os.Stderr, "region error:", err)
			return 2
		}
	}

	if *game != "" {
		if !domain.IsValidGame(*game) {
			fmt.Fprintf(os.Stderr, "unknown game %q (want league_of_legends or valorant)\n", *game)
			return 2
		}
		if err := ensureCATrustedInteractively(surface, logger); err != nil {
			fmt.Fprintln(os.Stderr, "trust error:", err)
			return 1
		}
		if _, err := surface.LaunchGame(ctx, *game); err != nil {
			fmt.Fprintln(os.Stderr, "launch error:", err)
			return 1
		}
		logger.Info("teemoproxy launched", "game", *game)
	} else {
		logger.Info("teemoproxy armed, waiting for a launch command")
	}

	<-ctx.Done()
	logger.Info("teemoproxy shutting down")
	if _, err := surface.StopProxy(); err != nil {
		fmt.Fprintln(os.Stderr, "stop error:", err)
		return 1
	}
	return 0
}
