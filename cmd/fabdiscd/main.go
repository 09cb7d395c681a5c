// fabdiscd is the fabric discovery and name-registration daemon.
// Control clients start it on demand; it keeps serving until
// interrupted. Registrations die with the connection that made them,
// so transient maintenance identities never outlive their process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/fabctl/internal/config"
	"github.com/danmuck/fabctl/internal/discovery"
	"github.com/danmuck/fabctl/internal/logging"
)

func main() {
	listen := flag.String("listen", "", "listen address (default 127.0.0.1:<discovery_port>)")
	metrics := flag.String("metrics", "", "optional Prometheus metrics address, e.g. 127.0.0.1:9469")
	defaultsPath := flag.String("defaults", "fabctl.toml", "optional operator defaults file")
	flag.Parse()

	logging.ConfigureRuntime("fabdiscd")

	defaults, err := config.LoadDefaults(*defaultsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load defaults")
	}

	cfg := discovery.DefaultServerConfig()
	cfg.ListenAddr = fmt.Sprintf("127.0.0.1:%d", defaults.DiscoveryPort)
	if *listen != "" {
		cfg.ListenAddr = *listen
	}
	cfg.MetricsAddr = *metrics

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := discovery.NewServer(cfg).Serve(ctx); err != nil {
		log.Fatal().Err(err).Msg("fabdiscd stopped")
	}
	log.Info().Msg("fabdiscd shut down")
}
