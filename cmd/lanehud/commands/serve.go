package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lanehud/internal/config"
	"lanehud/internal/engine"
	"lanehud/internal/engine/osrm"
	"lanehud/internal/event"
	"lanehud/internal/logging"
	"lanehud/internal/navigation"
	"lanehud/internal/realtime"
	"lanehud/internal/routecache"
	"lanehud/internal/watcher"
)

const shutdownTimeout = 5 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HUD WebSocket/REST server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}
}

// newProvider builds the OSRM provider, wrapped in the route cache when a
// TTL is configured.
func newProvider(c *config.Config, log *logging.Logger) engine.Provider {
	var p engine.Provider = osrm.NewProvider(c.OSRMProviderConfig(), osrm.WithLogger(log))
	if c.RouteCache.TTL > 0 {
		cache := routecache.New(c.RouteCache.TTL, c.RouteCache.Precision)
		p = routecache.WrapProvider(p, cache, log)
	}
	return p
}

func newCoordinator(c *config.Config, bus *event.Bus, log *logging.Logger) *navigation.Coordinator {
	return navigation.NewCoordinator(newProvider(c, log), bus,
		navigation.WithOverlapPolicy(c.Navigation.Policy()),
		navigation.WithLogger(log),
	)
}

func runServe(ctx context.Context, c *config.Config, log *logging.Logger) error {
	bus := event.NewBus(c.Events.SubscriberBuffer, c.Events.HistorySize)
	defer bus.Close()

	coord := newCoordinator(c, bus, log)
	defer coord.Shutdown()

	// A credential file takes precedence and re-initializes the session
	// whenever it changes.
	switch {
	case c.Credentials.File != "":
		w := watcher.New(c.Credentials.File, func(cred engine.Credential) {
			if err := coord.Initialize(cred); err != nil {
				log.Error("initialize from credential file failed", "error", err)
			}
		}, watcher.WithLogger(log))
		if err := w.Start(); err != nil {
			return err
		}
		defer w.Stop()
	case c.Credentials.HasInline():
		if err := coord.Initialize(c.Credentials.Credential()); err != nil {
			log.Error("initialize from config failed", "error", err)
		}
	default:
		log.Info("no credential configured, waiting for host to initialize")
	}

	rt := realtime.New(coord, bus,
		realtime.WithStaticDir(c.Server.StaticDir),
		realtime.WithRouteTimeout(c.Navigation.RouteTimeout),
		realtime.WithHistorySize(c.Events.HistorySize),
		realtime.WithLogger(log),
	)
	defer rt.Close()

	httpServer := &http.Server{
		Addr:    c.Server.Addr(),
		Handler: rt.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("lanehud server running", "addr", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Hijacked WebSocket connections are closed by rt.Close.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		httpServer.Close()
	}
	return nil
}
