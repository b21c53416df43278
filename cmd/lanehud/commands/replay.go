package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"lanehud/internal/engine"
	"lanehud/internal/event"
	"lanehud/internal/logging"
	"lanehud/internal/navigation"
	"lanehud/internal/protocol"
	"lanehud/internal/watcher"
)

const defaultReplayInterval = 100 * time.Millisecond

var errNoCredential = errors.New("replay needs credentials.access_key_id or credentials.file")

func replayCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Replay a recorded drive and print lane guidance",
		Long: `Replay reads one location sample per line as JSON
({"lat":..,"lng":..,"speed":..,"bearing":..}), navigates from the first
sample to the last, and prints each lane guidance event as a JSON line.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			samples, err := readSamples(args[0])
			if err != nil {
				return err
			}
			cred, err := replayCredential()
			if err != nil {
				return err
			}

			bus := event.NewBus(cfg.Events.SubscriberBuffer, cfg.Events.HistorySize)
			defer bus.Close()
			coord := newCoordinator(cfg, bus, logger)
			defer coord.Shutdown()

			r := replayer{
				coord:        coord,
				bus:          bus,
				interval:     interval,
				routeTimeout: cfg.Navigation.RouteTimeout,
				log:          logger,
			}
			return r.run(cmd.Context(), cred, samples, cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", defaultReplayInterval, "delay between samples (must be positive)")
	return cmd
}

func replayCredential() (engine.Credential, error) {
	if cfg.Credentials.File != "" {
		return watcher.LoadCredential(cfg.Credentials.File)
	}
	if cfg.Credentials.HasInline() {
		return cfg.Credentials.Credential(), nil
	}
	return engine.Credential{}, errNoCredential
}

// readSamples parses a JSON-lines trace. Blank lines are skipped.
func readSamples(path string) ([]protocol.LocationPayload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var samples []protocol.LocationPayload
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var s protocol.LocationPayload
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if err := protocol.ValidateLocation(s); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		samples = append(samples, s)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(samples) < 2 {
		return nil, fmt.Errorf("%s: need at least 2 samples, got %d", path, len(samples))
	}
	return samples, nil
}

func sampleWaypoint(s protocol.LocationPayload) engine.Waypoint {
	return engine.Waypoint{Latitude: *s.Lat, Longitude: *s.Lng}
}

type replayer struct {
	coord        *navigation.Coordinator
	bus          *event.Bus
	interval     time.Duration
	routeTimeout time.Duration
	log          *logging.Logger
}

// run drives one session through the samples and writes lane guidance
// messages to out until the trace ends.
func (r *replayer) run(ctx context.Context, cred engine.Credential, samples []protocol.LocationPayload, out io.Writer) error {
	if r.interval <= 0 {
		return fmt.Errorf("replay interval must be positive, got %s", r.interval)
	}
	id, ch, _ := r.bus.Subscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		enc := json.NewEncoder(out)
		for ev := range ch {
			if ev.Type != event.TypeLaneGuidance {
				continue
			}
			msg, err := protocol.FromEvent(ev)
			if err != nil {
				continue
			}
			enc.Encode(msg)
		}
	}()
	defer func() {
		r.bus.Unsubscribe(id)
		<-printed
	}()

	if err := r.coord.Initialize(cred); err != nil {
		return err
	}

	p, err := r.coord.StartNavigation(sampleWaypoint(samples[0]), sampleWaypoint(samples[len(samples)-1]))
	if err != nil {
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, r.routeTimeout)
	defer cancel()
	if err := p.Wait(waitCtx); err != nil {
		return err
	}
	r.log.Info("replaying", "route_id", p.Route().ID(), "samples", len(samples))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for _, s := range samples {
		r.coord.UpdateLocation(*s.Lat, *s.Lng, s.Speed, s.Bearing)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	r.coord.StopNavigation()
	return nil
}
