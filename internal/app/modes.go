package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/kalshiscan/internal/scanner"
	"github.com/alanyoungcy/kalshiscan/internal/server"
	"github.com/alanyoungcy/kalshiscan/internal/server/handler"
)

// ScanMode runs the poll-and-detect loop, plus the HTTP status server when
// enabled. It blocks until the context is cancelled or a subsystem fails.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	g, ctx := errgroup.WithContext(ctx)

	// Optional pieces must stay nil interfaces when their concrete pointers
	// are nil, or the scanner's nil checks stop working.
	var archiver scanner.Archiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}
	var state scanner.StateRecorder
	if deps.State != nil {
		state = deps.State
	}

	sc := scanner.NewScanner(
		deps.Kalshi,
		deps.Store,
		deps.Detector,
		deps.Notifier,
		deps.Kalshi.Tokens(),
		archiver,
		state,
		scanner.Config{
			MaxHistoryPoints:           a.cfg.Scanner.MaxHistoryPoints,
			VolumeStdThreshold:         a.cfg.Scanner.VolumeStdThreshold,
			PriceSpikeThreshold:        a.cfg.Scanner.PriceSpikeThreshold,
			PriceWindowMinutes:         a.cfg.Scanner.PriceWindowMinutes,
			SpreadCompressionThreshold: a.cfg.Scanner.SpreadCompressionThreshold,
			DiscordEnabled:             a.cfg.Notify.DiscordWebhookURL != "",
		},
		a.logger,
	)

	g.Go(func() error {
		err := sc.RunLoop(ctx, a.cfg.Scanner.Interval.Duration)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, sc)
	}

	return g.Wait()
}

// startHTTPServer adds the status server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, cycles handler.CycleSource) {
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Status: handler.NewStatusHandler(cycles, a.cfg.Scanner.Interval.Duration, time.Now().UTC()),
	}
	if deps.Events != nil {
		handlers.Spikes = handler.NewSpikesHandler(deps.Events, a.logger)
	}

	if deps.WSHub != nil {
		g.Go(func() error {
			err := deps.WSHub.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	srv := server.NewServer(server.Config{Port: a.cfg.Server.Port}, handlers, deps.WSHub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
