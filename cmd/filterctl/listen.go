package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/edgefilter/internal/client"
	"github.com/danmuck/edgefilter/internal/config"
	"github.com/danmuck/edgefilter/internal/filter"
	"github.com/danmuck/edgefilter/internal/logging"
	"github.com/danmuck/edgefilter/internal/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newListenCmd(root *rootOptions) *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Dial the configured endpoint and log routed messages until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Client.Address = address
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return listen(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&address, "address", "a", "", "endpoint address override (host:port, tcp://, tls://, ws://, wss://)")
	return cmd
}

// listen runs until ctx ends or the peer closes the connection.
func listen(ctx context.Context, cfg config.Config) error {
	log := logging.Component("listen")
	observability.RegisterMetrics()

	conn, err := client.Dial(ctx, cfg.Client)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.MetricsAddr, log) })
	}
	g.Go(func() error {
		defer cancel()
		defer conn.Close()
		return route(gctx, conn.Filter(), cfg, log)
	})
	return g.Wait()
}

func route(ctx context.Context, f *filter.Filter, cfg config.Config, log zerolog.Logger) error {
	t := newTally()
	wg := watch(ctx, f, cfg, log, t)
	defer wg.Wait()

	ticker := time.NewTicker(cfg.DrainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-f.Done():
			if err := f.Err(); !errors.Is(err, filter.ErrSourceEnded) && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Info().Msg("peer closed the connection")
			return nil
		case <-ticker.C:
			logUnmatched(log, f.DrainUnmatched())
		}
	}
}

// serveMetrics exposes the prometheus registry until ctx ends.
func serveMetrics(ctx context.Context, addr string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
