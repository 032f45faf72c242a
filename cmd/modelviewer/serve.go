package main

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/modelviewer/internal/config"
	"github.com/signalsfoundry/modelviewer/internal/grpchealth"
	"github.com/signalsfoundry/modelviewer/internal/httpapi"
	"github.com/signalsfoundry/modelviewer/internal/logging"
	"github.com/signalsfoundry/modelviewer/internal/observability"
	"github.com/signalsfoundry/modelviewer/internal/token"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var addr string
	var swagger bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve GET /token for viewer clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("swagger") {
				cfg.Server.Swagger = swagger
			}
			if err := cfg.ValidateRelay(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, newLogger(cmd, cfg), nil)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "override server.addr")
	cmd.Flags().BoolVar(&swagger, "swagger", false, "serve the OpenAPI document")
	return cmd
}

// relay bundles the relay's HTTP handler and its metrics.
type relay struct {
	handler http.Handler
	metrics *observability.RelayCollector
}

func newRelay(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, log logging.Logger) (*relay, error) {
	metrics, err := observability.NewRelayCollector(reg)
	if err != nil {
		return nil, err
	}
	ex, err := token.NewExchanger(cfg.Credentials(),
		token.WithHTTPClient(&http.Client{Timeout: cfg.Server.UpstreamTimeout}),
		token.WithRecorder(metrics),
		token.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	h := httpapi.NewHandler(ctx, ex, httpapi.Config{
		Swagger:   cfg.Server.Swagger,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	}, httpapi.WithLogger(log), httpapi.WithMetrics(metrics))
	return &relay{handler: h, metrics: metrics}, nil
}

// runServe blocks until ctx is cancelled or a listener fails. reg defaults
// to the global Prometheus registry.
func runServe(ctx context.Context, cfg *config.Config, log logging.Logger, reg prometheus.Registerer) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracingOptions(), log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.WithoutCancel(ctx), shutdownTracing, log)

	rl, err := newRelay(ctx, cfg, reg, log)
	if err != nil {
		return err
	}

	apiSrv := httpapi.NewServer(httpapi.ServerConfig{
		Addr:              cfg.Server.Addr,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}, rl.handler)

	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", rl.metrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout}
	}

	var (
		healthSrv *grpchealth.Server
		healthLis net.Listener
	)
	if cfg.Server.GRPCHealthAddr != "" {
		healthLis, err = net.Listen("tcp", cfg.Server.GRPCHealthAddr)
		if err != nil {
			return err
		}
		healthSrv = grpchealth.New(log)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info(gctx, "serving token relay", logging.String("addr", cfg.Server.Addr), logging.Bool("swagger", cfg.Server.Swagger))
		return listenAndServe(apiSrv)
	})
	if metricsSrv != nil {
		g.Go(func() error {
			log.Info(gctx, "serving Prometheus metrics", logging.String("addr", cfg.Server.MetricsAddr))
			return listenAndServe(metricsSrv)
		})
	}
	if healthSrv != nil {
		g.Go(func() error {
			log.Info(gctx, "serving gRPC health", logging.String("addr", cfg.Server.GRPCHealthAddr))
			return healthSrv.Serve(healthLis)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info(gctx, "shutting down token relay")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()

		errs := []error{apiSrv.Shutdown(shutdownCtx)}
		if metricsSrv != nil {
			errs = append(errs, metricsSrv.Shutdown(shutdownCtx))
		}
		if healthSrv != nil {
			healthSrv.Stop()
		}
		return errors.Join(errs...)
	})

	err = g.Wait()
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func listenAndServe(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
