package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/modelviewer/internal/config"
	"github.com/signalsfoundry/modelviewer/internal/derivative"
	"github.com/signalsfoundry/modelviewer/internal/eventloop"
	"github.com/signalsfoundry/modelviewer/internal/loader"
	"github.com/signalsfoundry/modelviewer/internal/logging"
	"github.com/signalsfoundry/modelviewer/internal/observability"
	"github.com/signalsfoundry/modelviewer/internal/schedule"
	"github.com/signalsfoundry/modelviewer/internal/session"
	"github.com/signalsfoundry/modelviewer/internal/token"
	"github.com/signalsfoundry/modelviewer/internal/tracker"
	"github.com/signalsfoundry/modelviewer/internal/viewer"
	"github.com/signalsfoundry/modelviewer/internal/viewer/headless"
	"github.com/signalsfoundry/modelviewer/timectrl"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

// ErrIncomplete is returned by load --strict when a document failed or
// reconciliation gave up.
var ErrIncomplete = errors.New("load incomplete")

type loadOptions struct {
	manifestDir       string
	relayURL          string
	suppress          []string
	reconcileInterval time.Duration
	reconcileAttempts int
	strict            bool
	metricsAddr       string
}

func newLoadCommand(root *rootOptions) *cobra.Command {
	opts := &loadOptions{}

	cmd := &cobra.Command{
		Use:   "load <placements>",
		Short: "Load a placement list into a headless viewer and wait for every model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("manifest-dir") {
				cfg.Viewer.ManifestDir = opts.manifestDir
			}
			if flags.Changed("relay-url") {
				cfg.Viewer.RelayURL = opts.relayURL
			}
			if flags.Changed("reconcile-interval") {
				cfg.Viewer.ReconcileInterval = opts.reconcileInterval
			}
			if flags.Changed("reconcile-attempts") {
				cfg.Viewer.ReconcileAttempts = opts.reconcileAttempts
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			suppress, err := parseEventTypes(opts.suppress)
			if err != nil {
				return err
			}

			log := newLogger(cmd, cfg)
			shutdownTracing, err := observability.InitTracing(cmd.Context(), cfg.TracingOptions(), log)
			if err != nil {
				return err
			}
			defer observability.ShutdownWithTimeout(context.WithoutCancel(cmd.Context()), shutdownTracing, log)

			res, err := runLoad(cmd.Context(), loadRun{
				cfg:         cfg,
				placements:  args[0],
				suppress:    suppress,
				metricsAddr: opts.metricsAddr,
				log:         log,
			})
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), res)
			if opts.strict && !complete(res) {
				return ErrIncomplete
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.manifestDir, "manifest-dir", "", "read manifests from <dir>/<urn>.json instead of the derivative service")
	cmd.Flags().StringVar(&opts.relayURL, "relay-url", "", "override viewer.relay_url")
	cmd.Flags().StringSliceVar(&opts.suppress, "suppress-events", nil, "model events the headless viewer never raises (geometryLoaded, objectTreeCreated)")
	cmd.Flags().DurationVar(&opts.reconcileInterval, "reconcile-interval", 0, "override viewer.reconcile_interval")
	cmd.Flags().IntVar(&opts.reconcileAttempts, "reconcile-attempts", 0, "override viewer.reconcile_attempts")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "exit non-zero when a document fails or models remain unloaded")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve session metrics on this address while loading")
	return cmd
}

type loadRun struct {
	cfg         *config.Config
	placements  string
	suppress    []viewer.EventType
	metricsAddr string
	log         logging.Logger
	reg         prometheus.Registerer
	// clock drives the scheduler; defaults to the system clock.
	clock timectrl.Clock
}

// runLoad reads the placements and runs one session over a headless viewer.
// Viewer events, tracker updates and reconciliation attempts all run on a
// single event loop.
func runLoad(ctx context.Context, run loadRun) (session.Result, error) {
	log := logging.OrNoop(run.log)
	placements, err := loader.ReadPlacements(run.placements)
	if err != nil {
		return session.Result{}, err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	loop := eventloop.New()
	go loop.Run(loopCtx)

	clock := run.clock
	if clock == nil {
		clock = timectrl.SystemClock{}
	}
	sched := schedule.NewEventScheduler(clock)
	heartbeat := timectrl.NewTimeController(heartbeatTick(run.cfg.Viewer.ReconcileInterval))
	heartbeat.AddListener(func(time.Time) { loop.Post(sched.RunDue) })
	heartbeatDone := heartbeat.Start(loopCtx)
	defer func() {
		cancel()
		<-heartbeatDone
		<-loop.Done()
	}()

	metrics, err := observability.NewTrackerCollector(run.reg)
	if err != nil {
		return session.Result{}, err
	}
	if run.metricsAddr != "" {
		srv := &http.Server{Addr: run.metricsAddr, Handler: metricsMux(metrics.Handler()), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := listenAndServe(srv); err != nil {
				log.Warn(ctx, "metrics server failed", logging.Err(err))
			}
		}()
		defer srv.Close()
	}

	v := headless.New(documentLoader(loopCtx, run.cfg), loop,
		headless.WithLogger(log),
		headless.WithAspect(run.cfg.Aspect()),
		headless.WithSuppressedEvents(run.suppress...),
	)
	s := session.New(v, sched, session.Config{
		ReconcileInterval: run.cfg.Viewer.ReconcileInterval,
		ReconcileAttempts: run.cfg.Viewer.ReconcileAttempts,
	},
		session.WithLogger(log),
		session.WithRecorder(metrics),
		session.WithDispatcher(loop.Do),
	)
	return s.Run(ctx, placements)
}

// documentLoader reads manifests from disk when a manifest directory is
// configured, otherwise from the derivative service with relay tokens.
func documentLoader(ctx context.Context, cfg *config.Config) derivative.DocumentLoader {
	if cfg.Viewer.ManifestDir != "" {
		return derivative.DirLoader{Dir: cfg.Viewer.ManifestDir}
	}
	ts := oauth2.ReuseTokenSource(nil, token.NewRelaySource(ctx, cfg.Viewer.RelayURL, nil))
	return derivative.NewClient(ctx, cfg.Viewer.DerivativeBaseURL, ts)
}

// heartbeatTick keeps scheduler latency well under one reconcile interval.
func heartbeatTick(interval time.Duration) time.Duration {
	if interval <= 0 {
		interval = tracker.DefaultReconcileInterval
	}
	tick := interval / 4
	switch {
	case tick < 10*time.Millisecond:
		return 10 * time.Millisecond
	case tick > 250*time.Millisecond:
		return 250 * time.Millisecond
	}
	return tick
}

func metricsMux(h http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	return mux
}

func parseEventTypes(names []string) ([]viewer.EventType, error) {
	var out []viewer.EventType
	for _, n := range names {
		switch t := viewer.EventType(strings.TrimSpace(n)); t {
		case viewer.GeometryLoaded, viewer.ObjectTreeCreated:
			out = append(out, t)
		case "":
		default:
			return nil, fmt.Errorf("unknown model event %q", n)
		}
	}
	return out, nil
}

func complete(res session.Result) bool {
	return len(res.Load.Failed) == 0 && res.Reconcile.Outcome == tracker.Resolved
}

func printSummary(w io.Writer, res session.Result) {
	fmt.Fprintf(w, "requested: %d\n", res.Load.Requested)
	fmt.Fprintf(w, "attached:  %d\n", len(res.Load.Attached))
	fmt.Fprintf(w, "loaded:    %d\n", len(res.Loaded))
	if len(res.Load.Failed) > 0 {
		fmt.Fprintf(w, "failed:    %s\n", strings.Join(res.Load.Failed, ", "))
	}
	fmt.Fprintf(w, "reconcile: %s after %d attempt(s)\n", res.Reconcile.Outcome, res.Reconcile.Attempts)
	if len(res.Reconcile.Remaining) > 0 {
		ids := make([]string, 0, len(res.Reconcile.Remaining))
		for _, id := range res.Reconcile.Remaining {
			ids = append(ids, fmt.Sprint(int(id)))
		}
		fmt.Fprintf(w, "remaining: %s\n", strings.Join(ids, ", "))
	}
}
