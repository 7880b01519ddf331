package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/brevent"
	"github.com/Zereker/brevent/internal/logging"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run a reference service on the loopback port",
		Long: `Run a reference service that answers probes and status requests and keeps
the brevent and priority lists in memory. It does not act on any process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve()
			if err != nil {
				return err
			}
			logger := flags.logger(cfg)

			registry := prometheus.NewRegistry()
			metrics := brevent.NewMetrics(brevent.WithRegistry(registry))
			codec := brevent.NewFrameCodec(
				brevent.MaxRecordSizeOption(cfg.MaxRecordSize),
				brevent.CodecMetricsOption(metrics),
			)

			server, err := brevent.NewServer(
				brevent.AddrOption(cfg.Addr),
				brevent.CustomCodecOption(codec),
				brevent.MetricsOption(metrics),
				brevent.LoggerOption(logging.NewAdapter(logger)),
				brevent.IdleTimeoutOption(cfg.IdleTimeout),
				brevent.ShutdownTimeoutOption(cfg.ShutdownTimeout),
			)
			if err != nil {
				return err
			}
			defer server.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			group, ctx := errgroup.WithContext(ctx)
			group.Go(func() error {
				err := server.Serve(ctx, newState())
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})

			if cfg.MetricsAddr != "" {
				metricsServer := &http.Server{
					Addr:              cfg.MetricsAddr,
					Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
					ReadHeaderTimeout: 5 * time.Second,
				}
				group.Go(func() error {
					logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
					if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				group.Go(func() error {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return metricsServer.Shutdown(shutdownCtx)
				})
			}

			return group.Wait()
		},
	}
}

// state is the in-memory model behind the reference service.
type state struct {
	sync.RWMutex
	started  time.Time
	brevent  map[string]struct{}
	priority map[string]struct{}
	config   *brevent.Configuration
}

func newState() *state {
	return &state{
		started:  time.Now(),
		brevent:  make(map[string]struct{}),
		priority: make(map[string]struct{}),
		config:   brevent.NewConfiguration(),
	}
}

func (s *state) ServeMessage(_ context.Context, m brevent.Message) (brevent.Message, error) {
	switch m := m.(type) {
	case *brevent.StatusRequest:
		return s.status(m), nil
	case *brevent.UpdateBrevent:
		s.update(s.brevent, m.Brevent, m.Packages)
	case *brevent.UpdatePriority:
		s.update(s.priority, m.Priority, m.Packages)
	case *brevent.Configuration:
		s.Lock()
		s.config = m
		s.Unlock()
	}
	return nil, nil
}

func (s *state) status(req *brevent.StatusRequest) *brevent.StatusResponse {
	s.RLock()
	defer s.RUnlock()

	resp := brevent.NewStatusResponse(req.Token)
	resp.Brevent = sortedKeys(s.brevent)
	resp.Priority = sortedKeys(s.priority)
	resp.DaemonTime = s.started.UnixMilli()
	resp.ServerTime = time.Now().UnixMilli()
	resp.Supported = true
	resp.Root = s.config.AllowRoot
	return resp
}

func (s *state) update(set map[string]struct{}, add bool, packages []string) {
	s.Lock()
	defer s.Unlock()

	for _, p := range packages {
		if add {
			set[p] = struct{}{}
		} else {
			delete(set, p)
		}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
