package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"audioloop/internal/bootstrap"
	"audioloop/internal/domain"
)

// Controller is the part of the state machine the terminal drives.
type Controller interface {
	DispatchPrimaryAction(ctx context.Context) (domain.Transition, error)
	Reset(ctx context.Context) (domain.Transition, error)
	State() domain.RecordingState
}

func NewRunCmd(deps *Dependencies) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the record/convert/play loop in the terminal",
		Long:  "Press Enter to advance: record, stop, convert, play, stop.\nType r to discard the current recording and q to quit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := deps.Config
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}

			out := NewFormatter(deps.stdout())
			services, err := bootstrap.BuildWithConfig(cfg, consoleSink{out: out})
			if err != nil {
				return err
			}
			defer func() { _ = services.Logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, quit := context.WithCancel(ctx)
			defer quit()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return services.Machine.Run(gctx)
			})
			g.Go(func() error {
				defer quit()
				return readTriggers(gctx, deps.stdin(), services.Machine, out, services.Logger)
			})
			if cfg.Metrics.Addr != "" {
				g.Go(func() error {
					return serveMetrics(gctx, cfg.Metrics.Addr, services.Registry, services.Logger)
				})
			}

			out.Prompt(services.Machine.State())
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")

	return cmd
}

// readTriggers maps terminal lines to machine actions until q, end of input
// or cancellation.
func readTriggers(ctx context.Context, in io.Reader, machine Controller, out *Formatter, logger *zap.SugaredLogger) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(strings.ToLower(scanner.Text())):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok || line == "q" || line == "quit" {
				return nil
			}

			var err error
			switch line {
			case "":
				_, err = machine.DispatchPrimaryAction(ctx)
			case "r", "reset":
				_, err = machine.Reset(ctx)
			default:
				out.Warning("unknown command " + line)
				out.Prompt(machine.State())
				continue
			}
			if errors.Is(err, domain.ErrMachineStopped) || errors.Is(err, context.Canceled) {
				return nil
			}
			if err != nil {
				// Already reported through the event sink.
				logger.Debugw("action rejected", "input", line, "error", err)
				out.Prompt(machine.State())
			}
		}
	}
}

func serveMetrics(ctx context.Context, addr string, registry *prometheus.Registry, logger *zap.SugaredLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("serving metrics", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
