package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/monosync/internal/domain"
	"github.com/boddenberg/monosync/internal/handler"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr   string
		resume bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local dashboard bridge",
		Long: `Serve a small HTTP API for a local dashboard: sync state, a stream of
status and progress events, the cached transactions and dataset actions.

The bridge binds to loopback by default and has no authentication. An
interrupted sync is resumed on startup.`,
		Args: cobra.NoArgs,
		RunE: runWithApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			if addr == "" {
				addr = a.cfg.ListenAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			g, gctx := errgroup.WithContext(ctx)

			a.syncSvc.WithBaseContext(gctx)
			unsubscribe := a.syncSvc.Events().SubscribeStatus(statusPrinter(cmd.ErrOrStderr(), time.Now))
			defer unsubscribe()

			router := handler.NewRouter(a.syncSvc, a.datasetSvc, a.db.Ping, a.metrics, a.logger)

			// No write timeout: the event stream stays open.
			srv := &http.Server{
				Addr:              addr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
				IdleTimeout:       60 * time.Second,
				BaseContext:       func(_ net.Listener) context.Context { return gctx },
			}

			g.Go(func() error {
				a.logger.Info("server starting", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})

			g.Go(func() error {
				<-gctx.Done()
				a.logger.Info("server shutting down...")
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			if resume {
				g.Go(func() error {
					if _, err := a.syncSvc.Resume(gctx, domain.AccountSourceSettings); err != nil && !errors.Is(err, context.Canceled) {
						a.logger.Warn("startup sync failed", zap.Error(err))
					}
					return nil
				})
			}

			if err := g.Wait(); err != nil {
				return err
			}
			a.logger.Info("server stopped")
			return nil
		}),
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default $LISTEN_ADDR)")
	cmd.Flags().BoolVar(&resume, "resume", true, "Resume or start a pending sync on startup")
	return cmd
}
