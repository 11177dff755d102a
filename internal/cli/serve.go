package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"speech-eval-toolkit/internal/apigateway"
	"speech-eval-toolkit/internal/auth"
	"speech-eval-toolkit/internal/configmanagement"
	"speech-eval-toolkit/internal/datastore"
	"speech-eval-toolkit/internal/jobmanagement"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve result tables, dataset entries and recorded runs over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			deps, closeDeps, err := a.serverDeps(ctx)
			if err != nil {
				return err
			}
			defer closeDeps()

			if a.cfg.Log.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			srv := &http.Server{
				Addr:              a.cfg.Server.Addr,
				Handler:           apigateway.SetupRouter(deps),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return serve(ctx, srv)
		},
	}
	f := cmd.Flags()
	f.String("addr", ":8080", "listen address")
	f.String("results-dir", "results", "directory of result tables")
	f.String("dataset-csv", "", "dataset CSV served under /admin/dataset")
	bindFlag(cmd, "addr", "server.addr")
	bindFlag(cmd, "results-dir", "server.results_dir")
	bindFlag(cmd, "dataset-csv", "server.dataset_csv")
	return cmd
}

func (a *app) serverDeps(ctx context.Context) (apigateway.Deps, func(), error) {
	sc := a.cfg.Server
	results := &apigateway.ResultHandlers{Dir: sc.ResultsDir}
	if err := results.EnsureDir(); err != nil {
		return apigateway.Deps{}, nil, fmt.Errorf("results dir: %w", err)
	}
	deps := apigateway.Deps{
		Auth:     auth.NewAuthenticator(sc.Admin, sc.SessionTTL),
		Results:  results,
		Engines:  &configmanagement.EngineHandlers{Config: a.cfg.Engine},
		Datasets: &configmanagement.DatasetHandlers{DatasetCSV: sc.DatasetCSV},
	}
	if a.cfg.Database.DSN == "" {
		log.Info().Msg("No database configured, run routes disabled")
		return deps, func() {}, nil
	}

	store, err := datastore.Open(ctx, a.cfg.Database.DSN)
	if err != nil {
		return apigateway.Deps{}, nil, err
	}
	if a.cfg.Database.Migrate {
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return apigateway.Deps{}, nil, err
		}
	}
	deps.Runs = &jobmanagement.RunHandlers{Store: store}
	return deps, func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}, nil
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("HTTP server stopped")
	return nil
}
