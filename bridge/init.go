package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/erpc/solbridge/chain"
	"github.com/erpc/solbridge/common"
	"github.com/erpc/solbridge/coverage"
	"github.com/erpc/solbridge/util"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Bridge is a started bridge process: provider chain, endpoint and the
// lifecycle tying them together.
type Bridge struct {
	Engine    *chain.Engine
	Server    *HttpServer
	Lifecycle *Lifecycle
	Coverage  CoverageWriter
}

// Init wires the provider chain and the endpoint from cfg and starts them.
// The returned bridge serves until a close request completes.
func Init(
	ctx context.Context,
	logger *zerolog.Logger,
	fs afero.Fs,
	cfg *common.Config,
) (*Bridge, error) {
	//
	// 1) Tracing
	//
	if cfg.Tracing != nil && cfg.Tracing.Enabled {
		if err := common.InitializeTracing(ctx, logger, cfg.Tracing); err != nil {
			logger.Warn().Err(err).Msg("failed to initialize tracing, continuing without it")
		}
	}

	//
	// 2) Provider chain
	//
	logger.Info().Msg("initializing provider chain")
	engine := chain.NewEngine(logger)
	var coverageWriter CoverageWriter = NoopCoverageWriter
	if cfg.Coverage.IsEnabled() {
		csp, err := coverage.NewSubprovider(logger, fs, cfg.Coverage)
		if err != nil {
			return nil, err
		}
		if err := engine.AddProvider(csp); err != nil {
			return nil, err
		}
		coverageWriter = csp
	} else {
		logger.Info().Msg("coverage instrumentation disabled")
	}
	rpc, err := chain.NewRpcSubprovider(logger, cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc subprovider: %w", err)
	}
	if err := engine.AddProvider(rpc); err != nil {
		return nil, err
	}

	//
	// 3) Method table and endpoint
	//
	table, err := NewMethodTable(DefaultHandlers())
	if err != nil {
		return nil, err
	}
	bctx := &Context{
		Provider: engine,
		Coverage: coverageWriter,
		Logger:   logger,
	}
	server := NewHttpServer(logger, cfg.Server, table, bctx)
	lifecycle := NewLifecycle(logger, engine, server)
	bctx.Lifecycle = lifecycle

	if err := lifecycle.Start(ctx); err != nil {
		return nil, err
	}

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		startMetricsServer(logger, cfg.Metrics, lifecycle.Done())
	}
	if cfg.Tracing != nil && cfg.Tracing.Enabled {
		go func() {
			<-lifecycle.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := common.ShutdownTracing(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("failed to flush traces")
			}
		}()
	}

	return &Bridge{
		Engine:    engine,
		Server:    server,
		Lifecycle: lifecycle,
		Coverage:  coverageWriter,
	}, nil
}

func startMetricsServer(logger *zerolog.Logger, cfg *common.MetricsConfig, done <-chan struct{}) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	logger.Info().Msgf("starting metrics server on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Msgf("error starting metrics server: %s", err)
			util.OsExit(util.ExitCodeHttpServerFailed)
		}
	}()
	go func() {
		<-done
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Msgf("metrics server forced to shutdown: %s", err)
		} else {
			logger.Info().Msg("metrics server stopped")
		}
	}()
}
