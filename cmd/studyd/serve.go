package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/GoSim-25-26J-441/study-core/internal/sampler"
	"github.com/GoSim-25-26J-441/study-core/internal/server"
	"github.com/GoSim-25-26J-441/study-core/internal/sink"
	"github.com/GoSim-25-26J-441/study-core/internal/space"
	"github.com/GoSim-25-26J-441/study-core/internal/storage"
	"github.com/GoSim-25-26J-441/study-core/internal/study"
	"github.com/GoSim-25-26J-441/study-core/internal/telemetry"
	"github.com/GoSim-25-26J-441/study-core/pkg/config"
	"github.com/GoSim-25-26J-441/study-core/pkg/logger"
	"github.com/GoSim-25-26J-441/study-core/pkg/models"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			_ = godotenv.Load()

			cfg, err := config.LoadServerConfig(path)
			if err != nil {
				return err
			}
			log := logger.NewFormat(cfg.Log.Format, cfg.Log.Level, os.Stderr)
			logger.SetDefault(log)
			return runServe(cmd.Context(), cfg, log)
		},
	}
	cmd.Flags().StringP("config", "c", "", "path to studyd.toml (empty = defaults + STUDYD_* env)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.ServerConfig, log *slog.Logger) error {
	log.Info("studyd starting", "version", version, "store", cfg.Store.Backend, "sampler", cfg.Sampler.Name)

	otelShutdown, err := telemetry.Init(ctx, cfg.Telemetry, version)
	if err != nil {
		return err
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	store, err := storage.NewStore(cfg.Store, log)
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()

	smp, err := sampler.FromConfig(cfg.Sampler)
	if err != nil {
		return err
	}

	sp, err := loadDefaultSpace(cfg.Study.SearchSpace, log)
	if err != nil {
		return err
	}
	dir, err := models.ParseDirection(cfg.Study.Direction)
	if err != nil {
		return err
	}

	sinks, err := buildSinks(cfg.Sink, log)
	if err != nil {
		return err
	}
	defer sinks.Close()

	opts := study.Options{
		Store:        store,
		Sampler:      smp,
		Logger:       log,
		StoreTimeout: cfg.Store.Timeout.Duration,
	}
	if len(sinks) > 0 {
		opts.Sink = sinks
	}
	engine, err := study.NewEngine(opts)
	if err != nil {
		return err
	}

	srvOpts := server.Options{
		Engine:     engine,
		Space:      sp,
		Direction:  dir,
		AuthSecret: cfg.Server.AuthSecret,
		Logger:     log,
	}

	var grpcLis net.Listener
	if cfg.Server.GRPCAddr != "" {
		grpcLis, err = net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen for gRPC on %s: %w", cfg.Server.GRPCAddr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.HTTPAddr != "" {
		httpSrv := &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           server.NewHTTPServer(srvOpts).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		}
		g.Go(func() error {
			log.Info("HTTP server listening", "addr", cfg.Server.HTTPAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}

	if grpcLis != nil {
		var grpcOpts []grpc.ServerOption
		if auth := server.NewAuthenticator(cfg.Server.AuthSecret); auth != nil {
			grpcOpts = append(grpcOpts, grpc.UnaryInterceptor(server.UnaryAuthInterceptor(auth)))
		}
		grpcServer := grpc.NewServer(grpcOpts...)
		server.NewGRPCServer(srvOpts).Register(grpcServer)

		g.Go(func() error {
			log.Info("gRPC server listening", "addr", grpcLis.Addr().String())
			if err := grpcServer.Serve(grpcLis); err != nil {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			grpcServer.GracefulStop()
			return nil
		})
	}

	err = g.Wait()
	log.Info("studyd stopped")
	return err
}

// loadDefaultSpace loads the configured search space. A missing file is not
// an error: asks must then carry their own description.
func loadDefaultSpace(path string, log *slog.Logger) (*space.SearchSpace, error) {
	if path == "" {
		return nil, nil
	}
	sp, err := space.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("default search space not found, asks must send search_space_yaml", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	log.Info("default search space loaded", "path", path, "params", sp.Names(), "version", sp.Version())
	return sp, nil
}

func buildSinks(cfg config.SinkConfig, log *slog.Logger) (sink.Multi, error) {
	var sinks sink.Multi
	if cfg.Dir != "" {
		sinks = append(sinks, sink.NewFileSink(cfg.Dir))
		log.Info("trial log files enabled", "dir", cfg.Dir)
	}
	if cfg.WebhookURL != "" {
		wh, err := sink.NewWebhookSink(cfg.WebhookURL, cfg.WebhookSecret, log)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, wh)
		log.Info("trial webhook enabled", "url", cfg.WebhookURL)
	}
	return sinks, nil
}
