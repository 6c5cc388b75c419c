package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DrFlight7/scorecast-live-streamer/config"
	"github.com/DrFlight7/scorecast-live-streamer/internal/relay"
	"github.com/DrFlight7/scorecast-live-streamer/internal/status"
	"github.com/DrFlight7/scorecast-live-streamer/internal/transcoder"
	"github.com/DrFlight7/scorecast-live-streamer/routes"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatal("load config", zap.Error(err))
		}
		logger.Warn("config file missing, using defaults", zap.String("path", *configPath))
		cfg = config.Default()
	}

	ffmpeg := transcoder.NewFFmpeg(
		cfg.Transcoder.FFmpegPath,
		cfg.Transcoder.IngestURL,
		time.Duration(cfg.Transcoder.StopGraceSeconds)*time.Second,
		logger,
	)
	if version, err := ffmpeg.Available(); err != nil {
		logger.Warn("transcoder not found, streams will be refused", zap.Error(err))
	} else {
		logger.Info("transcoder found", zap.String("version", version))
	}

	manager := relay.NewManager(ffmpeg, cfg.Server.AllowSimulated, logger)
	handler := relay.NewHandler(manager, nil, cfg.Server.AckChunks, logger)
	reporter := status.NewReporter(manager, handler, ffmpeg, logger)

	mux := http.NewServeMux()
	routes.NewRouter(handler, reporter).SetupRoutes(mux)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("relay listening",
			zap.String("addr", server.Addr),
			zap.String("relay_path", "/stream"))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		manager.CloseAll()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("relay server", zap.Error(err))
	}
}
