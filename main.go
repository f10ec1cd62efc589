package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"auctionhouse/adapters/otel"
	"auctionhouse/api"
)

const serviceName = "auctionhouse"

func main() {
	args := ParseArgs()
	if err := args.Validate(); err != nil {
		slog.Error("Invalid arguments", slog.Any("error", err))
		os.Exit(2)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: args.Level()}))
	slog.SetDefault(logger)
	if args.Level() > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := otel.Setup(ctx, otel.Config{
		Endpoint:    args.OtelEndpoint,
		ServiceName: serviceName,
		InstanceID:  args.ServerConfig.ID,
	})
	if err != nil {
		logger.Error("Fail to setup tracing", slog.Any("error", err))
		os.Exit(1)
	}

	server, err := api.NewServer(args.ServerConfig, api.WithServerLogger(logger))
	if err != nil {
		logger.Error("Fail to create server", slog.Any("error", err))
		os.Exit(1)
	}
	if err := server.Start(); err != nil {
		logger.Error("Fail to start server", slog.Any("error", err))
		server.Close()
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              args.ServerURL,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", args.ServerURL), slog.String("instance", args.ServerConfig.ID))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server stopped unexpectedly", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	// SSE 連線不會自己結束，逾時後強制關閉
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Fail to shutdown HTTP server gracefully", slog.Any("error", err))
		httpServer.Close()
	}
	server.Close()
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn("Fail to flush traces", slog.Any("error", err))
	}
}
