package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/navikt/roomwait/internal/api"
	"github.com/navikt/roomwait/internal/config"
	"github.com/navikt/roomwait/internal/notify"
	"github.com/navikt/roomwait/internal/repository"
	"github.com/navikt/roomwait/internal/repository/memory"
	"github.com/navikt/roomwait/internal/repository/postgres"
	"github.com/navikt/roomwait/internal/repository/redis"
	"github.com/navikt/roomwait/internal/service"
	"github.com/navikt/roomwait/internal/source"
	"github.com/navikt/roomwait/internal/web"
)

func main() {
	// Local development convenience; production injects real env vars.
	_ = godotenv.Load()

	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	repo, err := newRepository(logger)
	if err != nil {
		logger.Fatal("failed to initialize repository", zap.Error(err))
	}
	if closer, ok := repo.(interface{ Close() error }); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Warn("error closing repository", zap.Error(err))
			}
		}()
	}

	pollConfig := config.GetPollConfig()

	mailer := notify.NewMailer(config.GetMailConfig(), pollConfig.GraceWindow)
	client := source.NewClient(config.GetSourceConfig())

	reconciler := service.NewReconciler(repo, logger)
	dispatcher := service.NewDispatcher(repo, mailer, logger, pollConfig.GraceWindow)
	poller := service.NewPoller(client, reconciler, dispatcher, pollConfig.Interval, logger)

	stream := web.NewStatusStream(repo, logger)
	poller.OnTick(stream.Publish)

	apiConfig := config.GetAPIConfig()
	mux := api.SetupRoutes(repo, logger, apiConfig.Token)
	stream.SetupRoutes(mux)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go poller.Run(ctx)

	server := &http.Server{
		Addr:         ":" + apiConfig.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // disabled for SSE connections
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting roomwait server", zap.String("port", apiConfig.Port))
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatal("server error", zap.Error(err))

	case sig := <-shutdown:
		logger.Info("shutting down", zap.String("signal", sig.String()))

		// Stop the poll loop and let in-flight notifications finish.
		cancel()
		dispatcher.Wait()

		stream.Shutdown()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
			logger.Fatal("error shutting down server", zap.Error(err))
		}

		logger.Info("server gracefully stopped")
	}
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stdout"}
	cfg.InitialFields = map[string]interface{}{
		"service_name": "roomwait",
	}
	return cfg.Build()
}

func newRepository(logger *zap.Logger) (repository.Repository, error) {
	backend := config.GetRepositoryBackend()

	switch backend {
	case "redis":
		logger.Info("using redis repository")
		return redis.NewRepository(config.GetRedisConfig(), logger)

	case "memory":
		logger.Info("using in-memory repository")
		return memory.NewRepository(), nil

	default:
		logger.Info("using postgres repository")
		repo, err := postgres.NewRepository(config.GetPostgresConfig(), logger)
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := repo.EnsureSchema(ctx); err != nil {
			repo.Close()
			return nil, err
		}
		return repo, nil
	}
}
