package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dfryer1193/css3blog/blog/application"
	"github.com/dfryer1193/css3blog/blog/domain"
	"github.com/dfryer1193/css3blog/blog/persistence"
	"github.com/dfryer1193/css3blog/blog/storage"
	appconfig "github.com/dfryer1193/css3blog/internal/config"
	"github.com/dfryer1193/css3blog/internal/logging"
	"github.com/dfryer1193/css3blog/internal/metrics"
	"github.com/dfryer1193/css3blog/internal/middleware"
	"github.com/dfryer1193/css3blog/internal/rest"
	"github.com/dfryer1193/css3blog/shared/db"
	"github.com/dfryer1193/css3blog/shared/db/sqlite"
	gh "github.com/dfryer1193/css3blog/shared/github"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := appconfig.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := logging.Setup(cfg.LogLevel, cfg.LogPretty); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}

	ctx := context.Background()

	// rendered HTML paths are persisted, so they must not depend on the working directory
	mediaRoot, err := filepath.Abs(cfg.MediaRoot)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve media root")
	}
	cfg.MediaRoot = mediaRoot

	var database db.Database = sqlite.NewSQLiteDB(cfg.SQLite)
	if err := database.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	fileStorage, err := newFileStorage(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up file storage")
	}

	renderer, err := newRenderer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up markdown renderer")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsManager := metrics.NewManager("css3blog", "blog", reg)

	postRepo := persistence.NewPostRepository(database.DB())
	postService := application.NewPostService(postRepo, fileStorage, renderer, cfg.MediaRoot,
		application.WithMetrics(metricsManager),
	)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.LoggingMiddleware())
	engine.Use(middleware.RequestMetrics(metricsManager))
	engine.Use(gin.CustomRecovery(middleware.HandlePanics(metricsManager)))

	rest.NewApi(engine, postService, rest.NewRouter())
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: engine,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown server")
	}

	log.Info().Msg("Server stopped")
}

func newFileStorage(ctx context.Context, cfg *appconfig.Config) (domain.FileStorage, error) {
	if cfg.StorageBackend == appconfig.StorageS3 {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		log.Info().Str("bucket", cfg.S3Bucket).Msg("Storing uploads in S3")
		return storage.NewS3Storage(s3.NewFromConfig(awsCfg), cfg.S3Bucket)
	}

	log.Info().Str("root", cfg.MediaRoot).Msg("Storing uploads on disk")
	return storage.NewDiskStorage(cfg.MediaRoot)
}

func newRenderer(cfg *appconfig.Config) (domain.MarkdownRenderer, error) {
	if cfg.Renderer == appconfig.RendererLocal {
		return application.NewGoldmarkRenderer(cfg.SiteURL), nil
	}

	httpClient := &http.Client{Timeout: cfg.RenderTimeout}
	return gh.NewMarkdownClient(httpClient, cfg.RenderBaseURL, cfg.GithubToken)
}
