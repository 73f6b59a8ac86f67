package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vedran77/consult/internal/codec"
	"github.com/vedran77/consult/internal/config"
	"github.com/vedran77/consult/internal/database"
	"github.com/vedran77/consult/internal/idgen"
	"github.com/vedran77/consult/internal/logging"
	"github.com/vedran77/consult/internal/metrics"
	"github.com/vedran77/consult/internal/presence"
	"github.com/vedran77/consult/internal/repository"
	"github.com/vedran77/consult/internal/repository/memory"
	mongorepo "github.com/vedran77/consult/internal/repository/mongodb"
	postgresrepo "github.com/vedran77/consult/internal/repository/postgres"
	"github.com/vedran77/consult/internal/service"
	"github.com/vedran77/consult/internal/storage"
	"github.com/vedran77/consult/internal/storage/fs"
	"github.com/vedran77/consult/internal/storage/s3"
	httphandlers "github.com/vedran77/consult/internal/transport/http/handlers"
	"github.com/vedran77/consult/internal/transport/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		logrus.WithError(err).Fatal("setup logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logrus.WithError(err).Fatal("server stopped")
	}
	logrus.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	// Database
	channelRepo, profileRepo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// Storage
	blobs, uploads, err := openBlobStore(cfg)
	if err != nil {
		return err
	}

	c, err := codec.New(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("encryption key: %w", err)
	}
	ids, err := idgen.New(cfg.WorkerID)
	if err != nil {
		return fmt.Errorf("id generator: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// WebSocket hub
	hub := ws.NewHub()
	notifier := ws.NewHubNotifier(hub)
	tracker := presence.NewTracker(notifier)

	// Services
	authService := service.NewAuthService(profileRepo, cfg.JWTSecret)
	guard := service.NewAccessGuard(channelRepo, profileRepo)
	channelService := service.NewChannelService(channelRepo, profileRepo, guard, c, ids, cfg.ChannelTTL)
	channelService.SetNotifier(notifier)
	channelService.SetMetrics(m)
	ratingService := service.NewRatingService(channelRepo, guard, m)
	unreadService := service.NewUnreadService(channelRepo, guard)
	attachmentService := service.NewAttachmentService(blobs, guard, channelService, service.AttachmentPolicy{
		MaxBytes:     cfg.UploadMaxBytes,
		AllowedTypes: cfg.UploadAllowedTypes,
	}, m)
	sweeper := service.NewExpirySweeper(channelRepo, cfg.SweepInterval, m)

	// Routes
	mux := httphandlers.NewRouter(httphandlers.Services{
		Auth:           authService,
		Guard:          guard,
		Channels:       channelService,
		Ratings:        ratingService,
		Unread:         unreadService,
		Attachments:    attachmentService,
		Presence:       tracker,
		MaxUploadBytes: cfg.UploadMaxBytes,
		LifecycleToken: cfg.LifecycleToken,
	})
	mux.Handle("GET /metrics", metrics.Handler(reg))
	mux.Handle("GET /ws", ws.ServeWS(hub, &ws.Deps{
		Auth:           authService,
		Guard:          guard,
		Channels:       channelService,
		Presence:       tracker,
		Metrics:        m,
		OriginPatterns: originPatterns(cfg.CORSOrigins),
	}))
	if uploads != nil {
		mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", uploads))
	}

	cors := handlers.CORS(
		handlers.AllowedOrigins(cfg.CORSOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)
	var h http.Handler = cors(mux)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(logrus.StandardLogger()))(h)
	h = handlers.CombinedLoggingHandler(logrus.StandardLogger().WriterLevel(logrus.InfoLevel), h)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error {
		logrus.WithField("addr", srv.Addr).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config) (repository.ChannelRepository, repository.ProfileRepository, func(), error) {
	switch cfg.DBDriver {
	case "postgres":
		pool, err := database.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		logrus.Info("connected to postgres")
		return postgresrepo.NewChannelRepo(pool), postgresrepo.NewProfileRepo(pool), pool.Close, nil

	case "mongo":
		store, err := mongorepo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, nil, err
		}
		logrus.Info("connected to mongodb")
		closeFn := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := store.Close(closeCtx); err != nil {
				logrus.WithError(err).Warn("close mongodb")
			}
		}
		return store.Channels(), store.Profiles(), closeFn, nil
	}

	logrus.Warn("using in-memory store; data is lost on restart")
	store := memory.New()
	return store.Channels(), store.Profiles(), func() {}, nil
}

// openBlobStore returns the configured store and, for the filesystem
// backend, the handler that serves its files.
func openBlobStore(cfg *config.Config) (storage.BlobStore, http.Handler, error) {
	if cfg.UploadBackend == "s3" {
		store, err := s3.New(s3.Config{
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			ForcePathStyle:  cfg.S3ForcePathStyle,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("s3 storage: %w", err)
		}
		return store, nil, nil
	}

	store, err := fs.New(cfg.UploadDir, strings.TrimSuffix(cfg.PublicBaseURL, "/")+"/uploads/")
	if err != nil {
		return nil, nil, fmt.Errorf("fs storage: %w", err)
	}
	return store, store.Handler(), nil
}

func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		// websocket origin patterns match the host only
		if i := strings.Index(o, "://"); i >= 0 {
			o = o[i+3:]
		}
		patterns = append(patterns, o)
	}
	return patterns
}
