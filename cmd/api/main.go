package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"communityboard/internal/config"
	"communityboard/internal/database"
	"communityboard/internal/middleware"
	"communityboard/internal/modules/auth"
	"communityboard/internal/modules/board"
	"communityboard/internal/modules/moderation"
	"communityboard/internal/modules/notify"
	"communityboard/internal/modules/penalty"
	"communityboard/internal/pkg/health"
	"communityboard/internal/pkg/jwt"
	"communityboard/internal/pkg/metrics"
	"communityboard/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	if cfg.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Stores ---
	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("db connect failed")
	}
	if err := database.Migrate(db); err != nil {
		log.WithError(err).Fatal("migration failed")
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.WithError(err).Fatal("db handle unavailable")
	}
	defer sqlDB.Close()

	rdb, err := repository.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.WithError(err).Fatal("redis connect failed")
	}
	defer rdb.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	userRepo := repository.NewUserRepository(db, cfg.StoreTimeout)
	penaltyRepo := repository.NewPenaltyRepository(db, cfg.StoreTimeout)
	abuseLogRepo := repository.NewAbuseLogRepository(db, cfg.StoreTimeout)
	revocations := repository.NewRevocationStore(rdb, cfg.StoreTimeout)
	filterCounter := repository.NewFilterCounter(rdb, cfg.StoreTimeout)

	// --- Penalty ---
	hub := notify.NewHub(log, m)
	engine := penalty.NewEngine(penaltyRepo, abuseLogRepo, penalty.Options{
		Threshold: cfg.PenaltyThreshold,
		Duration:  cfg.SuspensionDuration,
		Logger:    log,
		Metrics:   m,
		Notifier:  hub,
	})

	// --- Auth ---
	key, err := jwt.NewKeyMaterial(cfg.JWTSecret)
	if err != nil {
		log.WithError(err).Fatal("invalid JWT_SECRET")
	}
	authService := auth.NewService(jwt.New(key), revocations, userRepo, engine, auth.Options{
		AccessTTL:  cfg.JWTAccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		Logger:     log,
		Metrics:    m,
	})

	// --- Moderation ---
	var checker moderation.Checker
	if cfg.ModerationEnabled() {
		signer, err := moderation.NewSigner(cfg.EnvelopeSecret, cfg.EnvelopeIssuer, cfg.EnvelopeTTL, nil)
		if err != nil {
			log.WithError(err).Fatal("invalid SERVER_TO_PROXY_JWT_SECRET")
		}
		checker = moderation.NewClient(cfg.ModerationBaseURL, cfg.ModerationAPIKey, signer, cfg.ModerationTimeout)
	} else {
		log.Warn("PURGO_PROXY_BASE_URL not set, text moderation disabled")
	}
	filter := moderation.NewFilter(checker, engine, filterCounter, moderation.FilterOptions{
		Logger:  log,
		Metrics: m,
	})

	boardService := board.NewService(engine, filter)

	// --- Handlers ---
	authHandler := auth.NewHandler(authService)
	penaltyHandler := penalty.NewHandler(engine)
	moderationHandler := moderation.NewHandler(filter)
	boardHandler := board.NewHandler(boardService)
	notifyHandler := notify.NewHandler(hub, engine)

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.ErrorLogger(log))
	r.Use(m.GinMiddleware())
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	r.GET("/metrics", gin.WrapH(metrics.Handler(registry)))
	health.NewChecker(sqlDB, rdb).RegisterRoutes(r)

	requireAuth := middleware.Auth(authService)

	v1 := r.Group("/api/v1")
	{
		authHandler.RegisterPublicRoutes(v1, middleware.RateLimit(cfg.AuthRateRPS, cfg.AuthRateBurst))
		moderationHandler.RegisterPublicRoutes(v1)

		protected := v1.Group("")
		protected.Use(requireAuth)
		{
			authHandler.RegisterProtectedRoutes(protected)
			penaltyHandler.RegisterProtectedRoutes(protected)
			boardHandler.RegisterProtectedRoutes(protected)
		}
	}

	ws := r.Group("/ws")
	ws.Use(requireAuth)
	notifyHandler.RegisterRoutes(ws)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("server stopped with error")
		os.Exit(1)
	}
	log.Info("server stopped")
}
