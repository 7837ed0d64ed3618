package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"storyroom-server/internal/config"
	"storyroom-server/internal/handler"
	"storyroom-server/internal/messaging"
	"storyroom-server/internal/narrative"
	"storyroom-server/internal/service"
	"storyroom-server/internal/telemetry"
	"storyroom-server/shared/authutils"
	"storyroom-server/shared/database"
	"storyroom-server/shared/database/memstore"
	"storyroom-server/shared/interfaces"
	sharedLogger "storyroom-server/shared/logger"
	sharedMiddleware "storyroom-server/shared/middleware"
	"storyroom-server/shared/models"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

const serviceName = "storyroom-server"

// stores groups the repositories selected by STORE_BACKEND.
type stores struct {
	identities   interfaces.IdentityRepository
	rooms        interfaces.RoomRepository
	sessions     interfaces.SessionRepository
	records      interfaces.UserSessionRepository
	stories      interfaces.StoryRepository
	achievements interfaces.AchievementRepository
	rateLimits   ratelimit.Store
	close        func()
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := sharedLogger.New(sharedLogger.Config{
		Level:       cfg.LogLevel,
		Encoding:    cfg.LogEncoding,
		ServiceName: serviceName,
	})
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	logger.Info("Starting storyroom-server",
		zap.String("env", cfg.Env),
		zap.String("storeBackend", cfg.StoreBackend),
		zap.String("storySource", cfg.StorySource),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("Failed to set up tracing", zap.Error(err))
	}

	source, err := setupStorySource(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to set up story source", zap.Error(err))
	}
	engine := narrative.NewStoryScript()

	st, err := setupStores(ctx, cfg, engine, source, logger)
	if err != nil {
		logger.Fatal("Failed to set up stores", zap.Error(err))
	}
	defer st.close()

	manager := handler.NewConnectionManager(newHubLogger(cfg))

	var (
		rabbitConn *amqp.Connection
		publisher  interfaces.PushEventPublisher
	)
	if cfg.RabbitMQURL != "" {
		rabbitConn, err = connectRabbitMQ(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer rabbitConn.Close()
		pushPublisher, err := messaging.NewPushPublisher(rabbitConn, cfg.PushNotificationsQueue, logger)
		if err != nil {
			logger.Fatal("Failed to create push publisher", zap.Error(err))
		}
		defer pushPublisher.Close()
		publisher = pushPublisher
	} else {
		logger.Warn("RABBITMQ_URL not set, client updates and push notifications are disabled")
	}

	identities := service.NewIdentityRegistry(st.identities, cfg.HandshakeTokenTTL, logger)
	sessions := service.NewSessionStore(st.sessions, identities, cfg.SessionEndedRetention, logger)
	fanout := service.NewFanout(manager, st.identities, logger)
	bridge := service.NewNarrativeBridge(engine, source, st.achievements, fanout, publisher, logger)
	progress := service.NewProgress(st.records, st.achievements, identities, logger)
	rooms := service.NewRoomManager(st.rooms, identities, sessions, fanout, cfg.RoomStartGrace, logger)
	gameplay := service.NewGameplay(sessions, st.stories, bridge, progress, fanout, logger)
	reconnect := service.NewReconnectHandler(sessions, identities, progress, fanout, logger)

	verifier, err := authutils.NewJWTVerifier(cfg.JWTSecret, logger)
	if err != nil {
		logger.Fatal("Failed to create token verifier", zap.Error(err))
	}
	eventRouter := handler.NewEventRouter(identities, rooms, gameplay, reconnect, fanout, logger)
	wsHandler := handler.NewWebSocketHandler(manager, identities, reconnect, eventRouter, cfg.CORSAllowedOrigins, newHubLogger(cfg))
	httpHandler := handler.NewHTTPHandler(identities, rooms, progress, verifier.VerifyToken, logger)

	if rabbitConn != nil {
		consumer := messaging.NewClientUpdateConsumer(rabbitConn, fanout, cfg.ClientUpdatesQueue, logger)
		go func() {
			if err := consumer.StartConsuming(ctx); err != nil {
				logger.Error("Client update consumer stopped with error", zap.Error(err))
			}
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	if cfg.Env == "development" {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(sharedMiddleware.GinZapLogger(logger))
	router.Use(gin.Recovery())
	p := ginprometheus.NewPrometheus("gin")

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSAllowedOrigins) == 0 || cfg.CORSAllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)
	router.GET("/ws", gin.WrapF(wsHandler.ServeWS))
	httpHandler.RegisterRoutes(router, handler.NewSocketTokenLimiter(st.rateLimits, logger))
	p.Use(router)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server listen error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, stopping server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	manager.Shutdown()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("Tracer provider shutdown failed", zap.Error(err))
	}
	logger.Info("storyroom-server stopped")
}

// newHubLogger builds the zerolog logger of the websocket hub.
func newHubLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	var l zerolog.Logger
	if cfg.LogEncoding == "console" {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		l = zerolog.New(os.Stdout)
	}
	return l.Level(level).With().Timestamp().Str("service", serviceName).Logger()
}

func setupStorySource(ctx context.Context, cfg *config.Config) (interfaces.StorySource, error) {
	if cfg.StorySource == config.StorySourceS3 {
		return narrative.NewS3Source(ctx, narrative.S3Config{
			Bucket:          cfg.StoryBucket,
			Prefix:          cfg.StoryPrefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
		})
	}
	return narrative.NewFSSource(cfg.StoriesDir), nil
}

func setupStores(ctx context.Context, cfg *config.Config, engine narrative.Engine, source interfaces.StorySource, logger *zap.Logger) (*stores, error) {
	if cfg.StoreBackend == config.StoreBackendMemory {
		catalog := memstore.NewCatalog()
		if fs, ok := source.(*narrative.FSSource); ok {
			seedCatalog(ctx, catalog, engine, fs, logger)
		}
		logger.Warn("Using the in-memory store, state is lost on restart")
		return &stores{
			identities:   memstore.NewIdentityStore(),
			rooms:        memstore.NewRoomStore(),
			sessions:     memstore.NewSessionStore(),
			records:      memstore.NewUserSessionStore(),
			stories:      catalog,
			achievements: catalog,
			rateLimits: ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
				Rate:  time.Minute,
				Limit: cfg.SocketTokenRateLimit,
			}),
			close: func() {},
		}, nil
	}

	redisClient, err := setupRedis(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(cfg.GetDSN(), logger); err != nil {
		_ = redisClient.Close()
		return nil, err
	}
	dbPool, err := setupDatabase(ctx, cfg)
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}
	logger.Info("Connected to PostgreSQL")

	return &stores{
		identities:   database.NewRedisIdentityRepository(redisClient, logger),
		rooms:        database.NewRedisRoomRepository(redisClient, logger),
		sessions:     database.NewRedisSessionRepository(redisClient, logger),
		records:      database.NewPgUserSessionRepository(dbPool, logger),
		stories:      database.NewPgStoryRepository(dbPool, logger),
		achievements: database.NewPgAchievementRepository(dbPool, logger),
		rateLimits: ratelimit.RedisStore(&ratelimit.RedisOptions{
			RedisClient: redisClient,
			Rate:        time.Minute,
			Limit:       cfg.SocketTokenRateLimit,
		}),
		close: func() {
			dbPool.Close()
			_ = redisClient.Close()
		},
	}, nil
}

// seedCatalog registers every story of the directory as a public story.
func seedCatalog(ctx context.Context, catalog *memstore.Catalog, engine narrative.Engine, source *narrative.FSSource, logger *zap.Logger) {
	ids, err := source.StoryIDs()
	if err != nil {
		logger.Warn("Failed to list stories, catalog is empty", zap.Error(err))
		return
	}
	for _, id := range ids {
		doc, err := source.Load(ctx, id)
		if err != nil {
			logger.Warn("Skipping unreadable story", zap.String("storyID", id), zap.Error(err))
			continue
		}
		story, err := engine.Compile(doc)
		if err != nil {
			logger.Warn("Skipping story that does not compile", zap.String("storyID", id), zap.Error(err))
			continue
		}
		meta := narrative.Metadata(id, story.GlobalTags())
		catalog.AddStory(models.StoryInfo{ID: id, Title: meta.Title, Public: true, UpdatedAt: time.Now()})
	}
	logger.Info("In-memory catalog seeded", zap.Int("stories", len(ids)))
}

func setupRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	opts := &redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB}
	maxRetries := 10
	retryDelay := 3 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			logger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr), zap.Int("attempt", attempt))
			return client, nil
		}
		_ = client.Close()
		lastErr = err
		logger.Warn("Redis ping failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, fmt.Errorf("unable to connect to redis after %d attempts: %w", maxRetries, lastErr)
}

func setupDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConns)
	poolCfg.MaxConnIdleTime = cfg.DBIdleTimeout

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := dbPool.Ping(ctx); err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return dbPool, nil
}

func connectRabbitMQ(url string, logger *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	maxRetries := 5
	retryDelay := 5 * time.Second
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			logger.Info("Connected to RabbitMQ")
			return conn, nil
		}
		logger.Warn("Failed to connect to RabbitMQ",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)
		time.Sleep(retryDelay)
	}
	return nil, err
}
