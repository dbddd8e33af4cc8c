package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"carpool/internal/config"
	handlers "carpool/internal/handlers/shared"
	"carpool/internal/middleware"
	"carpool/internal/repositories/interfaces"
	"carpool/internal/repositories/memory"
	"carpool/internal/repositories/mongodb"
	"carpool/internal/repositories/postgres"
	"carpool/internal/services"
	"carpool/pkg/cache"
	"carpool/pkg/database"
	"carpool/pkg/logger"
	"carpool/pkg/push"
	"carpool/pkg/queue"
	"carpool/pkg/scheduler"
	"carpool/pkg/sms"
	"carpool/pkg/websocket"
	"carpool/routes"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const noticeQueue = "carpool.notices"

type repositories struct {
	rides        interfaces.RideRepository
	reservations interfaces.ReservationRepository
	chat         interfaces.ChatRepository
	moderation   interfaces.ModerationRepository
	users        interfaces.UserRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(&logger.Config{
		Level:      logger.LogLevel(cfg.Logging.Level),
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		TimeFormat: cfg.Logging.TimeFormat,
		Caller:     cfg.Logging.Caller,
		AppName:    cfg.App.Name,
		Version:    cfg.App.Version,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.WithError(err).Fatal("Server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) error {
	checks := map[string]handlers.HealthCheck{}
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisCache(&cache.RedisConfig{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		redisCache = rc
		closers = append(closers, func() { _ = rc.Close() })
		checks["redis"] = rc.Ping
	}

	// A nil *RedisCache must not leak into the interface.
	var sharedCache cache.Cache
	if redisCache != nil {
		sharedCache = redisCache
	}

	repos, err := openRepositories(ctx, cfg, appLogger, sharedCache, checks, &closers)
	if err != nil {
		return err
	}

	var bus websocket.Bus
	switch cfg.Chat.BusBackend {
	case config.BusBackendRedis:
		if redisCache == nil {
			return errors.New("redis chat bus requires REDIS_ENABLED")
		}
		bus = websocket.NewRedisBus(redisCache.Client(), "carpool:chat:")
	default:
		bus = websocket.NewLocalBus(cfg.WebSocket.SendBufferSize)
	}
	hub := websocket.NewHub(bus, appLogger)

	notifier, err := buildNotifier(ctx, cfg, appLogger, repos.users, &closers)
	if err != nil {
		return err
	}

	guard := services.NewAccessGuard()
	broadcaster := services.NewChatBroadcaster(hub)
	moderationService := services.NewModerationService(repos.chat, repos.moderation, guard, broadcaster, appLogger)
	chatService := services.NewChatService(
		repos.chat, repos.rides, repos.reservations,
		guard, moderationService, hub, broadcaster,
		services.ChatOptions{
			ReplayLimit:       cfg.Chat.ReplayLimit,
			MaxMessageLength:  cfg.Chat.MaxMessageLength,
			HiddenPlaceholder: cfg.Chat.HiddenPlaceholder,
		},
		appLogger,
	)
	reservationService := services.NewReservationService(repos.rides, repos.reservations, repos.chat, notifier, appLogger)
	rideService := services.NewRideService(repos.rides, appLogger)
	debouncer := services.NewNotificationDebouncer(repos.chat, repos.users, notifier, sharedCache, services.DebouncerOptions{
		Threshold: cfg.Chat.NotificationThreshold,
		LockTTL:   cfg.Chat.NotificationLockTTL,
	}, appLogger)

	jobs := scheduler.New(appLogger)
	if err := jobs.Register(scheduler.Job{
		Name:     "chat-notification-debounce",
		Interval: cfg.Chat.NotificationInterval,
		Run: func(ctx context.Context, now time.Time) error {
			_, err := debouncer.Run(ctx, now)
			return err
		},
	}); err != nil {
		return err
	}

	wsHandler := websocket.NewHandler(hub, websocket.HandlerOptions{
		ReadBufferSize:    cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:   cfg.WebSocket.WriteBufferSize,
		HandshakeTimeout:  cfg.WebSocket.HandshakeTimeout,
		EnableCompression: cfg.WebSocket.EnableCompression,
		AllowedOrigins:    cfg.WebSocket.AllowedOrigins,
		Client: websocket.ClientOptions{
			SendBufferSize: cfg.WebSocket.SendBufferSize,
			PingInterval:   cfg.WebSocket.PingInterval,
			PongTimeout:    cfg.WebSocket.PongTimeout,
			MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		},
	})

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(appLogger))
	router.Use(middleware.CORSMiddleware(cfg.Security.CORSAllowedOrigins))
	if err := router.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		return fmt.Errorf("invalid trusted proxies: %w", err)
	}

	routes.SetupRoutes(router, routes.Handlers{
		Ride:        handlers.NewRideHandler(rideService),
		Reservation: handlers.NewReservationHandler(reservationService),
		Chat:        handlers.NewChatHandler(chatService, moderationService, guard, wsHandler, appLogger),
		Moderation:  handlers.NewModerationHandler(moderationService),
		Health:      handlers.NewHealthHandler(cfg.App.Version, checks),
	}, cfg.Security.JWTSecret)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLogger.WithField("addr", server.Addr).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return jobs.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		appLogger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openRepositories connects the configured ledger and chat stores.
func openRepositories(
	ctx context.Context,
	cfg *config.Config,
	appLogger *logger.Logger,
	sharedCache cache.Cache,
	checks map[string]handlers.HealthCheck,
	closers *[]func(),
) (*repositories, error) {
	if cfg.Database.LedgerBackend == config.LedgerBackendMemory {
		appLogger.Warn("Using in-memory store; data is lost on restart")
		store := memory.NewStore()
		return &repositories{
			rides:        store.Rides(),
			reservations: store.Reservations(),
			chat:         store.Chat(),
			moderation:   store.Moderation(),
			users:        store.Users(),
		}, nil
	}

	mongoDB, err := database.NewMongoDB(&database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	*closers = append(*closers, func() { _ = mongoDB.Close() })
	checks["mongodb"] = mongoDB.Ping

	if err := database.NewMigrator(mongoDB.Database, appLogger).Up(ctx); err != nil {
		return nil, fmt.Errorf("failed to run mongodb migrations: %w", err)
	}

	repos := &repositories{
		rides:        mongodb.NewRideRepository(mongoDB.Database),
		reservations: mongodb.NewReservationRepository(mongoDB.Database),
		chat:         mongodb.NewChatRepository(mongoDB.Database, sharedCache),
		moderation:   mongodb.NewModerationRepository(mongoDB.Database),
		users:        mongodb.NewUserRepository(mongoDB.Database),
	}

	if cfg.Database.LedgerBackend == config.LedgerBackendPostgres {
		pool, err := database.NewPostgresPool(ctx, &database.PostgresConfig{
			DSN:             cfg.Postgres.DSN(),
			MaxConns:        cfg.Postgres.MaxConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
		})
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, pool.Close)
		checks["postgres"] = pool.Ping

		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return nil, fmt.Errorf("failed to prepare postgres schema: %w", err)
		}
		repos.rides = postgres.NewRideRepository(pool)
		repos.reservations = postgres.NewReservationRepository(pool)
	}

	return repos, nil
}

// buildNotifier fans notices out to every enabled channel. The log channel
// is always on.
func buildNotifier(
	ctx context.Context,
	cfg *config.Config,
	appLogger *logger.Logger,
	users interfaces.UserRepository,
	closers *[]func(),
) (services.Notifier, error) {
	notifiers := services.MultiNotifier{services.NewLogNotifier(appLogger)}

	if cfg.RabbitMQ.Enabled {
		publisher, err := queue.NewPublisher(queue.Config{
			URL:      cfg.RabbitMQ.URL(),
			Exchange: cfg.RabbitMQ.Exchange,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		*closers = append(*closers, func() { _ = publisher.Close() })
		if err := publisher.BindQueue(noticeQueue, services.NoticeRoutingKey("#")); err != nil {
			return nil, err
		}
		notifiers = append(notifiers, services.NewQueueNotifier(publisher))
	}

	if cfg.Push.Enabled {
		provider, err := push.NewFCMProvider(ctx, cfg.Push.FCM.ProjectID, cfg.Push.FCM.Credentials)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize fcm: %w", err)
		}
		notifiers = append(notifiers, services.NewPushNotifier(provider))
	}

	if cfg.SMS.Enabled {
		var provider sms.SMSProvider
		switch cfg.SMS.Provider {
		case config.SMSProviderSNS:
			snsProvider, err := sms.NewAWSSNSProvider(ctx, cfg.SMS.AWS.Region)
			if err != nil {
				return nil, err
			}
			provider = snsProvider
		default:
			provider = sms.NewTwilioProvider(cfg.SMS.Twilio.AccountSID, cfg.SMS.Twilio.AuthToken, cfg.SMS.Twilio.FromNumber)
		}
		notifiers = append(notifiers, services.NewSMSNotifier(users, provider))
	}

	return notifiers, nil
}
