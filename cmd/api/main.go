package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/campusdesk/appeal-service/internal/api/http"
	"github.com/campusdesk/appeal-service/internal/api/http/handlers"
	"github.com/campusdesk/appeal-service/internal/auth"
	"github.com/campusdesk/appeal-service/internal/bot"
	"github.com/campusdesk/appeal-service/internal/clock"
	"github.com/campusdesk/appeal-service/internal/command"
	"github.com/campusdesk/appeal-service/internal/config"
	"github.com/campusdesk/appeal-service/internal/conversation"
	"github.com/campusdesk/appeal-service/internal/domain"
	"github.com/campusdesk/appeal-service/internal/events"
	"github.com/campusdesk/appeal-service/internal/notification"
	"github.com/campusdesk/appeal-service/internal/observability"
	"github.com/campusdesk/appeal-service/internal/persistence"
	"github.com/campusdesk/appeal-service/internal/ratelimit"
	"github.com/campusdesk/appeal-service/internal/repository"
	"github.com/campusdesk/appeal-service/internal/service"
	"github.com/campusdesk/appeal-service/internal/transport"
	"github.com/campusdesk/appeal-service/internal/worker"
)

const sweepInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	clk, err := clock.LoadSystem(cfg.App.Timezone)
	if err != nil {
		logger.Fatal("invalid timezone", zap.String("timezone", cfg.App.Timezone), zap.Error(err))
	}
	metrics := observability.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	pool := pg.Pool

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pool, cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	deps := map[string]handlers.Pinger{"postgres": pg}
	var redis *persistence.Redis
	if cfg.RateLimit.Backend == config.BackendRedis || cfg.Conversation.Backend == config.BackendRedis {
		redis = persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()
		deps["redis"] = redis
	}

	var limiterStore ratelimit.Store
	if cfg.RateLimit.Backend == config.BackendRedis {
		limiterStore = ratelimit.NewRedisStore(redis.Client, redis.Prefix("rl"))
	} else {
		mem := ratelimit.NewMemoryStore(clk)
		go mem.RunSweeper(ctx, sweepInterval)
		limiterStore = mem
	}
	limiter := ratelimit.NewLimiter(limiterStore, cfg.RateLimit.Window(), logger, metrics)
	limits := ratelimit.Limits{PermitLimit: cfg.RateLimit.PermitLimit, AdminPermitLimit: cfg.RateLimit.AdminPermitLimit}

	var convStore conversation.Store
	if cfg.Conversation.Backend == config.BackendRedis {
		convStore = conversation.NewRedisStore(redis.Client, redis.Prefix("conv"), cfg.Conversation.TTL())
	} else {
		mem := conversation.NewMemoryStore(clk)
		if ttl := cfg.Conversation.TTL(); ttl > 0 {
			go evictConversations(ctx, mem, ttl, logger)
		}
		convStore = mem
	}

	userRepo := repository.NewUserRepository(pool)
	appealRepo := repository.NewAppealRepository(pool)
	historyRepo := repository.NewAppealHistoryRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	preferenceRepo := repository.NewPreferenceRepository(pool)
	templateRepo := repository.NewTemplateRepository(pool)

	notifier := notification.NewDispatcher(notification.Dependencies{
		Notifications:   notificationRepo,
		Preferences:     preferenceRepo,
		Templates:       templateRepo,
		Users:           userRepo,
		Channels:        buildChannels(cfg, logger),
		Clock:           clk,
		Logger:          logger,
		Metrics:         metrics,
		DeliveryTimeout: cfg.Notification.DeliveryTimeout(),
	})

	bus := events.NewInMemoryDispatcher(logger)
	notifications := service.NewNotificationService(bus, notifier, userRepo, logger, cfg.Notification.DeliveryTimeout())
	notifications.RegisterHandlers()

	appealService := service.NewAppealService(service.AppealDependencies{
		AppealRepo:  appealRepo,
		HistoryRepo: historyRepo,
		UserRepo:    userRepo,
		Dispatcher:  bus,
		Clock:       clk,
		Logger:      logger,
		Metrics:     metrics,
	})
	inboxService := service.NewInboxService(notificationRepo, preferenceRepo, clk)
	tokenMgr := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes, clk)
	authService := service.NewAuthService(userRepo, tokenMgr)
	staffService := service.NewStaffService(userRepo, cfg.Auth.BcryptCost, logger)

	pipeline := command.NewPipeline(command.DefaultRegistry(), limiter, limits, logger)
	flow := bot.NewAppealFlow(conversation.NewManager(convStore), pipeline, appealService, authService, nil, logger)

	scheduler := worker.NewNotificationScheduler(notificationRepo, notifier, clk, logger,
		cfg.Notification.SchedulerInterval(), cfg.Notification.SchedulerBatchSize)
	go scheduler.Run(ctx)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		Auth:           handlers.NewAuthHandler(authService),
		Appeals:        handlers.NewAppealsHandler(appealService, pipeline),
		StaffAppeals:   handlers.NewStaffAppealsHandler(appealService, pipeline),
		StaffUsers:     handlers.NewStaffUsersHandler(staffService, pipeline),
		Notifications:  handlers.NewNotificationsHandler(inboxService, pipeline),
		Bot:            handlers.NewBotHandler(flow, cfg.Bot.UpdateSecret),
		AuthMiddleware: auth.NewAuthMiddleware(tokenMgr, userRepo),
		Metrics:        metrics,
	})

	if cfg.Bot.UpdateSecret == "" {
		logger.Warn("BOT_UPDATE_SECRET not set; /bot/updates accepts unauthenticated updates")
	}

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	cancel()
	notifications.Wait()
}

// buildChannels registers in-app and push delivery, plus email and SMS when
// their webhooks are configured. Push falls back to logging without a gateway.
func buildChannels(cfg *config.Config, logger *zap.Logger) map[domain.NotificationChannel]notification.Channel {
	timeout := cfg.Notification.DeliveryTimeout()

	var sender transport.Sender
	if cfg.Bot.GatewayURL != "" {
		sender = transport.NewGatewaySender(cfg.Bot.GatewayURL, cfg.Bot.GatewayToken, timeout)
	} else {
		logger.Warn("BOT_GATEWAY_URL not set; push notifications are only logged")
		sender = transport.NewLogSender(logger)
	}

	channels := map[domain.NotificationChannel]notification.Channel{
		domain.ChannelInApp: notification.InAppChannel{},
		domain.ChannelPush:  notification.NewPushChannel(sender),
	}
	if cfg.Notification.EmailWebhookURL != "" {
		channels[domain.ChannelEmail] = notification.NewWebhookChannel(domain.ChannelEmail, cfg.Notification.EmailWebhookURL, timeout)
	}
	if cfg.Notification.SMSWebhookURL != "" {
		channels[domain.ChannelSMS] = notification.NewWebhookChannel(domain.ChannelSMS, cfg.Notification.SMSWebhookURL, timeout)
	}
	return channels
}

func evictConversations(ctx context.Context, store *conversation.MemoryStore, ttl time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Evict(ttl); n > 0 {
				logger.Debug("evicted idle conversations", zap.Int("count", n))
			}
		}
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
