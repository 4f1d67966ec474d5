package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appchat "shopme/internal/app/chat"
	"shopme/internal/app/presence"
	domainuser "shopme/internal/domain/user"
	"shopme/internal/infra/broker/kafka"
	"shopme/internal/infra/config"
	"shopme/internal/infra/db/mongo"
	ginserver "shopme/internal/infra/http/gin"
	"shopme/internal/infra/obs"
	"shopme/internal/infra/push"
	"shopme/internal/infra/realtime"
	"shopme/internal/infra/storage/memory"
	"shopme/internal/infra/storage/s3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env)

	cfg, err := config.Load()
	if err != nil {
		logger.Warn("using fallback configuration", "error", err)
		cfg.Env = env
		cfg.HTTPAddr = getenv("HTTP_ADDR", ":8080")
		cfg.StorageMode = "memory"
		cfg.PushTimeout = 3 * time.Second
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	var (
		store appchat.Store
		users domainuser.Store
		ready = func() error { return nil }
	)
	switch cfg.StorageMode {
	case "mongo":
		client, err := mongo.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			logger.Error("mongo init failed", "error", err)
			os.Exit(1)
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Close(closeCtx); err != nil {
				logger.Warn("mongo close failed", "error", err)
			}
		}()
		conversations := mongo.NewConversationRepository(client.DB)
		if err := conversations.EnsureIndexes(ctx); err != nil {
			logger.Error("mongo index init failed", "error", err)
			os.Exit(1)
		}
		store = conversations
		users = mongo.NewUserRepository(client.DB)
		ready = func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		}
		logger.Info("storage configured", "mode", "mongo", "db", cfg.MongoDB)
	default:
		userStore := memory.NewUserStore()
		if path := getenv("USER_FIXTURES", ""); path != "" {
			if err := loadUserFixtures(userStore, path); err != nil {
				logger.Warn("user fixtures load failed", "error", err, "path", path)
			}
		}
		store = memory.NewConversationStore()
		users = userStore
		logger.Info("storage configured", "mode", "memory")
	}

	var events appchat.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			logger.Error("kafka init failed", "error", err, "brokers", cfg.KafkaBrokers)
			os.Exit(1)
		}
		defer func() {
			if err := producer.Close(); err != nil {
				logger.Warn("kafka close failed", "error", err)
			}
		}()
		events = kafka.ChatEvents{Producer: producer, TopicPrefix: cfg.KafkaTopicPrefix}
		logger.Info("kafka producer configured", "brokers", cfg.KafkaBrokers)
	}

	var dispatcher appchat.Dispatcher = push.Noop{}
	if cfg.PushURL != "" {
		dispatcher = &push.Client{
			HTTPClient: &http.Client{Timeout: cfg.PushTimeout},
			Endpoint:   cfg.PushURL,
			ServerKey:  cfg.PushServerKey,
			Logger:     logger,
		}
		logger.Info("push dispatcher configured", "endpoint", cfg.PushURL)
	}

	var avatars appchat.AvatarResolver
	if cfg.S3Endpoint != "" {
		resolver, err := s3.NewAvatarResolver(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3PublicEndpoint, logger)
		if err != nil {
			logger.Warn("avatar resolver init failed, previews will omit images", "error", err)
		} else {
			avatars = resolver
		}
	}

	registry := presence.NewRegistry()
	registry.Flags = users
	registry.Logger = logger

	engine := &appchat.Engine{
		Store:       store,
		Users:       users,
		Presence:    registry,
		Push:        dispatcher,
		Avatars:     avatars,
		Events:      events,
		Logger:      logger,
		PushTimeout: cfg.PushTimeout,
	}
	hub := realtime.NewHub(registry, engine, logger)
	registry.OnChange = presenceFanout(hub, events, logger)

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: ready,
	}, ginserver.Handlers{
		Message:   ginserver.MessageHandler{Engine: engine, Logger: logger},
		PushToken: ginserver.PushTokenHandler{Users: users, Logger: logger},
		Realtime:  hub.Handle,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

// presenceFanout pushes online-set changes to every connected client and
// mirrors them onto the event broker when one is configured.
func presenceFanout(hub *realtime.Hub, events appchat.EventPublisher, logger *slog.Logger) func([]string) {
	return func(online []string) {
		hub.BroadcastPresence(online)
		if events == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err := events.Publish(ctx, appchat.Event{
			Kind:   appchat.EventPresenceChanged,
			Online: online,
			At:     time.Now().UTC(),
		})
		if err != nil {
			logger.Warn("presence event publish failed", "error", err)
		}
	}
}

type userFixture struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	AvatarKey   string   `json:"avatarKey"`
	PushTokens  []string `json:"pushTokens"`
}

// loadUserFixtures seeds the in-memory user store for local runs.
func loadUserFixtures(store *memory.UserStore, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fixtures []userFixture
	if err := json.Unmarshal(raw, &fixtures); err != nil {
		return err
	}
	for _, f := range fixtures {
		store.Seed(domainuser.User{
			ID:          f.ID,
			DisplayName: f.DisplayName,
			AvatarKey:   f.AvatarKey,
			PushTokens:  f.PushTokens,
			CreatedAt:   time.Now().UTC(),
		})
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
