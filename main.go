package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"microchat/internal/config"
	"microchat/internal/db"
	"microchat/internal/handlers"
	"microchat/internal/hub"
	"microchat/internal/logging"
	"microchat/internal/middleware"
	"microchat/internal/observability"
	"microchat/internal/rabbitmq"
	"microchat/internal/relay"
	"microchat/internal/repositories"
	"microchat/internal/repositories/memstore"
	"microchat/internal/services"
	"microchat/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, logger, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment)
	if err != nil {
		logger.Error("Tracing setup failed", "error", err)
		os.Exit(1)
	}
	defer shutdownTracer(context.Background())

	storage, closeStorage, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("Storage setup failed", "error", err)
		os.Exit(1)
	}
	defer closeStorage()

	instance := uuid.NewString()
	events := hub.New(logger, cfg.SubscriberBuffer)

	publisher := rabbitmq.NewPublisher(logger, cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	logger.Info("Publisher ready", "mode", rabbitmq.PublisherMode(publisher), "noop_reason", rabbitmq.PublisherNoopReason(publisher))
	audit := telemetry.NewAuditEmitter(logger, publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment)

	exporter := hub.NewForwarder(logger, "amqp-export", cfg.ForwarderBuffer, rabbitmq.NewExporter(logger, publisher, instance).Export)
	events.OnAny(exporter.Handle)
	go exporter.Run(ctx)

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:                  cfg.RedisAddr,
			Password:              cfg.RedisPassword,
			DB:                    cfg.RedisDB,
			ContextTimeoutEnabled: true,
		})
		defer client.Close()
		rel := relay.New(logger, client, cfg.RedisChannel, instance, events)
		forwarder := hub.NewForwarder(logger, "redis-relay", cfg.ForwarderBuffer, rel.Publish)
		events.OnAny(forwarder.Handle)
		go forwarder.Run(ctx)
		go func() {
			if err := rel.Run(ctx); err != nil {
				logger.Error("Relay stopped", "error", err)
			}
		}()
	}

	chatService := services.NewChats(storage, events, logger, cfg.OrdinalRetries)
	conferenceService := services.NewConferences(storage, events, logger)
	fileService := services.NewFiles(storage.Media, logger)

	chatHandler := handlers.NewChatHandler(storage, chatService, audit, logger)
	conferenceHandler := handlers.NewConferenceHandler(storage, conferenceService, audit, logger)
	mediaHandler := handlers.NewMediaHandler(storage, fileService, audit, logger)
	streamHandler := handlers.NewStreamHandler(storage, events, publisher, logger)

	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.RequestID())
	router.Use(logging.RequestLogger(logger))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	secret := []byte(cfg.JWTSecret)
	handlers.RegisterDebugRoutes(router, storage.Entities, audit, secret, cfg.DebugRoutes)

	api := router.Group("/", middleware.AuthMiddleware(secret))

	api.GET("/chats", chatHandler.ListChats)
	api.POST("/dialogs", chatHandler.OpenDialog)
	api.GET("/chats/:chat_id/messages", chatHandler.ListMessages)
	api.POST("/chats/:chat_id/messages", chatHandler.PostMessage)
	api.GET("/chats/:chat_id/messages/:no", chatHandler.GetMessage)
	api.PATCH("/chats/:chat_id/messages/:no", chatHandler.EditMessage)
	api.DELETE("/chats/:chat_id/messages/:no", chatHandler.DeleteMessage)
	api.GET("/chats/:chat_id/media/:media_type", chatHandler.ListMedia)
	api.GET("/chats/:chat_id/media/:media_type/:no", chatHandler.GetMedia)
	api.DELETE("/chats/:chat_id/media/:media_type/:no", chatHandler.DeleteMedia)
	api.PATCH("/chats/:chat_id/permissions", chatHandler.EditPermissions)

	api.POST("/conferences", conferenceHandler.CreateConference)
	api.PATCH("/conferences/:conference_id", conferenceHandler.EditConference)
	api.DELETE("/conferences/:conference_id", conferenceHandler.DeleteConference)
	api.GET("/conferences/:conference_id/members", conferenceHandler.ListMembers)
	api.POST("/conferences/:conference_id/members", conferenceHandler.AddMember)
	api.GET("/conferences/:conference_id/members/:member", conferenceHandler.GetMember)
	api.DELETE("/conferences/:conference_id/members/:member", conferenceHandler.RemoveMember)
	api.GET("/conferences/:conference_id/members/:member/permissions", conferenceHandler.GetMemberPermissions)
	api.PATCH("/conferences/:conference_id/members/:member/permissions", conferenceHandler.EditMemberPermissions)

	api.POST("/media", mediaHandler.Upload)
	api.GET("/media/:hash", mediaHandler.Download)

	api.GET("/events", streamHandler.SSE)
	api.GET("/ws/events", streamHandler.WS)

	server := &http.Server{Addr: ":" + cfg.Port, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Server shutdown", "error", err)
		}
	}()

	logger.Info("Server listening", "port", cfg.Port, "storage", cfg.StorageDriver, "instance", instance)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (repositories.Storage, func(), error) {
	blobs, err := repositories.NewBlobs(cfg.MediaRoot)
	if err != nil {
		return repositories.Storage{}, nil, err
	}
	if cfg.StorageDriver == config.DriverMemory {
		logger.Warn("Using in-memory storage, data is lost on restart")
		return memstore.New(blobs).Storage(), func() {}, nil
	}

	database, err := db.Connect(ctx, cfg.DBDSN, logger)
	if err != nil {
		return repositories.Storage{}, nil, err
	}
	return repositories.NewPostgres(database, blobs), func() { database.Close() }, nil
}
