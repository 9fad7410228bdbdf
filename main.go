package main

import (
	"context"
	"log"
	"os"

	"github.com/example/roomchat/config"
	"github.com/example/roomchat/modules/api"
	"github.com/example/roomchat/modules/broadcast"
	"github.com/example/roomchat/modules/chat"
	"github.com/example/roomchat/modules/identity"
	"github.com/example/roomchat/modules/storage"
	"github.com/example/roomchat/modules/topic"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

func main() {
	log.Println("=== Room Chat - Fiber + WebSocket + EventBus Topics ===")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel := mono.LogLevelInfo
	if cfg.LogLevel == "error" {
		logLevel = mono.LogLevelError
	}

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(logLevel),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	logger := app.Logger()

	// Create modules
	storageModule := storage.NewModule(cfg.Storage(), logger.WithModule("storage"))
	chatModule := chat.NewModule(cfg.Mode(), logger.WithModule("chat"))
	broadcastModule := broadcast.NewModule(logger.WithModule("broadcast"))
	apiModule := api.NewModule(cfg.API(), logger.WithModule("api"))

	// With Redis the topic frames bypass the event bus so that every
	// instance sharing the Redis server delivers them.
	var redisBroker *topic.RedisBroker
	if cfg.UseRedis() {
		redisBroker, err = topic.NewRedisBroker(context.Background(), cfg.Redis(), logger.WithModule("topic"))
		if err != nil {
			log.Fatalf("Failed to connect topic broker: %v", err)
		}
		chatModule.SetBroker(redisBroker)
		broadcastModule.SetRedisBroker(redisBroker)
	}

	// Inject collaborators that are not exposed via ServiceContainer
	apiModule.SetChat(chatModule)
	apiModule.SetSubscriptions(broadcastModule.Subscriptions())
	apiModule.SetTokens(identity.NewTokenManager(cfg.Identity()))

	// Register modules with the framework.
	// Order: independent modules first, then modules with dependencies
	// - storage: persistence services (ServiceProviderModule)
	// - chat: router + presence (depends on storage, emits TopicMessage)
	// - broadcast: topic subscriptions (EventConsumerModule)
	// - api: Fiber HTTP/WebSocket server (uses chat and broadcast)
	for _, module := range []mono.Module{storageModule, chatModule, broadcastModule, apiModule} {
		if err := app.Register(module); err != nil {
			log.Fatalf("Failed to register %s module: %v", module.Name(), err)
		}
	}

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				if err := app.Stop(ctx); err != nil {
					return err
				}
				if redisBroker != nil {
					return redisBroker.Close()
				}
				return nil
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg *config.Config) {
	broker := "mono EventBus (NATS)"
	if cfg.UseRedis() {
		broker = "Redis pub/sub at " + cfg.RedisAddr
	}

	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Println("Architecture:")
	log.Println("  - HTTP Framework: Fiber with WebSocket support")
	log.Printf("  - Storage: %s", cfg.DBDriver)
	log.Printf("  - Topic broker: %s", broker)
	log.Printf("  - Direct path delivery: %s", cfg.DeliveryMode)
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%s):", cfg.Port)
	log.Println("  GET    /health                    - Health check")
	log.Println("  GET    /api/v1/rooms              - List rooms")
	log.Println("  POST   /api/v1/rooms              - Open a room (auth)")
	log.Println("  GET    /api/v1/rooms/:id          - Room details")
	log.Println("  GET    /api/v1/rooms/:id/messages - Recent messages")
	log.Println("  POST   /api/v1/notices            - Site-wide notice (admin)")
	if cfg.AllowTokenIssue {
		log.Println("  POST   /api/v1/tokens             - Issue a session token")
	}
	log.Println("")
	log.Printf("WebSocket Endpoints (ws://localhost:%s):", cfg.Port)
	log.Println("  /ws/rooms/:id?token=...  - Room chat, bare frames")
	log.Println("  /ws/topics?token=...     - SUBSCRIBE / UNSUBSCRIBE / SEND envelopes")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
