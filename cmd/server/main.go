package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"leadpulse/internal/config"
	"leadpulse/internal/database"
	"leadpulse/internal/handlers"
	"leadpulse/internal/jobs"
	"leadpulse/internal/logging"
	"leadpulse/internal/middleware"
	"leadpulse/internal/models"
	"leadpulse/internal/services"
	"leadpulse/internal/store"
	"leadpulse/pkg/auth"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting LeadPulse engagement engine...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s)", cfg.Port)

	// Lead store: MongoDB when configured, in-memory otherwise
	var leadStore store.Store
	var mongoDB *database.MongoDB
	if cfg.MongoURI != "" {
		log.Println("🔗 Connecting to MongoDB...")
		var err error
		mongoDB, err = database.NewMongoDB(cfg.MongoURI)
		if err != nil {
			log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
		}
		defer mongoDB.Close(context.Background())
		if err := mongoDB.Initialize(context.Background()); err != nil {
			log.Fatalf("❌ Failed to initialize MongoDB indexes: %v", err)
		}
		leadStore = store.NewMongoStore(mongoDB)
		log.Println("✅ MongoDB connected successfully")
	} else {
		if os.Getenv("ENVIRONMENT") == "production" {
			log.Fatal("❌ MONGODB_URI is required in production")
		}
		leadStore = store.NewMemoryStore()
		log.Println("⚠️ MONGODB_URI not set - using in-memory store (development mode only)")
	}

	// Redis: offline queueing and cross-instance broadcast relay. Both
	// degrade gracefully when Redis is unavailable.
	var queueService *services.QueueService
	var pubsubService *services.PubSubService
	redisService, err := services.NewRedisService(cfg.RedisURL)
	if err != nil {
		log.Printf("⚠️ Redis unavailable: %v (offline queue and relay disabled)", err)
	} else {
		defer redisService.Close()
		queueService = services.NewQueueService(redisService)
		pubsubService = services.NewPubSubService(redisService, uuid.New().String())
		if err := pubsubService.Start(); err != nil {
			log.Printf("⚠️ Failed to start broadcast relay: %v", err)
			pubsubService = nil
		}
		log.Println("✅ Redis connected successfully")
	}

	// Core services
	connManager := services.NewConnectionManager(queueService, pubsubService)
	connManager.StartReaper()

	scoringService := services.NewScoringService(leadStore)

	var dispatcher services.Dispatcher
	if cfg.DispatchEndpoint != "" {
		dispatcher = services.NewHTTPDispatcher(cfg.DispatchEndpoint, cfg.DispatchAPIKey, cfg.DispatchRate, 5)
		log.Printf("📨 Dispatch endpoint: %s", cfg.DispatchEndpoint)
	} else {
		dispatcher = &services.LogDispatcher{}
		log.Println("⚠️ DISPATCH_ENDPOINT not set - automations will be logged, not delivered")
	}

	assigner := services.NewRoundRobinAssigner(leadStore)
	automationService := services.NewAutomationService(leadStore, dispatcher, assigner)

	eventRouter := services.NewEventRouter(scoringService, connManager)
	statsService := services.NewStatsService(leadStore)

	// Signal wiring: every score update feeds the automation triggers; a
	// lead turning hot alerts the agent channel; an assignment notifies
	// the lead's own channel.
	scoringService.OnScoreUpdated(automationService.HandleScoreUpdate)
	scoringService.OnScoreUpdated(func(ctx context.Context, update *services.ScoreUpdate) {
		if metrics := services.GetMetrics(); metrics != nil {
			metrics.ScoreUpdates.Inc()
			metrics.LeadScores.Observe(float64(update.NewScore))
		}
	})
	scoringService.OnLeadBecameHot(func(ctx context.Context, update *services.ScoreUpdate) {
		if metrics := services.GetMetrics(); metrics != nil {
			metrics.HotLeads.Inc()
		}
		connManager.Broadcast(ctx, models.ChannelAgentAlert, models.ServerMessage{
			Type: "broadcast",
			Payload: map[string]interface{}{
				"event":       "lead_hot",
				"identity_id": update.Profile.IdentityID,
				"score":       update.NewScore,
			},
		})
	})
	automationService.OnAgentAssigned(func(ctx context.Context, profile *models.LeadProfile, agent *models.Agent) {
		connManager.Send(ctx, profile.IdentityID, models.ServerMessage{
			Type: "broadcast",
			Payload: map[string]interface{}{
				"event":      "agent_assigned",
				"agent_id":   agent.AgentID,
				"agent_name": agent.Name,
			},
		})
	})

	services.InitMetrics(connManager)

	// Background schedules: automation tick and job retention sweep
	jobRunner, err := jobs.NewRunner(automationService, cfg.TickInterval, cfg.GCInterval)
	if err != nil {
		log.Fatalf("❌ Failed to create job runner: %v", err)
	}
	jobRunner.Start()

	// JWT verification for the WebSocket handshake. Without a secret every
	// connection is anonymous.
	var verifier *auth.TokenVerifier
	if cfg.JWTSecret != "" {
		verifier, err = auth.NewTokenVerifier(cfg.JWTSecret)
		if err != nil {
			log.Fatalf("❌ Failed to create token verifier: %v", err)
		}
	} else {
		if os.Getenv("ENVIRONMENT") == "production" {
			log.Fatal("❌ JWT_SECRET is required in production")
		}
		log.Println("⚠️ JWT_SECRET not set - all connections treated as anonymous")
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "LeadPulse v1.0",
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("leadpulse")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	rateLimitConfig := middleware.LoadRateLimitConfig()
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Query=%d/min, WS=%d/min",
		rateLimitConfig.GlobalAPIMax,
		rateLimitConfig.QueryMax,
		rateLimitConfig.WebSocketMax,
	)

	// CORS configuration with environment-based origins
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowedOrigins != "*",
	}))

	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))

	// Handlers
	healthHandler := handlers.NewHealthHandler(connManager)
	leadHandler := handlers.NewLeadHandler(statsService)
	wsHandler := handlers.NewWebSocketHandler(connManager, eventRouter)

	// Routes
	app.Get("/health", healthHandler.Handle)

	queryLimiter := middleware.QueryRateLimiter(rateLimitConfig)
	app.Get("/api/leads", queryLimiter, leadHandler.List)
	app.Get("/api/leads/:identity", queryLimiter, leadHandler.Get)
	app.Get("/api/stats", queryLimiter, leadHandler.Stats)

	// WebSocket route: upgrade check, per-IP connection limiter, then
	// identity resolution. A missing or invalid token downgrades to
	// anonymous instead of rejecting the handshake.
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			c.Locals("client_ip", c.IP())
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Use("/ws/events", middleware.WebSocketRateLimiter(rateLimitConfig))
	app.Use("/ws/events", func(c *fiber.Ctx) error {
		if verifier == nil {
			return c.Next()
		}
		token, err := auth.ExtractToken(c.Get("Authorization"))
		if err != nil {
			// Browsers cannot set headers on WebSocket upgrades; accept
			// the token as a query parameter too
			token = c.Query("token")
		}
		if token == "" {
			return c.Next()
		}
		identity, err := verifier.Verify(token)
		if err != nil {
			log.Printf("⚠️ Invalid token on handshake from %s: %v", c.IP(), err)
			return c.Next()
		}
		c.Locals("identity_id", identity.ID)
		c.Locals("identity_role", identity.Role)
		return c.Next()
	})

	wsConfig := websocket.Config{
		Origins: strings.Split(allowedOrigins, ","),
	}
	app.Get("/ws/events", websocket.New(wsHandler.Handle, wsConfig))

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if err := jobRunner.Stop(); err != nil {
			log.Printf("⚠️ Error stopping job runner: %v", err)
		}

		connManager.Stop()

		if pubsubService != nil {
			if err := pubsubService.Stop(); err != nil {
				log.Printf("⚠️ Error stopping broadcast relay: %v", err)
			}
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
