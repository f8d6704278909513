package main

import (
	"log"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradeport/internal/config"
	"tradeport/internal/database"
	"tradeport/internal/escrow"
	"tradeport/internal/finance"
	"tradeport/internal/handlers"
	"tradeport/internal/routes"
	"tradeport/internal/services"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	}

	cfg := config.Load()

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal("❌ Failed to connect to database:", err)
	}
	defer database.Close(db)

	// Run migrations
	if err := database.Migrate(db); err != nil {
		log.Fatal("❌ Failed to migrate database:", err)
	}
	log.Println("✅ Database connected and migrated successfully")

	// Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Core services
	calc := finance.NewCalculator(cfg.CommissionBPS, cfg.DefaultCourierFee)
	engine := escrow.NewEngine(db, calc, escrow.NewMetrics(registry), cfg.MinWithdrawal)
	paystack := services.NewPaystackService(cfg.PaystackSecretKey)
	notifier := services.NewNotificationService(cfg.ResendAPIKey, cfg.FromEmail)

	// Handlers
	orderHandler := handlers.NewOrderHandler(db, calc, engine, notifier)
	escrowHandler := handlers.NewEscrowHandler(db, engine)
	disputeHandler := handlers.NewDisputeHandler(db, engine)
	walletHandler := handlers.NewWalletHandler(db, engine)
	adminHandler := handlers.NewAdminHandler(db, engine, paystack, notifier)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:   "Tradeport API v1.0",
		BodyLimit: 10 * 1024 * 1024,
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	// Health check routes
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to Tradeport API",
			"status":  "running",
			"version": "1.0",
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Setup application routes
	routes.SetupRoutes(app)
	routes.SetupOrderRoutes(app, orderHandler)
	routes.SetupEscrowRoutes(app, escrowHandler)
	routes.SetupDisputeRoutes(app, disputeHandler)
	routes.SetupWalletRoutes(app, walletHandler)
	routes.SetupAdminRoutes(app, adminHandler)

	// Start server
	log.Printf("🚀 Tradeport server starting on http://localhost:%s", cfg.Port)
	log.Fatal(app.Listen(":" + cfg.Port))
}
