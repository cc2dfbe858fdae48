package main

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"

	"github.com/accountax/marketd/cmd/config"
	"github.com/accountax/marketd/internal/handlers"
	"github.com/accountax/marketd/internal/logger"
	"github.com/accountax/marketd/internal/notifier"
	"github.com/accountax/marketd/internal/storage"
	"github.com/accountax/marketd/internal/storage/memory"
	"github.com/accountax/marketd/internal/workers"
)

func main() {
	config.ParseFlags()

	if err := logger.Initialize(config.LogLevel); err != nil {
		logger.Log.Fatal("Failed to initialize logger", zap.Error(err))
	}

	var store storage.Store
	if config.DatabaseURI == "" {
		logger.Log.Warn("DATABASE_URI is empty, using in-memory store")
		store = memory.New()
	} else {
		pg, err := storage.Init(config.DatabaseURI)
		if err != nil {
			logger.Log.Fatal("Failed to init storage", zap.Error(err))
		}
		store = pg
	}

	handlers.Init(store, notifier.New(config.NotifierAddress))
	workers.InitRiskWorker(store, config.RiskWorkerInterval)

	if err := run(); err != nil {
		logger.Log.Fatal("Failed to run server", zap.Error(err))
	}
}

func run() error {
	app := fiber.New()
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	}))

	handlers.Routes(app)

	logger.Log.Info("Running server", zap.String("address", config.RunAddress))
	return app.Listen(config.RunAddress)
}
