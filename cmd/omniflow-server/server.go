package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/omnipro-bh/omniflow/pkg/persistence"
	"github.com/omnipro-bh/omniflow/pkg/web"
)

type Server struct {
	logger  *slog.Logger
	store   persistence.Persistence
	handler web.EventHandler
}

func NewServer(logger *slog.Logger, store persistence.Persistence, handler web.EventHandler) *Server {
	return &Server{
		logger:  logger,
		store:   store,
		handler: handler,
	}
}

func (s *Server) App() *fiber.App {
	validate := validator.New(validator.WithRequiredStructEnabled())
	handlers := web.NewWebhookHandlers(s.handler, s.store, validate, s.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("OmniFlow")
	})

	app.Post("/webhook/:workflowId", handlers.HandleWebhook)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (s *Server) Start(port int) error {
	return s.App().Listen(":" + strconv.Itoa(port))
}
