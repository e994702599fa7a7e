package api

import (
	"time"

	"github.com/gofiber/contrib/otelfiber/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Handlers struct {
	Sessions      *SessionHandler
	Notifications *NotificationHandler
	Messages      *MessageHandler
	Devices       *DeviceHandler
}

type RouterConfig struct {
	ServiceName string
	JWTSecret   string
	// RateLimitMax requests per RateLimitWindow per client IP; zero disables the limiter.
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// NewApp builds the fiber app with the middleware chain and every route.
func NewApp(cfg RouterConfig, h Handlers, logger *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               cfg.ServiceName,
		DisableStartupMessage: true,
	})
	app.Use(otelfiber.Middleware())
	app.Use(PrometheusMiddleware())
	app.Use(RequestLogger(logger.Named("http")))

	if cfg.RateLimitMax > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        cfg.RateLimitMax,
			Expiration: cfg.RateLimitWindow,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "Too many request, please try again later.",
				})
			},
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.ServiceName})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	SetupRoutes(app, cfg.JWTSecret, h)
	return app
}

func SetupRoutes(app *fiber.App, jwtSecret string, h Handlers) {
	v1 := app.Group("/v1", AuthMiddleware(jwtSecret))

	sessions := v1.Group("/sessions")
	sessions.Get("/", h.Sessions.ListSessions)
	sessions.Post("/", h.Sessions.CreateSession)
	sessions.Get("/requests", h.Sessions.ListRequests)
	sessions.Get("/history", h.Sessions.ListHistory)
	sessions.Get("/:id", h.Sessions.GetSession)
	sessions.Patch("/:id/status", h.Sessions.UpdateStatus)
	sessions.Post("/:id/feedback", h.Sessions.AddFeedback)
	sessions.Delete("/:id", h.Sessions.DeleteSession)

	notifications := v1.Group("/notifications")
	notifications.Get("/", h.Notifications.ListNotifications)
	notifications.Post("/", h.Notifications.SendSystem)
	notifications.Get("/unread-count", h.Notifications.UnreadCount)
	notifications.Patch("/read", h.Notifications.MarkAsRead)
	notifications.Delete("/", h.Notifications.DeleteAll)
	notifications.Delete("/:id", h.Notifications.DeleteNotification)

	messages := v1.Group("/messages")
	messages.Post("/", h.Messages.SendMessage)
	messages.Post("/attachments", h.Messages.AttachmentUploadURL)
	messages.Patch("/read", h.Messages.MarkAsRead)
	messages.Get("/unread-count", h.Messages.UnreadCount)
	messages.Get("/conversations", h.Messages.ListConversations)
	messages.Get("/conversations/:userId", h.Messages.GetConversation)
	messages.Put("/:id", h.Messages.UpdateMessage)
	messages.Delete("/:id", h.Messages.DeleteMessage)

	v1.Post("/devices", h.Devices.RegisterDevice)
}
