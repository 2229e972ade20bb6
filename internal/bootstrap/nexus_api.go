package bootstrap

import (
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"

	httpadapter "nexus_server/adapter/in/http"
	"nexus_server/config"
	"nexus_server/core/domain"
	"nexus_server/core/port/out"
	"nexus_server/infra/middleware"
	"nexus_server/pkg/logger"
)

// NewAPI builds the fiber app with every route mounted. The returned
// cleanup closes the backing stores.
func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "nexus-api",
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("dependency initialization failed")
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             cfg.IngestMaxBodySize,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.AccessLogger(cfg.IsDevelopment()))
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID,X-Api-Key,X-Device-Id,X-Batch-Size,Content-Encoding",
		MaxAge:       86400,
	}))

	// Probes, no auth
	healthHandler := httpadapter.NewHealthHandlerWithDeps(deps.DB, deps.Redis, deps.MongoDB)
	healthHandler.Register(app)

	chatHandler := httpadapter.NewChatHandler(deps.ChatService)
	alertHandler := httpadapter.NewAlertHandler(deps.AlertService)
	emailHandler := httpadapter.NewEmailHandler(deps.EmailService)
	whatsappHandler := httpadapter.NewWhatsAppHandler(deps.WhatsAppService, cfg.IngestMaxBatch)

	// Telco webhook, no auth: the sender is a telco callback, not a
	// session holder.
	chatHandler.RegisterPublic(app)

	// Bearer-protected surface
	api := app.Group("", middleware.JWTAuth(cfg.JWTSecret), ensureUser(deps.Users))
	// Chat routes keep the legacy shared-password header on top of the
	// bearer token.
	chatHandler.Register(api.Group("", middleware.AppPasswordGuard(cfg.AppPassword)))
	alertHandler.Register(api)
	emailHandler.Register(api)
	whatsappHandler.Register(api)

	// Stats route takes the shared-password header on top of the
	// bearer token, like the chat routes.
	whatsappHandler.RegisterDevice(api.Group("", middleware.AppPasswordGuard(cfg.AppPassword)))

	logger.Info("API initialized")
	return app, cleanup, nil
}

// ensureUser auto-provisions the caller's row on first sight so every
// downstream insert has a valid user reference. Known ids are cached
// in process to keep the hot path free of writes.
func ensureUser(users out.UserRepository) fiber.Handler {
	var seen sync.Map

	return func(c *fiber.Ctx) error {
		userID, ok := middleware.UserID(c)
		if !ok {
			return c.Next()
		}
		if _, cached := seen.Load(userID); cached {
			return c.Next()
		}

		user := &domain.User{ID: userID, Email: middleware.UserEmail(c)}
		if err := users.CreateUser(c.Context(), user); err != nil {
			logger.WithError(err).WithUser(userID.String()).Warn("user auto-provision failed")
			return c.Next()
		}
		seen.Store(userID, struct{}{})
		return c.Next()
	}
}
