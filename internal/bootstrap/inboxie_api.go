package bootstrap

import (
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"

	apihttp "inboxie_server/adapter/in/http"
	"inboxie_server/config"
	"inboxie_server/infra/middleware"
	"inboxie_server/pkg/logger"
)

// NewAPI builds the fiber app with its full middleware and route tree.
func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "inboxie-api",
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),

		ReadBufferSize:  16384,
		WriteBufferSize: 16384,

		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit: 1 * 1024 * 1024,

		ServerHeader:       "",
		DisableDefaultDate: true,

		// SSE needs streaming responses
		StreamRequestBody: true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// CORS: credentials require explicit origins
	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID,Retry-After",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	// Health endpoints (no auth)
	healthHandler := apihttp.NewHealthHandler(deps.DB, deps.Redis, deps.MongoDB)
	healthHandler.Register(app)

	oauthHandler := apihttp.NewOAuthHandler(deps.OAuthService)
	processHandler := apihttp.NewProcessHandler(deps.ProcessService, deps.Progress, logger.Default())
	replyHandler := apihttp.NewReplyHandler(deps.ReplyService, deps.ProcessService)
	searchHandler := apihttp.NewSearchHandler(deps.SearchService)

	// Provider callback carries no bearer token
	public := app.Group("/api/v1")
	oauthHandler.RegisterPublic(public)

	api := app.Group("/api/v1",
		middleware.JWTAuth(cfg.JWTSecret),
		middleware.RateLimit(deps.APILimiter),
	)
	oauthHandler.Register(api)
	processHandler.Register(api)
	replyHandler.Register(api)
	searchHandler.Register(api)

	return app, cleanup, nil
}
