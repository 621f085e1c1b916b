package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/skybeam/engage/configs"
	"github.com/skybeam/engage/internal/application/services"
	"github.com/skybeam/engage/internal/core/ports"
	customMiddleware "github.com/skybeam/engage/internal/infrastructure/httpserver/middleware"
)

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	TLSCertFile  string
	TLSKeyFile   string
}

type ServerDeps struct {
	Limits         *services.FrequencyLimitManager
	LimitStore     ports.FrequencyLimitStore
	RateLimiter    *services.RateLimiter
	Auth           *services.AuthManager
	Events         *services.EventService
	HealthCheckers []ports.HealthChecker
}

type Server struct {
	echo           *echo.Echo
	config         *ServerConfig
	admin          *configs.AdminConfig
	logger         *logrus.Logger
	limits         *services.FrequencyLimitManager
	limitStore     ports.FrequencyLimitStore
	rateLimiter    *services.RateLimiter
	auth           *services.AuthManager
	events         *services.EventService
	middleware     *customMiddleware.MiddlewareCollection
	healthCheckers []ports.HealthChecker
}

func NewServer(serverConfig *ServerConfig, adminConfig *configs.AdminConfig, logger *logrus.Logger, deps ServerDeps) *Server {
	e := echo.New()

	server := &Server{
		echo:           e,
		config:         serverConfig,
		admin:          adminConfig,
		logger:         logger,
		limits:         deps.Limits,
		limitStore:     deps.LimitStore,
		rateLimiter:    deps.RateLimiter,
		auth:           deps.Auth,
		events:         deps.Events,
		healthCheckers: deps.HealthCheckers,
		middleware: customMiddleware.NewMiddlewareCollection(
			logger,
			adminConfig.JWTSecret,
			GetRequestsTotal(),
			GetRequestDuration(),
		),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.echo.HideBanner = true
	s.echo.Use(s.middleware.Logging.RequestLogging())
	s.echo.Use(s.middleware.Metrics.CollectHTTPMetrics())
}
