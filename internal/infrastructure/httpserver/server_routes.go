package httpserver

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", s.metricsEndpoint)

	api := s.echo.Group("/api/v1")
	api.POST("/auth/login", s.login)

	protected := api.Group("")
	protected.Use(s.middleware.JWT.RequireJWT())

	protected.GET("/constraints", s.listConstraints)
	protected.PUT("/constraints", s.updateConstraints)
	protected.GET("/rate-limits/:tag", s.getRateLimitStatus)
	protected.PUT("/channel", s.setChannel)
	protected.GET("/channel", s.getChannel)
	protected.POST("/events", s.addEvent)
}
