package api

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// API v1 group
	v1 := s.router.Group("/api/v1")
	{
		evaluations := v1.Group("/evaluations")
		{
			evaluations.POST("", s.limiters.evaluateLimit(), s.handleRunEvaluation)
			evaluations.GET("", s.limiters.readLimit(), s.handleListEvaluations)
			evaluations.GET("/:id", s.limiters.readLimit(), s.handleGetEvaluation)
		}

		hitl := v1.Group("/hitl")
		{
			hitl.GET("/requests", s.limiters.readLimit(), s.handleListHITLRequests)
		}

		// Live event stream; the hub applies its own backpressure.
		v1.GET("/events/stream", s.handleEventStream)
	}

	// Health and root endpoints
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/", s.handleRoot)
}
