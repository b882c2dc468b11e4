package http

import "github.com/gin-gonic/gin"

// registerV1Routes sets up /api/v1: summaries and CSR lookups.
func (s *Server) registerV1Routes() {
	v1 := s.engine.Group("/api/v1")
	v1.Use(apiVersionMiddleware())

	v1.GET("/summaries", s.handleV1ListSummaries)
	v1.GET("/summaries/:local_cdi_id", s.handleV1GetSummary)
	v1.GET("/csr", s.handleV1CSRLookup)
}

func apiVersionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-API-Version", "v1")
		c.Next()
	}
}
