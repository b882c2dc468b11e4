package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// handleV1ListSummaries returns stored CDI summaries
// GET /api/v1/summaries?limit=N
func (s *Server) handleV1ListSummaries(c *gin.Context) {
	limit := s.cfg.DefaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	if s.cfg.MaxLimit > 0 && limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	summaries, err := s.store.ListSummaries(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": summaries,
		"meta": gin.H{
			"count": len(summaries),
			"limit": limit,
		},
	})
}

// handleV1GetSummary returns one summary
// GET /api/v1/summaries/:local_cdi_id
func (s *Server) handleV1GetSummary(c *gin.Context) {
	id := c.Param("local_cdi_id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "local_cdi_id is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	summary, err := s.store.GetSummary(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if summary == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "summary not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": summary,
	})
}

// handleV1CSRLookup resolves the cruise summary report for a platform
// GET /api/v1/csr?platform=CODE&date=YYYYMMDD
func (s *Server) handleV1CSRLookup(c *gin.Context) {
	if s.csr == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "CSR reference table not loaded"})
		return
	}

	platform := strings.TrimSpace(c.Query("platform"))
	if platform == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "platform is required"})
		return
	}
	date, err := time.Parse("20060102", c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, want YYYYMMDD"})
		return
	}

	code, ok := s.csr.Query(platform, date)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no CSR covers this platform and date"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"platform":      platform,
			"date":          date.Format("2006-01-02"),
			"csr_reference": code,
		},
	})
}
