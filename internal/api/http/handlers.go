package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/threadscope/internal/features"
	"github.com/GriffinCanCode/threadscope/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/threadscope/internal/shared/utils"
	"github.com/GriffinCanCode/threadscope/internal/thread"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ThreadService assembles and lists threads. *thread.Assembler satisfies it.
type ThreadService interface {
	Assemble(ctx context.Context, threadID, featureID string) (*thread.Result, error)
	ListThreads(ctx context.Context, featureID string, limit int, cursor string) (*thread.List, error)
}

// CacheStats reports the size of the upstream response cache
type CacheStats interface {
	CacheSize() int
}

// Handlers contains all HTTP handlers
type Handlers struct {
	threads  ThreadService
	features *features.Registry
	cache    CacheStats
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(threads ThreadService, registry *features.Registry, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		threads:  threads,
		features: registry,
		logger:   logger,
	}
}

// WithMetrics attaches a metrics collector reported by Health
func (h *Handlers) WithMetrics(metrics *monitoring.Metrics) *Handlers {
	h.metrics = metrics
	return h
}

// WithCacheStats attaches the cache reported by Health
func (h *Handlers) WithCacheStats(cache CacheStats) *Handlers {
	h.cache = cache
	return h
}

// Register mounts the API routes
func (h *Handlers) Register(router gin.IRouter) {
	router.GET("/health", h.Health)

	api := router.Group("/api")
	api.GET("/features", h.ListFeatures)
	api.GET("/features/:id/threads", h.ListThreads)
	api.GET("/threads/:id", h.GetThread)
}

// Health handles health check
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":   "healthy",
		"service":  "threadscope",
		"features": h.features.Len(),
	}
	if h.cache != nil {
		body["cache_entries"] = h.cache.CacheSize()
	}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}

// ListFeatures lists the registered features
func (h *Handlers) ListFeatures(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"features": h.features.List(),
	})
}

// ListThreads lists one page of a feature's threads
func (h *Handlers) ListThreads(c *gin.Context) {
	featureID := c.Param("id")
	cursor := c.Query("cursor")

	if err := utils.ValidateID(featureID, "feature_id", true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := utils.ValidateCursor(cursor); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	list, err := h.threads.ListThreads(c.Request.Context(), featureID, limit, cursor)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

// GetThread returns one thread with its span forest
func (h *Handlers) GetThread(c *gin.Context) {
	threadID := c.Param("id")
	featureID := c.Query("feature")

	if err := utils.ValidateID(threadID, "thread_id", true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := utils.ValidateID(featureID, "feature", false); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.threads.Assemble(c.Request.Context(), threadID, featureID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxListLimit {
		return 0, errInvalidLimit
	}
	return n, nil
}
