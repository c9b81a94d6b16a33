// Package httpapi exposes the storage engine over HTTP with gin.
package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/blobkeeper/internal/logging"
	"github.com/dmitrijs2005/blobkeeper/internal/ratelimiter"
	"github.com/dmitrijs2005/blobkeeper/internal/server/metrics"
)

// multipartOverhead is allowed on top of the file size limit for the
// multipart envelope of an upload.
const multipartOverhead = 1 << 20

type RouterConfig struct {
	MaxFileSize int64
	Limiter     *ratelimiter.RateLimiter
	Metrics     *metrics.Metrics
	Logger      logging.Logger
}

func NewRouter(storage Storage, rc RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	logger := rc.Logger.With("module", "http")
	h := &handlers{storage: storage, logger: logger}

	r := gin.New()
	r.Use(recovery(logger), requestLog(logger, rc.Metrics))

	r.GET("/health", h.health)
	if rc.Metrics != nil {
		r.GET("/metrics", gin.WrapH(rc.Metrics.Handler()))
	}

	api := r.Group("/")
	if rc.Limiter != nil {
		api.Use(rateLimit(rc.Limiter))
	}

	api.POST("/users/:id", h.enroll)
	api.GET("/user", h.userInfo)
	api.POST("/upload", limitBody(rc.MaxFileSize+multipartOverhead), h.upload)
	api.GET("/s/:id", h.fetch)
	api.GET("/list", h.list)
	api.DELETE("/delete/:id", h.deleteFile)
	api.DELETE("/delete_all", h.deleteAll)

	return r
}
