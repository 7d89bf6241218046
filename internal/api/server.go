// Package api wires the Gin HTTP surface: route dispatch, the uniform
// error envelope, and request-scoped cancellation — grounded on the
// teacher's internal/api/server.go (gin.New + gin.Recovery/Logger +
// gin-contrib/cors) but scoped to this gateway's much smaller route set.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/floegw/floe/internal/chunkstore"
	"github.com/floegw/floe/internal/config"
	"github.com/floegw/floe/internal/kv"
	"github.com/floegw/floe/internal/logger"
	"github.com/floegw/floe/internal/publish"
	"github.com/floegw/floe/internal/readproxy"
	"github.com/floegw/floe/internal/session"
	"github.com/floegw/floe/internal/upload"
	"github.com/floegw/floe/internal/wshub"
)

// Server owns the Gin engine and every handler's dependencies.
type Server struct {
	engine *gin.Engine
	cfg    *config.Config
	log    *logger.Logger

	kv       *kv.Client
	chunks   *chunkstore.Store
	sessions *session.Service

	chunkHandler *upload.ChunkHandler
	finalizer    *upload.Engine
	coordinator  *publish.Coordinator
	resolver     *readproxy.Resolver
	stitcher     *readproxy.Stitcher
	hub          *wshub.Hub
}

type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	KV           *kv.Client
	Chunks       *chunkstore.Store
	Sessions     *session.Service
	ChunkHandler *upload.ChunkHandler
	Finalizer    *upload.Engine
	Coordinator  *publish.Coordinator
	Resolver     *readproxy.Resolver
	Stitcher     *readproxy.Stitcher
	Hub          *wshub.Hub
}

func New(d Deps) *Server {
	s := &Server{
		cfg:          d.Config,
		log:          d.Logger,
		kv:           d.KV,
		chunks:       d.Chunks,
		sessions:     d.Sessions,
		chunkHandler: d.ChunkHandler,
		finalizer:    d.Finalizer,
		coordinator:  d.Coordinator,
		resolver:     d.Resolver,
		stitcher:     d.Stitcher,
		hub:          d.Hub,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	if s.cfg.Environment == "development" {
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	corsConfig := cors.Config{
		AllowOriginFunc: func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "X-Chunk-Sha256", "Range"},
		ExposeHeaders:    []string{"Content-Range", "Content-Length", "Accept-Ranges", "ETag"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	r.Use(cors.New(corsConfig))

	v1 := r.Group("/v1")
	uploads := v1.Group("/uploads")
	uploads.POST("/create", s.handleCreateUpload)
	uploads.PUT("/:uploadId/chunk/:index", s.handleUploadChunk)
	uploads.GET("/:uploadId/status", s.handleStatus)
	uploads.POST("/:uploadId/complete", s.handleComplete)
	uploads.DELETE("/:uploadId", s.handleCancel)
	uploads.GET("/:uploadId/watch", s.handleWatch)

	files := v1.Group("/files")
	files.GET("/:fileId/metadata", s.handleMetadata)
	files.GET("/:fileId/manifest", s.handleManifest)
	files.GET("/:fileId/stream", s.handleStream)
	files.HEAD("/:fileId/stream", s.handleStream)

	v1.GET("/metrics", s.handleMetrics)
	v1.GET("/admin/gc-index", s.handleGCIndex)

	r.GET("/health", s.handleHealth)

	s.engine = r
}

// Run starts listening, blocking until the server exits.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

// Handler exposes the underlying http.Handler, e.g. for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.engine
}
