// Package httpapi exposes the REST surface under /api, the realtime endpoint
// and the Prometheus scrape endpoint.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/zerobase/internal/realtime"
	"github.com/and161185/zerobase/internal/service"
)

// Pinger reports control-plane database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RealtimeStats reports live subscribers of a project.
type RealtimeStats interface {
	Stats(projectID string) realtime.Stats
}

// Deps are the collaborators wired into the router.
type Deps struct {
	Projects  service.ProjectService
	Schema    service.SchemaService
	Documents service.DocumentService
	Auth      service.AuthService
	Storage   service.StorageService
	Activity  service.ActivityService

	Gate     Decider
	Realtime RealtimeStats
	// WS serves /ws; nil disables the realtime endpoint.
	WS     http.Handler
	Health Pinger
	Log    *zap.Logger
}

// Options tune the router.
type Options struct {
	DashboardOrigins []string
	// MaxUploadMB bounds multipart bodies on the upload route.
	MaxUploadMB int64
}

type handlers struct {
	Deps
	opts    Options
	started time.Time
	now     func() time.Time
}

// NewRouter builds the gin engine.
func NewRouter(d Deps, opts Options) *gin.Engine {
	h := &handlers{Deps: d, opts: opts, started: time.Now(), now: time.Now}

	r := gin.New()
	r.Use(Recovery(d.Log), RequestLogger(d.Log), Metrics(), DashboardCORS(opts.DashboardOrigins))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if d.WS != nil {
		r.GET("/ws", gin.WrapH(d.WS))
	}

	api := r.Group("/api")
	api.GET("/health", h.health)

	projects := api.Group("/projects")
	projects.POST("", h.createProject)
	projects.GET("", h.listProjects)
	projects.POST("/verify-key", h.verifyKey)
	projects.GET("/:id", h.getProject)
	projects.GET("/:id/urls", h.listURLs)
	projects.POST("/:id/urls", h.addURL)
	projects.DELETE("/:id/urls", h.removeURL)
	projects.POST("/:id/regenerate-key", h.regenerateKey)

	gated := api.Group("", Gate(d.Gate, d.Log), Activity(d.Activity))

	db := gated.Group("/db")
	db.GET("/tables", h.listTables)
	db.POST("/tables", h.createTable)
	db.DELETE("/tables/:tableName", h.dropTable)
	db.POST("/tables/:tableName/columns", h.addColumn)
	db.GET("/tables/:tableName/documents", h.listDocuments)
	db.POST("/tables/:tableName/documents", h.insertDocument)
	db.PUT("/tables/auth_users/documents/:userId", h.updateAuthUser)
	db.GET("/tables/:tableName/indexes", h.listIndexes)
	db.POST("/tables/:tableName/indexes", h.createIndex)
	db.DELETE("/tables/:tableName/indexes/:indexName", h.dropIndex)
	db.GET("/extensions", h.listExtensions)
	db.POST("/extensions/enable", h.enableExtension)
	db.POST("/extensions/disable", h.disableExtension)

	auth := api.Group("/auth")
	auth.POST("/init", h.initAuth)
	sdkAuth := auth.Group("", Gate(d.Gate, d.Log), Activity(d.Activity))
	sdkAuth.POST("/signup", h.signup)
	sdkAuth.POST("/login", h.login)
	sdkAuth.POST("/google", h.google)
	sdkAuth.GET("/users", h.listUsers)
	sdkAuth.DELETE("/users/:userId", h.deleteUser)

	session := Session(d.Auth, d.Log)
	auth.POST("/otp/setup", session, h.setupOTP)
	auth.POST("/otp/verify", session, h.verifyOTP)
	auth.PUT("/expiry", session, h.setExpiry)
	api.GET("/account/me", session, h.me)

	storage := gated.Group("/storage/:projectId")
	storage.GET("", h.storageInfo)
	storage.PUT("/quota", h.setQuota)
	storage.POST("/files", h.upload)
	storage.GET("/files", h.listFiles)
	storage.GET("/files/:filename", h.download)
	storage.DELETE("/files/:filename", h.deleteFile)

	gated.GET("/logs", h.listLogs)
	gated.GET("/realtime/stats", h.realtimeStats)

	return r
}
