package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/zerobase/internal/access"
	pkgcrypto "github.com/and161185/zerobase/internal/crypto"
	"github.com/and161185/zerobase/internal/metrics"
	"github.com/and161185/zerobase/internal/model"
	"github.com/and161185/zerobase/internal/service"
)

const (
	keyRequestID   = "request_id"
	keyProjectID   = "project_id"
	keySession     = "session"
	keyNoteMessage = "activity_message"
	keyNoteMeta    = "activity_metadata"

	headerAPIKey = "X-API-Key"

	// maxGateBody bounds how much of a JSON body is buffered to find projectId.
	maxGateBody = 1 << 20
)

// Decider is the access gate as seen by the router.
type Decider interface {
	Decide(ctx context.Context, r access.Request) (access.Decision, error)
}

// SessionVerifier authenticates tenant session tokens.
type SessionVerifier interface {
	Authenticate(token string) (pkgcrypto.SessionClaims, error)
}

// RequestLogger writes one access log line per request and tags the response
// with a request id.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			if u, err := uuid.NewV4(); err == nil {
				requestID = u.String()
			}
		}
		c.Set(keyRequestID, requestID)
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if pid := c.GetString(keyProjectID); pid != "" {
			fields = append(fields, zap.String("project_id", pid))
		}
		log.Info("http", fields...)
	}
}

// Recovery turns a handler panic into a 500 response.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			}
		}()
		c.Next()
	}
}

// Metrics records request counts and latency by route template.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// DashboardCORS answers preflight requests for any origin and adds CORS
// headers to actual requests from the configured dashboard origins. Tenant
// origins on actual requests are handled by Gate.
func DashboardCORS(origins []string) gin.HandlerFunc {
	dashboard := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		dashboard[access.NormalizeOrigin(o)] = struct{}{}
	}
	mw := cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", headerAPIKey, "projectid"},
		ExposeHeaders:    []string{"Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		if _, ok := dashboard[access.NormalizeOrigin(origin)]; ok || c.Request.Method == http.MethodOptions {
			mw(c)
			return
		}
		c.Next()
	}
}

// Gate resolves the target project from the path, the query or a JSON body
// (first non-empty wins) and runs the access rules on it.
func Gate(gate Decider, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := access.Request{
			ProjectID: requestProjectID(c),
			Origin:    c.GetHeader("Origin"),
			APIKey:    requestAPIKey(c),
		}
		d, err := gate.Decide(c.Request.Context(), req)
		if err != nil {
			respondError(c, err, log)
			return
		}
		if d.EchoOrigin != "" {
			c.Header("Access-Control-Allow-Origin", d.EchoOrigin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		}
		c.Set(keyProjectID, d.ProjectID)
		c.Next()
	}
}

func requestProjectID(c *gin.Context) string {
	if id := c.Param("projectId"); id != "" {
		return id
	}
	if id := c.Query("projectId"); id != "" {
		return id
	}
	if c.Request.Body == nil || !strings.HasPrefix(c.ContentType(), "application/json") {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxGateBody))
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), c.Request.Body))
	var body struct {
		ProjectID string `json:"projectId"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return ""
	}
	return body.ProjectID
}

func requestAPIKey(c *gin.Context) string {
	if k := c.GetHeader(headerAPIKey); k != "" {
		return k
	}
	return bearer(c)
}

func bearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Session requires a valid tenant session token: missing is 401, invalid or
// expired is 403.
func Session(auth SessionVerifier, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c)
		if token == "" {
			respondMessage(c, http.StatusUnauthorized, "no token provided")
			return
		}
		claims, err := auth.Authenticate(token)
		if err != nil {
			respondError(c, err, log)
			return
		}
		c.Set(keySession, claims)
		c.Set(keyProjectID, claims.ProjectID)
		c.Next()
	}
}

func sessionClaims(c *gin.Context) pkgcrypto.SessionClaims {
	v, _ := c.Get(keySession)
	claims, _ := v.(pkgcrypto.SessionClaims)
	return claims
}

func projectID(c *gin.Context) string {
	return c.GetString(keyProjectID)
}

// note attaches the activity-log message and metadata for the current request.
func note(c *gin.Context, msg string, meta map[string]any) {
	c.Set(keyNoteMessage, msg)
	if meta != nil {
		c.Set(keyNoteMeta, meta)
	}
}

// Activity appends every mutating request, successful or not, to the gated
// project's logs table.
func Activity(activity service.ActivityService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodOptions {
			return
		}
		pid := projectID(c)
		if pid == "" {
			return
		}
		msg := c.GetString(keyNoteMessage)
		if msg == "" {
			msg = http.StatusText(c.Writer.Status())
		}
		meta := map[string]any{}
		if v, ok := c.Get(keyNoteMeta); ok {
			if m, ok := v.(map[string]any); ok {
				meta = m
			}
		}
		if rid := c.GetString(keyRequestID); rid != "" {
			meta["request_id"] = rid
		}
		activity.Record(context.WithoutCancel(c.Request.Context()), pid, model.LogEntry{
			ProjectID: pid,
			Endpoint:  c.Request.URL.Path,
			Method:    c.Request.Method,
			Status:    c.Writer.Status(),
			Message:   msg,
			Metadata:  meta,
		})
	}
}
