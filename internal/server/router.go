package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/printhaus/backend/internal/auth"
	"github.com/printhaus/backend/internal/domain"
	syncengine "github.com/printhaus/backend/internal/sync"
	"go.uber.org/zap"
)

const (
	actorContextKey   = "printhaus_actor"
	heartbeatInterval = 25 * time.Second
)

var (
	errMissingTokenValidator = errors.New("token validator dependency required")
	errMissingSyncEngine     = errors.New("sync engine dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// TokenValidator resolves a bearer token to the actor it identifies.
type TokenValidator interface {
	ValidateToken(token string) (auth.Actor, error)
}

// SyncEngine is the reconciliation surface the router exposes.
type SyncEngine interface {
	Pull(ctx context.Context, actor auth.Actor, request syncengine.PullRequest) (*syncengine.PullResponse, error)
	Push(ctx context.Context, actor auth.Actor, request syncengine.PushRequest) error
}

type Dependencies struct {
	TokenValidator TokenValidator
	SyncEngine     SyncEngine
	Realtime       *RealtimeDispatcher
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenValidator == nil {
		return nil, errMissingTokenValidator
	}
	if deps.SyncEngine == nil {
		return nil, errMissingSyncEngine
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:   deps.TokenValidator,
		engine:   deps.SyncEngine,
		realtime: realtime,
		logger:   logger,
	}

	router.GET("/realtime", handler.handleRealtime)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/replicache/pull", handler.handlePull)
	protected.POST("/replicache/push", handler.handlePush)

	return router, nil
}

type httpHandler struct {
	tokens   TokenValidator
	engine   SyncEngine
	realtime *RealtimeDispatcher
	logger   *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	actor, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(actorContextKey, actor)
	c.Next()
}

func requestActor(c *gin.Context) (auth.Actor, bool) {
	value, ok := c.Get(actorContextKey)
	if !ok {
		return auth.Actor{}, false
	}
	actor, ok := value.(auth.Actor)
	return actor, ok
}

func (h *httpHandler) handlePull(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request syncengine.PullRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	response, err := h.engine.Pull(c.Request.Context(), actor, request)
	if err != nil {
		h.writeSyncError(c, "pull", err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handlePush(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request syncengine.PushRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.engine.Push(c.Request.Context(), actor, request); err != nil {
		h.writeSyncError(c, "push", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// writeSyncError maps the engine's error taxonomy to wire responses. Protocol
// errors travel as 200-with-error bodies so clients interpret them instead of
// treating them as transport failures.
func (h *httpHandler) writeSyncError(c *gin.Context, operation string, err error) {
	switch {
	case errors.Is(err, syncengine.ErrVersionNotSupported):
		c.JSON(http.StatusOK, gin.H{"error": "VersionNotSupported", "versionType": operation})
	case errors.Is(err, syncengine.ErrClientStateNotFound):
		c.JSON(http.StatusOK, gin.H{"error": "ClientStateNotFound"})
	case errors.Is(err, syncengine.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, syncengine.ErrOutOfSequence):
		c.JSON(http.StatusConflict, gin.H{"error": "mutation_out_of_sequence"})
	default:
		h.logger.Error("sync request failed",
			zap.String("operation", operation),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

// handleRealtime streams pokes for the actor's tenant and user channels over
// SSE. EventSource cannot set headers, so the token arrives as a query param.
func (h *httpHandler) handleRealtime(c *gin.Context) {
	token := strings.TrimSpace(c.Query("access_token"))
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	actor, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("realtime token validation failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	channels := []string{
		domain.TenantChannel(actor.TenantID),
		domain.UserChannel(actor.UserID),
	}
	stream, cleanup := h.realtime.Subscribe(c.Request.Context(), channels)
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case message, ok := <-stream:
			if !ok {
				return
			}
			writeServerSentEvent(c.Writer, message.EventType, fmt.Sprintf(`{"channel":%q}`, message.Channel))
			c.Writer.Flush()
		case <-heartbeat.C:
			writeServerSentEvent(c.Writer, realtimeEventHeartbeat, "{}")
			c.Writer.Flush()
		}
	}
}

func writeServerSentEvent(w io.Writer, eventType, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
}
