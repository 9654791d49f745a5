package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/deathboy20/stream-server/internal/adapters/signal"
	"github.com/deathboy20/stream-server/internal/app"
	"github.com/deathboy20/stream-server/internal/config"
	"github.com/deathboy20/stream-server/internal/core"
	"github.com/deathboy20/stream-server/internal/domain"
	"github.com/deathboy20/stream-server/internal/observability"
	"github.com/deathboy20/stream-server/internal/protocol"
)

type CreateSessionRequest struct {
	SessionID     string   `json:"sessionId"`
	AdmissionMode string   `json:"admissionMode"`
	Title         string   `json:"title"`
	UserID        string   `json:"userId"`
	Layout        string   `json:"layout"`
	SourceCount   int      `json:"sourceCount"`
	SourceIDs     []string `json:"sourceIds"`
	IsMultiSource bool     `json:"isMultiSource"`
}

func SetupRouter(ctx context.Context, cfg *config.Config, orch *app.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":           "ok",
			"activeSessions":   orch.Registry.SessionCount(),
			"connectedClients": orch.Registry.ConnectionCount(),
		})
	})
	r.GET("/metrics", gin.WrapH(observability.MetricsHandler()))

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")

	// POST /api/sessions provisions a session ahead of the socket.
	api.POST("/sessions", func(c *gin.Context) {
		var req CreateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
		created, err := orch.ProvisionSession(c.Request.Context(), protocol.CreateSession{
			Type:          protocol.TypeCreateSession,
			SessionID:     req.SessionID,
			AdmissionMode: domain.AdmissionMode(req.AdmissionMode),
			Title:         req.Title,
			UserID:        req.UserID,
			Layout:        req.Layout,
			SourceCount:   req.SourceCount,
			SourceIDs:     req.SourceIDs,
			IsMultiSource: req.IsMultiSource,
		})
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"sessionId": created.SessionID,
			"token":     created.Token,
			"shareUrl":  created.ShareURL,
		})
	})

	// GET /api/sessions/:id returns a snapshot, short ids accepted.
	// A session absent from the registry may still have a persisted
	// document, so the store serves as the fallback read path.
	api.GET("/sessions/:id", func(c *gin.Context) {
		id := c.Param("id")
		sess, err := orch.Registry.Resolve(id)
		if err == nil {
			c.JSON(http.StatusOK, sess.Snapshot())
			return
		}
		if errors.Is(err, core.ErrNotFound) && orch.Store != nil {
			doc, derr := orch.Store.GetSession(c.Request.Context(), id)
			if derr == nil {
				c.JSON(http.StatusOK, doc)
				return
			}
		}
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
	})

	// POST /api/sessions/:id/token mints a viewer token for an existing session.
	api.POST("/sessions/:id/token", func(c *gin.Context) {
		sess, err := orch.Registry.Resolve(c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		token, err := orch.Tokens.Mint(sess.ID(), false)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessionId": sess.ID(), "token": token})
	})

	ctrl := signal.NewSignalWSController(orch, signal.NewJoinRateLimiter(cfg.JoinRateLimit, cfg.JoinRateWindow))
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrAmbiguousID):
		return http.StatusConflict
	case errors.Is(err, core.ErrUnauthorized), errors.Is(err, core.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrCapacity), errors.Is(err, core.ErrResourceBusy):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTitleTooLong), errors.Is(err, domain.ErrNameTooLong):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
