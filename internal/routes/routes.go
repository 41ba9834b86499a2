package routes

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/models"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/services"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/pkg/metrics"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, req *models.SendRequest) (*services.Response, error)
	DispatchCampaignTask(ctx context.Context, taskID uint) (*services.Response, error)
}

type TokenRegistrar interface {
	Register(ctx context.Context, token *models.RecipientToken) error
}

// Deps are the collaborators served over HTTP. JWTSecret protects /v1 when set.
type Deps struct {
	Dispatcher Dispatcher
	Tokens     TokenRegistrar
	Metrics    *metrics.Metrics
	JWTSecret  string
	Started    time.Time
}

// NewRouter wires health, metrics and the push API.
func NewRouter(deps Deps) http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "push service healthy",
			"meta": gin.H{
				"uptime_seconds": int(time.Since(deps.Started).Seconds()),
				"timestamp":      time.Now().UTC(),
			},
		})
	})
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	h := &pushHandler{dispatcher: deps.Dispatcher, tokens: deps.Tokens}
	v1 := router.Group("/v1")
	if deps.JWTSecret != "" {
		v1.Use(AuthMiddleware(deps.JWTSecret))
	}
	{
		v1.POST("/push", h.send)
		v1.POST("/campaign-tasks/:id/send", h.sendCampaignTask)
		v1.POST("/tokens", h.registerToken)
	}
	return router
}

type pushHandler struct {
	dispatcher Dispatcher
	tokens     TokenRegistrar
}

type sendRequest struct {
	UserID   int64                  `json:"user_id" binding:"required"`
	TokenID  uint                   `json:"token_id" binding:"required"`
	Title    string                 `json:"title"`
	Body     string                 `json:"body"`
	Data     map[string]string      `json:"data"`
	Delivery models.DeliveryOptions `json:"delivery"`
}

func (h *pushHandler) send(c *gin.Context) {
	var in sendRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	resp, err := h.dispatcher.Dispatch(c.Request.Context(), &models.SendRequest{
		RequestID: uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		UserID:    in.UserID,
		TokenID:   in.TokenID,
		Title:     in.Title,
		Body:      in.Body,
		Data:      in.Data,
		Delivery:  in.Delivery,
	})
	writeResult(c, resp, err)
}

func (h *pushHandler) sendCampaignTask(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid task id"})
		return
	}
	resp, err := h.dispatcher.DispatchCampaignTask(c.Request.Context(), uint(id))
	writeResult(c, resp, err)
}

type registerTokenRequest struct {
	UserID   int64  `json:"user_id" binding:"required"`
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform"`
}

func (h *pushHandler) registerToken(c *gin.Context) {
	var in registerTokenRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if in.Platform != "" && models.PlatformCategory(in.Platform) == "unknown" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unsupported platform"})
		return
	}
	token := &models.RecipientToken{UserID: in.UserID, Token: in.Token, Platform: strings.ToLower(in.Platform)}
	if err := h.tokens.Register(c.Request.Context(), token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": token})
}

func writeResult(c *gin.Context, resp *services.Response, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, services.ErrTokenSuppressed):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
	case resp.Success():
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "push delivered"})
	default:
		derr := resp.Err()
		c.JSON(statusFor(derr), gin.H{"success": false, "error": derr})
	}
}

func statusFor(derr *services.DeliveryError) int {
	switch {
	case errors.Is(derr, services.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(derr, services.ErrGateway), errors.Is(derr, services.ErrTransmit):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
