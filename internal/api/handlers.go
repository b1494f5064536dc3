package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"medichat/internal/worker"
)

// WorkerManager answers questions on the bounded worker pool.
type WorkerManager interface {
	Answer(ctx context.Context, key, question string) (string, error)
}

// Handler wires HTTP routes to the answer workers.
type Handler struct {
	workers WorkerManager
	log     logrus.FieldLogger
}

// NewHandler constructs a Handler instance.
func NewHandler(workers WorkerManager, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{workers: workers, log: log}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.GET("/", h.healthCheck)
	router.POST("/chat", h.chat)
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "Backend is running"})
}

type chatRequest struct {
	Message *string `json:"message"`
}

func (h *Handler) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == nil || strings.TrimSpace(*req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
		return
	}
	log := requestLogger(c, h.log)
	log.WithField("message", *req.Message).Debug("question received")

	answer, err := h.workers.Answer(c.Request.Context(), c.ClientIP(), *req.Message)
	if err != nil {
		if errors.Is(err, worker.ErrDispatcherBusy) {
			log.Warn("worker queue full")
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
			return
		}
		log.WithError(err).Error("answer generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	log.WithField("answer_len", len(answer)).Info("answer sent")
	c.JSON(http.StatusOK, gin.H{"answer": answer})
}
