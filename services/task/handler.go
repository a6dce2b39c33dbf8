package task

import (
	"errors"
	"io"
	"net/http"

	"examprep-marketplace/pkg/errutil"
	"examprep-marketplace/pkg/httpapi"

	"github.com/gin-gonic/gin"
)

const TriggerAdmin = "admin"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func RegisterRoutes(r *httpapi.Router, h *Handler) {
	r.Protected.POST("/admin/reconcile", h.Reconcile)
	r.Protected.GET("/admin/jobs/:id", h.GetJob)
}

type reconcileRequest struct {
	LinkID string `json:"linkId"`
}

func (h *Handler) Reconcile(c *gin.Context) {
	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		_ = c.Error(errutil.BadRequest("malformed reconcile request", nil))
		return
	}

	job, err := h.svc.EnqueueReconcile(c.Request.Context(), TriggerAdmin, req.LinkID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.svc.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}
