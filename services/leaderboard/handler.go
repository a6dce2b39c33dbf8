package leaderboard

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"examprep-marketplace/pkg/errutil"
	"examprep-marketplace/pkg/httpapi"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func RegisterRoutes(r *httpapi.Router, h *Handler) {
	r.Public.GET("/affiliate/leaderboard", h.Top)
	r.Protected.GET("/affiliate/leaderboard/export", h.Export)
}

func limitParam(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errutil.BadRequest("limit must be a positive integer", nil,
			errutil.WithDetails(errutil.Detail{Field: "limit", Message: "must be a positive integer"}))
	}
	return limit, nil
}

func (h *Handler) Top(c *gin.Context) {
	limit, err := limitParam(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	entries, err := h.svc.TopAffiliates(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

func (h *Handler) Export(c *gin.Context) {
	limit, err := limitParam(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	data, err := h.svc.Export(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}

	name := fmt.Sprintf("leaderboard_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, xlsxContentType, data)
}
