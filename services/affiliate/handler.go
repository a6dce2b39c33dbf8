package affiliate

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"examprep-marketplace/pkg/db/pagination"
	"examprep-marketplace/pkg/errutil"
	"examprep-marketplace/pkg/httpapi"
	"examprep-marketplace/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func RegisterRoutes(r *httpapi.Router, h *Handler) {
	r.Public.GET("/affiliate/track/:code", h.TrackClick)

	links := r.Protected.Group("/affiliate/links")
	links.POST("", h.CreateLink)
	links.GET("", h.ListLinks)
	links.GET("/:id", h.GetLink)
	links.GET("/:id/qr", h.QRCode)
	links.PATCH("/:id/status", h.SetStatus)

	r.Protected.GET("/affiliate/analytics", h.Analytics)
}

type linkResponse struct {
	*AffiliateLink
	Earnings     decimal.Decimal `json:"earnings"`
	SharableLink string          `json:"sharableLink"`
}

func (h *Handler) toResponse(l *AffiliateLink) linkResponse {
	return linkResponse{
		AffiliateLink: l,
		Earnings:      l.Earnings(),
		SharableLink:  h.svc.SharableURL(l.CourseID, l.Code),
	}
}

type createLinkRequest struct {
	CourseID string `json:"courseId" binding:"required"`
}

func (h *Handler) CreateLink(c *gin.Context) {
	var req createLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("courseId is required", nil))
		return
	}

	link, created, err := h.svc.GetOrCreate(c.Request.Context(), middleware.UserID(c), req.CourseID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"created": created, "link": h.toResponse(link)})
}

func (h *Handler) ListLinks(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination", nil))
		return
	}

	links, info, err := h.svc.ListLinks(c.Request.Context(), ListLinksParams{
		AffiliateID: middleware.UserID(c),
		Cursor:      page.Cursor,
		Limit:       page.Limit,
		Statuses:    parseStatuses(c.Query("status")),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	out := make([]linkResponse, 0, len(links))
	for _, l := range links {
		out = append(out, h.toResponse(l))
	}
	c.JSON(http.StatusOK, gin.H{"links": out, "page": info})
}

// parseStatuses splits a comma separated status filter.
func parseStatuses(raw string) []LinkStatus {
	var out []LinkStatus
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, LinkStatus(strings.ToLower(part)))
		}
	}
	return out
}

func (h *Handler) GetLink(c *gin.Context) {
	link, err := h.svc.GetLink(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	days, _ := strconv.Atoi(c.Query("days"))
	perf, err := h.svc.Performance(c.Request.Context(), link, days)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"link": h.toResponse(link), "performance": perf})
}

func (h *Handler) QRCode(c *gin.Context) {
	link, err := h.svc.GetLink(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	size, _ := strconv.Atoi(c.Query("size"))
	png, err := h.svc.QRCode(link, size)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

type setStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) SetStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("status is required", nil))
		return
	}

	link, err := h.svc.SetStatus(c.Request.Context(), c.Param("id"), LinkStatus(req.Status))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"link": h.toResponse(link)})
}

// TrackClick answers identically whether or not the code exists so the
// endpoint cannot be used to enumerate codes.
func (h *Handler) TrackClick(c *gin.Context) {
	code := c.Param("code")
	err := h.svc.RecordClick(c.Request.Context(), code, ClickMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referer:   c.Request.Referer(),
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrLinkNotFound):
		zap.L().Info("click on unknown affiliate code", zap.String("code", code))
	default:
		zap.L().Warn("click not recorded", zap.String("code", code), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"message": "click tracked"})
}

func (h *Handler) Analytics(c *gin.Context) {
	overview, err := h.svc.Overview(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, overview)
}
