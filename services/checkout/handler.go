package checkout

import (
	"net/http"

	"examprep-marketplace/pkg/errutil"
	"examprep-marketplace/pkg/httpapi"
	"examprep-marketplace/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func RegisterRoutes(r *httpapi.Router, h *Handler) {
	r.Protected.POST("/payments/orders", h.CreateOrder)
}

type createOrderRequest struct {
	CourseID     string `json:"courseId" binding:"required"`
	ReferralCode string `json:"referralCode"`
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("courseId is required", nil))
		return
	}

	res, err := h.svc.CreateOrder(c.Request.Context(), CreateOrderParams{
		CourseID:     req.CourseID,
		ReferralCode: req.ReferralCode,
		BuyerID:      middleware.UserID(c),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	var affiliateID any
	if res.AffiliateID != "" {
		affiliateID = res.AffiliateID
	}

	c.JSON(http.StatusOK, gin.H{
		"order": gin.H{
			"id":       res.Order.GatewayOrderID,
			"amount":   res.Order.AmountMinor,
			"currency": res.Order.Currency,
			"receipt":  res.Order.Receipt,
		},
		"keyId":       res.KeyID,
		"affiliateId": affiliateID,
	})
}
