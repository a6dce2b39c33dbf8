package settlement

import (
	"net/http"

	"examprep-marketplace/pkg/errutil"
	"examprep-marketplace/pkg/httpapi"
	"examprep-marketplace/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func RegisterRoutes(r *httpapi.Router, h *Handler) {
	r.Protected.POST("/payments/verify", h.Verify)
	r.Protected.GET("/affiliate/earnings", h.Earnings)
}

type verifyRequest struct {
	OrderID       string `json:"razorpay_order_id"`
	PaymentID     string `json:"razorpay_payment_id"`
	Signature     string `json:"razorpay_signature"`
	CourseID      string `json:"courseId"`
	AffiliateCode string `json:"affiliateCode"`
}

type purchaseResponse struct {
	ID               string          `json:"id"`
	CourseID         string          `json:"courseId"`
	AmountPaid       decimal.Decimal `json:"amountPaid"`
	CommissionEarned decimal.Decimal `json:"commissionEarned"`
	AffiliateID      *string         `json:"affiliateId"`
	PaymentID        string          `json:"paymentId"`
	Status           PurchaseStatus  `json:"status"`
}

func (h *Handler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("malformed payment verification payload", nil))
		return
	}

	res, err := h.svc.Settle(c.Request.Context(), SettleParams{
		GatewayOrderID:   req.OrderID,
		GatewayPaymentID: req.PaymentID,
		Signature:        req.Signature,
		CourseID:         req.CourseID,
		BuyerID:          middleware.UserID(c),
		ReferralCode:     req.AffiliateCode,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	p := res.Purchase
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"alreadySettled": res.AlreadySettled,
		"purchase": purchaseResponse{
			ID:               p.ID,
			CourseID:         p.CourseID,
			AmountPaid:       p.AmountPaid(),
			CommissionEarned: p.CommissionEarned(),
			AffiliateID:      p.AffiliateID,
			PaymentID:        p.GatewayPaymentID,
			Status:           p.Status,
		},
	})
}

func (h *Handler) Earnings(c *gin.Context) {
	total, err := h.svc.Earnings(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"totalEarned": total})
}
