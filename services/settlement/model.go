package settlement

import (
	"time"

	"examprep-marketplace/pkg/money"

	"github.com/shopspring/decimal"
)

type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
)

// Purchase is the settlement ledger entry. Rows are append-only; one row per
// gateway payment id.
type Purchase struct {
	ID               string         `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	CourseID         string         `gorm:"column:course_id;type:varchar(64);not null;index" json:"courseId"`
	BuyerID          string         `gorm:"column:buyer_id;type:varchar(64);not null;index" json:"buyerId"`
	AffiliateID      *string        `gorm:"column:affiliate_id;type:varchar(64);index:idx_purchases_affiliate_status,priority:1" json:"affiliateId"`
	AffiliateLinkID  *string        `gorm:"column:affiliate_link_id;type:varchar(32);index" json:"affiliateLinkId"`
	AmountPaidMinor  int64          `gorm:"column:amount_paid_minor;not null" json:"amountPaidMinor"`
	CommissionMinor  int64          `gorm:"column:commission_minor;not null;default:0" json:"commissionMinor"`
	GatewayOrderID   string         `gorm:"column:gateway_order_id;type:varchar(64);not null;index" json:"gatewayOrderId"`
	GatewayPaymentID string         `gorm:"column:gateway_payment_id;type:varchar(64);not null;uniqueIndex" json:"gatewayPaymentId"`
	ReferralCode     *string        `gorm:"column:referral_code;type:varchar(32)" json:"referralCode"`
	Status           PurchaseStatus `gorm:"column:status;type:varchar(16);not null;index:idx_purchases_affiliate_status,priority:2" json:"status"`
	CreatedAt        time.Time      `gorm:"column:created_at;not null" json:"createdAt"`
}

func (Purchase) TableName() string {
	return "purchases"
}

func (p *Purchase) AmountPaid() decimal.Decimal {
	return money.FromMinor(p.AmountPaidMinor)
}

func (p *Purchase) CommissionEarned() decimal.Decimal {
	return money.FromMinor(p.CommissionMinor)
}

// SettleParams is the payment confirmation callback plus the authenticated
// buyer. Only identifiers are taken from it, never amounts.
type SettleParams struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	CourseID         string
	BuyerID          string
	ReferralCode     string
}

type Result struct {
	Purchase       *Purchase
	AlreadySettled bool
}

type ReconcileReport struct {
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
}
