package checkout

import (
	"time"

	"examprep-marketplace/pkg/money"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const OrderStatusCreated = "created"

// Order correlates a gateway order with the course, buyer and referral it was
// created for. Settlement reads it back; it is never updated.
type Order struct {
	ID             string            `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	GatewayOrderID string            `gorm:"column:gateway_order_id;type:varchar(64);not null;uniqueIndex" json:"gatewayOrderId"`
	CourseID       string            `gorm:"column:course_id;type:varchar(64);not null;index" json:"courseId"`
	BuyerID        string            `gorm:"column:buyer_id;type:varchar(64);not null;index" json:"buyerId"`
	AmountMinor    int64             `gorm:"column:amount_minor;not null" json:"amountMinor"`
	Currency       string            `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	Receipt        string            `gorm:"column:receipt;type:varchar(40);not null" json:"receipt"`
	ReferralCode   *string           `gorm:"column:referral_code;type:varchar(32)" json:"referralCode"`
	AffiliateID    *string           `gorm:"column:affiliate_id;type:varchar(64)" json:"affiliateId"`
	Notes          datatypes.JSONMap `gorm:"column:notes" json:"notes"`
	Status         string            `gorm:"column:status;type:varchar(16);not null" json:"status"`
	CreatedAt      time.Time         `gorm:"column:created_at" json:"createdAt"`
}

func (Order) TableName() string {
	return "checkout_orders"
}

// Draft is a gateway order request that has not been submitted yet.
type Draft struct {
	CourseID     string
	BuyerID      string
	AmountMinor  int64
	Currency     string
	Receipt      string
	ReferralCode string
	AffiliateID  string
	Notes        map[string]string
}

func (d *Draft) Amount() decimal.Decimal {
	return money.FromMinor(d.AmountMinor)
}

type CreateOrderParams struct {
	CourseID     string
	ReferralCode string
	BuyerID      string
}

type Result struct {
	Order       *Order
	KeyID       string
	AffiliateID string
}
