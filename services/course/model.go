package course

import (
	"time"

	"github.com/shopspring/decimal"
)

// Course is the catalog entry owned by the content service. This service only
// reads it to price orders and settlements.
type Course struct {
	ID          string          `gorm:"column:id;primaryKey;type:varchar(64)" json:"id"`
	Title       string          `gorm:"column:title;type:varchar(255);not null" json:"title"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null" json:"price"`
	IsPublished bool            `gorm:"column:is_published;not null;default:false" json:"isPublished"`
	// AffiliateCommission is a percentage (10 = 10%). Nil falls back to the
	// configured default rate.
	AffiliateCommission *decimal.Decimal `gorm:"column:affiliate_commission;type:numeric(5,2)" json:"affiliateCommission,omitempty"`
	CreatedAt           time.Time        `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt           time.Time        `gorm:"column:updated_at" json:"updatedAt"`
}

func (Course) TableName() string {
	return "courses"
}
