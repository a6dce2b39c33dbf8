package affiliate

import (
	"time"

	"examprep-marketplace/pkg/money"

	"github.com/shopspring/decimal"
)

type LinkStatus string

const (
	LinkStatusActive    LinkStatus = "active"
	LinkStatusInactive  LinkStatus = "inactive"
	LinkStatusSuspended LinkStatus = "suspended"
)

func (s LinkStatus) Valid() bool {
	switch s {
	case LinkStatusActive, LinkStatusInactive, LinkStatusSuspended:
		return true
	}
	return false
}

// AffiliateLink binds one affiliate to one course through a public code.
// Counters only grow and are updated with SQL increments.
type AffiliateLink struct {
	ID             string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	AffiliateID    string          `gorm:"column:affiliate_id;type:varchar(64);not null;uniqueIndex:idx_affiliate_links_pair,priority:1" json:"affiliateId"`
	CourseID       string          `gorm:"column:course_id;type:varchar(64);not null;uniqueIndex:idx_affiliate_links_pair,priority:2;index" json:"courseId"`
	Code           string          `gorm:"column:code;type:varchar(32);not null;uniqueIndex" json:"code"`
	FullURL        string          `gorm:"column:full_url;type:text" json:"fullUrl"`
	CommissionRate decimal.Decimal `gorm:"column:commission_rate;type:numeric(6,4);not null" json:"commissionRate"`
	Clicks         int64           `gorm:"column:clicks;not null;default:0" json:"clicks"`
	Conversions    int64           `gorm:"column:conversions;not null;default:0" json:"conversions"`
	EarningsMinor  int64           `gorm:"column:earnings_minor;not null;default:0" json:"-"`
	Status         LinkStatus      `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	LastClickAt    *time.Time      `gorm:"column:last_click_at" json:"lastClickAt,omitempty"`
	CreatedAt      time.Time       `gorm:"column:created_at;index" json:"createdAt"`
	UpdatedAt      time.Time       `gorm:"column:updated_at" json:"updatedAt"`
}

func (AffiliateLink) TableName() string {
	return "affiliate_links"
}

func (l *AffiliateLink) Earnings() decimal.Decimal {
	return money.FromMinor(l.EarningsMinor)
}

func (l *AffiliateLink) IsActive() bool {
	return l.Status == LinkStatusActive
}

// Click is one entry of the append-only click log.
type Click struct {
	ID         string    `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	LinkID     string    `gorm:"column:link_id;type:varchar(32);not null;index:idx_affiliate_clicks_link_time,priority:1" json:"linkId"`
	OccurredAt time.Time `gorm:"column:occurred_at;not null;index:idx_affiliate_clicks_link_time,priority:2" json:"occurredAt"`
	Converted  bool      `gorm:"column:converted;not null;default:false" json:"converted"`
	IPAddress  string    `gorm:"column:ip_address;type:varchar(64)" json:"ipAddress,omitempty"`
	UserAgent  string    `gorm:"column:user_agent;type:text" json:"userAgent,omitempty"`
	Referer    string    `gorm:"column:referer;type:text" json:"referer,omitempty"`
	Device     string    `gorm:"column:device;type:varchar(16)" json:"device,omitempty"`
}

func (Click) TableName() string {
	return "affiliate_clicks"
}

type ClickMetadata struct {
	IPAddress string
	UserAgent string
	Referer   string
}

type ConversionParams struct {
	Code        string
	AmountMinor int64

	// ClickID pins the converted click. When empty the latest unconverted
	// click inside the attribution window is used.
	ClickID string
}

type ListLinksParams struct {
	AffiliateID string
	Cursor      string
	Limit       int

	// Statuses filters by any of the given states. Empty means all.
	Statuses []LinkStatus
}

// Performance summarizes one link over its lifetime and a recent window.
type Performance struct {
	TotalClicks          int64           `json:"totalClicks"`
	TotalConversions     int64           `json:"totalConversions"`
	TotalEarnings        decimal.Decimal `json:"totalEarnings"`
	ConversionRate       float64         `json:"conversionRate"`
	WindowDays           int             `json:"windowDays"`
	RecentClicks         int64           `json:"recentClicks"`
	RecentConversions    int64           `json:"recentConversions"`
	RecentConversionRate float64         `json:"recentConversionRate"`
}

// Overview aggregates every link of an affiliate.
type Overview struct {
	TotalLinks       int64           `json:"totalLinks"`
	TotalClicks      int64           `json:"totalClicks"`
	TotalConversions int64           `json:"totalConversions"`
	TotalRevenue     decimal.Decimal `json:"totalRevenue"`
	ConversionRate   float64         `json:"conversionRate"`
}
