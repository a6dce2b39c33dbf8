package leaderboard

import "github.com/shopspring/decimal"

// Entry is one ranked affiliate. Name and email are empty when the affiliate
// has no user record.
type Entry struct {
	Rank                 int             `json:"rank" gorm:"-"`
	AffiliateID          string          `json:"affiliateId"`
	Name                 string          `json:"name"`
	Email                string          `json:"email"`
	TotalCommissionMinor int64           `json:"-"`
	TotalCommission      decimal.Decimal `json:"totalCommission" gorm:"-"`
	TotalSales           int64           `json:"totalSales"`
}
