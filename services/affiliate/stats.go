package affiliate

import (
	"context"
	"math"
	"time"

	"examprep-marketplace/pkg/db"
	"examprep-marketplace/pkg/errutil"
	"examprep-marketplace/pkg/money"

	"github.com/skip2/go-qrcode"
)

const (
	maxStatsWindowDays = 365
	defaultQRSize      = 256
	maxQRSize          = 1024
)

// Performance reports lifetime counters and click log activity over the last
// days days (the configured window when days <= 0).
func (s *Service) Performance(ctx context.Context, link *AffiliateLink, days int) (*Performance, error) {
	if days <= 0 {
		days = s.statsWindowDays
	}
	if days > maxStatsWindowDays {
		days = maxStatsWindowDays
	}

	ctx, cancel := db.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	since := s.now().Add(-time.Duration(days) * 24 * time.Hour)

	var recent struct {
		Clicks      int64
		Conversions int64
	}
	err := s.db.WithContext(ctx).Model(&Click{}).
		Select("COUNT(*) AS clicks, COALESCE(SUM(CASE WHEN converted THEN 1 ELSE 0 END), 0) AS conversions").
		Where("link_id = ? AND occurred_at >= ?", link.ID, since).
		Scan(&recent).Error
	if err != nil {
		return nil, errutil.Internal("failed to load link performance", err)
	}

	return &Performance{
		TotalClicks:          link.Clicks,
		TotalConversions:     link.Conversions,
		TotalEarnings:        link.Earnings(),
		ConversionRate:       conversionRate(link.Conversions, link.Clicks),
		WindowDays:           days,
		RecentClicks:         recent.Clicks,
		RecentConversions:    recent.Conversions,
		RecentConversionRate: conversionRate(recent.Conversions, recent.Clicks),
	}, nil
}

func (s *Service) Overview(ctx context.Context, affiliateID string) (*Overview, error) {
	if affiliateID == "" {
		return nil, errutil.BadRequest("affiliateId is required", nil)
	}

	ctx, cancel := db.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var totals struct {
		Links         int64
		Clicks        int64
		Conversions   int64
		EarningsMinor int64
	}
	err := s.db.WithContext(ctx).Model(&AffiliateLink{}).
		Select("COUNT(*) AS links, COALESCE(SUM(clicks), 0) AS clicks, COALESCE(SUM(conversions), 0) AS conversions, COALESCE(SUM(earnings_minor), 0) AS earnings_minor").
		Where("affiliate_id = ?", affiliateID).
		Scan(&totals).Error
	if err != nil {
		return nil, errutil.Internal("failed to load affiliate overview", err)
	}

	return &Overview{
		TotalLinks:       totals.Links,
		TotalClicks:      totals.Clicks,
		TotalConversions: totals.Conversions,
		TotalRevenue:     money.FromMinor(totals.EarningsMinor),
		ConversionRate:   conversionRate(totals.Conversions, totals.Clicks),
	}, nil
}

// QRCode renders the sharable URL of link as a PNG.
func (s *Service) QRCode(link *AffiliateLink, size int) ([]byte, error) {
	if size <= 0 {
		size = defaultQRSize
	}
	if size > maxQRSize {
		size = maxQRSize
	}

	target := link.FullURL
	if target == "" {
		target = s.SharableURL(link.CourseID, link.Code)
	}

	png, err := qrcode.Encode(target, qrcode.Medium, size)
	if err != nil {
		return nil, errutil.Internal("failed to render qr code", err)
	}
	return png, nil
}

// conversionRate is a percentage rounded to two decimals.
func conversionRate(conversions, clicks int64) float64 {
	if clicks <= 0 {
		return 0
	}
	return math.Round(float64(conversions)/float64(clicks)*10000) / 100
}
