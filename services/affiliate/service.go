package affiliate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"examprep-marketplace/pkg/config"
	"examprep-marketplace/pkg/db"
	"examprep-marketplace/pkg/db/option"
	"examprep-marketplace/pkg/db/pagination"
	"examprep-marketplace/pkg/errutil"
	"examprep-marketplace/pkg/money"
	"examprep-marketplace/pkg/repository"
	"examprep-marketplace/services/course"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrLinkNotFound = errutil.New(errutil.StatusNotFound, "affiliate link not found", errutil.WithReason("LINK_NOT_FOUND"))
	ErrLinkInactive = errutil.New(errutil.StatusUnprocessableEntity, "affiliate link is not active", errutil.WithReason("LINK_INACTIVE"))
)

var defaultCommissionRate = decimal.RequireFromString("0.10")

// createAttempts bounds GetOrCreate when the insert loses a race on code
// rather than on the (affiliate, course) pair.
const createAttempts = 3

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	catalog course.Catalog
	codes   *CodeGenerator

	links  repository.Repository[AffiliateLink]
	clicks repository.Repository[Click]

	baseURL           string
	defaultRate       decimal.Decimal
	attributionWindow time.Duration
	statsWindowDays   int
	queryTimeout      time.Duration
	now               func() time.Time
}

type Params struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Config  *config.Config
	Catalog course.Catalog
}

func NewService(p Params) *Service {
	svc := &Service{
		db:                p.DB,
		node:              p.Node,
		catalog:           p.Catalog,
		links:             repository.ProvideStore[AffiliateLink](p.DB),
		clicks:            repository.ProvideStore[Click](p.DB),
		baseURL:           strings.TrimRight(p.Config.BaseURL, "/"),
		defaultRate:       defaultCommissionRate,
		attributionWindow: p.Config.Affiliate.AttributionWindow,
		statsWindowDays:   p.Config.Affiliate.StatsWindowDays,
		queryTimeout:      p.Config.Database.QueryTimeout,
		now:               func() time.Time { return time.Now().UTC() },
	}

	if rate, err := decimal.NewFromString(p.Config.Affiliate.DefaultCommissionRate); err == nil && rate.IsPositive() {
		svc.defaultRate = rate
	}
	if svc.statsWindowDays <= 0 {
		svc.statsWindowDays = 30
	}

	svc.codes = NewCodeGenerator(svc.codeExists, p.Config.Affiliate.CodeMaxAttempts)
	return svc
}

// WithTrx returns a copy of the service bound to tx. Used by settlement to
// update counters inside its ledger transaction.
func (s *Service) WithTrx(tx *gorm.DB) *Service {
	clone := *s
	clone.db = tx
	clone.links = s.links.WithTrx(tx)
	clone.clicks = s.clicks.WithTrx(tx)
	return &clone
}

func (s *Service) logger(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return zap.L()
	}
	return zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)
}

func (s *Service) codeExists(ctx context.Context, code string) (bool, error) {
	n, err := s.links.Count(ctx, &AffiliateLink{Code: code})
	if err != nil {
		return false, errutil.Internal("failed to check referral code", err)
	}
	return n > 0, nil
}

// SharableURL is the storefront URL carrying the referral code.
func (s *Service) SharableURL(courseID, code string) string {
	return fmt.Sprintf("%s/courses/%s?ref=%s", s.baseURL, url.PathEscape(courseID), url.QueryEscape(code))
}

func (s *Service) commissionRate(c *course.Course) decimal.Decimal {
	if c.AffiliateCommission == nil || c.AffiliateCommission.IsNegative() {
		return s.defaultRate
	}
	return money.RateFromPercent(*c.AffiliateCommission)
}

func (s *Service) findByPair(ctx context.Context, affiliateID, courseID string) (*AffiliateLink, error) {
	link, err := s.links.FindOne(ctx, &AffiliateLink{AffiliateID: affiliateID, CourseID: courseID})
	if err != nil {
		return nil, errutil.Internal("failed to load affiliate link", err)
	}
	return link, nil
}

// GetOrCreate returns the single link of (affiliateID, courseID), creating it
// on first use. created is false when the link already existed, including
// when a concurrent caller inserted it first.
func (s *Service) GetOrCreate(ctx context.Context, affiliateID, courseID string) (link *AffiliateLink, created bool, err error) {
	if affiliateID == "" || courseID == "" {
		return nil, false, errutil.BadRequest("affiliateId and courseId are required", nil)
	}

	ctx, cancel := db.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	log := s.logger(ctx).With(zap.String("affiliate_id", affiliateID), zap.String("course_id", courseID))

	if link, err = s.findByPair(ctx, affiliateID, courseID); err != nil || link != nil {
		return link, false, err
	}

	c, err := s.catalog.GetCourse(ctx, courseID)
	if err != nil {
		return nil, false, err
	}
	rate := s.commissionRate(c)

	for attempt := 0; attempt < createAttempts; attempt++ {
		code, err := s.codes.Generate(ctx, affiliateID, courseID)
		if err != nil {
			return nil, false, err
		}

		now := s.now()
		candidate := &AffiliateLink{
			ID:             s.node.Generate().String(),
			AffiliateID:    affiliateID,
			CourseID:       courseID,
			Code:           code,
			FullURL:        s.SharableURL(courseID, code),
			CommissionRate: rate,
			Status:         LinkStatusActive,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		err = s.links.Create(ctx, candidate)
		if err == nil {
			log.Info("affiliate link created", zap.String("link_id", candidate.ID), zap.String("code", code))
			return candidate, true, nil
		}
		if !repository.IsUniqueViolation(err) {
			log.Error("failed to create affiliate link", zap.Error(err))
			return nil, false, errutil.Internal("failed to create affiliate link", err)
		}

		// Either a concurrent request created the pair or the code was taken
		// between the check and the insert.
		if link, err = s.findByPair(ctx, affiliateID, courseID); err != nil || link != nil {
			return link, false, err
		}
		log.Warn("referral code taken during insert, regenerating", zap.Int("attempt", attempt+1))
	}

	return nil, false, ErrCodeGenerationExhausted
}

func (s *Service) ResolveByCode(ctx context.Context, code string) (*AffiliateLink, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrLinkNotFound
	}

	ctx, cancel := db.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	link, err := s.links.FindOne(ctx, &AffiliateLink{Code: code})
	if err != nil {
		return nil, errutil.Internal("failed to resolve referral code", err)
	}
	if link == nil {
		return nil, ErrLinkNotFound
	}
	return link, nil
}

// RecordClick increments the click counter and appends to the click log in
// one transaction. Clicks on suspended links are ignored.
func (s *Service) RecordClick(ctx context.Context, code string, meta ClickMetadata) error {
	link, err := s.ResolveByCode(ctx, code)
	if err != nil {
		return err
	}

	log := s.logger(ctx).With(zap.String("link_id", link.ID), zap.String("code", link.Code))
	if link.Status == LinkStatusSuspended {
		log.Debug("click ignored on suspended affiliate link")
		return nil
	}

	ctx, cancel := db.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&AffiliateLink{}).
			Where("id = ? AND status <> ?", link.ID, LinkStatusSuspended).
			Updates(map[string]any{
				"clicks":        gorm.Expr("clicks + ?", 1),
				"last_click_at": now,
				"updated_at":    now,
			})
		if res.Error != nil {
			log.Error("failed to increment clicks", zap.Error(res.Error))
			return errutil.Internal("failed to record click", res.Error)
		}
		if res.RowsAffected == 0 {
			log.Debug("click ignored, link suspended concurrently")
			return nil
		}

		click := &Click{
			ID:         s.node.Generate().String(),
			LinkID:     link.ID,
			OccurredAt: now,
			IPAddress:  meta.IPAddress,
			UserAgent:  meta.UserAgent,
			Referer:    meta.Referer,
			Device:     DeviceClass(meta.UserAgent),
		}
		if err := s.clicks.WithTrx(tx).Create(ctx, click); err != nil {
			log.Error("failed to append click", zap.Error(err))
			return errutil.Internal("failed to record click", err)
		}
		return nil
	})
}

// RecordConversion credits one conversion to the link of p.Code and returns
// the commission earned on p.AmountMinor at the link's snapshotted rate. It is
// a plain counter update; callers own exactly-once semantics and should run it
// inside their transaction through WithTrx.
func (s *Service) RecordConversion(ctx context.Context, p ConversionParams) (int64, error) {
	if p.AmountMinor < 0 {
		return 0, errutil.BadRequest("amount must not be negative", nil)
	}

	link, err := s.ResolveByCode(ctx, p.Code)
	if err != nil {
		return 0, err
	}
	if !link.IsActive() {
		return 0, ErrLinkInactive
	}

	commission := money.Commission(p.AmountMinor, link.CommissionRate)
	now := s.now()
	res := s.db.WithContext(ctx).Model(&AffiliateLink{}).
		Where("id = ? AND status = ?", link.ID, LinkStatusActive).
		Updates(map[string]any{
			"conversions":    gorm.Expr("conversions + ?", 1),
			"earnings_minor": gorm.Expr("earnings_minor + ?", commission),
			"updated_at":     now,
		})
	if res.Error != nil {
		return 0, errutil.Internal("failed to record conversion", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, ErrLinkInactive
	}

	if err := s.markClickConverted(ctx, link.ID, p.ClickID, now); err != nil {
		return 0, err
	}
	return commission, nil
}

func (s *Service) markClickConverted(ctx context.Context, linkID, clickID string, now time.Time) error {
	if clickID == "" {
		q := s.db.WithContext(ctx).Model(&Click{}).
			Where("link_id = ? AND converted = ?", linkID, false)
		if s.attributionWindow > 0 {
			q = q.Where("occurred_at >= ?", now.Add(-s.attributionWindow))
		}

		var latest Click
		err := q.Order("occurred_at DESC").Limit(1).Take(&latest).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return errutil.Internal("failed to correlate click", err)
		}
		clickID = latest.ID
	}

	err := s.db.WithContext(ctx).Model(&Click{}).
		Where("id = ? AND link_id = ?", clickID, linkID).
		Update("converted", true).Error
	if err != nil {
		return errutil.Internal("failed to mark click converted", err)
	}
	return nil
}

func (s *Service) GetLink(ctx context.Context, affiliateID, linkID string) (*AffiliateLink, error) {
	ctx, cancel := db.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	link, err := s.links.FindOne(ctx, &AffiliateLink{ID: linkID, AffiliateID: affiliateID})
	if err != nil {
		return nil, errutil.Internal("failed to load affiliate link", err)
	}
	if link == nil {
		return nil, ErrLinkNotFound
	}
	return link, nil
}

func (s *Service) ListLinks(ctx context.Context, p ListLinksParams) ([]*AffiliateLink, *pagination.PageInfo, error) {
	if p.AffiliateID == "" {
		return nil, nil, errutil.BadRequest("affiliateId is required", nil)
	}
	for _, st := range p.Statuses {
		if !st.Valid() {
			return nil, nil, errutil.BadRequest("invalid status filter", nil,
				errutil.WithDetails(errutil.Detail{Field: "status", Message: "must be one of active, inactive, suspended"}))
		}
	}

	page := pagination.Pagination{Cursor: p.Cursor, Limit: p.Limit}.Normalize()
	if err := page.Validate(); err != nil {
		return nil, nil, errutil.BadRequest("invalid cursor", err,
			errutil.WithDetails(errutil.Detail{Field: "cursor", Message: "is not a page cursor returned by this endpoint"}))
	}

	ctx, cancel := db.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	opts := []option.QueryOption{option.ApplyPagination(page)}
	if len(p.Statuses) > 0 {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "status", Operator: option.IN, Value: p.Statuses}))
	}
	links, err := s.links.Find(ctx, &AffiliateLink{AffiliateID: p.AffiliateID}, opts...)
	if err != nil {
		return nil, nil, errutil.Internal("failed to list affiliate links", err)
	}

	links, info := pagination.BuildCursorPageInfo(links, page.Limit, func(l *AffiliateLink) pagination.Cursor {
		return pagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
	})
	return links, info, nil
}

// SetStatus changes the lifecycle state of a link. Counters are untouched.
// The row is locked while it changes so the logged transition is exact.
func (s *Service) SetStatus(ctx context.Context, linkID string, status LinkStatus) (*AffiliateLink, error) {
	if !status.Valid() {
		return nil, errutil.BadRequest("invalid status", nil,
			errutil.WithDetails(errutil.Detail{Field: "status", Message: "must be one of active, inactive, suspended"}))
	}

	ctx, cancel := db.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var link *AffiliateLink
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		links := s.links.WithTrx(tx)

		var err error
		link, err = links.FindOne(ctx, &AffiliateLink{ID: linkID}, option.LockingUpdate)
		if err != nil {
			return errutil.Internal("failed to load affiliate link", err)
		}
		if link == nil {
			return ErrLinkNotFound
		}

		updates := map[string]any{"status": status, "updated_at": s.now()}
		if err := links.Update(ctx, linkID, &updates); err != nil {
			return errutil.Internal("failed to update affiliate link", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger(ctx).Info("affiliate link status changed",
		zap.String("link_id", linkID),
		zap.String("from", string(link.Status)),
		zap.String("to", string(status)),
	)
	link.Status = status
	return link, nil
}

// SyncCounters raises conversions and earnings to the given ledger totals.
// Counters never decrease; it reports whether anything changed.
func (s *Service) SyncCounters(ctx context.Context, linkID string, conversions, earningsMinor int64) (bool, error) {
	ctx, cancel := db.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	res := s.db.WithContext(ctx).Model(&AffiliateLink{}).
		Where("id = ? AND (conversions < ? OR earnings_minor < ?)", linkID, conversions, earningsMinor).
		Updates(map[string]any{
			"conversions":    gorm.Expr("CASE WHEN conversions < ? THEN ? ELSE conversions END", conversions, conversions),
			"earnings_minor": gorm.Expr("CASE WHEN earnings_minor < ? THEN ? ELSE earnings_minor END", earningsMinor, earningsMinor),
			"updated_at":     s.now(),
		})
	if res.Error != nil {
		return false, errutil.Internal("failed to sync link counters", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListLinkIDs pages through every link id in creation order.
func (s *Service) ListLinkIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	var ids []string
	q := s.db.WithContext(ctx).Model(&AffiliateLink{}).Order("id ASC").Limit(limit)
	if afterID != "" {
		q = q.Where("id > ?", afterID)
	}
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, errutil.Internal("failed to list affiliate links", err)
	}
	return ids, nil
}

// DeviceClass buckets a user agent into mobile, tablet or desktop.
func DeviceClass(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case ua == "":
		return "unknown"
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return "tablet"
	case strings.Contains(ua, "mobi") || strings.Contains(ua, "android") || strings.Contains(ua, "iphone"):
		return "mobile"
	default:
		return "desktop"
	}
}
