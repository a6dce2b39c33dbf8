package settlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"examprep-marketplace/pkg/config"
	"examprep-marketplace/pkg/db"
	"examprep-marketplace/pkg/errutil"
	"examprep-marketplace/pkg/gateway"
	"examprep-marketplace/pkg/money"
	"examprep-marketplace/pkg/rediskey"
	"examprep-marketplace/pkg/repository"
	"examprep-marketplace/services/affiliate"
	"examprep-marketplace/services/checkout"
	"examprep-marketplace/services/course"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const missingFieldsReason = "MISSING_FIELDS"

var (
	ErrMissingFields    = errutil.New(errutil.StatusBadRequest, "missing payment verification data", errutil.WithReason(missingFieldsReason))
	ErrInvalidSignature = errutil.New(errutil.StatusBadRequest, "invalid payment signature", errutil.WithReason("INVALID_SIGNATURE"))
	ErrOrderMismatch    = errutil.New(errutil.StatusBadRequest, "payment order does not match course", errutil.WithReason("ORDER_MISMATCH"))
)

type OrderLookup interface {
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*checkout.Order, error)
}

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	catalog   course.Catalog
	links     *affiliate.Service
	orders    OrderLookup
	verifier  gateway.SignatureVerifier
	locker    Locker
	purchases repository.Repository[Purchase]

	timeout      time.Duration
	lockTTL      time.Duration
	queryTimeout time.Duration
	now          func() time.Time
}

type Params struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Config   *config.Config
	Catalog  course.Catalog
	Links    *affiliate.Service
	Orders   *checkout.Service
	Verifier gateway.SignatureVerifier
	Redis    *redis.Client `optional:"true"`
}

func NewService(p Params) *Service {
	svc := &Service{
		db:           p.DB,
		node:         p.Node,
		catalog:      p.Catalog,
		links:        p.Links,
		verifier:     p.Verifier,
		locker:       NewLocker(p.Redis),
		purchases:    repository.ProvideStore[Purchase](p.DB),
		timeout:      p.Config.Settlement.Timeout,
		lockTTL:      p.Config.Settlement.LockTTL,
		queryTimeout: p.Config.Database.QueryTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
	if p.Orders != nil {
		svc.orders = p.Orders
	}
	if svc.timeout <= 0 {
		svc.timeout = 15 * time.Second
	}
	if svc.lockTTL <= 0 {
		svc.lockTTL = 30 * time.Second
	}
	return svc
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

func validate(p SettleParams) error {
	var details []errutil.Detail
	required := []struct{ field, value string }{
		{"razorpay_order_id", p.GatewayOrderID},
		{"razorpay_payment_id", p.GatewayPaymentID},
		{"razorpay_signature", p.Signature},
		{"courseId", p.CourseID},
		{"buyerId", p.BuyerID},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			details = append(details, errutil.Detail{Field: r.field, Message: "is required"})
		}
	}
	if len(details) > 0 {
		return errutil.New(errutil.StatusBadRequest, "missing payment verification data",
			errutil.WithReason(missingFieldsReason), errutil.WithDetails(details...))
	}
	return nil
}

// Settle verifies a payment confirmation and records it exactly once.
//
// The signature is checked before anything else, including the replay
// lookup, so a forged callback is rejected even for a payment id that has
// already settled. Price and attribution are derived server side.
func (s *Service) Settle(ctx context.Context, p SettleParams) (res *Result, err error) {
	start := time.Now()
	defer func() {
		settlementDuration.Observe(time.Since(start).Seconds())
		switch {
		case err == nil && res.AlreadySettled:
			settlementsTotal.WithLabelValues(resultAlreadySettled).Inc()
		case err == nil:
			settlementsTotal.WithLabelValues(resultCompleted).Inc()
			commissionMinorTotal.Add(float64(res.Purchase.CommissionMinor))
		case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrOrderMismatch):
			settlementsTotal.WithLabelValues(resultRejected).Inc()
		default:
			settlementsTotal.WithLabelValues(resultFailed).Inc()
		}
	}()

	log := s.logger(ctx).With(
		zap.String("gateway_order_id", p.GatewayOrderID),
		zap.String("payment_id", p.GatewayPaymentID),
		zap.String("course_id", p.CourseID),
		zap.String("buyer_id", p.BuyerID),
		zap.String("referral_code", p.ReferralCode),
	)

	if err := validate(p); err != nil {
		log.Warn("settlement rejected: missing fields")
		return nil, err
	}

	if !s.verifier.VerifyPayment(p.GatewayOrderID, p.GatewayPaymentID, p.Signature) {
		log.Warn("settlement rejected: payment signature mismatch")
		return nil, ErrInvalidSignature
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if existing, err := s.findByPayment(ctx, p.GatewayPaymentID); err != nil {
		return nil, err
	} else if existing != nil {
		log.Info("payment already settled", zap.String("purchase_id", existing.ID))
		return &Result{Purchase: existing, AlreadySettled: true}, nil
	}

	release, err := s.locker.Acquire(ctx, rediskey.BuildSettlementLockKey(p.GatewayPaymentID), s.lockTTL)
	if err != nil {
		log.Warn("settlement lock not acquired", zap.Error(err))
		return nil, err
	}
	defer release()

	// A concurrent retry may have finished while we waited for the lock.
	if existing, err := s.findByPayment(ctx, p.GatewayPaymentID); err != nil {
		return nil, err
	} else if existing != nil {
		log.Info("payment already settled", zap.String("purchase_id", existing.ID))
		return &Result{Purchase: existing, AlreadySettled: true}, nil
	}

	c, err := s.catalog.GetCourse(ctx, p.CourseID)
	if err != nil {
		log.Warn("settlement failed: course lookup", zap.Error(err))
		return nil, err
	}
	amount := money.ToMinor(c.Price)
	if amount <= 0 {
		log.Error("settlement failed: course has no positive price")
		return nil, checkout.ErrInvalidPrice
	}

	code, err := s.correlate(ctx, log, p)
	if err != nil {
		return nil, err
	}

	link, err := s.attribute(ctx, log, code, c.ID)
	if err != nil {
		return nil, err
	}

	purchase := &Purchase{
		ID:               s.node.Generate().String(),
		CourseID:         c.ID,
		BuyerID:          p.BuyerID,
		AmountPaidMinor:  amount,
		GatewayOrderID:   p.GatewayOrderID,
		GatewayPaymentID: p.GatewayPaymentID,
		ReferralCode:     optional(code),
		Status:           PurchaseStatusCompleted,
		CreatedAt:        s.now(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if link != nil {
			commission, err := s.links.WithTrx(tx).RecordConversion(ctx, affiliate.ConversionParams{
				Code:        link.Code,
				AmountMinor: amount,
			})
			switch {
			case errors.Is(err, affiliate.ErrLinkInactive), errors.Is(err, affiliate.ErrLinkNotFound):
				log.Info("referral link deactivated during settlement, purchase unattributed")
			case err != nil:
				return err
			default:
				purchase.AffiliateID = optional(link.AffiliateID)
				purchase.AffiliateLinkID = optional(link.ID)
				purchase.CommissionMinor = commission
			}
		}
		return s.purchases.WithTrx(tx).Create(ctx, purchase)
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			existing, lookupErr := s.findByPayment(ctx, p.GatewayPaymentID)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if existing != nil {
				log.Info("payment settled concurrently", zap.String("purchase_id", existing.ID))
				return &Result{Purchase: existing, AlreadySettled: true}, nil
			}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			log.Error("settlement timed out", zap.Error(err))
			return nil, errutil.Timeout("settlement timed out", err)
		}
		var be errutil.BaseError
		if errors.As(err, &be) {
			log.Error("settlement failed", zap.Error(err))
			return nil, err
		}
		log.Error("settlement failed", zap.Error(err))
		return nil, errutil.Internal("failed to record purchase", err)
	}

	log.Info("payment settled",
		zap.String("purchase_id", purchase.ID),
		zap.Int64("amount_paid_minor", purchase.AmountPaidMinor),
		zap.Int64("commission_minor", purchase.CommissionMinor),
		zap.Stringp("affiliate_id", purchase.AffiliateID),
	)
	return &Result{Purchase: purchase}, nil
}

// correlate checks the callback against the order created at checkout and
// returns the referral code to attribute. A missing correlation record only
// means the order predates it or failed to persist.
func (s *Service) correlate(ctx context.Context, log *zap.Logger, p SettleParams) (string, error) {
	code := strings.TrimSpace(p.ReferralCode)
	if s.orders == nil {
		return code, nil
	}

	order, err := s.orders.FindByGatewayOrderID(ctx, p.GatewayOrderID)
	if err != nil {
		log.Warn("checkout order lookup failed, settling from callback fields", zap.Error(err))
		return code, nil
	}
	if order == nil {
		log.Warn("no checkout order for gateway order, settling from callback fields")
		return code, nil
	}
	if order.CourseID != p.CourseID {
		log.Warn("settlement rejected: order belongs to another course", zap.String("order_course_id", order.CourseID))
		return "", ErrOrderMismatch
	}
	if code == "" && order.ReferralCode != nil {
		code = *order.ReferralCode
	}
	return code, nil
}

// attribute resolves code to an active link for courseID. Unknown, inactive
// and foreign-course links settle unattributed.
func (s *Service) attribute(ctx context.Context, log *zap.Logger, code, courseID string) (*affiliate.AffiliateLink, error) {
	if code == "" {
		return nil, nil
	}

	link, err := s.links.ResolveByCode(ctx, code)
	switch {
	case errors.Is(err, affiliate.ErrLinkNotFound):
		log.Warn("referral code not found, purchase unattributed")
		return nil, nil
	case err != nil:
		return nil, err
	case !link.IsActive():
		log.Info("referral link not active, purchase unattributed", zap.String("status", string(link.Status)))
		return nil, nil
	case link.CourseID != courseID:
		log.Warn("referral link belongs to another course, purchase unattributed", zap.String("link_course_id", link.CourseID))
		return nil, nil
	}
	return link, nil
}

func (s *Service) findByPayment(ctx context.Context, paymentID string) (*Purchase, error) {
	dbCtx, cancel := db.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	purchase, err := s.purchases.FindOne(dbCtx, &Purchase{GatewayPaymentID: paymentID, Status: PurchaseStatusCompleted})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errutil.Timeout("purchase lookup timed out", err)
		}
		return nil, errutil.Internal("failed to load purchase", err)
	}
	return purchase, nil
}

// Earnings is the total commission of completed purchases attributed to
// affiliateID.
func (s *Service) Earnings(ctx context.Context, affiliateID string) (decimal.Decimal, error) {
	if affiliateID == "" {
		return decimal.Zero, errutil.BadRequest("affiliateId is required", nil)
	}

	ctx, cancel := db.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var total int64
	err := s.db.WithContext(ctx).Model(&Purchase{}).
		Select("COALESCE(SUM(commission_minor), 0)").
		Where("affiliate_id = ? AND status = ?", affiliateID, PurchaseStatusCompleted).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, errutil.Internal("failed to sum earnings", err)
	}
	return money.FromMinor(total), nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
