package checkout

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
	"examprep-marketplace/pkg/repository"
	"examprep-marketplace/pkg/sequence"
	"examprep-marketplace/services/affiliate"
	"examprep-marketplace/services/course"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrInvalidPrice = errutil.New(errutil.StatusUnprocessableEntity, "course price must be positive", errutil.WithReason("INVALID_PRICE"))

// Metadata keys attached to the gateway order.
const (
	NoteCourseID     = "courseId"
	NoteAffiliateID  = "affiliateId"
	NoteReferralCode = "referralCode"
	NoteBuyerID      = "buyerId"
)

type LinkResolver interface {
	ResolveByCode(ctx context.Context, code string) (*affiliate.AffiliateLink, error)
}

type Service struct {
	node     *snowflake.Node
	catalog  course.Catalog
	links    LinkResolver
	gateway  gateway.OrderCreator
	receipts sequence.Generator
	orders   repository.Repository[Order]

	currency     string
	keyID        string
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
	Gateway  gateway.OrderCreator
	Receipts sequence.Generator
}

func NewService(p Params) *Service {
	currency := p.Config.Gateway.Currency
	if currency == "" {
		currency = "INR"
	}
	return &Service{
		node:         p.Node,
		catalog:      p.Catalog,
		links:        p.Links,
		gateway:      p.Gateway,
		receipts:     p.Receipts,
		orders:       repository.ProvideStore[Order](p.DB),
		currency:     currency,
		keyID:        p.Config.Gateway.KeyID,
		queryTimeout: p.Config.Database.QueryTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) logger(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return zap.L()
	}
	return zap.L().With(zap.String("trace_id", span.SpanContext().TraceID().String()))
}

// BuildOrder prices the course and resolves the referral code. A code that is
// unknown or not active only drops attribution, it never fails the order.
func (s *Service) BuildOrder(ctx context.Context, c *course.Course, referralCode, buyerID string) (*Draft, error) {
	amount := money.ToMinor(c.Price)
	if amount <= 0 {
		return nil, ErrInvalidPrice
	}

	receipt, err := s.receipts.NextReceipt(ctx, c.ID)
	if err != nil {
		return nil, errutil.Internal("failed to allocate receipt", err)
	}

	draft := &Draft{
		CourseID:    c.ID,
		BuyerID:     buyerID,
		AmountMinor: amount,
		Currency:    s.currency,
		Receipt:     receipt,
		Notes: map[string]string{
			NoteCourseID: c.ID,
			NoteBuyerID:  buyerID,
		},
	}

	if code := strings.TrimSpace(referralCode); code != "" {
		link, err := s.links.ResolveByCode(ctx, code)
		switch {
		case errors.Is(err, affiliate.ErrLinkNotFound):
			s.logger(ctx).Info("referral code not found, order unattributed", zap.String("referral_code", code))
		case err != nil:
			s.logger(ctx).Warn("referral lookup failed, order unattributed", zap.String("referral_code", code), zap.Error(err))
		case !link.IsActive():
			s.logger(ctx).Info("referral link not active, order unattributed",
				zap.String("referral_code", code), zap.String("status", string(link.Status)))
		case link.CourseID != c.ID:
			s.logger(ctx).Info("referral link belongs to another course, order unattributed",
				zap.String("referral_code", code), zap.String("link_course_id", link.CourseID))
		default:
			draft.ReferralCode = link.Code
			draft.AffiliateID = link.AffiliateID
			draft.Notes[NoteReferralCode] = link.Code
			draft.Notes[NoteAffiliateID] = link.AffiliateID
		}
	}

	return draft, nil
}

// CreateOrder submits a priced draft to the gateway and keeps a correlation
// record for settlement.
func (s *Service) CreateOrder(ctx context.Context, p CreateOrderParams) (*Result, error) {
	if p.CourseID == "" || p.BuyerID == "" {
		return nil, errutil.BadRequest("courseId is required", nil)
	}

	c, err := s.catalog.GetCourse(ctx, p.CourseID)
	if err != nil {
		return nil, err
	}

	draft, err := s.BuildOrder(ctx, c, p.ReferralCode, p.BuyerID)
	if err != nil {
		return nil, err
	}

	log := s.logger(ctx).With(
		zap.String("course_id", draft.CourseID),
		zap.String("buyer_id", draft.BuyerID),
		zap.String("receipt", draft.Receipt),
	)

	gwOrder, err := s.gateway.CreateOrder(ctx, gateway.OrderRequest{
		Amount:   draft.AmountMinor,
		Currency: draft.Currency,
		Receipt:  draft.Receipt,
		Notes:    draft.Notes,
	})
	if err != nil {
		log.Warn("gateway order creation failed", zap.Error(err))
		return nil, err
	}

	notes := datatypes.JSONMap{}
	for k, v := range draft.Notes {
		notes[k] = v
	}
	order := &Order{
		ID:             s.node.Generate().String(),
		GatewayOrderID: gwOrder.ID,
		CourseID:       draft.CourseID,
		BuyerID:        draft.BuyerID,
		AmountMinor:    draft.AmountMinor,
		Currency:       draft.Currency,
		Receipt:        draft.Receipt,
		ReferralCode:   optional(draft.ReferralCode),
		AffiliateID:    optional(draft.AffiliateID),
		Notes:          notes,
		Status:         OrderStatusCreated,
		CreatedAt:      s.now(),
	}

	dbCtx, cancel := db.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	if err := s.orders.Create(dbCtx, order); err != nil {
		// The gateway order exists and can still be paid; settlement falls
		// back to the callback fields when no correlation record is found.
		log.Error("failed to persist checkout order", zap.String("gateway_order_id", gwOrder.ID), zap.Error(err))
	}

	log.Info("checkout order created",
		zap.String("gateway_order_id", gwOrder.ID),
		zap.Int64("amount_minor", draft.AmountMinor),
		zap.String("affiliate_id", draft.AffiliateID),
	)

	return &Result{Order: order, KeyID: s.keyID, AffiliateID: draft.AffiliateID}, nil
}

// FindByGatewayOrderID returns (nil, nil) when no record exists.
func (s *Service) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error) {
	ctx, cancel := db.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	order, err := s.orders.FindOne(ctx, &Order{GatewayOrderID: gatewayOrderID})
	if err != nil {
		return nil, errutil.Internal("failed to load checkout order", err)
	}
	return order, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
