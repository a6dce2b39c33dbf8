package checkout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"examprep-marketplace/pkg/accesscontrol"
	"examprep-marketplace/pkg/config"
	"examprep-marketplace/pkg/errutil"
	"examprep-marketplace/pkg/gateway"
	"examprep-marketplace/pkg/httpapi"
	"examprep-marketplace/pkg/middleware"
	"examprep-marketplace/pkg/sequence"
	"examprep-marketplace/services/affiliate"
	"examprep-marketplace/services/course"
	"examprep-marketplace/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeGateway struct {
	mu       sync.Mutex
	requests []gateway.OrderRequest
	err      error
}

func (f *fakeGateway) CreateOrder(_ context.Context, req gateway.OrderRequest) (*gateway.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	return &gateway.Order{ID: "order_" + req.Receipt, Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created"}, nil
}

type fixture struct {
	svc   *Service
	links *affiliate.Service
	gw    *fakeGateway
	db    *gorm.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t, &course.Course{}, &affiliate.AffiliateLink{}, &affiliate.Click{}, &Order{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	require.NoError(t, db.Create(&course.Course{ID: "course-1", Title: "Physics", Price: decimal.NewFromInt(500)}).Error)
	require.NoError(t, db.Create(&course.Course{ID: "course-2", Title: "Chemistry", Price: decimal.RequireFromString("199.99")}).Error)
	require.NoError(t, db.Create(&course.Course{ID: "free", Title: "Intro", Price: decimal.Zero}).Error)

	cfg := &config.Config{BaseURL: "https://examprep.test"}
	cfg.Gateway.Currency = "INR"
	cfg.Gateway.KeyID = "rzp_test_key"
	cfg.Affiliate.DefaultCommissionRate = "0.10"
	cfg.Database.QueryTimeout = 5 * time.Second

	catalog := course.NewService(course.Params{DB: db})
	links := affiliate.NewService(affiliate.Params{DB: db, Node: node, Config: cfg, Catalog: catalog})
	gw := &fakeGateway{}

	svc := NewService(Params{
		DB:       db,
		Node:     node,
		Config:   cfg,
		Catalog:  catalog,
		Links:    links,
		Gateway:  gw,
		Receipts: sequence.NewRandomGenerator(),
	})
	return &fixture{svc: svc, links: links, gw: gw, db: db}
}

func TestBuildOrder_Attributed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	link, _, err := f.links.GetOrCreate(ctx, "aff-1", "course-1")
	require.NoError(t, err)

	c, err := f.svc.catalog.GetCourse(ctx, "course-1")
	require.NoError(t, err)

	draft, err := f.svc.BuildOrder(ctx, c, link.Code, "buyer-1")
	require.NoError(t, err)
	require.Equal(t, int64(50000), draft.AmountMinor)
	require.Equal(t, "INR", draft.Currency)
	require.LessOrEqual(t, len(draft.Receipt), sequence.MaxReceiptLength)
	require.Equal(t, map[string]string{
		NoteCourseID:     "course-1",
		NoteBuyerID:      "buyer-1",
		NoteReferralCode: link.Code,
		NoteAffiliateID:  "aff-1",
	}, draft.Notes)
}

func TestBuildOrder_Unattributed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.svc.catalog.GetCourse(ctx, "course-1")
	require.NoError(t, err)

	draft, err := f.svc.BuildOrder(ctx, c, "UNKNOWN", "buyer-1")
	require.NoError(t, err)
	require.Empty(t, draft.AffiliateID)
	require.NotContains(t, draft.Notes, NoteAffiliateID)

	link, _, err := f.links.GetOrCreate(ctx, "aff-1", "course-1")
	require.NoError(t, err)
	_, err = f.links.SetStatus(ctx, link.ID, affiliate.LinkStatusSuspended)
	require.NoError(t, err)

	draft, err = f.svc.BuildOrder(ctx, c, link.Code, "buyer-1")
	require.NoError(t, err)
	require.Empty(t, draft.AffiliateID)
}

func TestBuildOrder_LinkForOtherCourse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	link, _, err := f.links.GetOrCreate(ctx, "aff-1", "course-2")
	require.NoError(t, err)

	c, err := f.svc.catalog.GetCourse(ctx, "course-1")
	require.NoError(t, err)
	draft, err := f.svc.BuildOrder(ctx, c, link.Code, "buyer-1")
	require.NoError(t, err)
	require.Empty(t, draft.AffiliateID)
}

func TestBuildOrder_InvalidPrice(t *testing.T) {
	f := newFixture(t)
	c, err := f.svc.catalog.GetCourse(context.Background(), "free")
	require.NoError(t, err)

	_, err = f.svc.BuildOrder(context.Background(), c, "", "buyer-1")
	require.True(t, errors.Is(err, ErrInvalidPrice))
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	link, _, err := f.links.GetOrCreate(ctx, "aff-1", "course-2")
	require.NoError(t, err)

	res, err := f.svc.CreateOrder(ctx, CreateOrderParams{CourseID: "course-2", ReferralCode: link.Code, BuyerID: "buyer-1"})
	require.NoError(t, err)
	require.Equal(t, "aff-1", res.AffiliateID)
	require.Equal(t, "rzp_test_key", res.KeyID)
	require.Equal(t, int64(19999), res.Order.AmountMinor)

	require.Len(t, f.gw.requests, 1)
	require.Equal(t, int64(19999), f.gw.requests[0].Amount)

	stored, err := f.svc.FindByGatewayOrderID(ctx, res.Order.GatewayOrderID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, "course-2", stored.CourseID)
	require.NotNil(t, stored.ReferralCode)
	require.Equal(t, link.Code, *stored.ReferralCode)
	require.Equal(t, "aff-1", stored.Notes[NoteAffiliateID])
}

func TestCreateOrder_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateOrder(ctx, CreateOrderParams{CourseID: "missing", BuyerID: "b"})
	require.True(t, errors.Is(err, course.ErrCourseNotFound))

	_, err = f.svc.CreateOrder(ctx, CreateOrderParams{CourseID: "free", BuyerID: "b"})
	require.True(t, errors.Is(err, ErrInvalidPrice))
	require.Empty(t, f.gw.requests)

	f.gw.err = errutil.BadGateway("payment gateway unavailable", nil)
	_, err = f.svc.CreateOrder(ctx, CreateOrderParams{CourseID: "course-1", BuyerID: "b"})
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.True(t, be.Code.Retryable())

	missing, err := f.svc.FindByGatewayOrderID(ctx, "order_none")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestHandler_CreateOrder(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t)

	e, err := accesscontrol.NewEnforcer(nil)
	require.NoError(t, err)
	r := gin.New()
	r.Use(middleware.Error())
	RegisterRoutes(&httpapi.Router{
		Public:    r.Group("/api/v1"),
		Protected: r.Group("/api/v1", middleware.Identity(), accesscontrol.NewAuthorizer(e).Middleware()),
	}, NewHandler(f.svc))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/orders", stringsReader(`{"courseId":"course-1","referralCode":"NOPE"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderUserID, "buyer-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"amount":50000`)
	require.Contains(t, w.Body.String(), `"affiliateId":null`)
}

func stringsReader(s string) *strings.Reader {
	return strings.NewReader(s)
}
