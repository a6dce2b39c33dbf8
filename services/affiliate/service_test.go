package affiliate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"examprep-marketplace/pkg/config"
	"examprep-marketplace/pkg/errutil"
	"examprep-marketplace/services/course"
	"examprep-marketplace/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testConfig() *config.Config {
	cfg := &config.Config{BaseURL: "https://examprep.test/"}
	cfg.Affiliate.DefaultCommissionRate = "0.10"
	cfg.Affiliate.CodeMaxAttempts = 5
	cfg.Affiliate.AttributionWindow = 30 * 24 * time.Hour
	cfg.Affiliate.StatsWindowDays = 30
	cfg.Database.QueryTimeout = 5 * time.Second
	return cfg
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &course.Course{}, &AffiliateLink{}, &Click{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	pct := decimal.NewFromInt(15)
	require.NoError(t, db.Create(&course.Course{ID: "course-1", Title: "Physics", Price: decimal.NewFromInt(500), AffiliateCommission: &pct}).Error)
	require.NoError(t, db.Create(&course.Course{ID: "course-2", Title: "Chemistry", Price: decimal.NewFromInt(300)}).Error)

	svc := NewService(Params{
		DB:      db,
		Node:    node,
		Config:  testConfig(),
		Catalog: course.NewService(course.Params{DB: db}),
	})
	return svc, db
}

func reload(t *testing.T, db *gorm.DB, id string) *AffiliateLink {
	t.Helper()
	var l AffiliateLink
	require.NoError(t, db.First(&l, "id = ?", id).Error)
	return &l
}

func TestGetOrCreate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	link, created, err := svc.GetOrCreate(ctx, "aff-1", "course-1")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, LinkStatusActive, link.Status)
	require.True(t, link.CommissionRate.Equal(decimal.RequireFromString("0.15")))
	require.Equal(t, fmt.Sprintf("https://examprep.test/courses/course-1?ref=%s", link.Code), link.FullURL)
	require.Zero(t, link.Clicks)

	again, created, err := svc.GetOrCreate(ctx, "aff-1", "course-1")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, link.ID, again.ID)
	require.Equal(t, link.Code, again.Code)

	other, _, err := svc.GetOrCreate(ctx, "aff-1", "course-2")
	require.NoError(t, err)
	require.NotEqual(t, link.Code, other.Code)
	require.True(t, other.CommissionRate.Equal(decimal.RequireFromString("0.10")))
}

func TestGetOrCreate_Validation(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.GetOrCreate(context.Background(), "", "course-1")
	require.Error(t, err)

	_, _, err = svc.GetOrCreate(context.Background(), "aff-1", "missing")
	require.True(t, errors.Is(err, course.ErrCourseNotFound))
}

func TestGetOrCreate_Concurrent(t *testing.T) {
	svc, db := newTestService(t)

	const n = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]int{}
		created int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			link, c, err := svc.GetOrCreate(context.Background(), "aff-1", "course-1")
			require.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			ids[link.ID]++
			if c {
				created++
			}
		}()
	}
	wg.Wait()

	require.Len(t, ids, 1)
	require.Equal(t, 1, created)

	var count int64
	require.NoError(t, db.Model(&AffiliateLink{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestGetOrCreate_CodeCollisionRedraws(t *testing.T) {
	svc, db := newTestService(t)
	fixed := time.Unix(1_700_000_000, 0)
	svc.codes.now = func() time.Time { return fixed }

	draws := []string{"AAAA", "BBBB"}
	svc.codes.random = func(int) (string, error) {
		s := draws[0]
		if len(draws) > 1 {
			draws = draws[1:]
		}
		return s, nil
	}

	taken := &AffiliateLink{
		ID: "existing", AffiliateID: "other", CourseID: "course-9",
		Code: "AFF1RSE1000000AAAA", CommissionRate: decimal.RequireFromString("0.1"), Status: LinkStatusActive,
	}
	require.NoError(t, db.Create(taken).Error)

	link, created, err := svc.GetOrCreate(context.Background(), "aff-1", "course-1")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "AFF1RSE1000000BBBB", link.Code)
}

func TestGetOrCreate_CodeExhausted(t *testing.T) {
	svc, db := newTestService(t)
	svc.codes.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	svc.codes.random = func(int) (string, error) { return "AAAA", nil }

	require.NoError(t, db.Create(&AffiliateLink{
		ID: "existing", AffiliateID: "other", CourseID: "course-9",
		Code: "AFF1RSE1000000AAAA", CommissionRate: decimal.RequireFromString("0.1"), Status: LinkStatusActive,
	}).Error)

	_, _, err := svc.GetOrCreate(context.Background(), "aff-1", "course-1")
	require.True(t, errors.Is(err, ErrCodeGenerationExhausted))
}

func TestResolveByCode(t *testing.T) {
	svc, _ := newTestService(t)
	link, _, err := svc.GetOrCreate(context.Background(), "aff-1", "course-1")
	require.NoError(t, err)

	got, err := svc.ResolveByCode(context.Background(), link.Code)
	require.NoError(t, err)
	require.Equal(t, link.ID, got.ID)

	_, err = svc.ResolveByCode(context.Background(), "NOPE")
	require.True(t, errors.Is(err, ErrLinkNotFound))

	_, err = svc.ResolveByCode(context.Background(), " ")
	require.True(t, errors.Is(err, ErrLinkNotFound))
}

func TestRecordClick(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	link, _, err := svc.GetOrCreate(ctx, "aff-1", "course-1")
	require.NoError(t, err)

	meta := ClickMetadata{IPAddress: "10.0.0.1", UserAgent: "Mozilla/5.0 (iPhone; Mobile)", Referer: "https://t.me"}
	require.NoError(t, svc.RecordClick(ctx, link.Code, meta))
	require.NoError(t, svc.RecordClick(ctx, link.Code, meta))

	got := reload(t, db, link.ID)
	require.Equal(t, int64(2), got.Clicks)
	require.NotNil(t, got.LastClickAt)

	var clicks []Click
	require.NoError(t, db.Where("link_id = ?", link.ID).Find(&clicks).Error)
	require.Len(t, clicks, 2)
	require.Equal(t, "mobile", clicks[0].Device)
	require.Equal(t, "10.0.0.1", clicks[0].IPAddress)

	require.True(t, errors.Is(svc.RecordClick(ctx, "UNKNOWN", meta), ErrLinkNotFound))
}

func TestRecordClick_SuspendedIsNoop(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	link, _, err := svc.GetOrCreate(ctx, "aff-1", "course-1")
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, link.ID, LinkStatusSuspended)
	require.NoError(t, err)

	require.NoError(t, svc.RecordClick(ctx, link.Code, ClickMetadata{}))

	got := reload(t, db, link.ID)
	require.Zero(t, got.Clicks)
	var n int64
	require.NoError(t, db.Model(&Click{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestRecordClick_Concurrent(t *testing.T) {
	svc, db := newTestService(t)
	link, _, err := svc.GetOrCreate(context.Background(), "aff-1", "course-1")
	require.NoError(t, err)

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, svc.RecordClick(context.Background(), link.Code, ClickMetadata{}))
		}()
	}
	wg.Wait()

	require.Equal(t, int64(n), reload(t, db, link.ID).Clicks)
}

func TestRecordConversion(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	link, _, err := svc.GetOrCreate(ctx, "aff-1", "course-1")
	require.NoError(t, err)
	require.NoError(t, svc.RecordClick(ctx, link.Code, ClickMetadata{}))

	commission, err := svc.RecordConversion(ctx, ConversionParams{Code: link.Code, AmountMinor: 50000})
	require.NoError(t, err)
	require.Equal(t, int64(7500), commission)

	got := reload(t, db, link.ID)
	require.Equal(t, int64(1), got.Conversions)
	require.Equal(t, int64(7500), got.EarningsMinor)
	require.True(t, got.Earnings().Equal(decimal.NewFromInt(75)))

	var click Click
	require.NoError(t, db.Where("link_id = ?", link.ID).First(&click).Error)
	require.True(t, click.Converted)
}

func TestRecordConversion_ExplicitClick(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	link, _, err := svc.GetOrCreate(ctx, "aff-1", "course-1")
	require.NoError(t, err)

	first := &Click{ID: "click-1", LinkID: link.ID, OccurredAt: time.Now().UTC().Add(-time.Hour)}
	second := &Click{ID: "click-2", LinkID: link.ID, OccurredAt: time.Now().UTC()}
	require.NoError(t, db.Create(first).Error)
	require.NoError(t, db.Create(second).Error)

	_, err = svc.RecordConversion(ctx, ConversionParams{Code: link.Code, AmountMinor: 100, ClickID: "click-1"})
	require.NoError(t, err)

	var got []Click
	require.NoError(t, db.Order("id").Find(&got).Error)
	require.True(t, got[0].Converted)
	require.False(t, got[1].Converted)
}

func TestRecordConversion_InactiveLink(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	link, _, err := svc.GetOrCreate(ctx, "aff-1", "course-1")
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, link.ID, LinkStatusInactive)
	require.NoError(t, err)

	_, err = svc.RecordConversion(ctx, ConversionParams{Code: link.Code, AmountMinor: 100})
	require.True(t, errors.Is(err, ErrLinkInactive))
	require.Zero(t, reload(t, db, link.ID).EarningsMinor)
}

func TestRecordConversion_RollsBackWithTransaction(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	link, _, err := svc.GetOrCreate(ctx, "aff-1", "course-1")
	require.NoError(t, err)

	boom := errors.New("ledger write failed")
	err = db.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.WithTrx(tx).RecordConversion(ctx, ConversionParams{Code: link.Code, AmountMinor: 100}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got := reload(t, db, link.ID)
	require.Zero(t, got.Conversions)
	require.Zero(t, got.EarningsMinor)
}

func TestListLinks(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		status := LinkStatusActive
		if i == 4 {
			status = LinkStatusInactive
		}
		require.NoError(t, db.Create(&AffiliateLink{
			ID:             fmt.Sprintf("link-%d", i),
			AffiliateID:    "aff-1",
			CourseID:       fmt.Sprintf("course-%d", i+10),
			Code:           fmt.Sprintf("CODE%d", i),
			CommissionRate: decimal.RequireFromString("0.1"),
			Status:         status,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
			UpdatedAt:      base,
		}).Error)
	}
	require.NoError(t, db.Create(&AffiliateLink{
		ID: "other", AffiliateID: "aff-2", CourseID: "course-1", Code: "OTHER",
		CommissionRate: decimal.RequireFromString("0.1"), Status: LinkStatusActive, CreatedAt: base,
	}).Error)

	page1, info, err := svc.ListLinks(ctx, ListLinksParams{AffiliateID: "aff-1", Limit: 3})
	require.NoError(t, err)
	require.Len(t, page1, 3)
	require.True(t, info.HasMore)
	require.Equal(t, "link-4", page1[0].ID)

	page2, info, err := svc.ListLinks(ctx, ListLinksParams{AffiliateID: "aff-1", Limit: 3, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, page2, 2)
	require.False(t, info.HasMore)
	require.Equal(t, "link-0", page2[1].ID)

	inactive, _, err := svc.ListLinks(ctx, ListLinksParams{AffiliateID: "aff-1", Statuses: []LinkStatus{LinkStatusInactive}})
	require.NoError(t, err)
	require.Len(t, inactive, 1)

	either, _, err := svc.ListLinks(ctx, ListLinksParams{
		AffiliateID: "aff-1",
		Statuses:    []LinkStatus{LinkStatusInactive, LinkStatusSuspended},
	})
	require.NoError(t, err)
	require.Len(t, either, 1)
	require.Equal(t, "link-4", either[0].ID)

	_, _, err = svc.ListLinks(ctx, ListLinksParams{AffiliateID: "aff-1", Statuses: []LinkStatus{"deleted"}})
	require.Error(t, err)
}

func TestListLinks_RejectsBadCursor(t *testing.T) {
	svc, _ := newTestService(t)

	for _, cursor := range []string{"garbage", "e30="} {
		_, _, err := svc.ListLinks(context.Background(), ListLinksParams{AffiliateID: "aff-1", Cursor: cursor})
		var be errutil.BaseError
		require.ErrorAs(t, err, &be, cursor)
		require.Equal(t, errutil.StatusBadRequest, be.Code)
		require.Equal(t, "cursor", be.Details[0].Field)
	}
}

func TestSetStatus(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	link, _, err := svc.GetOrCreate(ctx, "aff-1", "course-1")
	require.NoError(t, err)

	updated, err := svc.SetStatus(ctx, link.ID, LinkStatusInactive)
	require.NoError(t, err)
	require.Equal(t, LinkStatusInactive, updated.Status)
	require.Equal(t, LinkStatusInactive, reload(t, db, link.ID).Status)

	_, err = svc.SetStatus(ctx, "missing", LinkStatusActive)
	require.ErrorIs(t, err, ErrLinkNotFound)

	_, err = svc.SetStatus(ctx, link.ID, "deleted")
	require.Error(t, err)
	require.Equal(t, LinkStatusInactive, reload(t, db, link.ID).Status)
}

func TestGetLink_OwnerOnly(t *testing.T) {
	svc, _ := newTestService(t)
	link, _, err := svc.GetOrCreate(context.Background(), "aff-1", "course-1")
	require.NoError(t, err)

	_, err = svc.GetLink(context.Background(), "aff-2", link.ID)
	require.True(t, errors.Is(err, ErrLinkNotFound))

	got, err := svc.GetLink(context.Background(), "aff-1", link.ID)
	require.NoError(t, err)
	require.Equal(t, link.Code, got.Code)
}

func TestSyncCounters_RaiseOnly(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	link, _, err := svc.GetOrCreate(ctx, "aff-1", "course-1")
	require.NoError(t, err)

	changed, err := svc.SyncCounters(ctx, link.ID, 3, 1500)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = svc.SyncCounters(ctx, link.ID, 1, 100)
	require.NoError(t, err)
	require.False(t, changed)

	got := reload(t, db, link.ID)
	require.Equal(t, int64(3), got.Conversions)
	require.Equal(t, int64(1500), got.EarningsMinor)
}

func TestPerformanceAndOverview(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	link, _, err := svc.GetOrCreate(ctx, "aff-1", "course-1")
	require.NoError(t, err)
	_, _, err = svc.GetOrCreate(ctx, "aff-1", "course-2")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, svc.RecordClick(ctx, link.Code, ClickMetadata{}))
	}
	require.NoError(t, db.Create(&Click{ID: "old", LinkID: link.ID, OccurredAt: time.Now().UTC().AddDate(0, 0, -60)}).Error)
	_, err = svc.RecordConversion(ctx, ConversionParams{Code: link.Code, AmountMinor: 50000})
	require.NoError(t, err)

	perf, err := svc.Performance(ctx, reload(t, db, link.ID), 7)
	require.NoError(t, err)
	require.Equal(t, int64(4), perf.TotalClicks)
	require.Equal(t, int64(1), perf.TotalConversions)
	require.Equal(t, 25.0, perf.ConversionRate)
	require.Equal(t, int64(4), perf.RecentClicks)
	require.Equal(t, int64(1), perf.RecentConversions)
	require.Equal(t, 7, perf.WindowDays)

	ov, err := svc.Overview(ctx, "aff-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), ov.TotalLinks)
	require.Equal(t, int64(4), ov.TotalClicks)
	require.Equal(t, int64(1), ov.TotalConversions)
	require.True(t, ov.TotalRevenue.Equal(decimal.NewFromInt(75)))
	require.Equal(t, 25.0, ov.ConversionRate)
}

func TestQRCode(t *testing.T) {
	svc, _ := newTestService(t)
	link, _, err := svc.GetOrCreate(context.Background(), "aff-1", "course-1")
	require.NoError(t, err)

	png, err := svc.QRCode(link, 0)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(png), "\x89PNG"))
}

func TestDeviceClass(t *testing.T) {
	require.Equal(t, "unknown", DeviceClass(""))
	require.Equal(t, "tablet", DeviceClass("Mozilla/5.0 (iPad; CPU OS 17_0)"))
	require.Equal(t, "mobile", DeviceClass("Mozilla/5.0 (Linux; Android 14)"))
	require.Equal(t, "desktop", DeviceClass("Mozilla/5.0 (Windows NT 10.0; Win64; x64)"))
}
