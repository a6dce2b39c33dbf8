package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"examprep-marketplace/pkg/config"
	"examprep-marketplace/pkg/db"
	"examprep-marketplace/pkg/errutil"
	"examprep-marketplace/pkg/money"
	"examprep-marketplace/pkg/rediskey"
	"examprep-marketplace/services/account"
	"examprep-marketplace/services/settlement"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 50
	MaxLimit     = 250
)

type Service struct {
	db    *gorm.DB
	rdb   *redis.Client
	group singleflight.Group

	defaultLimit int
	cacheTTL     time.Duration
	queryTimeout time.Duration
}

type Params struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
	Redis  *redis.Client `optional:"true"`
}

func NewService(p Params) *Service {
	svc := &Service{
		db:           p.DB,
		rdb:          p.Redis,
		defaultLimit: p.Config.Leaderboard.DefaultLimit,
		cacheTTL:     p.Config.Leaderboard.CacheTTL,
		queryTimeout: p.Config.Database.QueryTimeout,
	}
	if svc.defaultLimit <= 0 || svc.defaultLimit > MaxLimit {
		svc.defaultLimit = DefaultLimit
	}
	return svc
}

func (s *Service) normalize(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// TopAffiliates ranks affiliates by commission earned on completed purchases.
// Results are cached for the configured TTL; concurrent misses share one
// query, which runs detached from any single caller's cancellation.
func (s *Service) TopAffiliates(ctx context.Context, limit int) ([]Entry, error) {
	limit = s.normalize(limit)
	key := rediskey.BuildLeaderboardKey(limit)

	if entries, ok := s.fromCache(ctx, key); ok {
		return entries, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		shared := context.WithoutCancel(ctx)
		entries, err := s.query(shared, limit)
		if err != nil {
			return nil, err
		}
		s.store(shared, key, entries)
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Entry), nil
}

func (s *Service) query(ctx context.Context, limit int) ([]Entry, error) {
	ctx, cancel := db.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var entries []Entry
	err := s.db.WithContext(ctx).
		Table(settlement.Purchase{}.TableName()+" AS p").
		Select(`p.affiliate_id AS affiliate_id,
			COALESCE(u.name, '') AS name,
			COALESCE(u.email, '') AS email,
			SUM(p.commission_minor) AS total_commission_minor,
			COUNT(*) AS total_sales`).
		Joins("LEFT JOIN "+account.User{}.TableName()+" AS u ON u.id = p.affiliate_id").
		Where("p.status = ? AND p.affiliate_id IS NOT NULL", settlement.PurchaseStatusCompleted).
		Group("p.affiliate_id, u.name, u.email").
		Order("total_commission_minor DESC, p.affiliate_id ASC").
		Limit(limit).
		Scan(&entries).Error
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errutil.Timeout("leaderboard query timed out", err)
		}
		return nil, errutil.Internal("failed to load leaderboard", err)
	}

	for i := range entries {
		entries[i].Rank = i + 1
		entries[i].TotalCommission = money.FromMinor(entries[i].TotalCommissionMinor)
	}
	return entries, nil
}

func (s *Service) fromCache(ctx context.Context, key string) ([]Entry, bool) {
	if s.rdb == nil || s.cacheTTL <= 0 {
		return nil, false
	}

	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("leaderboard cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		zap.L().Warn("leaderboard cache entry is corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	for i := range entries {
		entries[i].TotalCommissionMinor = money.ToMinor(entries[i].TotalCommission)
	}
	return entries, true
}

func (s *Service) store(ctx context.Context, key string, entries []Entry) {
	if s.rdb == nil || s.cacheTTL <= 0 {
		return
	}

	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
		zap.L().Warn("leaderboard cache write failed", zap.String("key", key), zap.Error(err))
	}
}
