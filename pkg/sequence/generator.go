package sequence

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"examprep-marketplace/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// MaxReceiptLength is the longest receipt the payment gateway accepts.
const MaxReceiptLength = 40

const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

type Generator interface {
	NextReceipt(ctx context.Context, courseID string) (string, error)
}

type RedisGenerator struct {
	rdb *redis.Client
	now func() time.Time
}

type Params struct {
	fx.In

	Redis *redis.Client `optional:"true"`
}

func NewRedisGenerator(p Params) Generator {
	if p.Redis == nil {
		return NewRandomGenerator()
	}
	return &RedisGenerator{
		rdb: p.Redis,
		now: time.Now,
	}
}

// NextReceipt returns "rcpt_{course}_{yymmdd}{seq}{rand}". When Redis is
// unavailable the daily sequence is replaced by random characters.
func (g *RedisGenerator) NextReceipt(ctx context.Context, courseID string) (string, error) {
	today := g.now().UTC().Format("060102")
	key := rediskey.BuildReceiptSeqKey(today)

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		zap.L().Warn("receipt sequence unavailable, using random suffix", zap.Error(err))
		return NewRandomGenerator().NextReceipt(ctx, courseID)
	}

	if seq == 1 {
		_ = g.rdb.Expire(ctx, key, 25*time.Hour).Err()
	}

	encodedSeq := strings.ToUpper(fmt.Sprintf("%03s", strconv.FormatInt(seq, 36)))
	randSuffix, err := RandomAlphaNumeric(2)
	if err != nil {
		return "", err
	}

	return buildReceipt(courseID, today+encodedSeq+randSuffix), nil
}

type RandomGenerator struct {
	now func() time.Time
}

func NewRandomGenerator() *RandomGenerator {
	return &RandomGenerator{now: time.Now}
}

func (g *RandomGenerator) NextReceipt(_ context.Context, courseID string) (string, error) {
	suffix, err := RandomAlphaNumeric(6)
	if err != nil {
		return "", err
	}
	return buildReceipt(courseID, strconv.FormatInt(g.now().Unix(), 36)+suffix), nil
}

func buildReceipt(courseID, tail string) string {
	receipt := fmt.Sprintf("rcpt_%s_%s", Tail(courseID, 8), tail)
	if len(receipt) > MaxReceiptLength {
		receipt = receipt[:MaxReceiptLength]
	}
	return receipt
}

// Tail returns the last n alphanumeric characters of s, upper cased.
func Tail(s string, n int) string {
	var b []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			b = append(b, c)
		}
	}
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return strings.ToUpper(string(b))
}

// RandomAlphaNumeric draws n characters from an alphabet without ambiguous
// glyphs (no 0/O, 1/I).
func RandomAlphaNumeric(n int) (string, error) {
	b := make([]byte, n)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", err
		}
		b[i] = alphabet[num.Int64()]
	}
	return string(b), nil
}
