package affiliate

import (
	"context"
	"fmt"
	"time"

	"examprep-marketplace/pkg/errutil"
	"examprep-marketplace/pkg/sequence"

	"go.uber.org/zap"
)

const (
	DefaultCodeMaxAttempts = 5
	codeSuffixLength       = 4
)

var ErrCodeGenerationExhausted = errutil.New(errutil.StatusServiceUnavailable,
	"could not allocate a unique referral code", errutil.WithReason("CODE_GENERATION_EXHAUSTED"))

// CodeExistsFunc reports whether a referral code is already taken.
type CodeExistsFunc func(ctx context.Context, code string) (bool, error)

// CodeGenerator builds referral codes of the form
// {affiliate tail}{course tail}{coarse timestamp}{random suffix}.
type CodeGenerator struct {
	exists      CodeExistsFunc
	maxAttempts int
	now         func() time.Time
	random      func(n int) (string, error)
}

func NewCodeGenerator(exists CodeExistsFunc, maxAttempts int) *CodeGenerator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultCodeMaxAttempts
	}
	return &CodeGenerator{
		exists:      exists,
		maxAttempts: maxAttempts,
		now:         time.Now,
		random:      sequence.RandomAlphaNumeric,
	}
}

// Generate returns a code that did not exist at the time of the check. Only
// the random suffix is redrawn on collision; the unique index on code stays
// the final arbiter.
func (g *CodeGenerator) Generate(ctx context.Context, affiliateID, courseID string) (string, error) {
	prefix := fmt.Sprintf("%s%s%06d",
		sequence.Tail(affiliateID, 4),
		sequence.Tail(courseID, 4),
		g.now().Unix()%1_000_000,
	)

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		suffix, err := g.random(codeSuffixLength)
		if err != nil {
			return "", errutil.Internal("failed to draw referral code", err)
		}

		code := prefix + suffix
		taken, err := g.exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}

		zap.L().Debug("referral code collision",
			zap.String("affiliate_id", affiliateID),
			zap.String("course_id", courseID),
			zap.Int("attempt", attempt),
		)
	}

	zap.L().Warn("referral code generation exhausted",
		zap.String("affiliate_id", affiliateID),
		zap.String("course_id", courseID),
		zap.Int("attempts", g.maxAttempts),
	)
	return "", ErrCodeGenerationExhausted
}
