package course

import (
	"context"
	"time"

	"examprep-marketplace/pkg/config"
	"examprep-marketplace/pkg/db"
	"examprep-marketplace/pkg/errutil"
	"examprep-marketplace/pkg/repository"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrCourseNotFound = errutil.New(errutil.StatusNotFound, "course not found", errutil.WithReason("COURSE_NOT_FOUND"))

// Catalog is the read side of the course catalog.
type Catalog interface {
	GetCourse(ctx context.Context, courseID string) (*Course, error)
}

type Service struct {
	courses repository.Repository[Course]
	timeout time.Duration
}

type Params struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config `optional:"true"`
}

func NewService(p Params) *Service {
	svc := &Service{
		courses: repository.ProvideStore[Course](p.DB),
	}
	if p.Config != nil {
		svc.timeout = p.Config.Database.QueryTimeout
	}
	return svc
}

func (s *Service) GetCourse(ctx context.Context, courseID string) (*Course, error) {
	if courseID == "" {
		return nil, ErrCourseNotFound
	}

	ctx, cancel := db.WithTimeout(ctx, s.timeout)
	defer cancel()

	c, err := s.courses.FindOne(ctx, &Course{ID: courseID})
	if err != nil {
		zap.L().Error("failed to load course", zap.String("course_id", courseID), zap.Error(err))
		return nil, errutil.Internal("failed to load course", err)
	}
	if c == nil {
		return nil, ErrCourseNotFound
	}

	return c, nil
}
