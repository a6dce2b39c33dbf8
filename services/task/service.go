package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"examprep-marketplace/pkg/errutil"
	"examprep-marketplace/pkg/repository"
	"examprep-marketplace/pkg/task"
	"examprep-marketplace/pkg/taskname"
	"examprep-marketplace/services/settlement"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrJobNotFound = errutil.New(errutil.StatusNotFound, "job not found", errutil.WithReason("JOB_NOT_FOUND"))

const reconcileTimeout = 30 * time.Minute

var errNoReconciler = fmt.Errorf("reconciler not configured: %w", asynq.SkipRetry)

type Reconciler interface {
	ReconcileAll(ctx context.Context) (*settlement.ReconcileReport, error)
	ReconcileLink(ctx context.Context, linkID string) (bool, error)
}

type Service struct {
	node       *snowflake.Node
	jobs       repository.Repository[Job]
	enqueuer   task.Enqueuer
	reconciler Reconciler
	now        func() time.Time
}

type Params struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Enqueuer task.Enqueuer `optional:"true"`

	Settlement *settlement.Service `optional:"true"`
}

func NewService(p Params) *Service {
	svc := &Service{
		node:     p.Node,
		jobs:     repository.ProvideStore[Job](p.DB),
		enqueuer: p.Enqueuer,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if p.Settlement != nil {
		svc.reconciler = p.Settlement
	}
	return svc
}

// EnqueueReconcile records a pending job and queues it. An empty linkID
// reconciles every link.
func (s *Service) EnqueueReconcile(ctx context.Context, trigger, linkID string) (*Job, error) {
	if s.enqueuer == nil {
		return nil, errutil.ServiceUnavailable("task queue is not configured", nil)
	}

	name := taskname.AffiliateReconcileAll
	if linkID != "" {
		name = taskname.AffiliateReconcileLink
	}

	job := &Job{
		ID:          s.node.Generate().String(),
		TaskName:    name,
		TriggeredBy: trigger,
		Status:      JobStatusPending,
		CreatedAt:   s.now(),
		UpdatedAt:   s.now(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, errutil.Internal("failed to create job", err)
	}

	payload, _ := json.Marshal(reconcilePayload{JobID: job.ID, LinkID: linkID})
	_, err := s.enqueuer.Enqueue(ctx, asynq.NewTask(name, payload),
		asynq.Queue(taskname.QueueLow),
		asynq.MaxRetry(3),
		asynq.Timeout(reconcileTimeout),
	)
	if err != nil {
		s.finish(ctx, job.ID, err, nil)
		zap.L().Error("failed to enqueue reconcile job", zap.String("job_id", job.ID), zap.Error(err))
		return nil, errutil.ServiceUnavailable("failed to enqueue job", err)
	}

	zap.L().Info("enqueued reconcile job",
		zap.String("job_id", job.ID),
		zap.String("task", name),
		zap.String("trigger", trigger),
		zap.String("link_id", linkID),
	)
	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	job, err := s.jobs.FindOne(ctx, &Job{ID: id})
	if err != nil {
		return nil, errutil.Internal("failed to load job", err)
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// HandleReconcileAll is the asynq handler for taskname.AffiliateReconcileAll.
func (s *Service) HandleReconcileAll(ctx context.Context, t *asynq.Task) error {
	if s.reconciler == nil {
		return errNoReconciler
	}
	var payload reconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		zap.L().Error("invalid reconcile payload", zap.Error(err))
		return asynq.SkipRetry
	}

	s.start(ctx, payload.JobID)
	report, err := s.reconciler.ReconcileAll(ctx)
	s.finish(ctx, payload.JobID, err, report)
	if err != nil {
		zap.L().Error("reconcile job failed", zap.String("job_id", payload.JobID), zap.Error(err))
		return err
	}

	zap.L().Info("reconcile job finished",
		zap.String("job_id", payload.JobID),
		zap.Int("scanned", report.Scanned),
		zap.Int("updated", report.Updated),
	)
	return nil
}

// HandleReconcileLink is the asynq handler for taskname.AffiliateReconcileLink.
func (s *Service) HandleReconcileLink(ctx context.Context, t *asynq.Task) error {
	if s.reconciler == nil {
		return errNoReconciler
	}
	var payload reconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.LinkID == "" {
		zap.L().Error("invalid reconcile payload", zap.ByteString("payload", t.Payload()))
		return asynq.SkipRetry
	}

	s.start(ctx, payload.JobID)
	updated, err := s.reconciler.ReconcileLink(ctx, payload.LinkID)
	s.finish(ctx, payload.JobID, err, map[string]any{"linkId": payload.LinkID, "updated": updated})
	if err != nil {
		zap.L().Error("reconcile link job failed",
			zap.String("job_id", payload.JobID),
			zap.String("link_id", payload.LinkID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) start(ctx context.Context, jobID string) {
	if jobID == "" {
		return
	}
	now := s.now()
	updates := map[string]any{"status": JobStatusRunning, "started_at": now, "updated_at": now}
	if err := s.jobs.Update(ctx, jobID, &updates); err != nil {
		zap.L().Warn("failed to mark job running", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *Service) finish(ctx context.Context, jobID string, runErr error, result any) {
	if jobID == "" {
		return
	}
	now := s.now()
	updates := map[string]any{"completed_at": now, "updated_at": now}
	if runErr != nil {
		updates["status"] = JobStatusFailed
		updates["error_msg"] = runErr.Error()
	} else {
		updates["status"] = JobStatusSuccess
		updates["error_msg"] = ""
	}
	if result != nil {
		if raw, err := json.Marshal(result); err == nil {
			updates["metadata"] = datatypes.JSON(raw)
		}
	}
	if err := s.jobs.Update(ctx, jobID, &updates); err != nil {
		zap.L().Warn("failed to record job result", zap.String("job_id", jobID), zap.Error(err))
	}
}

// RegisterHandlers wires the reconcile tasks into the worker mux.
func RegisterHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.AffiliateReconcileAll, svc.HandleReconcileAll)
	mux.HandleFunc(taskname.AffiliateReconcileLink, svc.HandleReconcileLink)
}
