package settlement

import (
	"context"

	"examprep-marketplace/pkg/db"
	"examprep-marketplace/pkg/errutil"

	"go.uber.org/zap"
)

const reconcileBatchSize = 250

type linkTotals struct {
	Conversions   int64
	EarningsMinor int64
}

// ReconcileLink raises the counters of one link to what the ledger says it
// earned. It reports whether the link was behind.
func (s *Service) ReconcileLink(ctx context.Context, linkID string) (bool, error) {
	if linkID == "" {
		return false, errutil.BadRequest("linkId is required", nil)
	}

	dbCtx, cancel := db.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var totals linkTotals
	err := s.db.WithContext(dbCtx).Model(&Purchase{}).
		Select("COUNT(*) AS conversions, COALESCE(SUM(commission_minor), 0) AS earnings_minor").
		Where("affiliate_link_id = ? AND status = ?", linkID, PurchaseStatusCompleted).
		Scan(&totals).Error
	if err != nil {
		return false, errutil.Internal("failed to aggregate link ledger", err)
	}

	updated, err := s.links.SyncCounters(ctx, linkID, totals.Conversions, totals.EarningsMinor)
	if err != nil {
		return false, err
	}
	if updated {
		s.logger(ctx).Warn("link counters were behind the ledger",
			zap.String("link_id", linkID),
			zap.Int64("conversions", totals.Conversions),
			zap.Int64("earnings_minor", totals.EarningsMinor),
		)
	}
	return updated, nil
}

// ReconcileAll walks every link. A failing link is logged and skipped.
func (s *Service) ReconcileAll(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}
	after := ""

	for {
		if err := ctx.Err(); err != nil {
			return report, errutil.Timeout("reconciliation interrupted", err)
		}

		ids, err := s.links.ListLinkIDs(ctx, after, reconcileBatchSize)
		if err != nil {
			return report, err
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			report.Scanned++
			updated, err := s.ReconcileLink(ctx, id)
			if err != nil {
				s.logger(ctx).Error("failed to reconcile link", zap.String("link_id", id), zap.Error(err))
				continue
			}
			if updated {
				report.Updated++
			}
		}

		if len(ids) < reconcileBatchSize {
			break
		}
		after = ids[len(ids)-1]
	}

	s.logger(ctx).Info("reconciliation finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("updated", report.Updated),
	)
	return report, nil
}
