package leaderboard

import (
	"context"

	"examprep-marketplace/pkg/errutil"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Leaderboard"

var exportHeaders = []string{"Rank", "Affiliate ID", "Name", "Email", "Total Commission", "Total Sales"}

// Export renders the current ranking as an XLSX workbook. It reads the
// ledger directly instead of the cache.
func (s *Service) Export(ctx context.Context, limit int) ([]byte, error) {
	entries, err := s.query(ctx, s.normalize(limit))
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, errutil.Internal("failed to build leaderboard export", err)
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return nil, errutil.Internal("failed to build leaderboard export", err)
		}
	}

	for i, e := range entries {
		row := []any{e.Rank, e.AffiliateID, e.Name, e.Email, e.TotalCommission.InexactFloat64(), e.TotalSales}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, errutil.Internal("failed to build leaderboard export", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, errutil.Internal("failed to write leaderboard export", err)
	}
	return buf.Bytes(), nil
}
