package reports

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// HistoryPDF renders the user's archived target periods as a PDF document.
func (s *Service) HistoryPDF(ctx context.Context, tenantID, userID string) ([]byte, error) {
	rec, err := s.Targets.GetTarget(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	user, err := s.Core.GetUser(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Performance Target History")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Sales rep: %s %s", user.FirstName, user.LastName))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Current period: %s (%s to %s)", rec.TargetPeriod,
		rec.PeriodStartDate.Format("2006-01-02"), rec.PeriodEndDate.Format("2006-01-02")))
	pdf.Ln(10)

	if len(rec.History) == 0 {
		pdf.Cell(0, 8, "No archived periods yet.")
	}

	for i := len(rec.History) - 1; i >= 0; i-- {
		snapshot := rec.History[i]
		pdf.SetFont("Helvetica", "B", 13)
		pdf.Cell(0, 8, fmt.Sprintf("Period %s - %s (%.1f%% complete)", snapshot.Period, snapshot.Status, snapshot.Completion))
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 11)
		for _, metric := range snapshot.Metrics {
			pdf.Cell(0, 6, fmt.Sprintf("  %s: %.2f of %.2f (short %.2f)", metric.Metric, metric.Achieved, metric.Target, metric.Missing))
			pdf.Ln(6)
		}
		pdf.Ln(4)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
