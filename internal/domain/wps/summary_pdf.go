package wps

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

// SummaryPDF renders a one page sign-off sheet listing the batch filters,
// totals and included employees.
func (s *Service) SummaryPDF(ctx context.Context, id string) ([]byte, string, error) {
	batch, err := s.store.GetBatch(ctx, id)
	if err != nil {
		return nil, "", err
	}
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, "", err
	}

	total := decimal.Zero
	for _, emp := range batch.Employees {
		total = total.Add(emp.Amount)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "WPS Batch Summary")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Batch: %s", batch.ID))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Status: %s", batch.Status))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Employer EID: %s", settings.EmployerEID))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Payer bank: %s", settings.PayerBankShortName))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Period: %s to %s", formatDate(batch.FromDate), formatDate(batch.ToDate)))
	pdf.Ln(6)
	if batch.Department != "" {
		pdf.Cell(0, 7, fmt.Sprintf("Department: %s", batch.Department))
		pdf.Ln(6)
	}
	pdf.Cell(0, 7, fmt.Sprintf("Employees: %d", len(batch.Employees)))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Total net pay: %s", total.StringFixed(2)))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(10, 7, "#", "1", 0, "C", false, 0, "")
	pdf.CellFormat(60, 7, "Employee", "1", 0, "L", false, 0, "")
	pdf.CellFormat(70, 7, "Salary slip", "1", 0, "L", false, 0, "")
	pdf.CellFormat(40, 7, "Net pay", "1", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for i, emp := range batch.Employees {
		pdf.CellFormat(10, 6, fmt.Sprintf("%d", i+1), "1", 0, "C", false, 0, "")
		pdf.CellFormat(60, 6, emp.EmployeeID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(70, 6, emp.SalarySlipID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, emp.Amount.StringFixed(2), "1", 1, "R", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", fmt.Errorf("render wps summary: %w", err)
	}
	return buf.Bytes(), "wps-batch-" + batch.ID + ".pdf", nil
}
