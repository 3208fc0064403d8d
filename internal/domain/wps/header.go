package wps

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ColumnCount   = 22
	MetadataSlots = 11
)

var TitleLabels = TitleRow{
	"Record Sequence",
	"Employee QID",
	"Employee Visa ID",
	"Employee Name",
	"Employee Bank Short Name",
	"Employee Account",
	"Salary Frequency",
	"Number of Working days",
	"Net Salary",
	"Basic Salary",
	"Extra hours",
	"Extra income",
	"Deductions",
	"Payment Type",
	"Notes / Comments",
	"Housing Allowance",
	"Food Allowance",
	"Transportation Allowance",
	"Over Time Allowance",
	"Deduction Reason Code",
	"Extra Field 1",
	"Extra Field 2",
}

// MetadataLabels is the column header written above the metadata row. Only
// the first MetadataSlots columns carry a label.
var MetadataLabels = [ColumnCount]string{
	"Employer EID",
	"File Creation Date",
	"File Creation Time",
	"Payer EID",
	"Payer QID",
	"Payer Bank Short Name",
	"Payer IBAN",
	"Salary Year and Month",
	"Total Salaries",
	"Total Records",
	"SIF Version",
}

func Totals(rows []DataRow) (int, decimal.Decimal) {
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.NetSalary)
	}
	return len(rows), total
}

// BuildMetadata fills the machine header. created is the file creation
// instant already converted to the reporting timezone.
func BuildMetadata(settings Settings, rows []DataRow, period, created time.Time) MetadataRow {
	count, total := Totals(rows)
	return MetadataRow{
		EmployerEID:        settings.EmployerEID,
		CreationDate:       created.Format("20060102"),
		CreationTime:       created.Format("1504"),
		PayerEID:           settings.PayerEID,
		PayerQID:           settings.PayerQID,
		PayerBankShortName: settings.PayerBankShortName,
		PayerIBAN:          settings.PayerIBAN,
		SalaryPeriod:       SalaryPeriod(period),
		TotalSalaries:      total,
		TotalRecords:       count,
		SIFVersion:         settings.SIFVersion,
	}
}

// Filename is the download name without extension.
func Filename(settings Settings, created time.Time) string {
	return "SIF_" + settings.EmployerEID + "_" + settings.PayerBankShortName + "_" + created.Format("20060102") + "_" + created.Format("1504")
}
