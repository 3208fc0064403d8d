package wps

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const sifSheet = "SIF"

type sifRecord struct {
	Sno                     string `csv:"sno"`
	QID                     string `csv:"qid_no"`
	VisaID                  string `csv:"visa_id"`
	EmployeeName            string `csv:"employee_name"`
	BankShortName           string `csv:"bank_short_name"`
	IBAN                    string `csv:"iban"`
	SalaryFrequency         string `csv:"salary_frequency"`
	TotalWorkingDays        string `csv:"total_working_days"`
	NetSalary               string `csv:"net_salary"`
	BaseSalary              string `csv:"base_salary"`
	ExtraHours              string `csv:"extra_hours"`
	ExtraIncome             string `csv:"extra_income"`
	TotalDeduction          string `csv:"total_deduction"`
	PaymentType             string `csv:"payment_type"`
	Comments                string `csv:"comments"`
	HousingAllowance        string `csv:"housing_allowance"`
	FoodAllowance           string `csv:"food_allowance"`
	TransportationAllowance string `csv:"transportation_allowance"`
	OTAllowance             string `csv:"ot_allowance"`
	DeductionReasonCode     string `csv:"deduction_reason_code"`
	ExtraField1             string `csv:"extra_field_1"`
	ExtraField2             string `csv:"extra_field_2"`
}

func amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func (r DataRow) record() sifRecord {
	return sifRecord{
		Sno:                     strconv.Itoa(r.Sno),
		QID:                     r.QID,
		VisaID:                  r.VisaID,
		EmployeeName:            r.EmployeeName,
		BankShortName:           r.BankShortName,
		IBAN:                    r.IBAN,
		SalaryFrequency:         r.SalaryFrequency,
		TotalWorkingDays:        r.TotalWorkingDays.String(),
		NetSalary:               amount(r.NetSalary),
		BaseSalary:              amount(r.BaseSalary),
		ExtraHours:              amount(r.ExtraHours),
		ExtraIncome:             amount(r.ExtraIncome),
		TotalDeduction:          amount(r.TotalDeduction),
		PaymentType:             r.PaymentType,
		Comments:                r.Comments,
		HousingAllowance:        amount(r.HousingAllowance),
		FoodAllowance:           amount(r.FoodAllowance),
		TransportationAllowance: amount(r.TransportationAllowance),
		OTAllowance:             amount(r.OTAllowance),
		DeductionReasonCode:     strconv.Itoa(r.DeductionReasonCode),
		ExtraField1:             amount(r.ExtraField1),
		ExtraField2:             amount(r.ExtraField2),
	}
}

// Cells lays the data row out in file column order.
func (r DataRow) Cells() []string {
	rec := r.record()
	return []string{
		rec.Sno, rec.QID, rec.VisaID, rec.EmployeeName, rec.BankShortName, rec.IBAN,
		rec.SalaryFrequency, rec.TotalWorkingDays, rec.NetSalary, rec.BaseSalary,
		rec.ExtraHours, rec.ExtraIncome, rec.TotalDeduction, rec.PaymentType,
		rec.Comments, rec.HousingAllowance, rec.FoodAllowance,
		rec.TransportationAllowance, rec.OTAllowance, rec.DeductionReasonCode,
		rec.ExtraField1, rec.ExtraField2,
	}
}

// Cells lays the metadata out in the first slots of the file columns.
func (m MetadataRow) Cells() []string {
	cells := make([]string, ColumnCount)
	copy(cells[:MetadataSlots], []string{
		m.EmployerEID,
		m.CreationDate,
		m.CreationTime,
		m.PayerEID,
		m.PayerQID,
		m.PayerBankShortName,
		m.PayerIBAN,
		m.SalaryPeriod,
		amount(m.TotalSalaries),
		strconv.Itoa(m.TotalRecords),
		m.SIFVersion,
	})
	return cells
}

func (r Report) preamble() [][]string {
	return [][]string{
		MetadataLabels[:],
		r.Metadata.Cells(),
		r.Title[:],
	}
}

// WriteCSV renders labels, metadata, title and data rows with CRLF line
// endings.
func WriteCSV(w io.Writer, report Report) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	for _, row := range report.preamble() {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write sif preamble: %w", err)
		}
	}
	records := make([]sifRecord, 0, len(report.Rows))
	for _, row := range report.Rows {
		records = append(records, row.record())
	}
	if len(records) > 0 {
		if err := gocsv.MarshalCSVWithoutHeaders(records, gocsv.NewSafeCSVWriter(cw)); err != nil {
			return fmt.Errorf("write sif rows: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteXLSX(w io.Writer, report Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sifSheet); err != nil {
		return err
	}
	rows := report.preamble()
	for _, row := range report.Rows {
		rows = append(rows, row.Cells())
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sifSheet, cell, &values); err != nil {
			return fmt.Errorf("write sif sheet row %d: %w", i+1, err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write sif workbook: %w", err)
	}
	return nil
}
