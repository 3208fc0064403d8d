package wps

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CategoryIndex maps an exact salary component name to its category.
type CategoryIndex map[string]string

func NewCategoryIndex(mappings []CategoryMapping) CategoryIndex {
	index := make(CategoryIndex, len(mappings))
	for _, m := range mappings {
		if !IsCategory(m.Category) {
			continue
		}
		index[m.ComponentName] = m.Category
	}
	return index
}

// SumComponents totals component lines per slip and category. Every line of
// a mapped component contributes; unmapped components are ignored.
func SumComponents(lines []ComponentLine, index CategoryIndex) map[string]ComponentTotals {
	out := map[string]ComponentTotals{}
	for _, line := range lines {
		category, ok := index[line.ComponentName]
		if !ok {
			continue
		}
		totals := out[line.SlipID]
		switch category {
		case CategoryBasic:
			totals.Basic = totals.Basic.Add(line.Amount)
		case CategoryHousing:
			totals.Housing = totals.Housing.Add(line.Amount)
		case CategoryFood:
			totals.Food = totals.Food.Add(line.Amount)
		case CategoryTransportation:
			totals.Transportation = totals.Transportation.Add(line.Amount)
		}
		out[line.SlipID] = totals
	}
	return out
}

func EnrichRow(seq int, rec PayrollRecord, totals ComponentTotals, comments string) DataRow {
	return DataRow{
		Sno:                     seq,
		QID:                     rec.QID,
		VisaID:                  rec.VisaID,
		EmployeeName:            rec.EmployeeName,
		BankShortName:           rec.BankShortName,
		IBAN:                    rec.IBAN,
		SalaryFrequency:         FrequencyCode(rec.PayrollFrequency),
		TotalWorkingDays:        rec.TotalWorkingDays,
		NetSalary:               rec.NetPay,
		BaseSalary:              totals.Basic,
		ExtraHours:              decimal.Zero,
		ExtraIncome:             RemainingBalance(rec.NetPay, totals),
		TotalDeduction:          rec.TotalDeduction,
		PaymentType:             PaymentTypeNormal,
		Comments:                comments,
		HousingAllowance:        totals.Housing,
		FoodAllowance:           totals.Food,
		TransportationAllowance: totals.Transportation,
		OTAllowance:             decimal.Zero,
		DeductionReasonCode:     DeductionReasonCode(rec.TotalDeduction),
		ExtraField1:             decimal.Zero,
		ExtraField2:             decimal.Zero,
		EmployeeID:              rec.EmployeeID,
		SlipID:                  rec.SlipID,
	}
}

// RemainingBalance is whatever part of net pay the named categories do not
// explain. It may be negative.
func RemainingBalance(net decimal.Decimal, totals ComponentTotals) decimal.Decimal {
	return net.Sub(totals.Sum())
}

func FrequencyCode(frequency string) string {
	if frequency == FrequencyMonthly {
		return FrequencyCodeMonthly
	}
	return ""
}

func DeductionReasonCode(totalDeduction decimal.Decimal) int {
	if totalDeduction.IsPositive() {
		return DeductionReasonCodeDeduction
	}
	return DeductionReasonCodeNone
}

func Comments(period time.Time) string {
	return fmt.Sprintf("Salary For %s %d", period.Month().String(), period.Year())
}

func SalaryPeriod(period time.Time) string {
	return period.Format("200601")
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}
