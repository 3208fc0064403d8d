package wps

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Filters narrows the salary slips considered for an export. Zero values
// impose no constraint.
type Filters struct {
	FromDate   *time.Time       `json:"fromDate,omitempty"`
	ToDate     *time.Time       `json:"toDate,omitempty"`
	Department string           `json:"department,omitempty"`
	FromRange  *decimal.Decimal `json:"fromRange,omitempty"`
	ToRange    *decimal.Decimal `json:"toRange,omitempty"`
	Include    []string         `json:"-"`
	Exclude    []string         `json:"-"`
}

func (f Filters) Validate() error {
	if f.FromDate != nil && f.ToDate != nil && f.ToDate.Before(*f.FromDate) {
		return fmt.Errorf("%w: toDate is before fromDate", ErrInvalidFilters)
	}
	if f.FromRange != nil && f.ToRange != nil && f.ToRange.LessThan(*f.FromRange) {
		return fmt.Errorf("%w: toRange is below fromRange", ErrInvalidFilters)
	}
	if f.FromRange != nil && f.FromRange.IsNegative() {
		return fmt.Errorf("%w: fromRange is negative", ErrInvalidFilters)
	}
	return nil
}

type Batch struct {
	ID          string           `json:"id"`
	FromDate    *time.Time       `json:"fromDate,omitempty"`
	ToDate      *time.Time       `json:"toDate,omitempty"`
	Department  string           `json:"department,omitempty"`
	FromRange   *decimal.Decimal `json:"fromRange,omitempty"`
	ToRange     *decimal.Decimal `json:"toRange,omitempty"`
	Status      string           `json:"status"`
	CreatedBy   string           `json:"createdBy"`
	CreatedAt   time.Time        `json:"createdAt"`
	SubmittedAt *time.Time       `json:"submittedAt,omitempty"`
	Employees   []BatchEmployee  `json:"employees"`
}

func (b Batch) Filters() Filters {
	return Filters{
		FromDate:   b.FromDate,
		ToDate:     b.ToDate,
		Department: b.Department,
		FromRange:  b.FromRange,
		ToRange:    b.ToRange,
	}
}

func (b Batch) EmployeeIDs() []string {
	out := make([]string, 0, len(b.Employees))
	seen := map[string]struct{}{}
	for _, emp := range b.Employees {
		if _, ok := seen[emp.EmployeeID]; ok {
			continue
		}
		seen[emp.EmployeeID] = struct{}{}
		out = append(out, emp.EmployeeID)
	}
	return out
}

type BatchEmployee struct {
	EmployeeID   string          `json:"employeeId"`
	SalarySlipID string          `json:"salarySlipId"`
	Amount       decimal.Decimal `json:"amount"`
}

// PayrollRecord is one submitted salary slip joined with its employee.
type PayrollRecord struct {
	SlipID           string
	EmployeeID       string
	EmployeeName     string
	Department       string
	QID              string
	VisaID           string
	IBAN             string
	BankShortName    string
	PayrollFrequency string
	TotalWorkingDays decimal.Decimal
	NetPay           decimal.Decimal
	TotalDeduction   decimal.Decimal
	StartDate        time.Time
	EndDate          time.Time
	DocStatus        int
}

type ComponentLine struct {
	SlipID        string
	ComponentName string
	Amount        decimal.Decimal
}

type ComponentTotals struct {
	Basic          decimal.Decimal
	Housing        decimal.Decimal
	Food           decimal.Decimal
	Transportation decimal.Decimal
}

func (c ComponentTotals) Sum() decimal.Decimal {
	return c.Basic.Add(c.Housing).Add(c.Food).Add(c.Transportation)
}

type CategoryMapping struct {
	ComponentName string `json:"componentName" validate:"required,max=140"`
	Category      string `json:"category" validate:"required,oneof=basic housing food transportation"`
}

type Settings struct {
	EmployerEID        string    `json:"employerEid" validate:"omitempty,max=64"`
	PayerEID           string    `json:"payerEid" validate:"omitempty,max=64"`
	PayerQID           string    `json:"payerQid" validate:"omitempty,max=64"`
	PayerBankShortName string    `json:"payerBankShortName" validate:"omitempty,max=32"`
	PayerIBAN          string    `json:"payerIban" validate:"omitempty,max=34"`
	SIFVersion         string    `json:"sifVersion" validate:"omitempty,max=16"`
	UpdatedAt          time.Time `json:"updatedAt,omitempty"`
}

// DataRow is one employee line of the salary information file.
type DataRow struct {
	Sno                     int             `json:"sno"`
	QID                     string          `json:"qidNo"`
	VisaID                  string          `json:"visaId"`
	EmployeeName            string          `json:"employeeName"`
	BankShortName           string          `json:"bankShortName"`
	IBAN                    string          `json:"iban"`
	SalaryFrequency         string          `json:"salaryFrequency"`
	TotalWorkingDays        decimal.Decimal `json:"totalWorkingDays"`
	NetSalary               decimal.Decimal `json:"netSalary"`
	BaseSalary              decimal.Decimal `json:"baseSalary"`
	ExtraHours              decimal.Decimal `json:"extraHours"`
	ExtraIncome             decimal.Decimal `json:"extraIncome"`
	TotalDeduction          decimal.Decimal `json:"totalDeduction"`
	PaymentType             string          `json:"paymentType"`
	Comments                string          `json:"comments"`
	HousingAllowance        decimal.Decimal `json:"housingAllowance"`
	FoodAllowance           decimal.Decimal `json:"foodAllowance"`
	TransportationAllowance decimal.Decimal `json:"transportationAllowance"`
	OTAllowance             decimal.Decimal `json:"otAllowance"`
	DeductionReasonCode     int             `json:"deductionReasonCode"`
	ExtraField1             decimal.Decimal `json:"extraField1"`
	ExtraField2             decimal.Decimal `json:"extraField2"`

	EmployeeID string `json:"employeeId"`
	SlipID     string `json:"salarySlipId"`
}

// MetadataRow is the machine header of the salary information file.
type MetadataRow struct {
	EmployerEID        string          `json:"employerEid"`
	CreationDate       string          `json:"fileCreationDate"`
	CreationTime       string          `json:"fileCreationTime"`
	PayerEID           string          `json:"payerEid"`
	PayerQID           string          `json:"payerQid"`
	PayerBankShortName string          `json:"payerBankShortName"`
	PayerIBAN          string          `json:"payerIban"`
	SalaryPeriod       string          `json:"salaryYearMonth"`
	TotalSalaries      decimal.Decimal `json:"totalSalaries"`
	TotalRecords       int             `json:"totalRecords"`
	SIFVersion         string          `json:"sifVersion"`
}

// TitleRow holds the display label of each data column.
type TitleRow [ColumnCount]string

type Summary struct {
	Records          int             `json:"records"`
	TotalSalaries    decimal.Decimal `json:"totalSalaries"`
	NegativeBalances int             `json:"negativeBalances"`
}

// Report is the assembled file before serialization.
type Report struct {
	Metadata MetadataRow `json:"metadata"`
	Title    TitleRow    `json:"title"`
	Rows     []DataRow   `json:"rows"`
	Summary  Summary     `json:"summary"`

	settings Settings
}

type Export struct {
	Filename    string  `json:"filename"`
	Format      string  `json:"format"`
	ContentType string  `json:"contentType"`
	Content     []byte  `json:"-"`
	Summary     Summary `json:"summary"`
}
