package wps

const (
	BatchStatusDraft     = "draft"
	BatchStatusSubmitted = "submitted"

	SlipDocStatusDraft     = 0
	SlipDocStatusSubmitted = 1
	SlipDocStatusCancelled = 2

	CategoryBasic          = "basic"
	CategoryHousing        = "housing"
	CategoryFood           = "food"
	CategoryTransportation = "transportation"

	FrequencyMonthly     = "Monthly"
	FrequencyCodeMonthly = "M"

	PaymentTypeNormal = "Normal Payment"

	DeductionReasonCodeNone      = 0
	DeductionReasonCodeDeduction = 4

	FormatCSV  = "csv"
	FormatXLSX = "xlsx"

	JobExport = "wps_export"

	WarningNegativeBalance = "negative_remaining_balance"
)

var Categories = []string{
	CategoryBasic,
	CategoryHousing,
	CategoryFood,
	CategoryTransportation,
}

// DefaultCategoryMappings holds the component names seeded on first start.
var DefaultCategoryMappings = []CategoryMapping{
	{ComponentName: "Basic", Category: CategoryBasic},
	{ComponentName: "Housing Allowance", Category: CategoryHousing},
	{ComponentName: "Food Allowance", Category: CategoryFood},
	{ComponentName: "Transportation Allowance", Category: CategoryTransportation},
}

func IsCategory(value string) bool {
	for _, c := range Categories {
		if c == value {
			return true
		}
	}
	return false
}
