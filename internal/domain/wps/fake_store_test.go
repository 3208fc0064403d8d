package wps

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type fakeStore struct {
	settings Settings
	mappings []CategoryMapping
	records  []PayrollRecord
	lines    []ComponentLine
	batches  map[string]*Batch
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		mappings: append([]CategoryMapping(nil), DefaultCategoryMappings...),
		batches:  map[string]*Batch{},
	}
}

func (f *fakeStore) GetSettings(ctx context.Context) (Settings, error) {
	return f.settings, nil
}

func (f *fakeStore) SaveSettings(ctx context.Context, settings Settings) (Settings, error) {
	f.settings = settings
	return settings, nil
}

func (f *fakeStore) ListCategoryMappings(ctx context.Context) ([]CategoryMapping, error) {
	return append([]CategoryMapping(nil), f.mappings...), nil
}

func (f *fakeStore) UpsertCategoryMappings(ctx context.Context, mappings []CategoryMapping) error {
	for _, m := range mappings {
		replaced := false
		for i := range f.mappings {
			if f.mappings[i].ComponentName == m.ComponentName {
				f.mappings[i].Category = m.Category
				replaced = true
			}
		}
		if !replaced {
			f.mappings = append(f.mappings, m)
		}
	}
	return nil
}

func (f *fakeStore) SelectRecords(ctx context.Context, filters Filters) ([]PayrollRecord, error) {
	var out []PayrollRecord
	for _, rec := range f.records {
		if rec.DocStatus != SlipDocStatusSubmitted {
			continue
		}
		if filters.FromDate != nil && rec.StartDate.Before(*filters.FromDate) {
			continue
		}
		if filters.ToDate != nil && rec.EndDate.After(*filters.ToDate) {
			continue
		}
		if filters.Department != "" && rec.Department != filters.Department {
			continue
		}
		if filters.FromRange != nil && rec.NetPay.LessThan(*filters.FromRange) {
			continue
		}
		if filters.ToRange != nil && rec.NetPay.GreaterThan(*filters.ToRange) {
			continue
		}
		if len(filters.Include) > 0 && !contains(filters.Include, rec.EmployeeID) {
			continue
		}
		if contains(filters.Exclude, rec.EmployeeID) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EmployeeID != out[j].EmployeeID {
			return out[i].EmployeeID < out[j].EmployeeID
		}
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].SlipID < out[j].SlipID
	})
	return out, nil
}

func (f *fakeStore) ComponentLines(ctx context.Context, slipIDs []string) ([]ComponentLine, error) {
	var out []ComponentLine
	for _, line := range f.lines {
		if contains(slipIDs, line.SlipID) {
			out = append(out, line)
		}
	}
	return out, nil
}

func (f *fakeStore) ReportedEmployees(ctx context.Context, excludeBatchID string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for id, b := range f.batches {
		if id == excludeBatchID || b.Status != BatchStatusSubmitted {
			continue
		}
		for _, emp := range b.Employees {
			if _, ok := seen[emp.EmployeeID]; ok {
				continue
			}
			seen[emp.EmployeeID] = struct{}{}
			out = append(out, emp.EmployeeID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeStore) CreateBatch(ctx context.Context, batch Batch) error {
	b := batch
	f.batches[b.ID] = &b
	return nil
}

func (f *fakeStore) GetBatch(ctx context.Context, id string) (Batch, error) {
	b, ok := f.batches[id]
	if !ok {
		return Batch{}, ErrBatchNotFound
	}
	out := *b
	out.Employees = append([]BatchEmployee{}, b.Employees...)
	return out, nil
}

func (f *fakeStore) CountBatches(ctx context.Context, status string) (int, error) {
	list, _ := f.ListBatches(ctx, status, 1000, 0)
	return len(list), nil
}

func (f *fakeStore) ListBatches(ctx context.Context, status string, limit, offset int) ([]Batch, error) {
	var out []Batch
	for _, b := range f.batches {
		if status == "" || b.Status == status {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) UpdateBatchFilters(ctx context.Context, id string, filters Filters) error {
	b, ok := f.batches[id]
	if !ok || b.Status != BatchStatusDraft {
		return ErrBatchNotDraft
	}
	b.FromDate, b.ToDate, b.Department = filters.FromDate, filters.ToDate, filters.Department
	b.FromRange, b.ToRange = filters.FromRange, filters.ToRange
	return nil
}

func (f *fakeStore) ReplaceBatchEmployees(ctx context.Context, id string, employees []BatchEmployee) error {
	b, ok := f.batches[id]
	if !ok {
		return ErrBatchNotFound
	}
	b.Employees = append([]BatchEmployee{}, employees...)
	return nil
}

func (f *fakeStore) SubmitBatch(ctx context.Context, id string, submittedAt time.Time) error {
	b, ok := f.batches[id]
	if !ok {
		return ErrBatchNotFound
	}
	if b.Status != BatchStatusDraft {
		return ErrBatchNotDraft
	}
	if len(b.Employees) == 0 {
		return ErrNoEmployees
	}
	reported, _ := f.ReportedEmployees(ctx, id)
	for _, emp := range b.Employees {
		if contains(reported, emp.EmployeeID) {
			return ErrEmployeesAlreadyReported
		}
	}
	b.Status = BatchStatusSubmitted
	b.SubmittedAt = &submittedAt
	return nil
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

type fakeJobs struct {
	runs    []string
	details []any
}

func (j *fakeJobs) RunNow(ctx context.Context, jobType string, run func(context.Context) (any, error)) (any, error) {
	j.runs = append(j.runs, jobType)
	details, err := run(ctx)
	j.details = append(j.details, details)
	return details, err
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func day(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return t
}

func slip(id, employee, net string, start string) PayrollRecord {
	s := day(start)
	return PayrollRecord{
		SlipID:           id,
		EmployeeID:       employee,
		EmployeeName:     "Employee " + employee,
		Department:       "Operations",
		QID:              "QID-" + employee,
		VisaID:           "V-" + employee,
		IBAN:             "QA00BANK" + employee,
		BankShortName:    "QNB",
		PayrollFrequency: FrequencyMonthly,
		TotalWorkingDays: dec("30"),
		NetPay:           dec(net),
		TotalDeduction:   decimal.Zero,
		StartDate:        s,
		EndDate:          s.AddDate(0, 1, -1),
		DocStatus:        SlipDocStatusSubmitted,
	}
}

func ptr[T any](v T) *T {
	return &v
}
