package wpshandler

import (
	"context"
	"sort"
	"time"

	"wps/internal/domain/wps"
)

type memoryStore struct {
	settings wps.Settings
	mappings []wps.CategoryMapping
	records  []wps.PayrollRecord
	lines    []wps.ComponentLine
	batches  map[string]*wps.Batch
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		settings: wps.Settings{EmployerEID: "EMP1", PayerEID: "PAY1", PayerQID: "Q1", PayerBankShortName: "QNB", PayerIBAN: "QA01", SIFVersion: "1"},
		mappings: append([]wps.CategoryMapping(nil), wps.DefaultCategoryMappings...),
		batches:  map[string]*wps.Batch{},
	}
}

func (m *memoryStore) GetSettings(ctx context.Context) (wps.Settings, error) {
	return m.settings, nil
}

func (m *memoryStore) SaveSettings(ctx context.Context, settings wps.Settings) (wps.Settings, error) {
	m.settings = settings
	return settings, nil
}

func (m *memoryStore) ListCategoryMappings(ctx context.Context) ([]wps.CategoryMapping, error) {
	return append([]wps.CategoryMapping(nil), m.mappings...), nil
}

func (m *memoryStore) UpsertCategoryMappings(ctx context.Context, mappings []wps.CategoryMapping) error {
	for _, mapping := range mappings {
		found := false
		for i := range m.mappings {
			if m.mappings[i].ComponentName == mapping.ComponentName {
				m.mappings[i].Category = mapping.Category
				found = true
			}
		}
		if !found {
			m.mappings = append(m.mappings, mapping)
		}
	}
	return nil
}

func (m *memoryStore) SelectRecords(ctx context.Context, filters wps.Filters) ([]wps.PayrollRecord, error) {
	var out []wps.PayrollRecord
	for _, rec := range m.records {
		switch {
		case rec.DocStatus != wps.SlipDocStatusSubmitted:
		case filters.FromDate != nil && rec.StartDate.Before(*filters.FromDate):
		case filters.ToDate != nil && rec.EndDate.After(*filters.ToDate):
		case filters.Department != "" && rec.Department != filters.Department:
		case len(filters.Include) > 0 && !has(filters.Include, rec.EmployeeID):
		case has(filters.Exclude, rec.EmployeeID):
		default:
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out, nil
}

func (m *memoryStore) ComponentLines(ctx context.Context, slipIDs []string) ([]wps.ComponentLine, error) {
	var out []wps.ComponentLine
	for _, line := range m.lines {
		if has(slipIDs, line.SlipID) {
			out = append(out, line)
		}
	}
	return out, nil
}

func (m *memoryStore) ReportedEmployees(ctx context.Context, excludeBatchID string) ([]string, error) {
	var out []string
	for id, b := range m.batches {
		if id == excludeBatchID || b.Status != wps.BatchStatusSubmitted {
			continue
		}
		for _, emp := range b.Employees {
			if !has(out, emp.EmployeeID) {
				out = append(out, emp.EmployeeID)
			}
		}
	}
	return out, nil
}

func (m *memoryStore) CreateBatch(ctx context.Context, batch wps.Batch) error {
	b := batch
	m.batches[b.ID] = &b
	return nil
}

func (m *memoryStore) GetBatch(ctx context.Context, id string) (wps.Batch, error) {
	b, ok := m.batches[id]
	if !ok {
		return wps.Batch{}, wps.ErrBatchNotFound
	}
	out := *b
	out.Employees = append([]wps.BatchEmployee{}, b.Employees...)
	return out, nil
}

func (m *memoryStore) CountBatches(ctx context.Context, status string) (int, error) {
	list, err := m.ListBatches(ctx, status, len(m.batches), 0)
	return len(list), err
}

func (m *memoryStore) ListBatches(ctx context.Context, status string, limit, offset int) ([]wps.Batch, error) {
	var out []wps.Batch
	for _, b := range m.batches {
		if status == "" || b.Status == status {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) UpdateBatchFilters(ctx context.Context, id string, filters wps.Filters) error {
	b, ok := m.batches[id]
	if !ok {
		return wps.ErrBatchNotFound
	}
	b.FromDate, b.ToDate, b.Department = filters.FromDate, filters.ToDate, filters.Department
	b.FromRange, b.ToRange = filters.FromRange, filters.ToRange
	return nil
}

func (m *memoryStore) ReplaceBatchEmployees(ctx context.Context, id string, employees []wps.BatchEmployee) error {
	b, ok := m.batches[id]
	if !ok {
		return wps.ErrBatchNotFound
	}
	b.Employees = append([]wps.BatchEmployee{}, employees...)
	return nil
}

func (m *memoryStore) SubmitBatch(ctx context.Context, id string, submittedAt time.Time) error {
	b, ok := m.batches[id]
	if !ok {
		return wps.ErrBatchNotFound
	}
	if b.Status != wps.BatchStatusDraft {
		return wps.ErrBatchNotDraft
	}
	reported, _ := m.ReportedEmployees(ctx, id)
	for _, emp := range b.Employees {
		if has(reported, emp.EmployeeID) {
			return wps.ErrEmployeesAlreadyReported
		}
	}
	b.Status = wps.BatchStatusSubmitted
	b.SubmittedAt = &submittedAt
	return nil
}

func has(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
