package wps

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// JobRunner records a synchronous run in the job history.
type JobRunner interface {
	RunNow(ctx context.Context, jobType string, run func(context.Context) (any, error)) (any, error)
}

type Service struct {
	store StoreAPI
	jobs  JobRunner
	loc   *time.Location
	now   func() time.Time
}

func NewService(store StoreAPI, jobs JobRunner, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, jobs: jobs, loc: loc, now: time.Now}
}

// WithClock replaces the wall clock. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

func (s *Service) GetSettings(ctx context.Context) (Settings, error) {
	return s.store.GetSettings(ctx)
}

func (s *Service) SaveSettings(ctx context.Context, settings Settings) (Settings, error) {
	return s.store.SaveSettings(ctx, settings)
}

func (s *Service) ListCategoryMappings(ctx context.Context) ([]CategoryMapping, error) {
	return s.store.ListCategoryMappings(ctx)
}

func (s *Service) SaveCategoryMappings(ctx context.Context, mappings []CategoryMapping) ([]CategoryMapping, error) {
	for _, m := range mappings {
		if !IsCategory(m.Category) {
			return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidFilters, m.Category)
		}
	}
	if err := s.store.UpsertCategoryMappings(ctx, mappings); err != nil {
		return nil, err
	}
	return s.store.ListCategoryMappings(ctx)
}

// DefaultReportFilters covers the last month up to today.
func (s *Service) DefaultReportFilters() Filters {
	today := truncateDay(s.Now())
	from := today.AddDate(0, -1, 0)
	return Filters{FromDate: &from, ToDate: &today}
}

func (s *Service) CreateBatch(ctx context.Context, filters Filters, actorID string) (Batch, error) {
	if err := filters.Validate(); err != nil {
		return Batch{}, err
	}
	batch := Batch{
		ID:         uuid.NewString(),
		FromDate:   filters.FromDate,
		ToDate:     filters.ToDate,
		Department: filters.Department,
		FromRange:  filters.FromRange,
		ToRange:    filters.ToRange,
		Status:     BatchStatusDraft,
		CreatedBy:  actorID,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.CreateBatch(ctx, batch); err != nil {
		return Batch{}, err
	}
	return s.Validate(ctx, batch.ID)
}

func (s *Service) GetBatch(ctx context.Context, id string) (Batch, error) {
	return s.store.GetBatch(ctx, id)
}

func (s *Service) ListBatches(ctx context.Context, status string, limit, offset int) ([]Batch, int, error) {
	total, err := s.store.CountBatches(ctx, status)
	if err != nil {
		return nil, 0, err
	}
	batches, err := s.store.ListBatches(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return batches, total, nil
}

func (s *Service) UpdateBatch(ctx context.Context, id string, filters Filters) (Batch, error) {
	if err := filters.Validate(); err != nil {
		return Batch{}, err
	}
	batch, err := s.store.GetBatch(ctx, id)
	if err != nil {
		return Batch{}, err
	}
	if batch.Status != BatchStatusDraft {
		return Batch{}, ErrBatchNotDraft
	}
	if err := s.store.UpdateBatchFilters(ctx, id, filters); err != nil {
		return Batch{}, err
	}
	return s.Validate(ctx, id)
}

// Validate repopulates a draft batch with every matching slip whose employee
// is not already part of another submitted batch.
func (s *Service) Validate(ctx context.Context, id string) (Batch, error) {
	batch, err := s.store.GetBatch(ctx, id)
	if err != nil {
		return Batch{}, err
	}
	if batch.Status != BatchStatusDraft {
		return Batch{}, ErrBatchNotDraft
	}

	reported, err := s.store.ReportedEmployees(ctx, id)
	if err != nil {
		return Batch{}, err
	}
	filters := batch.Filters()
	filters.Exclude = reported

	records, err := s.store.SelectRecords(ctx, filters)
	if err != nil {
		return Batch{}, err
	}
	employees := make([]BatchEmployee, 0, len(records))
	for _, rec := range records {
		employees = append(employees, BatchEmployee{
			EmployeeID:   rec.EmployeeID,
			SalarySlipID: rec.SlipID,
			Amount:       rec.NetPay,
		})
	}
	if err := s.store.ReplaceBatchEmployees(ctx, id, employees); err != nil {
		return Batch{}, err
	}
	return s.store.GetBatch(ctx, id)
}

func (s *Service) Submit(ctx context.Context, id string) (Batch, error) {
	batch, err := s.store.GetBatch(ctx, id)
	if err != nil {
		return Batch{}, err
	}
	if batch.Status != BatchStatusDraft {
		return Batch{}, ErrBatchNotDraft
	}
	if len(batch.Employees) == 0 {
		return Batch{}, ErrNoEmployees
	}
	if err := s.store.SubmitBatch(ctx, id, s.now().UTC()); err != nil {
		return Batch{}, err
	}
	return s.store.GetBatch(ctx, id)
}

// Report assembles the file content for ad hoc filters without a batch.
func (s *Service) Report(ctx context.Context, filters Filters) (Report, error) {
	if err := filters.Validate(); err != nil {
		return Report{}, err
	}
	return s.buildReport(ctx, filters, s.Now())
}

func (s *Service) buildReport(ctx context.Context, filters Filters, created time.Time) (Report, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return Report{}, err
	}
	mappings, err := s.store.ListCategoryMappings(ctx)
	if err != nil {
		return Report{}, err
	}
	records, err := s.store.SelectRecords(ctx, filters)
	if err != nil {
		return Report{}, err
	}
	slipIDs := make([]string, 0, len(records))
	for _, rec := range records {
		slipIDs = append(slipIDs, rec.SlipID)
	}
	lines, err := s.store.ComponentLines(ctx, slipIDs)
	if err != nil {
		return Report{}, err
	}

	period := created
	if filters.FromDate != nil {
		period = *filters.FromDate
	}
	comments := Comments(period)
	totals := SumComponents(lines, NewCategoryIndex(mappings))

	rows := make([]DataRow, 0, len(records))
	negative := 0
	for i, rec := range records {
		row := EnrichRow(i+1, rec, totals[rec.SlipID], comments)
		if row.ExtraIncome.IsNegative() {
			negative++
			slog.Warn("negative remaining balance", "code", WarningNegativeBalance, "employeeId", rec.EmployeeID, "slipId", rec.SlipID, "remaining", row.ExtraIncome.String())
		}
		rows = append(rows, row)
	}

	metadata := BuildMetadata(settings, rows, period, created)
	return Report{
		Metadata: metadata,
		Title:    TitleLabels,
		Rows:     rows,
		Summary: Summary{
			Records:          metadata.TotalRecords,
			TotalSalaries:    metadata.TotalSalaries,
			NegativeBalances: negative,
		},
		settings: settings,
	}, nil
}

// GenerateExport renders the salary information file of a submitted batch.
// It returns ErrNoData when nothing remains to report.
func (s *Service) GenerateExport(ctx context.Context, id, format string) (Export, error) {
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatXLSX {
		return Export{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	batch, err := s.store.GetBatch(ctx, id)
	if err != nil {
		return Export{}, err
	}
	if batch.Status != BatchStatusSubmitted {
		return Export{}, ErrBatchNotSubmitted
	}
	employeeIDs := batch.EmployeeIDs()
	if len(employeeIDs) == 0 {
		return Export{}, ErrNoData
	}

	var out Export
	run := func(ctx context.Context) (any, error) {
		filters := batch.Filters()
		filters.Include = employeeIDs
		created := s.Now()
		report, err := s.buildReport(ctx, filters, created)
		if err != nil {
			return nil, err
		}
		details := map[string]any{
			"batchId":          batch.ID,
			"format":           format,
			"records":          report.Summary.Records,
			"totalSalaries":    report.Summary.TotalSalaries.StringFixed(2),
			"negativeBalances": report.Summary.NegativeBalances,
		}
		if len(report.Rows) == 0 {
			details["notice"] = ErrNoData.Error()
			return details, nil
		}

		var buf bytes.Buffer
		contentType := "text/csv"
		if format == FormatXLSX {
			contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
			err = WriteXLSX(&buf, report)
		} else {
			err = WriteCSV(&buf, report)
		}
		if err != nil {
			return details, err
		}

		out = Export{
			Filename:    Filename(report.settings, created),
			Format:      format,
			ContentType: contentType,
			Content:     buf.Bytes(),
			Summary:     report.Summary,
		}
		details["filename"] = out.Filename
		return details, nil
	}

	if s.jobs != nil {
		_, err = s.jobs.RunNow(ctx, JobExport, run)
	} else {
		_, err = run(ctx)
	}
	if err != nil {
		return Export{}, err
	}
	if out.Content == nil {
		return Export{}, ErrNoData
	}
	return out, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
