package wps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// submitLockKey serializes batch submissions across connections.
const submitLockKey int64 = 0x57505301

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) GetSettings(ctx context.Context) (Settings, error) {
	var out Settings
	err := s.DB.QueryRow(ctx, `
    SELECT COALESCE(employer_eid,''), COALESCE(payer_eid,''), COALESCE(payer_qid,''),
           COALESCE(payer_bank_short_name,''), COALESCE(payer_iban,''), COALESCE(sif_version,''), updated_at
    FROM wps_settings
    WHERE id = 1
  `).Scan(&out.EmployerEID, &out.PayerEID, &out.PayerQID, &out.PayerBankShortName, &out.PayerIBAN, &out.SIFVersion, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Settings{}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("get wps settings: %w", err)
	}
	return out, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings Settings) (Settings, error) {
	err := s.DB.QueryRow(ctx, `
    INSERT INTO wps_settings (id, employer_eid, payer_eid, payer_qid, payer_bank_short_name, payer_iban, sif_version, updated_at)
    VALUES (1,$1,$2,$3,$4,$5,$6,now())
    ON CONFLICT (id) DO UPDATE
    SET employer_eid = EXCLUDED.employer_eid,
        payer_eid = EXCLUDED.payer_eid,
        payer_qid = EXCLUDED.payer_qid,
        payer_bank_short_name = EXCLUDED.payer_bank_short_name,
        payer_iban = EXCLUDED.payer_iban,
        sif_version = EXCLUDED.sif_version,
        updated_at = now()
    RETURNING updated_at
  `, settings.EmployerEID, settings.PayerEID, settings.PayerQID, settings.PayerBankShortName, settings.PayerIBAN, settings.SIFVersion).Scan(&settings.UpdatedAt)
	if err != nil {
		return Settings{}, fmt.Errorf("save wps settings: %w", err)
	}
	return settings, nil
}

func (s *Store) ListCategoryMappings(ctx context.Context) ([]CategoryMapping, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT component_name, category
    FROM wps_component_categories
    ORDER BY category, component_name
  `)
	if err != nil {
		return nil, fmt.Errorf("list component categories: %w", err)
	}
	defer rows.Close()

	var out []CategoryMapping
	for rows.Next() {
		var m CategoryMapping
		if err := rows.Scan(&m.ComponentName, &m.Category); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) UpsertCategoryMappings(ctx context.Context, mappings []CategoryMapping) error {
	batch := &pgx.Batch{}
	for _, m := range mappings {
		batch.Queue(`
      INSERT INTO wps_component_categories (component_name, category)
      VALUES ($1,$2)
      ON CONFLICT (component_name) DO UPDATE SET category = EXCLUDED.category
    `, m.ComponentName, m.Category)
	}
	if err := s.DB.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert component categories: %w", err)
	}
	return nil
}

func (s *Store) SelectRecords(ctx context.Context, filters Filters) ([]PayrollRecord, error) {
	query, args := buildRecordsQuery(filters)
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select salary slips: %w", err)
	}
	defer rows.Close()

	var out []PayrollRecord
	for rows.Next() {
		var rec PayrollRecord
		var workingDays, netPay, deduction string
		if err := rows.Scan(
			&rec.SlipID, &rec.EmployeeID, &rec.EmployeeName, &rec.Department,
			&rec.QID, &rec.VisaID, &rec.IBAN, &rec.BankShortName,
			&rec.PayrollFrequency, &workingDays, &netPay, &deduction,
			&rec.StartDate, &rec.EndDate, &rec.DocStatus,
		); err != nil {
			return nil, err
		}
		if rec.TotalWorkingDays, err = decimal.NewFromString(workingDays); err != nil {
			return nil, fmt.Errorf("slip %s working days: %w", rec.SlipID, err)
		}
		if rec.NetPay, err = decimal.NewFromString(netPay); err != nil {
			return nil, fmt.Errorf("slip %s net pay: %w", rec.SlipID, err)
		}
		if rec.TotalDeduction, err = decimal.NewFromString(deduction); err != nil {
			return nil, fmt.Errorf("slip %s total deduction: %w", rec.SlipID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func buildRecordsQuery(filters Filters) (string, []any) {
	query := `
    SELECT ss.id, ss.employee_id, ss.employee_name, COALESCE(ss.department,''),
           COALESCE(e.qid,''), COALESCE(e.visa_id,''), COALESCE(e.iban,''), COALESCE(e.bank_short_name,''),
           COALESCE(ss.payroll_frequency,''), ss.total_working_days::text,
           ss.net_pay::text, ss.total_deduction::text,
           ss.start_date, ss.end_date, ss.docstatus
    FROM salary_slips ss
    JOIN employees e ON e.id = ss.employee_id
    WHERE ss.docstatus = $1`
	args := []any{SlipDocStatusSubmitted}
	if filters.FromDate != nil {
		query += fmt.Sprintf(" AND ss.start_date >= $%d", len(args)+1)
		args = append(args, *filters.FromDate)
	}
	if filters.ToDate != nil {
		query += fmt.Sprintf(" AND ss.end_date <= $%d", len(args)+1)
		args = append(args, *filters.ToDate)
	}
	if filters.Department != "" {
		query += fmt.Sprintf(" AND ss.department = $%d", len(args)+1)
		args = append(args, filters.Department)
	}
	if filters.FromRange != nil {
		query += fmt.Sprintf(" AND ss.net_pay >= $%d::numeric", len(args)+1)
		args = append(args, filters.FromRange.String())
	}
	if filters.ToRange != nil {
		query += fmt.Sprintf(" AND ss.net_pay <= $%d::numeric", len(args)+1)
		args = append(args, filters.ToRange.String())
	}
	if len(filters.Include) > 0 {
		query += fmt.Sprintf(" AND ss.employee_id = ANY($%d)", len(args)+1)
		args = append(args, filters.Include)
	}
	if len(filters.Exclude) > 0 {
		query += fmt.Sprintf(" AND ss.employee_id <> ALL($%d)", len(args)+1)
		args = append(args, filters.Exclude)
	}
	query += " ORDER BY ss.employee_id, ss.start_date, ss.id"
	return query, args
}

func (s *Store) ComponentLines(ctx context.Context, slipIDs []string) ([]ComponentLine, error) {
	if len(slipIDs) == 0 {
		return nil, nil
	}
	rows, err := s.DB.Query(ctx, `
    SELECT slip_id, component_name, amount::text
    FROM salary_details
    WHERE slip_id = ANY($1)
    ORDER BY slip_id, id
  `, slipIDs)
	if err != nil {
		return nil, fmt.Errorf("list salary details: %w", err)
	}
	defer rows.Close()

	var out []ComponentLine
	for rows.Next() {
		var line ComponentLine
		var amount string
		if err := rows.Scan(&line.SlipID, &line.ComponentName, &amount); err != nil {
			return nil, err
		}
		if line.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("salary detail %s amount: %w", line.SlipID, err)
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

func (s *Store) ReportedEmployees(ctx context.Context, excludeBatchID string) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT DISTINCT be.employee_id
    FROM wps_batch_employees be
    JOIN wps_batches b ON b.id = be.batch_id
    WHERE b.status = $1 AND b.id::text <> $2
    ORDER BY be.employee_id
  `, BatchStatusSubmitted, excludeBatchID)
	if err != nil {
		return nil, fmt.Errorf("list reported employees: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) CreateBatch(ctx context.Context, batch Batch) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO wps_batches (id, from_date, to_date, department, from_range, to_range, status, created_by, created_at)
    VALUES ($1,$2,$3,$4,$5::numeric,$6::numeric,$7,$8,$9)
  `, batch.ID, batch.FromDate, batch.ToDate, nullIfEmpty(batch.Department), decimalArg(batch.FromRange), decimalArg(batch.ToRange), batch.Status, batch.CreatedBy, batch.CreatedAt)
	if err != nil {
		return fmt.Errorf("create wps batch: %w", err)
	}
	return nil
}

const batchColumns = `id::text, from_date, to_date, COALESCE(department,''), from_range::text, to_range::text, status, created_by, created_at, submitted_at`

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	var fromRange, toRange *string
	if err := row.Scan(&b.ID, &b.FromDate, &b.ToDate, &b.Department, &fromRange, &toRange, &b.Status, &b.CreatedBy, &b.CreatedAt, &b.SubmittedAt); err != nil {
		return Batch{}, err
	}
	var err error
	if b.FromRange, err = parseNullDecimal(fromRange); err != nil {
		return Batch{}, err
	}
	if b.ToRange, err = parseNullDecimal(toRange); err != nil {
		return Batch{}, err
	}
	return b, nil
}

func (s *Store) GetBatch(ctx context.Context, id string) (Batch, error) {
	b, err := scanBatch(s.DB.QueryRow(ctx, "SELECT "+batchColumns+" FROM wps_batches WHERE id::text = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Batch{}, ErrBatchNotFound
	}
	if err != nil {
		return Batch{}, fmt.Errorf("get wps batch: %w", err)
	}

	rows, err := s.DB.Query(ctx, `
    SELECT employee_id, salary_slip_id, amount::text
    FROM wps_batch_employees
    WHERE batch_id::text = $1
    ORDER BY idx
  `, id)
	if err != nil {
		return Batch{}, fmt.Errorf("list wps batch employees: %w", err)
	}
	defer rows.Close()

	b.Employees = []BatchEmployee{}
	for rows.Next() {
		var emp BatchEmployee
		var amount string
		if err := rows.Scan(&emp.EmployeeID, &emp.SalarySlipID, &amount); err != nil {
			return Batch{}, err
		}
		if emp.Amount, err = decimal.NewFromString(amount); err != nil {
			return Batch{}, err
		}
		b.Employees = append(b.Employees, emp)
	}
	return b, rows.Err()
}

func (s *Store) CountBatches(ctx context.Context, status string) (int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM wps_batches WHERE ($1::text = '' OR status = $1)", status).Scan(&total); err != nil {
		return 0, fmt.Errorf("count wps batches: %w", err)
	}
	return total, nil
}

func (s *Store) ListBatches(ctx context.Context, status string, limit, offset int) ([]Batch, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+batchColumns+`
    FROM wps_batches
    WHERE ($1::text = '' OR status = $1)
    ORDER BY created_at DESC
    LIMIT $2 OFFSET $3
  `, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list wps batches: %w", err)
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) UpdateBatchFilters(ctx context.Context, id string, filters Filters) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE wps_batches
    SET from_date = $1, to_date = $2, department = $3, from_range = $4::numeric, to_range = $5::numeric
    WHERE id::text = $6 AND status = $7
  `, filters.FromDate, filters.ToDate, nullIfEmpty(filters.Department), decimalArg(filters.FromRange), decimalArg(filters.ToRange), id, BatchStatusDraft)
	if err != nil {
		return fmt.Errorf("update wps batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotDraft
	}
	return nil
}

func (s *Store) ReplaceBatchEmployees(ctx context.Context, id string, employees []BatchEmployee) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM wps_batch_employees WHERE batch_id::text = $1", id); err != nil {
		return fmt.Errorf("clear wps batch employees: %w", err)
	}
	for i, emp := range employees {
		if _, err := tx.Exec(ctx, `
      INSERT INTO wps_batch_employees (batch_id, idx, employee_id, salary_slip_id, amount)
      VALUES ($1::uuid,$2,$3,$4,$5::numeric)
    `, id, i+1, emp.EmployeeID, emp.SalarySlipID, emp.Amount.String()); err != nil {
			return fmt.Errorf("insert wps batch employee: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// SubmitBatch moves a draft batch to submitted. It holds a transaction scoped
// advisory lock so two submissions cannot both claim the same employee.
func (s *Store) SubmitBatch(ctx context.Context, id string, submittedAt time.Time) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", submitLockKey); err != nil {
		return fmt.Errorf("acquire submit lock: %w", err)
	}

	var status string
	if err := tx.QueryRow(ctx, "SELECT status FROM wps_batches WHERE id::text = $1 FOR UPDATE", id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrBatchNotFound
		}
		return fmt.Errorf("lock wps batch: %w", err)
	}
	if status != BatchStatusDraft {
		return ErrBatchNotDraft
	}

	var count int
	if err := tx.QueryRow(ctx, "SELECT COUNT(1) FROM wps_batch_employees WHERE batch_id::text = $1", id).Scan(&count); err != nil {
		return fmt.Errorf("count wps batch employees: %w", err)
	}
	if count == 0 {
		return ErrNoEmployees
	}

	var overlap int
	if err := tx.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM wps_batch_employees mine
    JOIN wps_batch_employees other ON other.employee_id = mine.employee_id AND other.batch_id <> mine.batch_id
    JOIN wps_batches ob ON ob.id = other.batch_id
    WHERE mine.batch_id::text = $1 AND ob.status = $2
  `, id, BatchStatusSubmitted).Scan(&overlap); err != nil {
		return fmt.Errorf("check reported employees: %w", err)
	}
	if overlap > 0 {
		return ErrEmployeesAlreadyReported
	}

	if _, err := tx.Exec(ctx, "UPDATE wps_batches SET status = $1, submitted_at = $2 WHERE id::text = $3", BatchStatusSubmitted, submittedAt, id); err != nil {
		return fmt.Errorf("submit wps batch: %w", err)
	}
	return tx.Commit(ctx)
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func decimalArg(value *decimal.Decimal) any {
	if value == nil {
		return nil
	}
	return value.String()
}

func parseNullDecimal(value *string) (*decimal.Decimal, error) {
	if value == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*value)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
