package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"wps/internal/platform/metrics"
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Service struct {
	DB      *pgxpool.Pool
	Metrics *metrics.Collector
}

type Run struct {
	ID          string          `json:"id"`
	JobType     string          `json:"jobType"`
	Status      string          `json:"status"`
	Details     json.RawMessage `json:"details,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

type Filter struct {
	JobType string
	Status  string
}

func New(db *pgxpool.Pool, m *metrics.Collector) *Service {
	return &Service{DB: db, Metrics: m}
}

// RunNow executes run synchronously and records it in job_runs. Recording
// failures are logged and never fail the run itself.
func (s *Service) RunNow(ctx context.Context, jobType string, run func(context.Context) (any, error)) (any, error) {
	runID := ""
	if s.DB != nil {
		if err := s.DB.QueryRow(ctx, `
      INSERT INTO job_runs (job_type, status)
      VALUES ($1,$2)
      RETURNING id
    `, jobType, StatusRunning).Scan(&runID); err != nil {
			slog.Warn("job run insert failed", "jobType", jobType, "err", err)
		}
	}

	details, err := run(ctx)
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
		if details == nil {
			details = map[string]any{"error": err.Error()}
		}
	}
	s.Metrics.RecordJob(jobType, status)

	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if _, updErr := s.DB.Exec(ctx, `
      UPDATE job_runs
      SET status = $1, details_json = $2, completed_at = now()
      WHERE id = $3
    `, status, detailsJSON, runID); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	return details, err
}

func (s *Service) Count(ctx context.Context, filter Filter) (int, error) {
	query, args := buildJobRunsBaseQuery("SELECT COUNT(1)", filter)
	var total int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count job runs: %w", err)
	}
	return total, nil
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]Run, error) {
	query, args := buildJobRunsBaseQuery("SELECT id::text, job_type, status, details_json, started_at, completed_at", filter)
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list job runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var run Run
		var details []byte
		if err := rows.Scan(&run.ID, &run.JobType, &run.Status, &details, &run.StartedAt, &run.CompletedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			run.Details = json.RawMessage(details)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func buildJobRunsBaseQuery(prefix string, filter Filter) (string, []any) {
	query := prefix + " FROM job_runs WHERE 1=1"
	var args []any
	if filter.JobType != "" {
		query += fmt.Sprintf(" AND job_type = $%d", len(args)+1)
		args = append(args, filter.JobType)
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, filter.Status)
	}
	return query, args
}
