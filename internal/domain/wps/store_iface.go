package wps

import (
	"context"
	"time"
)

type StoreAPI interface {
	GetSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, settings Settings) (Settings, error)
	ListCategoryMappings(ctx context.Context) ([]CategoryMapping, error)
	UpsertCategoryMappings(ctx context.Context, mappings []CategoryMapping) error
	SelectRecords(ctx context.Context, filters Filters) ([]PayrollRecord, error)
	ComponentLines(ctx context.Context, slipIDs []string) ([]ComponentLine, error)
	ReportedEmployees(ctx context.Context, excludeBatchID string) ([]string, error)
	CreateBatch(ctx context.Context, batch Batch) error
	GetBatch(ctx context.Context, id string) (Batch, error)
	CountBatches(ctx context.Context, status string) (int, error)
	ListBatches(ctx context.Context, status string, limit, offset int) ([]Batch, error)
	UpdateBatchFilters(ctx context.Context, id string, filters Filters) error
	ReplaceBatchEmployees(ctx context.Context, id string, employees []BatchEmployee) error
	SubmitBatch(ctx context.Context, id string, submittedAt time.Time) error
}
