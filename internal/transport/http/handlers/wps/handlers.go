package wpshandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"wps/internal/domain/audit"
	"wps/internal/domain/auth"
	"wps/internal/domain/wps"
	"wps/internal/platform/jobs"
	"wps/internal/platform/metrics"
	"wps/internal/transport/http/api"
	"wps/internal/transport/http/middleware"
	"wps/internal/transport/http/shared"
)

// JobLister reads the job run history.
type JobLister interface {
	Count(ctx context.Context, filter jobs.Filter) (int, error)
	List(ctx context.Context, filter jobs.Filter, limit, offset int) ([]jobs.Run, error)
}

// IdempotencyKeys stores responses keyed by the Idempotency-Key header.
type IdempotencyKeys interface {
	Check(ctx context.Context, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error)
	Save(ctx context.Context, userID, endpoint, key, requestHash string, response json.RawMessage) error
}

const (
	endpointBatchCreate = "wps.batch.create"
	endpointBatchSubmit = "wps.batch.submit"
)

type Handler struct {
	Service     *wps.Service
	Audit       *audit.Service
	Jobs        JobLister
	Metrics     *metrics.Collector
	Perms       middleware.PermissionStore
	Idempotency IdempotencyKeys
}

func NewHandler(service *wps.Service, auditService *audit.Service, jobList JobLister, m *metrics.Collector, perms middleware.PermissionStore, keys IdempotencyKeys) *Handler {
	return &Handler{Service: service, Audit: auditService, Jobs: jobList, Metrics: m, Perms: perms, Idempotency: keys}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/wps", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermWPSRead, h.Perms)).Get("/settings", h.handleGetSettings)
		r.With(middleware.RequirePermission(auth.PermWPSSettings, h.Perms)).Put("/settings", h.handleSaveSettings)
		r.With(middleware.RequirePermission(auth.PermWPSRead, h.Perms)).Get("/component-categories", h.handleListCategories)
		r.With(middleware.RequirePermission(auth.PermWPSSettings, h.Perms)).Put("/component-categories", h.handleSaveCategories)
		r.With(middleware.RequirePermission(auth.PermWPSRead, h.Perms)).Get("/report", h.handleReport)
		r.With(middleware.RequirePermission(auth.PermWPSRead, h.Perms)).Get("/jobs", h.handleListJobs)

		r.Route("/batches", func(r chi.Router) {
			r.With(middleware.RequirePermission(auth.PermWPSRead, h.Perms)).Get("/", h.handleListBatches)
			r.With(middleware.RequirePermission(auth.PermWPSWrite, h.Perms)).Post("/", h.handleCreateBatch)
			r.With(middleware.RequirePermission(auth.PermWPSRead, h.Perms)).Get("/{batchID}", h.handleGetBatch)
			r.With(middleware.RequirePermission(auth.PermWPSWrite, h.Perms)).Put("/{batchID}", h.handleUpdateBatch)
			r.With(middleware.RequirePermission(auth.PermWPSWrite, h.Perms)).Post("/{batchID}/refresh", h.handleRefreshBatch)
			r.With(middleware.RequirePermission(auth.PermWPSSubmit, h.Perms)).Post("/{batchID}/submit", h.handleSubmitBatch)
			r.With(middleware.RequirePermission(auth.PermWPSExport, h.Perms)).Get("/{batchID}/export", h.handleExport)
			r.With(middleware.RequirePermission(auth.PermWPSRead, h.Perms)).Get("/{batchID}/summary.pdf", h.handleSummaryPDF)
		})
	})
}

type filtersPayload struct {
	FromDate   string           `json:"fromDate"`
	ToDate     string           `json:"toDate"`
	Department string           `json:"department" validate:"omitempty,max=140"`
	FromRange  *decimal.Decimal `json:"fromRange"`
	ToRange    *decimal.Decimal `json:"toRange"`
}

func (p filtersPayload) filters(v *shared.Validator) wps.Filters {
	v.Struct(p)
	filters := wps.Filters{
		FromDate:   v.OptionalDate("fromDate", p.FromDate),
		ToDate:     v.OptionalDate("toDate", p.ToDate),
		Department: strings.TrimSpace(p.Department),
		FromRange:  p.FromRange,
		ToRange:    p.ToRange,
	}
	if filters.FromDate != nil && filters.ToDate != nil {
		v.DateOrder("fromDate", *filters.FromDate, "toDate", *filters.ToDate)
	}
	if p.FromRange != nil && p.FromRange.IsNegative() {
		v.Add("fromRange", "must not be negative")
	}
	if p.ToRange != nil && p.ToRange.IsNegative() {
		v.Add("toRange", "must not be negative")
	}
	return filters
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Service.GetSettings(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, settings, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())

	var payload wps.Settings
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	validator := shared.NewValidator()
	validator.Struct(payload)
	if validator.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	before, err := h.Service.GetSettings(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	saved, err := h.Service.SaveSettings(r.Context(), payload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, user.UserID, audit.ActionSettingsUpdate, audit.EntitySettings, "1", before, saved)
	api.Success(w, saved, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.Service.ListCategoryMappings(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, mappings, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSaveCategories(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())

	var payload []wps.CategoryMapping
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	validator := shared.NewValidator()
	if len(payload) == 0 {
		validator.Add("mappings", "at least one mapping is required")
	}
	for i := range payload {
		payload[i].ComponentName = strings.TrimSpace(payload[i].ComponentName)
		payload[i].Category = strings.ToLower(strings.TrimSpace(payload[i].Category))
		item := shared.NewValidator()
		item.Struct(payload[i])
		for _, issue := range item.Issues() {
			validator.Add("mappings["+strconv.Itoa(i)+"]."+issue.Field, issue.Reason)
		}
	}
	if validator.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	saved, err := h.Service.SaveCategoryMappings(r.Context(), payload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, user.UserID, audit.ActionCategoriesUpdate, audit.EntityCategories, "all", nil, payload)
	api.Success(w, saved, middleware.GetRequestID(r.Context()))
}

// handleReport previews the file rows for ad hoc filters. Without dates it
// covers the last month.
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	validator := shared.NewValidator()
	filters := h.Service.DefaultReportFilters()
	if raw := query.Get("from_date"); raw != "" {
		filters.FromDate = validator.OptionalDate("from_date", raw)
	}
	if raw := query.Get("to_date"); raw != "" {
		filters.ToDate = validator.OptionalDate("to_date", raw)
	}
	filters.Department = strings.TrimSpace(query.Get("department"))
	filters.FromRange = validator.OptionalDecimal("from_range", query.Get("from_range"))
	filters.ToRange = validator.OptionalDecimal("to_range", query.Get("to_range"))
	if filters.FromDate != nil && filters.ToDate != nil {
		validator.DateOrder("from_date", *filters.FromDate, "to_date", *filters.ToDate)
	}
	if validator.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	report, err := h.Service.Report(r.Context(), filters)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, report, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListBatches(w http.ResponseWriter, r *http.Request) {
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	validator := shared.NewValidator()
	validator.Enum("status", status, []string{wps.BatchStatusDraft, wps.BatchStatusSubmitted}, "must be draft or submitted")
	if validator.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	page := shared.ParsePagination(r, 50, 200)
	batches, total, err := h.Service.ListBatches(r.Context(), status, page.Limit, page.Offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, batches, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())

	body, err := io.ReadAll(r.Body)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	var payload filtersPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	validator := shared.NewValidator()
	filters := payload.filters(validator)
	if validator.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	requestHash := middleware.RequestHash(body)
	if h.replay(w, r, api.Created, user.UserID, endpointBatchCreate, idempotencyKey, requestHash) {
		return
	}

	batch, err := h.Service.CreateBatch(r.Context(), filters, user.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, user.UserID, audit.ActionBatchCreate, audit.EntityBatch, batch.ID, nil, payload)
	h.remember(r, user.UserID, endpointBatchCreate, idempotencyKey, requestHash, batch)
	api.Created(w, batch, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.Service.GetBatch(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, batch, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateBatch(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	batchID := chi.URLParam(r, "batchID")

	var payload filtersPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	validator := shared.NewValidator()
	filters := payload.filters(validator)
	if validator.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	before, err := h.Service.GetBatch(r.Context(), batchID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	batch, err := h.Service.UpdateBatch(r.Context(), batchID, filters)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, user.UserID, audit.ActionBatchUpdate, audit.EntityBatch, batch.ID, before.Filters(), batch.Filters())
	api.Success(w, batch, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRefreshBatch(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	batch, err := h.Service.Validate(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, user.UserID, audit.ActionBatchRefresh, audit.EntityBatch, batch.ID, nil, map[string]any{"employees": len(batch.Employees)})
	api.Success(w, batch, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	batchID := chi.URLParam(r, "batchID")

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	requestHash := middleware.RequestHash([]byte(batchID))
	if h.replay(w, r, api.Success, user.UserID, endpointBatchSubmit, idempotencyKey, requestHash) {
		return
	}

	batch, err := h.Service.Submit(r.Context(), batchID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, user.UserID, audit.ActionBatchSubmit, audit.EntityBatch, batch.ID,
		map[string]string{"status": wps.BatchStatusDraft},
		map[string]any{"status": batch.Status, "employees": len(batch.Employees)})
	h.remember(r, user.UserID, endpointBatchSubmit, idempotencyKey, requestHash, batch)
	api.Success(w, batch, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	batchID := chi.URLParam(r, "batchID")
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = wps.FormatCSV
	}
	validator := shared.NewValidator()
	validator.Enum("format", format, []string{wps.FormatCSV, wps.FormatXLSX}, "must be csv or xlsx")
	if validator.HasIssues() {
		h.Metrics.RecordExport("invalid", "rejected")
		api.FailWithDetails(w, http.StatusBadRequest, "unsupported_format", wps.ErrUnsupportedFormat.Error(),
			map[string]any{"fields": validator.Issues()}, middleware.GetRequestID(r.Context()))
		return
	}

	export, err := h.Service.GenerateExport(r.Context(), batchID, format)
	if errors.Is(err, wps.ErrNoData) {
		h.Metrics.RecordExport(format, "no_data")
		api.Success(w, map[string]string{"notice": wps.ErrNoData.Error()}, middleware.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		h.Metrics.RecordExport(format, "failed")
		h.fail(w, r, err)
		return
	}
	h.Metrics.RecordExport(format, "generated")
	h.audit(r, user.UserID, audit.ActionBatchExport, audit.EntityBatch, batchID, nil, export)
	api.Download(w, export.ContentType, export.Filename+"."+export.Format, export.Content)
}

func (h *Handler) handleSummaryPDF(w http.ResponseWriter, r *http.Request) {
	content, filename, err := h.Service.SummaryPDF(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Download(w, "application/pdf", filename, content)
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if h.Jobs == nil {
		api.Success(w, []jobs.Run{}, middleware.GetRequestID(r.Context()))
		return
	}
	page := shared.ParsePagination(r, 50, 200)
	filter := jobs.Filter{JobType: wps.JobExport, Status: r.URL.Query().Get("status")}
	total, err := h.Jobs.Count(r.Context(), filter)
	if err != nil {
		slog.Error("job run count failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "job_list_failed", "failed to list job runs", middleware.GetRequestID(r.Context()))
		return
	}
	runs, err := h.Jobs.List(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "job_list_failed", "failed to list job runs", middleware.GetRequestID(r.Context()))
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, runs, middleware.GetRequestID(r.Context()))
}

func (h *Handler) audit(r *http.Request, actorID, action, entityType, entityID string, before, after any) {
	if err := h.Audit.Record(r.Context(), actorID, action, entityType, entityID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), before, after); err != nil {
		slog.Warn("audit record failed", "action", action, "entityId", entityID, "err", err)
	}
}

// replay answers with the stored response when key was already used for the
// same request. A key reused for a different request is rejected.
func (h *Handler) replay(w http.ResponseWriter, r *http.Request, respond func(http.ResponseWriter, any, string), userID, endpoint, key, requestHash string) bool {
	if key == "" || h.Idempotency == nil {
		return false
	}
	requestID := middleware.GetRequestID(r.Context())
	stored, found, err := h.Idempotency.Check(r.Context(), userID, endpoint, key, requestHash)
	if errors.Is(err, middleware.ErrIdempotencyConflict) {
		api.Fail(w, http.StatusConflict, "idempotency_conflict", err.Error(), requestID)
		return true
	}
	if err != nil {
		slog.Warn("idempotency check failed", "endpoint", endpoint, "err", err)
		return false
	}
	if !found {
		return false
	}
	respond(w, stored, requestID)
	return true
}

func (h *Handler) remember(r *http.Request, userID, endpoint, key, requestHash string, response any) {
	if key == "" || h.Idempotency == nil {
		return
	}
	payload, err := json.Marshal(response)
	if err != nil {
		slog.Warn("idempotency response marshal failed", "endpoint", endpoint, "err", err)
		return
	}
	if err := h.Idempotency.Save(r.Context(), userID, endpoint, key, requestHash, payload); err != nil {
		slog.Warn("idempotency save failed", "endpoint", endpoint, "err", err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, wps.ErrBatchNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "wps batch not found", requestID)
	case errors.Is(err, wps.ErrBatchNotDraft), errors.Is(err, wps.ErrBatchNotSubmitted):
		api.Fail(w, http.StatusConflict, "invalid_state", err.Error(), requestID)
	case errors.Is(err, wps.ErrEmployeesAlreadyReported):
		api.Fail(w, http.StatusConflict, "already_reported", err.Error(), requestID)
	case errors.Is(err, wps.ErrNoEmployees):
		api.Fail(w, http.StatusBadRequest, "no_employees", wps.ErrNoEmployees.Error(), requestID)
	case errors.Is(err, wps.ErrInvalidFilters):
		api.Fail(w, http.StatusBadRequest, "validation_error", err.Error(), requestID)
	case errors.Is(err, wps.ErrUnsupportedFormat):
		api.Fail(w, http.StatusBadRequest, "unsupported_format", err.Error(), requestID)
	default:
		slog.Error("wps request failed", "path", r.URL.Path, "requestId", requestID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "wps_failed", "wps operation failed", requestID)
	}
}
