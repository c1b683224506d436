package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/job"
	"github.com/channelhub/backend/internal/interfaces/http/dto"
)

// JobHandler is the admin surface over the job store: listing, manual
// enqueueing, retry, cancel, and maintenance operations.
type JobHandler struct {
	BaseHandler
	jobs     job.Store
	accounts channel.AccountRepository
	logger   *zap.Logger
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(jobs job.Store, accounts channel.AccountRepository, logger *zap.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, accounts: accounts, logger: logger}
}

// CreateJobRequest represents a manual job enqueue
type CreateJobRequest struct {
	Type      string  `json:"type" binding:"required"`
	AccountID string  `json:"account_id" binding:"required,uuid"`
	ShopID    *string `json:"shop_id" binding:"omitempty,uuid"`

	// Backfill window, RFC 3339
	StartDatetime string `json:"start_datetime"`
	EndDatetime   string `json:"end_datetime"`

	WarehouseCode string   `json:"warehouse_code"`
	SKUList       []string `json:"sku_list"`
	BatchSize     int      `json:"batch_size" binding:"min=0"`
	AutoSplit     bool     `json:"auto_split"`
}

// JobResponse represents a job in API responses
type JobResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	State     string  `json:"state"`
	Priority  string  `json:"priority"`
	AccountID string  `json:"account_id"`
	ShopID    *string `json:"shop_id,omitempty"`

	Progress       int `json:"progress"`
	ProcessedItems int `json:"processed_items"`
	TotalItems     int `json:"total_items"`

	Retries    int `json:"retries"`
	MaxRetries int `json:"max_retries"`

	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms,omitempty"`

	Payload   job.Payload    `json:"payload"`
	Result    map[string]any `json:"result,omitempty"`
	LastError string         `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:             j.ID.String(),
		Name:           j.Name,
		Type:           string(j.Type),
		State:          string(j.State),
		Priority:       string(j.Priority),
		AccountID:      j.AccountID.String(),
		Progress:       j.Progress,
		ProcessedItems: j.ProcessedItems,
		TotalItems:     j.TotalItems,
		Retries:        j.Retries,
		MaxRetries:     j.MaxRetries,
		NextRunAt:      j.NextRunAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
		DurationMs:     j.Duration.Milliseconds(),
		Payload:        j.Payload,
		Result:         j.Result,
		LastError:      j.LastError,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
	if j.ShopID != nil {
		s := j.ShopID.String()
		resp.ShopID = &s
	}
	return resp
}

// List returns jobs newest first, narrowed by query filters.
func (h *JobHandler) List(c *gin.Context) {
	listReq := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&listReq); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	listReq.Normalize()

	filter := job.ListFilter{
		Limit:  listReq.PageSize,
		Offset: listReq.Offset(),
	}

	if v := c.Query("account_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			h.BadRequest(c, "Invalid account ID format")
			return
		}
		filter.AccountID = &id
	}
	if v := c.Query("shop_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			h.BadRequest(c, "Invalid shop ID format")
			return
		}
		filter.ShopID = &id
	}
	if v := c.Query("type"); v != "" {
		t := job.Type(v)
		if !t.IsValid() {
			h.BadRequest(c, "Unknown job type")
			return
		}
		filter.Type = &t
	}
	if v := c.Query("state"); v != "" {
		s := job.State(v)
		if !s.IsValid() {
			h.BadRequest(c, "Unknown job state")
			return
		}
		filter.State = &s
	}

	jobs, err := h.jobs.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	resp := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, toJobResponse(j))
	}
	h.Success(c, resp)
}

// GetByID returns one job.
func (h *JobHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid job ID format")
		return
	}

	j, err := h.jobs.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, toJobResponse(j))
}

// Create enqueues a job manually. The dispatcher picks it up on its next
// tick like any scheduled job.
func (h *JobHandler) Create(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		h.BadRequest(c, "Invalid account ID format")
		return
	}
	shopID, err := parseOptionalUUID(req.ShopID)
	if err != nil {
		h.BadRequest(c, "Invalid shop ID format")
		return
	}

	ctx := c.Request.Context()
	if _, err := h.accounts.FindByID(ctx, accountID); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	for _, v := range []string{req.StartDatetime, req.EndDatetime} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(time.RFC3339, v); err != nil {
			h.Error(c, 400, dto.ErrCodeValidationFormat, "Datetimes must be RFC 3339")
			return
		}
	}

	j, err := job.New(job.Type(req.Type), accountID, shopID, job.Payload{
		StartDatetime: req.StartDatetime,
		EndDatetime:   req.EndDatetime,
		WarehouseCode: req.WarehouseCode,
		SKUList:       req.SKUList,
		BatchSize:     req.BatchSize,
		AutoSplit:     req.AutoSplit,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	if err := h.jobs.Create(ctx, j); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.logger.Info("job enqueued manually",
		zap.String("job_id", j.ID.String()),
		zap.String("type", string(j.Type)),
		zap.String("account_id", accountID.String()))

	h.Created(c, toJobResponse(j))
}

// Retry requeues a dead or failed job. Terminal states cannot leave, so a
// fresh pending job with the same type, scope, and payload is created
// instead of mutating the original.
func (h *JobHandler) Retry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid job ID format")
		return
	}

	ctx := c.Request.Context()
	original, err := h.jobs.GetByID(ctx, id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	if original.State != job.StateDead && original.State != job.StateFailed {
		h.UnprocessableEntity(c, dto.ErrCodeInvalidState,
			"Only dead or failed jobs can be retried")
		return
	}

	clone, err := job.New(original.Type, original.AccountID, original.ShopID, original.Payload)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	if err := h.jobs.Create(ctx, clone); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.logger.Info("job retried",
		zap.String("original_id", original.ID.String()),
		zap.String("job_id", clone.ID.String()))

	h.Created(c, toJobResponse(clone))
}

// Cancel kills a pending job before the dispatcher picks it up.
func (h *JobHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid job ID format")
		return
	}

	ctx := c.Request.Context()
	j, err := h.jobs.GetByID(ctx, id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	if err := j.Kill("cancelled by operator", time.Now()); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	if err := h.jobs.Save(ctx, j); err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, toJobResponse(j))
}

// SuppressDuplicates collapses redundant pending jobs, keeping the newest
// per (type, account, shop) group. Scoped to one account with ?account_id=.
func (h *JobHandler) SuppressDuplicates(c *gin.Context) {
	var accountID *uuid.UUID
	if v := c.Query("account_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			h.BadRequest(c, "Invalid account ID format")
			return
		}
		accountID = &id
	}

	removed, err := h.jobs.SuppressDuplicates(c.Request.Context(), accountID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, gin.H{"removed": removed})
}

// Purge runs retention GC for one account using its configured window.
func (h *JobHandler) Purge(c *gin.Context) {
	accountID, err := uuid.Parse(c.Query("account_id"))
	if err != nil {
		h.BadRequest(c, "Invalid account ID format")
		return
	}

	ctx := c.Request.Context()
	account, err := h.accounts.FindByID(ctx, accountID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	purged, err := h.jobs.PurgeDone(ctx, account.ID, account.RetentionDays, account.RetentionKeepCount)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.logger.Info("job retention purge",
		zap.String("account_id", account.ID.String()),
		zap.Int("purged", purged))

	h.Success(c, gin.H{"purged": purged})
}

// RegisterRoutes registers job admin routes.
func (h *JobHandler) RegisterRoutes(rg *gin.RouterGroup) {
	jobs := rg.Group("/jobs")
	{
		jobs.GET("", h.List)
		jobs.POST("", h.Create)
		jobs.GET("/:id", h.GetByID)
		jobs.POST("/:id/retry", h.Retry)
		jobs.POST("/:id/cancel", h.Cancel)
		jobs.POST("/suppress-duplicates", h.SuppressDuplicates)
		jobs.POST("/purge", h.Purge)
	}
}
