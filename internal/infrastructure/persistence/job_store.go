package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/channelhub/backend/internal/domain/job"
	"github.com/channelhub/backend/internal/infrastructure/persistence/models"
)

// GormJobStore implements job.Store using GORM. All worker coordination goes
// through this table; writes are single-row and commit immediately.
type GormJobStore struct {
	db *gorm.DB
}

// NewGormJobStore creates a new GormJobStore
func NewGormJobStore(db *gorm.DB) *GormJobStore {
	return &GormJobStore{db: db}
}

// Create persists a new job. Pending jobs without next_run_at are scheduled
// for now; an unset priority defaults by type.
func (s *GormJobStore) Create(ctx context.Context, j *job.Job) error {
	if j.Priority == "" {
		j.Priority = job.DefaultPriorityFor(j.Type)
	}
	if j.State == job.StatePending && j.NextRunAt == nil {
		now := time.Now()
		j.NextRunAt = &now
	}
	if err := j.Validate(); err != nil {
		return err
	}
	model := models.JobModelFromDomain(j)
	return s.db.WithContext(ctx).Create(model).Error
}

// GetByID loads one job
func (s *GormJobStore) GetByID(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	var model models.JobModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, job.ErrJobNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save persists the current state of an already-created job
func (s *GormJobStore) Save(ctx context.Context, j *job.Job) error {
	model := models.JobModelFromDomain(j)
	result := s.db.WithContext(ctx).Save(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

// SelectRunnable reads up to limit pending jobs whose next_run_at is not
// after now, ordered by priority desc, next_run_at asc, id asc. The priority
// order is expressed as a CASE so it holds on any SQL backend.
func (s *GormJobStore) SelectRunnable(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	var jobModels []models.JobModel
	query := s.db.WithContext(ctx).
		Where("state = ? AND next_run_at IS NOT NULL AND next_run_at <= ?", job.StatePending, now).
		Order("CASE priority WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0 END DESC").
		Order("next_run_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&jobModels).Error; err != nil {
		return nil, err
	}
	return jobsToDomain(jobModels), nil
}

// CountInProgressByAccount returns the live in_progress count per account
func (s *GormJobStore) CountInProgressByAccount(ctx context.Context) (map[uuid.UUID]int, error) {
	type row struct {
		AccountID uuid.UUID
		N         int
	}
	var rows []row
	if err := s.db.WithContext(ctx).
		Model(&models.JobModel{}).
		Select("account_id, COUNT(*) AS n").
		Where("state = ?", job.StateInProgress).
		Group("account_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[uuid.UUID]int, len(rows))
	for _, r := range rows {
		counts[r.AccountID] = r.N
	}
	return counts, nil
}

// UpdateProgress writes processed/total/derived progress for a running job
// and commits immediately so the admin surface sees it live.
func (s *GormJobStore) UpdateProgress(ctx context.Context, id uuid.UUID, processed, total int) error {
	if processed < 0 {
		processed = 0
	}
	if total < 0 {
		total = 0
	}
	pct := 0
	if total > 0 {
		pct = processed * 100 / total
		if pct > 100 {
			pct = 100
		}
	}
	result := s.db.WithContext(ctx).
		Model(&models.JobModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"processed_items": processed,
			"total_items":     total,
			"progress":        pct,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

// FindPendingSibling returns the most recent pending or in-progress job with
// the same (type, account, shop), or nil
func (s *GormJobStore) FindPendingSibling(ctx context.Context, t job.Type, accountID uuid.UUID, shopID *uuid.UUID) (*job.Job, error) {
	query := s.db.WithContext(ctx).
		Where("type = ? AND account_id = ? AND state IN ?", t, accountID,
			[]job.State{job.StatePending, job.StateInProgress})
	if shopID != nil {
		query = query.Where("shop_id = ?", *shopID)
	} else {
		query = query.Where("shop_id IS NULL")
	}
	var model models.JobModel
	if err := query.Order("created_at DESC").First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// LastSuccessful returns the newest done job of the given type for the
// account, or nil
func (s *GormJobStore) LastSuccessful(ctx context.Context, t job.Type, accountID uuid.UUID) (*job.Job, error) {
	var model models.JobModel
	if err := s.db.WithContext(ctx).
		Where("type = ? AND account_id = ? AND state = ?", t, accountID, job.StateDone).
		Order("completed_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// RecoverStuck resets in-progress jobs that started before the cutoff, or
// whose progress reached 100 without a terminal state, back to pending with
// next_run_at = now. Returns how many were reset.
func (s *GormJobStore) RecoverStuck(ctx context.Context, cutoff time.Time, now time.Time) (int, error) {
	result := s.db.WithContext(ctx).
		Model(&models.JobModel{}).
		Where("state = ?", job.StateInProgress).
		Where("started_at < ? OR progress >= 100", cutoff).
		Updates(map[string]any{
			"state":           job.StatePending,
			"next_run_at":     now,
			"started_at":      nil,
			"progress":        0,
			"processed_items": 0,
			"updated_at":      now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

// SuppressDuplicates keeps only the most recently created pending job per
// (type, account, shop) group and deletes the rest. Returns how many were
// removed.
func (s *GormJobStore) SuppressDuplicates(ctx context.Context, accountID *uuid.UUID) (int, error) {
	query := s.db.WithContext(ctx).
		Where("state = ?", job.StatePending)
	if accountID != nil {
		query = query.Where("account_id = ?", *accountID)
	}
	var jobModels []models.JobModel
	if err := query.Order("created_at DESC").Order("id DESC").Find(&jobModels).Error; err != nil {
		return 0, err
	}

	type groupKey struct {
		Type      job.Type
		AccountID uuid.UUID
		ShopID    uuid.UUID
	}
	seen := make(map[groupKey]bool)
	var doomed []uuid.UUID
	for i := range jobModels {
		key := groupKey{Type: jobModels[i].Type, AccountID: jobModels[i].AccountID}
		if jobModels[i].ShopID != nil {
			key.ShopID = *jobModels[i].ShopID
		}
		if seen[key] {
			doomed = append(doomed, jobModels[i].ID)
			continue
		}
		seen[key] = true
	}
	if len(doomed) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Delete(&models.JobModel{}, "id IN ?", doomed)
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

// DeletePending removes pending and in-progress jobs of a type for an account
func (s *GormJobStore) DeletePending(ctx context.Context, t job.Type, accountID uuid.UUID) (int, error) {
	result := s.db.WithContext(ctx).
		Delete(&models.JobModel{}, "type = ? AND account_id = ? AND state IN ?",
			t, accountID, []job.State{job.StatePending, job.StateInProgress})
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

// Delete removes one job by ID
func (s *GormJobStore) Delete(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&models.JobModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

// PurgeDone deletes done jobs older than the retention window for an account;
// keepCount > 0 additionally keeps the newest N per type regardless of age.
func (s *GormJobStore) PurgeDone(ctx context.Context, accountID uuid.UUID, retentionDays, keepCount int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	var doomed []uuid.UUID
	if keepCount > 0 {
		var jobModels []models.JobModel
		if err := s.db.WithContext(ctx).
			Select("id", "type", "completed_at").
			Where("account_id = ? AND state = ?", accountID, job.StateDone).
			Order("completed_at DESC").
			Find(&jobModels).Error; err != nil {
			return 0, err
		}
		kept := make(map[job.Type]int)
		for i := range jobModels {
			if kept[jobModels[i].Type] < keepCount {
				kept[jobModels[i].Type]++
				continue
			}
			if jobModels[i].CompletedAt != nil && jobModels[i].CompletedAt.Before(cutoff) {
				doomed = append(doomed, jobModels[i].ID)
			}
		}
		if len(doomed) == 0 {
			return 0, nil
		}
		result := s.db.WithContext(ctx).Delete(&models.JobModel{}, "id IN ?", doomed)
		if result.Error != nil {
			return 0, result.Error
		}
		return int(result.RowsAffected), nil
	}

	result := s.db.WithContext(ctx).
		Delete(&models.JobModel{}, "account_id = ? AND state = ? AND completed_at < ?",
			accountID, job.StateDone, cutoff)
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

// List returns jobs for the admin surface, newest first
func (s *GormJobStore) List(ctx context.Context, filter job.ListFilter) ([]*job.Job, error) {
	query := s.db.WithContext(ctx).Model(&models.JobModel{})
	if filter.AccountID != nil {
		query = query.Where("account_id = ?", *filter.AccountID)
	}
	if filter.ShopID != nil {
		query = query.Where("shop_id = ?", *filter.ShopID)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.State != nil {
		query = query.Where("state = ?", *filter.State)
	}
	query = query.Order("created_at DESC").Order("id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	var jobModels []models.JobModel
	if err := query.Find(&jobModels).Error; err != nil {
		return nil, err
	}
	return jobsToDomain(jobModels), nil
}

func jobsToDomain(jobModels []models.JobModel) []*job.Job {
	jobs := make([]*job.Job, len(jobModels))
	for i := range jobModels {
		jobs[i] = jobModels[i].ToDomain()
	}
	return jobs
}

// Ensure GormJobStore implements job.Store
var _ job.Store = (*GormJobStore)(nil)
