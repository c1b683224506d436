package job

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence port for jobs. All coordination between workers
// happens through it; workers share no in-memory state. Writes are
// single-row and transactional.
type Store interface {
	// Create persists a new job. Priority defaults by type and pending
	// jobs without next_run_at are scheduled for now.
	Create(ctx context.Context, j *Job) error

	// GetByID loads one job.
	GetByID(ctx context.Context, id uuid.UUID) (*Job, error)

	// Save persists the current state of an already-created job.
	Save(ctx context.Context, j *Job) error

	// SelectRunnable reads up to limit pending jobs whose next_run_at is
	// not after the given instant, ordered by priority desc,
	// next_run_at asc, id asc.
	SelectRunnable(ctx context.Context, now time.Time, limit int) ([]*Job, error)

	// CountInProgressByAccount returns the live in_progress count per
	// account. The dispatcher calls it twice per tick (select-time and
	// execute-time) to defend against sibling-dispatcher races.
	CountInProgressByAccount(ctx context.Context) (map[uuid.UUID]int, error)

	// UpdateProgress writes processed/total/derived progress for a running
	// job and commits immediately.
	UpdateProgress(ctx context.Context, id uuid.UUID, processed, total int) error

	// FindPendingSibling returns the most recent pending or in-progress
	// job with the same (type, account, shop), or nil.
	FindPendingSibling(ctx context.Context, t Type, accountID uuid.UUID, shopID *uuid.UUID) (*Job, error)

	// LastSuccessful returns the newest done job of the given type for the
	// account, or nil.
	LastSuccessful(ctx context.Context, t Type, accountID uuid.UUID) (*Job, error)

	// RecoverStuck resets in-progress jobs that started before the cutoff,
	// or whose progress reached 100 without a terminal state, back to
	// pending with next_run_at = now. Returns how many were reset.
	RecoverStuck(ctx context.Context, cutoff time.Time, now time.Time) (int, error)

	// SuppressDuplicates keeps only the most recently created pending job
	// per (type, account, shop) group and deletes the rest. Returns how
	// many were removed.
	SuppressDuplicates(ctx context.Context, accountID *uuid.UUID) (int, error)

	// DeletePending removes pending and in-progress jobs of a type for an
	// account (pre-clean for disconnected Shopee accounts).
	DeletePending(ctx context.Context, t Type, accountID uuid.UUID) (int, error)

	// Delete removes one job by ID (merge-then-split replaces jobs).
	Delete(ctx context.Context, id uuid.UUID) error

	// PurgeDone deletes done jobs older than the retention window for an
	// account; keepCount > 0 additionally keeps the newest N per type.
	PurgeDone(ctx context.Context, accountID uuid.UUID, retentionDays, keepCount int) (int, error)

	// List returns jobs for the admin surface, newest first.
	List(ctx context.Context, filter ListFilter) ([]*Job, error)
}

// ListFilter narrows the admin job listing.
type ListFilter struct {
	AccountID *uuid.UUID
	ShopID    *uuid.UUID
	Type      *Type
	State     *State
	Limit     int
	Offset    int
}
