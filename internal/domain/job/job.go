package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	ErrJobNotFound = errors.New("job: not found")
	// ErrInvalidTransition signals an internal invariant violation; the
	// dispatcher aborts the dispatch of the offending job when it sees it.
	ErrInvalidTransition = errors.New("job: invalid state transition")
	ErrMissingNextRunAt  = errors.New("job: pending job requires next_run_at")
	ErrUnknownType       = errors.New("job: unknown job type")
)

// ---------------------------------------------------------------------------
// Type
// ---------------------------------------------------------------------------

// Type identifies what a job does. Executors are registered per type.
type Type string

const (
	// TypePullOrder pulls orders for one shop
	TypePullOrder Type = "pull_order"
	// TypePushStock pushes available quantities for a set of bindings
	TypePushStock Type = "push_stock"
	// TypeSyncStockFromZortout ingests the Zortout product/stock feed
	TypeSyncStockFromZortout Type = "sync_stock_from_zortout"
	// TypeSyncProductsFromWoo imports the WooCommerce product list into bindings
	TypeSyncProductsFromWoo Type = "sync_products_from_woocommerce"
	// TypeBackfillOrders re-pulls an explicit order window for reconciliation
	TypeBackfillOrders Type = "backfill_orders"
	// TypeWebhook processes one stored inbound webhook payload
	TypeWebhook Type = "webhook"
)

// IsValid returns true for known job types.
func (t Type) IsValid() bool {
	switch t {
	case TypePullOrder, TypePushStock, TypeSyncStockFromZortout,
		TypeSyncProductsFromWoo, TypeBackfillOrders, TypeWebhook:
		return true
	}
	return false
}

// String returns the string representation of the type.
func (t Type) String() string {
	return string(t)
}

// ---------------------------------------------------------------------------
// State
// ---------------------------------------------------------------------------

// State is the lifecycle state of a job.
type State string

const (
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateDone       State = "done"
	StateFailed     State = "failed"
	StateDead       State = "dead"
)

// IsValid returns true for known states.
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateInProgress, StateDone, StateFailed, StateDead:
		return true
	}
	return false
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsTerminal returns true for states a job never leaves on its own.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateDead
}

// CanTransitionTo reports whether the state machine permits the move.
// pending→pending is allowed for the retry re-entry, and
// in_progress→pending for stuck-job recovery.
func (s State) CanTransitionTo(target State) bool {
	switch s {
	case StatePending:
		return target == StateInProgress || target == StatePending || target == StateDead
	case StateInProgress:
		return target == StateDone || target == StateFailed ||
			target == StateDead || target == StatePending
	case StateFailed:
		return target == StatePending || target == StateDead
	case StateDone, StateDead:
		return false
	}
	return false
}

// ---------------------------------------------------------------------------
// Priority
// ---------------------------------------------------------------------------

// Priority orders pending jobs at selection time.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// IsValid returns true for known priorities.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Rank returns a sortable weight, higher first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// DefaultPriorityFor returns the default priority for a job type:
// order pulls run high, everything else medium.
func DefaultPriorityFor(t Type) Priority {
	if t == TypePullOrder {
		return PriorityHigh
	}
	return PriorityMedium
}

// ---------------------------------------------------------------------------
// Payload
// ---------------------------------------------------------------------------

// Payload is the JSON envelope every job carries. Unknown keys round-trip
// through Extra so webhook payload references and forensic data survive.
type Payload struct {
	BindingIDs    []uuid.UUID `json:"binding_ids,omitempty"`
	WarehouseCode string      `json:"warehouse_code,omitempty"`
	SKUList       []string    `json:"sku_list,omitempty"`
	BatchIndex    *int        `json:"batch_index,omitempty"`
	BatchTotal    int         `json:"batch_total,omitempty"`
	BatchSize     int         `json:"batch_size,omitempty"`
	AutoSplit     bool        `json:"auto_split,omitempty"`
	SyncDate      string      `json:"sync_date,omitempty"`
	StartDatetime string      `json:"start_datetime,omitempty"`
	EndDatetime   string      `json:"end_datetime,omitempty"`
	WebhookBody   string      `json:"webhook_body,omitempty"`
	Extra         map[string]any `json:"-"`
}

// MarshalJSON flattens Extra into the envelope.
func (p Payload) MarshalJSON() ([]byte, error) {
	type alias Payload
	base, err := json.Marshal(alias(p))
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return base, nil
	}
	var m map[string]any
	if err := json.Unmarshal(base, &m); err != nil {
		return nil, err
	}
	for k, v := range p.Extra {
		if _, taken := m[k]; !taken {
			m[k] = v
		}
	}
	return json.Marshal(m)
}

// UnmarshalJSON restores known fields and keeps the rest in Extra.
func (p *Payload) UnmarshalJSON(data []byte) error {
	type alias Payload
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*p = Payload(a)
	p.Extra = nil

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	for _, known := range []string{
		"binding_ids", "warehouse_code", "sku_list", "batch_index",
		"batch_total", "batch_size", "auto_split", "sync_date",
		"start_datetime", "end_datetime", "webhook_body",
	} {
		delete(m, known)
	}
	if len(m) > 0 {
		p.Extra = m
	}
	return nil
}

// ---------------------------------------------------------------------------
// Job
// ---------------------------------------------------------------------------

// Job is one persistent unit of work. Only the dispatcher and the executors
// mutate it after creation; retention GC is the only deleter.
type Job struct {
	ID        uuid.UUID
	Name      string
	Type      Type
	State     State
	Priority  Priority
	AccountID uuid.UUID
	ShopID    *uuid.UUID

	Progress       int
	ProcessedItems int
	TotalItems     int

	Retries    int
	MaxRetries int

	NextRunAt   *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Duration    time.Duration

	Payload   Payload
	Result    map[string]any
	LastError string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a pending job with defaulted priority and schedule.
func New(t Type, accountID uuid.UUID, shopID *uuid.UUID, payload Payload) (*Job, error) {
	if !t.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
	now := time.Now()
	runAt := now
	return &Job{
		ID:         uuid.New(),
		Name:       fmt.Sprintf("%s %s", t, now.Format("2006-01-02 15:04:05")),
		Type:       t,
		State:      StatePending,
		Priority:   DefaultPriorityFor(t),
		AccountID:  accountID,
		ShopID:     shopID,
		MaxRetries: 3,
		NextRunAt:  &runAt,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// transition moves the job to the target state or fails with
// ErrInvalidTransition.
func (j *Job) transition(target State) error {
	if !j.State.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, target)
	}
	j.State = target
	j.UpdatedAt = time.Now()
	return nil
}

// Start marks the job in progress.
func (j *Job) Start(now time.Time) error {
	if err := j.transition(StateInProgress); err != nil {
		return err
	}
	j.StartedAt = &now
	j.NextRunAt = nil
	return nil
}

// Complete marks the job done with a result.
func (j *Job) Complete(result map[string]any, now time.Time) error {
	if err := j.transition(StateDone); err != nil {
		return err
	}
	j.Progress = 100
	j.Result = result
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.Duration = now.Sub(*j.StartedAt)
	}
	j.LastError = ""
	return nil
}

// SkipDone short-circuits a job to done with a skip reason, without ever
// running it (e.g. auth unavailable, channel not connected).
func (j *Job) SkipDone(reason string, now time.Time) error {
	if j.State == StatePending {
		if err := j.transition(StateInProgress); err != nil {
			return err
		}
	}
	return j.Complete(map[string]any{"skipped": reason}, now)
}

// RetryIn re-enters pending with the given delay, incrementing the retry
// counter.
func (j *Job) RetryIn(delay time.Duration, reason string, now time.Time) error {
	if err := j.transition(StatePending); err != nil {
		return err
	}
	j.Retries++
	runAt := now.Add(delay)
	j.NextRunAt = &runAt
	j.LastError = reason
	j.Progress = 0
	j.ProcessedItems = 0
	return nil
}

// RetryBackoff is the retry ladder delay: 2^retries minutes (2, 4, 8).
func (j *Job) RetryBackoff() time.Duration {
	return time.Duration(1<<uint(j.Retries+1)) * time.Minute
}

// CanRetry reports whether the retry budget allows another attempt.
func (j *Job) CanRetry() bool {
	return j.Retries < j.MaxRetries
}

// Kill moves the job to dead, recording the final error.
func (j *Job) Kill(reason string, now time.Time) error {
	if err := j.transition(StateDead); err != nil {
		return err
	}
	j.CompletedAt = &now
	j.LastError = reason
	return nil
}

// ResetForRecovery returns a stuck in-progress job to pending for an
// immediate re-run.
func (j *Job) ResetForRecovery(now time.Time) error {
	if err := j.transition(StatePending); err != nil {
		return err
	}
	runAt := now
	j.NextRunAt = &runAt
	j.Progress = 0
	j.ProcessedItems = 0
	j.StartedAt = nil
	return nil
}

// SetProgress records item counts and the derived percentage, clamped to
// [0, 100].
func (j *Job) SetProgress(processed, total int) {
	if processed < 0 {
		processed = 0
	}
	if total < 0 {
		total = 0
	}
	j.ProcessedItems = processed
	j.TotalItems = total
	if total == 0 {
		j.Progress = 0
	} else {
		pct := processed * 100 / total
		if pct > 100 {
			pct = 100
		}
		j.Progress = pct
	}
	j.UpdatedAt = time.Now()
}

// BatchIndex returns the batch index from the payload, or 0.
func (j *Job) BatchIndex() int {
	if j.Payload.BatchIndex != nil {
		return *j.Payload.BatchIndex
	}
	return 0
}

// Validate enforces the pending/next_run_at invariant.
func (j *Job) Validate() error {
	if !j.Type.IsValid() {
		return fmt.Errorf("%w: %s", ErrUnknownType, j.Type)
	}
	if j.State == StatePending && j.NextRunAt == nil {
		return ErrMissingNextRunAt
	}
	return nil
}
