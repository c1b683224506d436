package scheduler

import "errors"

var (
	// ErrNoExecutor is returned when a job type has no registered executor
	ErrNoExecutor = errors.New("no executor registered for job type")

	// ErrMissingShop is returned when an executor requires a shop-scoped job
	ErrMissingShop = errors.New("job is not scoped to a shop")

	// ErrMissingCapability is returned when the channel adapter cannot
	// perform the operation the job type requires
	ErrMissingCapability = errors.New("channel adapter lacks the required capability")

	// ErrInvalidWindow is returned for backfill jobs with an unparseable
	// or inverted time window
	ErrInvalidWindow = errors.New("invalid backfill time window")

	// ErrEmptyWebhookPayload is returned when a webhook job carries no body
	ErrEmptyWebhookPayload = errors.New("webhook job has no stored payload")
)
