package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	appsync "github.com/channelhub/backend/internal/application/sync"
	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/job"
	"github.com/channelhub/backend/internal/domain/order"
)

// WebhookExecutor replays one stored inbound webhook payload through the
// same normalization path order pulls use. Signature verification already
// happened at intake; the job carries the verified body.
type WebhookExecutor struct {
	shops        channel.ShopRepository
	materializer *appsync.Materializer
}

// NewWebhookExecutor creates the webhook executor.
func NewWebhookExecutor(shops channel.ShopRepository, materializer *appsync.Materializer) *WebhookExecutor {
	return &WebhookExecutor{shops: shops, materializer: materializer}
}

func (e *WebhookExecutor) Type() job.Type { return job.TypeWebhook }

func (e *WebhookExecutor) Execute(ctx context.Context, env *Env) (map[string]any, error) {
	if env.Job.ShopID == nil {
		return nil, ErrMissingShop
	}
	body := env.Job.Payload.WebhookBody
	if body == "" {
		return nil, ErrEmptyWebhookPayload
	}
	shop, err := e.shops.FindByID(ctx, *env.Job.ShopID)
	if err != nil {
		return nil, err
	}
	normalized, err := env.Adapter.ParseOrderPayload(json.RawMessage(body))
	if err != nil {
		return nil, fmt.Errorf("parse webhook payload: %w", err)
	}
	result, err := e.materializer.Ingest(ctx, env.Account, shop, []*order.NormalizedOrder{normalized})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"created":      result.Created,
		"updated":      result.Updated,
		"materialized": result.Materialized,
		"failed":       result.Failed,
	}, nil
}
