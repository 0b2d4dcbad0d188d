// Package events carries the usage-event side effect described in spec
// §4.3: each successful authentication asynchronously records that a
// tenant's key was used, without making the originating request wait on
// the write. Publish and Consumer mirror the teacher's
// auth/consumers/user_consumer.go publish/consume shape, retargeted at
// one event type.
package events

import (
	"context"

	"github.com/mcare/mcare-backend/pkg/dbx"
	"github.com/mcare/mcare-backend/pkg/logger"
	"github.com/mcare/mcare-backend/pkg/messaging"
)

// Publisher publishes usage-recorded events. A narrow interface so
// callers (and tests) need not depend on the concrete RabbitMQ publisher.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// RecordUsage publishes a UsageRecordedEvent. Best-effort: the caller
// decides whether to log a failure, since this must never block or fail
// the request it is describing.
func RecordUsage(ctx context.Context, pub Publisher, tenantID, apiKeyID, endpoint string) error {
	return pub.Publish(ctx, messaging.EventUsageRecorded, messaging.UsageRecordedEvent{
		TenantID: tenantID,
		APIKeyID: apiKeyID,
		Endpoint: endpoint,
	})
}

// UsageEventConsumer drains usage.recorded events and appends
// usage_events rows under the tenant binding named in the event.
type UsageEventConsumer struct {
	consumer *messaging.Consumer
	db       *dbx.DB
	logger   *logger.Logger
}

// NewUsageEventConsumer declares the queue, subscribes it to the
// usage.events exchange, and registers the handler.
func NewUsageEventConsumer(rmq *messaging.RabbitMQ, db *dbx.DB, log *logger.Logger) (*UsageEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "mcare-api.usage-events", log)
	if err != nil {
		return nil, err
	}
	if err := consumer.Subscribe(messaging.ExchangeUsageEvents, messaging.EventUsageRecorded); err != nil {
		return nil, err
	}

	c := &UsageEventConsumer{consumer: consumer, db: db, logger: log}
	consumer.RegisterHandler(messaging.EventUsageRecorded, c.handleUsageRecorded)
	return c, nil
}

// Start begins consuming.
func (c *UsageEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *UsageEventConsumer) handleUsageRecorded(ctx context.Context, event *messaging.Event) error {
	var data messaging.UsageRecordedEvent
	if err := event.UnmarshalData(&data); err != nil {
		c.logger.Error().Err(err).Msg("failed to unmarshal usage.recorded event")
		return err
	}
	if data.TenantID == "" {
		c.logger.Warn().Msg("usage.recorded event missing tenant_id, dropping")
		return nil
	}

	var apiKeyID interface{}
	if data.APIKeyID != "" {
		apiKeyID = data.APIKeyID
	}

	err := c.db.WithTenant(ctx, data.TenantID, func(tenantCtx context.Context) error {
		_, execErr := c.db.ExecContext(tenantCtx,
			`INSERT INTO usage_events (tenant_id, api_key_id, endpoint) VALUES ($1, $2, $3)`,
			data.TenantID, apiKeyID, data.Endpoint)
		return execErr
	})
	if err != nil {
		c.logger.Error().Err(err).Str("tenant_id", data.TenantID).Msg("failed to append usage event")
		return err
	}
	return nil
}
