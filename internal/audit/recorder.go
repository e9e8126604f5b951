package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mfa-service/internal/client"
	"mfa-service/internal/models"
	"mfa-service/internal/util"
)

const insertEventQuery = `
    INSERT INTO auth_events (event_id, event_type, username, user_id, actor, success, detail, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// Recorder fans auth events out to the ClickHouse audit table and the
// Kafka event stream. Both writes are best-effort: an audit outage
// must never fail a login or signup, so errors are logged and dropped.
type Recorder struct {
	clickhouse *client.ClickHouseClient
	producer   *client.KafkaProducer
}

func NewRecorder(clickhouse *client.ClickHouseClient, producer *client.KafkaProducer) *Recorder {
	return &Recorder{
		clickhouse: clickhouse,
		producer:   producer,
	}
}

// Record persists the event. Callers fire this inline on the request
// path; it bounds its own time.
func (r *Recorder) Record(event models.AuthEvent) {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if r.clickhouse != nil {
		err := r.clickhouse.Exec(ctx, insertEventQuery,
			event.EventID, event.EventType, event.Username, event.UserID,
			event.Actor, event.Success, event.Detail, event.CreatedAt)
		if err != nil {
			util.Warn("failed to write audit event",
				zap.String("event_type", event.EventType),
				zap.Error(err))
		}
	}

	if r.producer != nil {
		payload, err := json.Marshal(event)
		if err != nil {
			util.Warn("failed to encode auth event", zap.Error(err))
			return
		}
		if err := r.producer.Produce(ctx, []byte(event.Username), payload); err != nil {
			util.Warn("failed to publish auth event",
				zap.String("event_type", event.EventType),
				zap.Error(err))
		}
	}
}
