package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kunal123thakur/job-matching/internal/constants"
	"github.com/kunal123thakur/job-matching/internal/storage"
	"github.com/kunal123thakur/job-matching/internal/types"

	"github.com/gofrs/uuid/v5"
)

// EntityEvent 实体写入后对外发布的事件体
type EntityEvent struct {
	EventID    string           `json:"event_id"`
	EventType  string           `json:"event_type"`
	Kind       types.EntityKind `json:"kind"`
	EntityID   string           `json:"entity_id"`
	Skills     []string         `json:"skills"`
	HasVector  bool             `json:"has_embedding"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Publisher 实体事件发布器
type Publisher interface {
	PublishEntityUpserted(ctx context.Context, rec types.EntityRecord) error
}

// NewEntityEvent 由记录构造 entity.upserted 事件，事件 ID 为 UUIDv7
func NewEntityEvent(rec types.EntityRecord) (EntityEvent, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return EntityEvent{}, fmt.Errorf("生成事件ID失败: %w", err)
	}
	skills := rec.Skills
	if skills == nil {
		skills = []string{}
	}
	return EntityEvent{
		EventID:    id.String(),
		EventType:  constants.EventEntityUpserted,
		Kind:       rec.Kind,
		EntityID:   rec.ID,
		Skills:     skills,
		HasVector:  rec.HasEmbedding(),
		OccurredAt: time.Now().UTC(),
	}, nil
}

// NopPublisher 不发布任何事件
type NopPublisher struct{}

// PublishEntityUpserted 空实现
func (NopPublisher) PublishEntityUpserted(context.Context, types.EntityRecord) error {
	return nil
}

// DirectPublisher 写入成功后直接发布到 RabbitMQ
type DirectPublisher struct {
	mq         storage.MessageQueue
	exchange   string
	routingKey string
}

// NewDirectPublisher 创建直接发布器
func NewDirectPublisher(mq storage.MessageQueue, exchange, routingKey string) *DirectPublisher {
	if routingKey == "" {
		routingKey = constants.EventEntityUpserted
	}
	return &DirectPublisher{mq: mq, exchange: exchange, routingKey: routingKey}
}

// PublishEntityUpserted 发布事件
func (p *DirectPublisher) PublishEntityUpserted(ctx context.Context, rec types.EntityRecord) error {
	event, err := NewEntityEvent(rec)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	return p.mq.PublishMessage(ctx, p.exchange, p.routingKey, event.EventID, payload)
}

var (
	_ Publisher = NopPublisher{}
	_ Publisher = (*DirectPublisher)(nil)
	_ Publisher = (*Writer)(nil)
)
