package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kunal123thakur/job-matching/internal/constants"
	"github.com/kunal123thakur/job-matching/internal/storage/models"
	"github.com/kunal123thakur/job-matching/internal/types"

	"gorm.io/gorm"
)

// Writer 将实体事件写入 outbox 表，由 MessageRelay 异步投递
type Writer struct {
	db         *gorm.DB
	exchange   string
	routingKey string
}

// NewWriter 创建 outbox 写入器并迁移 outbox 表
func NewWriter(ctx context.Context, db *gorm.DB, exchange, routingKey string) (*Writer, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm.DB 不能为空")
	}
	if err := db.WithContext(ctx).AutoMigrate(&models.OutboxMessage{}); err != nil {
		return nil, fmt.Errorf("迁移 outbox 表失败: %w", err)
	}
	if routingKey == "" {
		routingKey = constants.EventEntityUpserted
	}
	return &Writer{db: db, exchange: exchange, routingKey: routingKey}, nil
}

// BuildMessage 构造一条待投递的 outbox 记录
func BuildMessage(rec types.EntityRecord, exchange, routingKey string) (models.OutboxMessage, error) {
	event, err := NewEntityEvent(rec)
	if err != nil {
		return models.OutboxMessage{}, err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return models.OutboxMessage{}, fmt.Errorf("序列化事件失败: %w", err)
	}
	return models.OutboxMessage{
		ID:               event.EventID,
		AggregateID:      rec.ID,
		AggregateKind:    string(rec.Kind),
		EventType:        event.EventType,
		Payload:          string(payload),
		TargetExchange:   exchange,
		TargetRoutingKey: routingKey,
		Status:           models.OutboxStatusPending,
	}, nil
}

// PublishEntityUpserted 插入一条 PENDING 消息
func (w *Writer) PublishEntityUpserted(ctx context.Context, rec types.EntityRecord) error {
	msg, err := BuildMessage(rec, w.exchange, w.routingKey)
	if err != nil {
		return err
	}
	if err := w.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return types.NewStorageError(rec.ID, "outbox_insert", err)
	}
	return nil
}
