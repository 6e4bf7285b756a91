package models

import "time"

// Outbox 消息状态
const (
	OutboxStatusPending   = "PENDING"
	OutboxStatusProcessed = "PROCESSED"
	OutboxStatusFailed    = "FAILED"
)

// OutboxMessage 待异步投递到 RabbitMQ 的实体事件
type OutboxMessage struct {
	ID               string     `gorm:"type:varchar(36);primaryKey"` // UUIDv7，按时间有序
	AggregateID      string     `gorm:"type:varchar(191);not null;index"`
	AggregateKind    string     `gorm:"type:varchar(32);not null"`
	EventType        string     `gorm:"type:varchar(255);not null"`
	Payload          string     `gorm:"type:text;not null"`
	TargetExchange   string     `gorm:"type:varchar(255);not null"`
	TargetRoutingKey string     `gorm:"type:varchar(255);not null"`
	Status           string     `gorm:"type:varchar(20);default:'PENDING';not null;index:idx_outbox_status_created_at"`
	RetryCount       int        `gorm:"default:0"`
	CreatedAt        time.Time  `gorm:"autoCreateTime;index:idx_outbox_status_created_at,sort:asc"`
	ProcessedAt      *time.Time `gorm:"null"`
	ErrorMessage     string     `gorm:"type:text"`
}

// TableName specifies the table name for the OutboxMessage model.
func (OutboxMessage) TableName() string {
	return "outbox_messages"
}
