package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/kunal123thakur/job-matching/internal/logger"
	"github.com/kunal123thakur/job-matching/internal/storage"
	"github.com/kunal123thakur/job-matching/internal/storage/models"
	"github.com/kunal123thakur/job-matching/internal/tracing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPollingInterval = 2 * time.Second
	defaultBatchSize       = 50
	defaultMaxRetries      = 5
)

// MessageRelay 轮询 outbox 表并将消息发布到 RabbitMQ
type MessageRelay struct {
	db              *gorm.DB
	publisher       storage.MessageQueue
	logger          zerolog.Logger
	pollingInterval time.Duration
	batchSize       int
	maxRetries      int
	done            chan struct{}
	wg              sync.WaitGroup
	stopOnce        sync.Once
	tracer          trace.Tracer
}

// RelayOption 中继配置项
type RelayOption func(*MessageRelay)

// WithPollingInterval 设置轮询间隔
func WithPollingInterval(d time.Duration) RelayOption {
	return func(r *MessageRelay) {
		if d > 0 {
			r.pollingInterval = d
		}
	}
}

// WithBatchSize 设置每批条数
func WithBatchSize(n int) RelayOption {
	return func(r *MessageRelay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithMaxRetries 设置最大重试次数，超过后标记为 FAILED
func WithMaxRetries(n int) RelayOption {
	return func(r *MessageRelay) {
		if n > 0 {
			r.maxRetries = n
		}
	}
}

// NewMessageRelay 创建中继
func NewMessageRelay(db *gorm.DB, publisher storage.MessageQueue, opts ...RelayOption) *MessageRelay {
	r := &MessageRelay{
		db:              db,
		publisher:       publisher,
		logger:          logger.Named("outbox_relay"),
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		maxRetries:      defaultMaxRetries,
		done:            make(chan struct{}),
		tracer:          otel.Tracer("outbox-relay"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start 在后台开始轮询，ctx 取消或调用 Stop 后退出
func (r *MessageRelay) Start(ctx context.Context) {
	r.logger.Info().Dur("interval", r.pollingInterval).Int("batch_size", r.batchSize).Msg("MessageRelay 启动")
	ticker := time.NewTicker(r.pollingInterval)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.done:
				return
			case <-ticker.C:
				if _, err := r.ProcessPendingMessages(ctx); err != nil {
					r.logger.Error().Err(err).Msg("处理 outbox 消息失败")
				}
			}
		}
	}()
}

// Stop 停止轮询并等待当前批次结束
func (r *MessageRelay) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
	r.logger.Info().Msg("MessageRelay 已停止")
}

// ProcessPendingMessages 在一个事务内锁定并投递一批 PENDING 消息，返回本批条数
func (r *MessageRelay) ProcessPendingMessages(ctx context.Context) (int, error) {
	var messages []models.OutboxMessage

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return 0, tx.Error
	}
	defer tx.Rollback()

	// SKIP LOCKED 允许多个实例并行中继
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", models.OutboxStatusPending).
		Order("created_at asc").
		Limit(r.batchSize).
		Find(&messages).Error
	if err != nil {
		return 0, err
	}
	if len(messages) == 0 {
		return 0, tx.Commit().Error
	}

	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(attribute.Int("messaging.batch.message_count", len(messages))),
	)
	defer span.End()

	for i := range messages {
		msg := &messages[i]
		pubErr := r.publisher.PublishMessage(ctx, msg.TargetExchange, msg.TargetRoutingKey, msg.ID, []byte(msg.Payload))
		applyPublishResult(msg, pubErr, r.maxRetries, time.Now().UTC())
		if pubErr != nil {
			r.logger.Warn().Err(pubErr).Str("message_id", msg.ID).Str("aggregate_id", msg.AggregateID).
				Int("retry", msg.RetryCount).Msg("outbox 消息发布失败")
		}
		if err := tx.Save(msg).Error; err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeDB)
			return 0, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return 0, err
	}
	return len(messages), nil
}

// applyPublishResult 根据发布结果更新消息状态
func applyPublishResult(msg *models.OutboxMessage, pubErr error, maxRetries int, now time.Time) {
	if pubErr != nil {
		msg.RetryCount++
		msg.ErrorMessage = pubErr.Error()
		if msg.RetryCount >= maxRetries {
			msg.Status = models.OutboxStatusFailed
		}
		return
	}
	msg.Status = models.OutboxStatusProcessed
	msg.ProcessedAt = &now
	msg.ErrorMessage = ""
}
