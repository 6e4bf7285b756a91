package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kunal123thakur/job-matching/internal/storage/models"
	"github.com/kunal123thakur/job-matching/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange, routingKey, messageID string
	body                            []byte
}

type fakeMQ struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakeMQ) PublishMessage(_ context.Context, exchange, routingKey, messageID string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange, routingKey, messageID, body})
	return nil
}

func (f *fakeMQ) PublishJSON(ctx context.Context, exchange, routingKey, messageID string, data interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return f.PublishMessage(ctx, exchange, routingKey, messageID, body)
}

func (f *fakeMQ) EnsureExchange(string, string, bool) error { return nil }
func (f *fakeMQ) Close() error                              { return nil }

func sampleRecord() types.EntityRecord {
	return types.EntityRecord{
		ID:            "I1",
		Kind:          types.KindInternship,
		CanonicalText: "Title: Data Analyst",
		Skills:        []string{"SQL", "Excel"},
		Embedding:     []float32{1, 0},
	}
}

func TestDirectPublisher_PublishEntityUpserted(t *testing.T) {
	mq := &fakeMQ{}
	p := NewDirectPublisher(mq, "matching.events", "")

	require.NoError(t, p.PublishEntityUpserted(context.Background(), sampleRecord()))
	require.Len(t, mq.sent, 1)

	sent := mq.sent[0]
	assert.Equal(t, "matching.events", sent.exchange)
	assert.Equal(t, "entity.upserted", sent.routingKey)
	assert.NotEmpty(t, sent.messageID)

	var event EntityEvent
	require.NoError(t, json.Unmarshal(sent.body, &event))
	assert.Equal(t, sent.messageID, event.EventID)
	assert.Equal(t, "I1", event.EntityID)
	assert.Equal(t, types.KindInternship, event.Kind)
	assert.Equal(t, []string{"SQL", "Excel"}, event.Skills)
	assert.True(t, event.HasVector)
}

func TestDirectPublisher_Error(t *testing.T) {
	mq := &fakeMQ{err: errors.New("connection closed")}
	p := NewDirectPublisher(mq, "matching.events", "entity.upserted")

	err := p.PublishEntityUpserted(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection closed")
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.PublishEntityUpserted(context.Background(), sampleRecord()))
}

func TestBuildMessage(t *testing.T) {
	rec := sampleRecord()
	rec.Skills = nil

	msg, err := BuildMessage(rec, "matching.events", "entity.upserted")
	require.NoError(t, err)

	assert.Len(t, msg.ID, 36)
	assert.Equal(t, "I1", msg.AggregateID)
	assert.Equal(t, "internship", msg.AggregateKind)
	assert.Equal(t, models.OutboxStatusPending, msg.Status)
	assert.Equal(t, "matching.events", msg.TargetExchange)

	var event EntityEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	assert.Equal(t, msg.ID, event.EventID)
	assert.Equal(t, []string{}, event.Skills)
}

func TestBuildMessage_IDsAreTimeOrdered(t *testing.T) {
	first, err := BuildMessage(sampleRecord(), "x", "y")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := BuildMessage(sampleRecord(), "x", "y")
	require.NoError(t, err)
	assert.Less(t, first.ID, second.ID)
}

func TestApplyPublishResult(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		msg := &models.OutboxMessage{Status: models.OutboxStatusPending, ErrorMessage: "old"}
		applyPublishResult(msg, nil, 3, now)
		assert.Equal(t, models.OutboxStatusProcessed, msg.Status)
		require.NotNil(t, msg.ProcessedAt)
		assert.Equal(t, now, *msg.ProcessedAt)
		assert.Empty(t, msg.ErrorMessage)
	})

	t.Run("retry then fail", func(t *testing.T) {
		msg := &models.OutboxMessage{Status: models.OutboxStatusPending}
		applyPublishResult(msg, errors.New("nack"), 2, now)
		assert.Equal(t, models.OutboxStatusPending, msg.Status)
		assert.Equal(t, 1, msg.RetryCount)

		applyPublishResult(msg, errors.New("nack"), 2, now)
		assert.Equal(t, models.OutboxStatusFailed, msg.Status)
		assert.Equal(t, "nack", msg.ErrorMessage)
		assert.Nil(t, msg.ProcessedAt)
	})
}
