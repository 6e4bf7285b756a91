package storage

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/kunal123thakur/job-matching/internal/config"
	"github.com/kunal123thakur/job-matching/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStorage_Memory(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.Backend = "memory"
	cfg.Embedding.Dimension = 2
	cfg.Events.Mode = "none"

	s, err := NewStorage(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, types.KindInternship, s.Internships.Kind())
	assert.Equal(t, types.KindApplicant, s.Applicants.Kind())
	assert.Nil(t, s.DB)
}

func TestNewStorage_QdrantUnreachable(t *testing.T) {
	server := httptest.NewServer(newFakeQdrant())
	endpoint := server.URL
	server.Close()

	cfg := &config.Config{}
	cfg.Store.Backend = "qdrant"
	cfg.Qdrant.Endpoint = endpoint
	cfg.Qdrant.Timeout = "1s"
	cfg.Embedding.Dimension = 2
	cfg.Events.Mode = "none"

	var (
		s   *Storage
		err error
	)
	assert.NotPanics(t, func() {
		s, err = NewStorage(context.Background(), cfg)
	})
	assert.Nil(t, s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrStorageUnavailable))
}

func TestNewStorage_UnknownBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.Backend = "cassandra"
	cfg.Embedding.Dimension = 2

	_, err := NewStorage(context.Background(), cfg)
	assert.Error(t, err)
}

func TestQdrant_CloseNilReceiver(t *testing.T) {
	var q *Qdrant
	assert.NoError(t, q.Close())
}
