package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/kunal123thakur/job-matching/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineDistance(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"scaled", []float32{1, 1}, []float32{3, 3}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"zero query", []float32{0, 0}, []float32{1, 0}, 1},
		{"zero stored", []float32{1, 0}, []float32{0, 0}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, CosineDistance(tc.a, tc.b), 1e-6)
		})
	}
}

func rec(id string, vec ...float32) types.EntityRecord {
	return types.EntityRecord{
		ID:            id,
		Kind:          types.KindInternship,
		CanonicalText: "Title: " + id,
		Skills:        []string{"Go"},
		Embedding:     vec,
		Metadata:      types.Metadata{"title": id},
	}
}

func TestMemoryStore_UpsertGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(types.KindInternship, 2)

	require.NoError(t, s.Upsert(ctx, rec("I1", 1, 0)))
	got, err := s.Get(ctx, "I1")
	require.NoError(t, err)
	assert.Equal(t, "I1", got.ID)
	assert.Equal(t, types.KindInternship, got.Kind)
	assert.Equal(t, []float32{1, 0}, got.Embedding)
	assert.Equal(t, "I1", got.Metadata.String("title"))
	assert.False(t, got.UpdatedAt.IsZero())

	replacement := rec("I1", 0, 1)
	replacement.Skills = []string{"Rust"}
	replacement.Metadata = nil
	require.NoError(t, s.Upsert(ctx, replacement))

	got, err = s.Get(ctx, "I1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Rust"}, got.Skills)
	assert.Equal(t, []float32{0, 1}, got.Embedding)
	assert.Nil(t, got.Metadata)
}

func TestMemoryStore_DeepCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(types.KindInternship, 2)

	in := rec("I1", 1, 0)
	require.NoError(t, s.Upsert(ctx, in))
	in.Embedding[0] = 99
	in.Skills[0] = "mutated"

	got, err := s.Get(ctx, "I1")
	require.NoError(t, err)
	got.Embedding[1] = 42

	again, err := s.Get(ctx, "I1")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, again.Embedding)
	assert.Equal(t, []string{"Go"}, again.Skills)
}

func TestMemoryStore_NotFound(t *testing.T) {
	s := NewMemoryStore(types.KindApplicant, 2)
	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestMemoryStore_Validation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(types.KindInternship, 2)

	err := s.Upsert(ctx, rec("", 1, 0))
	assert.True(t, errors.Is(err, types.ErrValidation))

	err = s.Upsert(ctx, rec("I1", 1, 0, 0))
	assert.True(t, errors.Is(err, types.ErrValidation), "维度不一致")

	err = s.Upsert(ctx, rec("I1", float32(math.NaN()), 0))
	assert.True(t, errors.Is(err, types.ErrValidation))

	wrongKind := rec("A1", 1, 0)
	wrongKind.Kind = types.KindApplicant
	assert.True(t, errors.Is(s.Upsert(ctx, wrongKind), types.ErrValidation))

	_, err = s.Nearest(ctx, []float32{1, 0}, 0)
	assert.True(t, errors.Is(err, types.ErrValidation))

	_, err = s.Nearest(ctx, []float32{1, 0, 0}, 3)
	assert.True(t, errors.Is(err, types.ErrValidation))

	_, err = s.Get(ctx, "")
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestMemoryStore_Nearest(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(types.KindInternship, 2)

	require.NoError(t, s.Upsert(ctx, rec("far", -1, 0)))
	require.NoError(t, s.Upsert(ctx, rec("near", 1, 0.1)))
	require.NoError(t, s.Upsert(ctx, rec("mid", 0, 1)))
	require.NoError(t, s.Upsert(ctx, rec("exact", 1, 0)))
	noVec := rec("novec")
	require.NoError(t, s.Upsert(ctx, noVec))

	matches, err := s.Nearest(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "exact", matches[0].Record.ID)
	assert.Equal(t, "near", matches[1].Record.ID)
	assert.Equal(t, "mid", matches[2].Record.ID)
	for i, m := range matches {
		assert.InDelta(t, CosineDistance([]float32{1, 0}, m.Record.Embedding), m.Distance, 1e-9)
		if i > 0 {
			assert.LessOrEqual(t, matches[i-1].Distance, m.Distance)
		}
	}

	all, err := s.Nearest(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, all, 4, "没有向量的记录不参与检索")
}

func TestMemoryStore_NearestTiesOrderedByID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(types.KindApplicant, 2)
	for _, id := range []string{"c", "a", "b"} {
		r := rec(id, 0, 1)
		r.Kind = types.KindApplicant
		require.NoError(t, s.Upsert(ctx, r))
	}

	matches, err := s.Nearest(ctx, []float32{0, 1}, 3)
	require.NoError(t, err)
	ids := []string{matches[0].Record.ID, matches[1].Record.ID, matches[2].Record.ID}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(types.KindInternship, 2)
	for i := 5; i >= 1; i-- {
		require.NoError(t, s.Upsert(ctx, rec(fmt.Sprintf("I%d", i), 1, 0)))
	}

	page, err := s.List(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "I2", page[0].ID)
	assert.Equal(t, "I3", page[1].ID)

	tail, err := s.List(ctx, 4, 10)
	require.NoError(t, err)
	assert.Len(t, tail, 1)

	empty, err := s.List(ctx, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = s.List(ctx, -1, 10)
	assert.True(t, errors.Is(err, types.ErrValidation))
}
