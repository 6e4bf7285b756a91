package storage

import (
	"testing"
	"time"

	"github.com/kunal123thakur/job-matching/internal/storage/models"
	"github.com/kunal123thakur/job-matching/internal/types"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestTableForKind(t *testing.T) {
	assert.Equal(t, models.TableInternships, tableForKind(types.KindInternship))
	assert.Equal(t, models.TableApplicants, tableForKind(types.KindApplicant))
}

func TestMySQLRowConversion(t *testing.T) {
	updated := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	in := types.EntityRecord{
		ID:            "a@example.com",
		Kind:          types.KindApplicant,
		CanonicalText: "Applicant Skills: Go, SQL",
		Skills:        []string{"Go", "SQL"},
		Embedding:     []float32{0.5, -0.25},
		Metadata:      types.Metadata{"name": "Asha", "father_income": 120000.0},
		UpdatedAt:     updated,
	}

	row, err := toMySQLRow(in)
	require.NoError(t, err)
	assert.JSONEq(t, `["Go","SQL"]`, string(row.Skills))
	assert.JSONEq(t, `[0.5,-0.25]`, string(row.Embedding))

	out := fromMySQLRow(row, types.KindApplicant)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Skills, out.Skills)
	assert.Equal(t, in.Embedding, out.Embedding)
	assert.Equal(t, "Asha", out.Metadata.String("name"))
	assert.Equal(t, updated, out.UpdatedAt)
}

func TestMySQLRowConversion_NoEmbedding(t *testing.T) {
	row, err := toMySQLRow(types.EntityRecord{ID: "x"})
	require.NoError(t, err)
	assert.Nil(t, row.Embedding)
	assert.Nil(t, row.Metadata)
	assert.JSONEq(t, `[]`, string(row.Skills))
	assert.False(t, row.UpdatedAt.IsZero())

	out := fromMySQLRow(row, types.KindInternship)
	assert.False(t, out.HasEmbedding())
	assert.Equal(t, []string{}, out.Skills)
}

func TestFromPGRow(t *testing.T) {
	vec := pgvector.NewVector([]float32{1, 2})
	row := models.PGEntityRow{
		ID:            "I1",
		CanonicalText: "Title: x",
		Skills:        pq.StringArray{"Python"},
		Embedding:     &vec,
		Metadata:      datatypes.JSON(`{"company":"Acme"}`),
	}
	out := fromPGRow(row, types.KindInternship)
	assert.Equal(t, []float32{1, 2}, out.Embedding)
	assert.Equal(t, []string{"Python"}, out.Skills)
	assert.Equal(t, "Acme", out.Metadata.String("company"))

	row.Embedding = nil
	row.Skills = nil
	row.Metadata = datatypes.JSON("null")
	out = fromPGRow(row, types.KindInternship)
	assert.False(t, out.HasEmbedding())
	assert.Equal(t, []string{}, out.Skills)
	assert.Nil(t, out.Metadata)
}

func TestPageRecords(t *testing.T) {
	records := []types.EntityRecord{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	assert.Len(t, pageRecords(records, 0, 2), 2)
	assert.Len(t, pageRecords(records, 2, 5), 1)
	assert.Empty(t, pageRecords(records, 3, 5))
	assert.Empty(t, pageRecords(records, 0, 0))
}

func TestEmbeddingCacheKey(t *testing.T) {
	k1 := EmbeddingCacheKey("mini", "hello")
	assert.Equal(t, k1, EmbeddingCacheKey("mini", "hello"))
	assert.NotEqual(t, k1, EmbeddingCacheKey("other", "hello"))
	assert.NotEqual(t, k1, EmbeddingCacheKey("mini", "hello!"))
	assert.Contains(t, k1, "mini")
}

func TestCandidateObjectName(t *testing.T) {
	assert.Equal(t, "candidates/a@x.com/resume.pdf", CandidateObjectName(" A@X.com ", "/tmp/up/resume.pdf"))
	assert.Equal(t, "candidates/anonymous/cert.png", CandidateObjectName("", "cert.png"))
	assert.Equal(t, "application/pdf", getContentType(".PDF"))
	assert.Equal(t, "application/octet-stream", getContentType(".bin"))
}
