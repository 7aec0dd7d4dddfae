package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remedyops/remedy/domain/entity"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    []float64
		b    []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"empty", nil, nil, 0},
		{"dimension mismatch", []float64{1, 2}, []float64{1, 2, 3}, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 2}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestRankBySimilarityOrdersByScore(t *testing.T) {
	candidates := []entity.KnowledgeEntry{
		{ID: "far", Embedding: []float64{0, 1}},
		{ID: "near", Embedding: []float64{1, 0.01}},
		{ID: "exact", Embedding: []float64{1, 0}},
	}

	ranked := RankBySimilarity([]float64{1, 0}, candidates, 3)

	require.Len(t, ranked, 3)
	assert.Equal(t, "exact", ranked[0].ID)
	assert.Equal(t, "near", ranked[1].ID)
	assert.Equal(t, "far", ranked[2].ID)
}

func TestRankBySimilarityTruncatesToTopK(t *testing.T) {
	candidates := []entity.KnowledgeEntry{
		{ID: "a", Embedding: []float64{1, 0}},
		{ID: "b", Embedding: []float64{0.9, 0.1}},
		{ID: "c", Embedding: []float64{0, 1}},
	}

	ranked := RankBySimilarity([]float64{1, 0}, candidates, 1)

	require.Len(t, ranked, 1)
	assert.Equal(t, "a", ranked[0].ID)
}

func TestRankBySimilarityStableOnTies(t *testing.T) {
	candidates := []entity.KnowledgeEntry{
		{ID: "first", Embedding: []float64{1, 0}},
		{ID: "second", Embedding: []float64{2, 0}},
	}

	ranked := RankBySimilarity([]float64{1, 0}, candidates, 2)

	require.Len(t, ranked, 2)
	assert.Equal(t, "first", ranked[0].ID)
	assert.Equal(t, "second", ranked[1].ID)
}

func TestRankBySimilarityEmptyInput(t *testing.T) {
	assert.Nil(t, RankBySimilarity([]float64{1}, nil, 3))
	assert.Nil(t, RankBySimilarity([]float64{1}, []entity.KnowledgeEntry{{ID: "a"}}, 0))
}
