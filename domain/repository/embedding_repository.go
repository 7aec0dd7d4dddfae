package repository

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/remedyops/remedy/domain/entity"
)

type EmbeddingRepository struct {
	client *openai.Client
	model  string
}

func NewEmbeddingRepository(model string) (*EmbeddingRepository, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}

	options := []option.RequestOption{
		option.WithAPIKey(key),
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	c := openai.NewClient(options...)
	return &EmbeddingRepository{
		client: &c,
		model:  model,
	}, nil
}

func (r *EmbeddingRepository) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := r.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
		Model: r.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return resp.Data[0].Embedding, nil
}

// RankSimilar orders the candidates by descending cosine similarity to the
// query text and returns at most topK of them. Ties keep the original
// candidate order.
func (r *EmbeddingRepository) RankSimilar(ctx context.Context, query string, candidates []entity.KnowledgeEntry, topK int) ([]entity.KnowledgeEntry, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	queryEmbedding, err := r.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	return RankBySimilarity(queryEmbedding, candidates, topK), nil
}

// RankBySimilarity is the pure ranking step, split out so it can run against
// precomputed vectors.
func RankBySimilarity(query []float64, candidates []entity.KnowledgeEntry, topK int) []entity.KnowledgeEntry {
	if len(candidates) == 0 || topK <= 0 {
		return nil
	}

	ranked := make([]entity.KnowledgeEntry, len(candidates))
	copy(ranked, candidates)

	scores := make(map[string]float64, len(ranked))
	for _, entry := range ranked {
		scores[entry.ID] = CosineSimilarity(query, entry.Embedding)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i].ID] > scores[ranked[j].ID]
	})

	if topK < len(ranked) {
		ranked = ranked[:topK]
	}
	return ranked
}

// CosineSimilarity returns dot(a, b) / (|a| * |b|), or 0 when either vector
// is empty, zero-length in magnitude, or the dimensions disagree.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
