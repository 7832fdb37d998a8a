package converter

import (
	"math"

	"github.com/DRSN-tech/product-matcher/internal/domain"
)

type MatchResultConverter interface {
	ToRedisModel(entity *domain.MatchResult) *MatchResultRedisModel
	ToDomain(model *MatchResultRedisModel) *domain.MatchResult
	ToArrRedisModel(entities []domain.MatchResult) []MatchResultRedisModel
	ToArrDomain(models []MatchResultRedisModel) []domain.MatchResult
}

type MatchResultConverterImpl struct{}

func NewMatchResultConverter() *MatchResultConverterImpl {
	return &MatchResultConverterImpl{}
}

func (c *MatchResultConverterImpl) ToRedisModel(entity *domain.MatchResult) *MatchResultRedisModel {
	if entity == nil {
		return nil
	}

	return &MatchResultRedisModel{
		ID:         entity.ID,
		Name:       entity.Name,
		Price:      entity.Price,
		URL:        entity.URL,
		Similarity: ConvertSimilarity(entity.Similarity),
	}
}

func (c *MatchResultConverterImpl) ToDomain(model *MatchResultRedisModel) *domain.MatchResult {
	if model == nil {
		return nil
	}

	return &domain.MatchResult{
		ID:         model.ID,
		Name:       model.Name,
		Price:      model.Price,
		URL:        model.URL,
		Similarity: ConvertPointerSimilarity(model.Similarity),
	}
}

func (c *MatchResultConverterImpl) ToArrRedisModel(entities []domain.MatchResult) []MatchResultRedisModel {
	models := make([]MatchResultRedisModel, len(entities))
	for i := range entities {
		models[i] = *c.ToRedisModel(&entities[i])
	}
	return models
}

func (c *MatchResultConverterImpl) ToArrDomain(models []MatchResultRedisModel) []domain.MatchResult {
	entities := make([]domain.MatchResult, len(models))
	for i := range models {
		entities[i] = *c.ToDomain(&models[i])
	}
	return entities
}

// ConvertSimilarity возвращает nil для NaN и бесконечностей.
func ConvertSimilarity(s float64) *float64 {
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return nil
	}
	return &s
}

func ConvertPointerSimilarity(s *float64) float64 {
	if s == nil {
		return math.NaN()
	}
	return *s
}
