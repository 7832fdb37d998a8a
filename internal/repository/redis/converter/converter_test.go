package converter

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchResultConverter_NaNBecomesNull(t *testing.T) {
	conv := NewMatchResultConverter()

	models := conv.ToArrRedisModel([]domain.MatchResult{
		{ID: "1", Name: "Milk", Price: "1.20", URL: "https://shop/1", Similarity: 0.75},
		{ID: "2", Name: "Void", Similarity: math.NaN()},
	})
	require.Len(t, models, 2)
	require.NotNil(t, models[0].Similarity)
	assert.Nil(t, models[1].Similarity)

	data, err := json.Marshal(models)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"similarity":null`)

	back := conv.ToArrDomain(models)
	assert.Equal(t, "Milk", back[0].Name)
	assert.InDelta(t, 0.75, back[0].Similarity, 1e-12)
	assert.True(t, math.IsNaN(back[1].Similarity))
}
