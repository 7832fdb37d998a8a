package domain

import (
	"math"
	"testing"
	"time"

	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 0}, b: []float32{1, 0}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 2}, b: []float32{-1, -2}, want: -1},
		{name: "scale invariant", a: []float32{1, 0}, b: []float32{0.9, 0.1}, want: 0.9 / math.Sqrt(0.82)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}

func TestCosineSimilarity_Degenerate(t *testing.T) {
	assert.True(t, math.IsNaN(CosineSimilarity([]float32{0, 0}, []float32{1, 0})))
	assert.True(t, math.IsNaN(CosineSimilarity([]float32{1, 0}, []float32{0, 0})))
	assert.True(t, math.IsNaN(CosineSimilarity([]float32{1}, []float32{1, 0})))
}

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	NormalizeL2(v)
	assert.InDelta(t, 1.0, Norm(v), 1e-6)

	zero := []float32{0, 0}
	NormalizeL2(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestEmbeddingStore_Append(t *testing.T) {
	s := NewEmbeddingStore(2, "m", "b", time.Unix(0, 0))

	require.NoError(t, s.Append(ProductRecord{ID: "1", Embedding: []float32{1, 0}}))
	require.NoError(t, s.Append(ProductRecord{ID: "1", Embedding: []float32{0, 1}}))

	err := s.Append(ProductRecord{ID: "2", Embedding: []float32{1, 0, 0}})
	assert.ErrorIs(t, err, e.ErrDimensionMismatch)

	assert.Equal(t, 2, s.Count())
	assert.Equal(t, "1", s.Records[1].ID)
}

func TestEmbeddingStore_Validate(t *testing.T) {
	s := NewEmbeddingStore(2, "m", "", time.Unix(0, 0))
	require.NoError(t, s.Validate())

	s.Records = append(s.Records, ProductRecord{ID: "a", Embedding: []float32{1, 2}})
	require.NoError(t, s.Validate())

	s.Records = append(s.Records, ProductRecord{ID: "b", Embedding: []float32{1}})
	assert.ErrorIs(t, s.Validate(), e.ErrStoreCorrupt)

	assert.ErrorIs(t, NewEmbeddingStore(0, "m", "", time.Now()).Validate(), e.ErrStoreCorrupt)
}

func TestEmbeddingStore_Fingerprint(t *testing.T) {
	withID := NewEmbeddingStore(2, "m", "build-1", time.Unix(5, 0))
	assert.Equal(t, "build-1", withID.Fingerprint())

	a := NewEmbeddingStore(2, "m", "", time.Unix(5, 0))
	b := NewEmbeddingStore(2, "m", "", time.Unix(6, 0))
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestCatalogRow_ImageIsRemote(t *testing.T) {
	assert.True(t, NewCatalogRow("1", "", "", "", "https://cdn/x.jpg").ImageIsRemote())
	assert.True(t, NewCatalogRow("1", "", "", "", "HTTP://cdn/x.jpg").ImageIsRemote())
	assert.False(t, NewCatalogRow("1", "", "", "", "data/x.jpg").ImageIsRemote())
	assert.False(t, NewCatalogRow("1", "", "", "", "").ImageIsRemote())
}

func TestImageSource_String(t *testing.T) {
	var src ImageSource = RawBytes{1, 2, 3}
	assert.Equal(t, "<3 bytes>", src.String())

	src = FilePath("a/b.png")
	assert.Equal(t, "a/b.png", src.String())
}
