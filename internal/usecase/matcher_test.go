package usecase

import (
	"math"
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, dim int, vectors ...[]float32) *domain.EmbeddingStore {
	t.Helper()

	store := domain.NewEmbeddingStore(dim, "test-model", "build-test", time.Unix(1700000000, 0))
	for i, v := range vectors {
		id := strconv.Itoa(i + 1)
		require.NoError(t, store.Append(domain.ProductRecord{
			ID:        id,
			Name:      "product " + id,
			Price:     "10.00",
			URL:       "https://shop/" + id,
			Embedding: v,
		}))
	}
	return store
}

func ids(results []domain.MatchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestMatcher_ThreeProductScenario(t *testing.T) {
	store := newTestStore(t, 2, []float32{1, 0}, []float32{0, 1}, []float32{0.9, 0.1})
	m := NewMatcher(store)

	top1, err := m.Query([]float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, top1, 1)
	assert.Equal(t, "1", top1[0].ID)
	assert.InDelta(t, 1.0, top1[0].Similarity, 1e-9)

	top2, err := m.Query([]float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, ids(top2))
	assert.InDelta(t, 0.99388, top2[1].Similarity, 1e-4)
}

func TestMatcher_TopKBounds(t *testing.T) {
	store := newTestStore(t, 2, []float32{1, 0}, []float32{0, 1}, []float32{0.9, 0.1})
	m := NewMatcher(store)

	tests := []struct {
		name string
		topK int
		want int
	}{
		{name: "zero", topK: 0, want: 0},
		{name: "negative", topK: -3, want: 0},
		{name: "within", topK: 2, want: 2},
		{name: "exact", topK: 3, want: 3},
		{name: "larger than store", topK: 100, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := m.Query([]float32{0.5, 0.5}, tt.topK)
			require.NoError(t, err)
			assert.Len(t, res, tt.want)
		})
	}
}

func TestMatcher_EmptyStore(t *testing.T) {
	m := NewMatcher(newTestStore(t, 4))

	for _, k := range []int{-1, 0, 1, 10} {
		res, err := m.Query([]float32{1, 2, 3, 4}, k)
		require.NoError(t, err)
		assert.Empty(t, res)
		assert.NotNil(t, res)
	}
}

func TestMatcher_SortedDescending(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	vectors := make([][]float32, 50)
	for i := range vectors {
		v := make([]float32, 8)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		vectors[i] = v
	}
	m := NewMatcher(newTestStore(t, 8, vectors...))

	res, err := m.Query(vectors[7], 50)
	require.NoError(t, err)
	require.Len(t, res, 50)
	assert.Equal(t, "8", res[0].ID)
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Similarity, res[i].Similarity)
	}
}

func TestMatcher_StableTies(t *testing.T) {
	store := newTestStore(t, 2,
		[]float32{0, 1},
		[]float32{2, 0},
		[]float32{1, 0},
		[]float32{5, 0},
	)
	m := NewMatcher(store)

	res, err := m.Query([]float32{1, 0}, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3", "4", "1"}, ids(res))
}

func TestMatcher_ZeroNormSortsLast(t *testing.T) {
	store := newTestStore(t, 2,
		[]float32{0, 0},
		[]float32{-1, 0},
		[]float32{1, 1},
	)
	m := NewMatcher(store)

	res, err := m.Query([]float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2", "1"}, ids(res))
	assert.True(t, math.IsNaN(res[2].Similarity))

	zeroQuery, err := m.Query([]float32{0, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids(zeroQuery))
}

func TestMatcher_QueryDimensionMismatch(t *testing.T) {
	m := NewMatcher(newTestStore(t, 2, []float32{1, 0}))

	_, err := m.Query([]float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, e.ErrDimensionMismatch)
}

func TestMatcher_ParallelScanMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	vectors := make([][]float32, 300)
	for i := range vectors {
		v := make([]float32, 16)
		for j := range v {
			v[j] = rng.Float32()
		}
		vectors[i] = v
	}
	store := newTestStore(t, 16, vectors...)

	sequential := NewMatcher(store)
	sequential.threshold = math.MaxInt

	parallel := NewMatcher(store)
	parallel.threshold = 1
	parallel.workers = 7

	query := vectors[123]
	want, err := sequential.Query(query, 25)
	require.NoError(t, err)
	got, err := parallel.Query(query, 25)
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestMatcher_Info(t *testing.T) {
	m := NewMatcher(newTestStore(t, 2, []float32{1, 0}))

	info := m.Info()
	assert.Equal(t, 2, info.Dim)
	assert.Equal(t, 1, info.Count)
	assert.Equal(t, "test-model", info.Model)
	assert.Equal(t, "build-test", m.Fingerprint())
}
