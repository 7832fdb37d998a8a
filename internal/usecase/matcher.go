package usecase

import (
	"fmt"
	"math"
	"runtime"
	"slices"
	"sync"

	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/DRSN-tech/product-matcher/pkg/e"
)

// parallelScanThreshold задает, с какого размера хранилища скан делится между горутинами
const parallelScanThreshold = 4096

// Matcher ранжирует записи хранилища по косинусному сходству с запросом.
// Хранилище неизменяемо, поэтому Query безопасен для конкурентного вызова.
type Matcher struct {
	store     *domain.EmbeddingStore
	norms     []float64
	workers   int
	threshold int
}

// NewMatcher заранее считает нормы всех записей.
func NewMatcher(store *domain.EmbeddingStore) *Matcher {
	norms := make([]float64, store.Count())
	for i := range store.Records {
		norms[i] = domain.Norm(store.Records[i].Embedding)
	}

	return &Matcher{
		store:     store,
		norms:     norms,
		workers:   runtime.GOMAXPROCS(0),
		threshold: parallelScanThreshold,
	}
}

func (m *Matcher) Dim() int {
	return m.store.Dim
}

func (m *Matcher) Info() StoreInfo {
	return StoreInfo{
		Dim:       m.store.Dim,
		Count:     m.store.Count(),
		Model:     m.store.Model,
		BuildID:   m.store.BuildID,
		CreatedAt: m.store.CreatedAt,
	}
}

func (m *Matcher) Fingerprint() string {
	return m.store.Fingerprint()
}

// Query возвращает не более topK записей по убыванию сходства.
// Равные значения сохраняют порядок хранилища, NaN (нулевая норма) идут последними.
func (m *Matcher) Query(query []float32, topK int) ([]domain.MatchResult, error) {
	const op = "Matcher.Query"

	n := m.store.Count()
	if topK <= 0 || n == 0 {
		return []domain.MatchResult{}, nil
	}
	if len(query) != m.store.Dim {
		return nil, e.Wrap(op, fmt.Errorf("%w: query has %d components, store dim is %d", e.ErrDimensionMismatch, len(query), m.store.Dim))
	}

	scores := m.score(query)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return compareSimilarity(scores[a], scores[b])
	})

	k := min(topK, n)
	results := make([]domain.MatchResult, k)
	for i := 0; i < k; i++ {
		idx := order[i]
		results[i] = domain.NewMatchResult(&m.store.Records[idx], scores[idx])
	}

	return results, nil
}

// score считает сходство со всеми записями; каждая горутина пишет только в свой диапазон.
func (m *Matcher) score(query []float32) []float64 {
	var (
		n      = m.store.Count()
		scores = make([]float64, n)
		qNorm  = domain.Norm(query)
	)

	scan := func(from, to int) {
		for i := from; i < to; i++ {
			scores[i] = domain.CosineWithNorms(query, m.store.Records[i].Embedding, qNorm, m.norms[i])
		}
	}

	if n < m.threshold || m.workers < 2 {
		scan(0, n)
		return scores
	}

	chunk := (n + m.workers - 1) / m.workers
	var wg sync.WaitGroup
	for from := 0; from < n; from += chunk {
		to := min(from+chunk, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			scan(from, to)
		}()
	}
	wg.Wait()

	return scores
}

// compareSimilarity упорядочивает по убыванию, NaN считается меньше любого числа.
func compareSimilarity(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}
