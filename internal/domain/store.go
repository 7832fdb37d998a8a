package domain

import (
	"fmt"
	"time"

	"github.com/DRSN-tech/product-matcher/pkg/e"
)

// EmbeddingStore хранит упорядоченную коллекция записей каталога с общей размерностью эмбеддингов.
// Строится только сборщиком каталога, после загрузки используется только на чтение.
type EmbeddingStore struct {
	Dim       int
	Model     string
	BuildID   string
	CreatedAt time.Time
	Records   []ProductRecord
}

func NewEmbeddingStore(dim int, model string, buildID string, createdAt time.Time) *EmbeddingStore {
	return &EmbeddingStore{
		Dim:       dim,
		Model:     model,
		BuildID:   buildID,
		CreatedAt: createdAt,
	}
}

func (s *EmbeddingStore) Count() int {
	return len(s.Records)
}

// Append добавляет запись в конец хранилища, проверяя размерность эмбеддинга.
func (s *EmbeddingStore) Append(rec ProductRecord) error {
	if len(rec.Embedding) != s.Dim {
		return e.Wrap(
			fmt.Sprintf("record %q has %d components, store expects %d", rec.ID, len(rec.Embedding), s.Dim),
			e.ErrDimensionMismatch,
		)
	}
	s.Records = append(s.Records, rec)
	return nil
}

// Validate проверяет, что у всех записей одна размерность, совпадающая с маркером хранилища.
func (s *EmbeddingStore) Validate() error {
	if s.Dim <= 0 {
		return e.Wrap(fmt.Sprintf("invalid dimension %d", s.Dim), e.ErrStoreCorrupt)
	}
	for i := range s.Records {
		if got := len(s.Records[i].Embedding); got != s.Dim {
			return e.Wrap(fmt.Sprintf("record #%d (%q) has %d components, store dim is %d", i, s.Records[i].ID, got, s.Dim), e.ErrStoreCorrupt)
		}
	}
	return nil
}

// Fingerprint идентифицирует содержимое хранилища для ключей кэша.
func (s *EmbeddingStore) Fingerprint() string {
	if s.BuildID != "" {
		return s.BuildID
	}
	return fmt.Sprintf("%s-%d-%d-%d", s.Model, s.Dim, s.Count(), s.CreatedAt.UnixNano())
}
