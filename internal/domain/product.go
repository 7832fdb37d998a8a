package domain

import "strings"

// CatalogRow описывает строку каталога в том виде, в каком она прочитана из CSV.
// ID хранится как строка: ключ каталога может быть любым скаляром.
type CatalogRow struct {
	ID       string
	Name     string
	Price    string
	URL      string
	ImageRef string // ссылка на изображение: http(s) URL или локальный путь
}

func NewCatalogRow(id, name, price, url, imageRef string) CatalogRow {
	return CatalogRow{ID: id, Name: name, Price: price, URL: url, ImageRef: imageRef}
}

// ImageIsRemote сообщает, что изображение строки нужно скачивать по HTTP.
func (r CatalogRow) ImageIsRemote() bool {
	ref := strings.ToLower(r.ImageRef)
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// ProductRecord хранит товар каталога вместе с эмбеддингом его изображения.
type ProductRecord struct {
	ID        string
	Name      string
	Price     string
	URL       string
	Embedding []float32
}

func NewProductRecord(row CatalogRow, embedding []float32) ProductRecord {
	return ProductRecord{
		ID:        row.ID,
		Name:      row.Name,
		Price:     row.Price,
		URL:       row.URL,
		Embedding: embedding,
	}
}

// MatchResult описывает результат сопоставления запроса с записью каталога.
// Similarity равно NaN, если у записи или запроса нулевая норма.
type MatchResult struct {
	ID         string
	Name       string
	Price      string
	URL        string
	Similarity float64
}

func NewMatchResult(rec *ProductRecord, similarity float64) MatchResult {
	return MatchResult{
		ID:         rec.ID,
		Name:       rec.Name,
		Price:      rec.Price,
		URL:        rec.URL,
		Similarity: similarity,
	}
}
