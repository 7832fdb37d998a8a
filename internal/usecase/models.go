package usecase

import (
	"time"

	"github.com/DRSN-tech/product-matcher/internal/domain"
)

// QUERY USECASE

// IdentifyReq — запрос на идентификацию товара по изображению.
type IdentifyReq struct {
	Image []byte
	TopK  int
}

func NewIdentifyReq(image []byte, topK int) *IdentifyReq {
	return &IdentifyReq{Image: image, TopK: topK}
}

// IdentifyRes — ранжированные совпадения, пустой список означает «ничего не найдено».
type IdentifyRes struct {
	Matches []domain.MatchResult
	Cached  bool
}

// StoreInfo — описание загруженного хранилища.
type StoreInfo struct {
	Dim       int
	Count     int
	Model     string
	BuildID   string
	CreatedAt time.Time
}

// CATALOG USECASE

// BuildReq — запрос на сборку каталога в файл хранилища.
type BuildReq struct {
	CatalogPath string
	StorePath   string
	Download    bool // сначала скачать отсутствующие изображения
	Publish     bool // опубликовать артефакт в объектное хранилище
}

// BuildWarning — строка каталога, пропущенная при сборке.
type BuildWarning struct {
	RowID  string
	Reason string
}

// BuildReport — итог сборки каталога.
type BuildReport struct {
	BuildID    string
	StorePath  string
	Model      string
	Dim        int
	Total      int
	Embedded   int
	Warnings   []BuildWarning
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r *BuildReport) Skipped() int {
	return len(r.Warnings)
}

// DownloadImagesReq — запрос на скачивание изображений каталога.
type DownloadImagesReq struct {
	CatalogPath string
}

// DownloadReport — итог скачивания изображений.
type DownloadReport struct {
	Downloaded int
	Existing   int
	Local      int // строки с локальной ссылкой на изображение
	Mirrored   int
	Warnings   []BuildWarning
}

// INFRASTRUCTURE

// MirrorImage — локальный файл, который нужно скопировать в объектное хранилище.
type MirrorImage struct {
	RowID string
	Path  string
}

type MirrorImagesReq struct {
	Images []MirrorImage
}

type MirrorImagesRes struct {
	Keys   []string
	Failed []BuildWarning
}

// StoreBuiltEvent публикуется после успешного сохранения хранилища.
type StoreBuiltEvent struct {
	BuildID   string
	Path      string
	Model     string
	Dim       int
	Count     int
	Skipped   int
	CreatedAt time.Time
}

func NewStoreBuiltEvent(report *BuildReport) *StoreBuiltEvent {
	return &StoreBuiltEvent{
		BuildID:   report.BuildID,
		Path:      report.StorePath,
		Model:     report.Model,
		Dim:       report.Dim,
		Count:     report.Embedded,
		Skipped:   report.Skipped(),
		CreatedAt: report.FinishedAt,
	}
}
