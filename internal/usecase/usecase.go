package usecase

import "context"

// QueryUC выполняет онлайн-идентификацию товара по фотографии.
type QueryUC interface {
	Identify(ctx context.Context, req *IdentifyReq) (*IdentifyRes, error)
	StoreInfo() StoreInfo
}

// CatalogUC выполняет офлайн-подготовку каталога.
type CatalogUC interface {
	DownloadImages(ctx context.Context, req *DownloadImagesReq) (*DownloadReport, error)
	BuildAndPersist(ctx context.Context, req *BuildReq) (*BuildReport, error)
}
