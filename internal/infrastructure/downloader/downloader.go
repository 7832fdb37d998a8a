// Package downloader скачивает изображения каталога по img_url в локальную директорию.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/DRSN-tech/product-matcher/internal/cfg"
	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/DRSN-tech/product-matcher/internal/infrastructure/imagecodec"
	"github.com/DRSN-tech/product-matcher/internal/infrastructure/resolver"
	"github.com/DRSN-tech/product-matcher/internal/usecase"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const defaultExtension = "jpg"

// Downloader скачивает изображения строк, у которых еще нет локального файла.
// Файл пишется во временный и переименовывается в <dir>/<id>.<ext>.
type Downloader struct {
	client   *retryablehttp.Client
	local    *resolver.LocalResolver
	dir      string
	exts     []string
	limiter  *rate.Limiter
	workers  int
	maxBytes int64
	mirror   usecase.ImageMirror
	logger   logger.Logger
}

// NewDownloader создает загрузчик. mirror может быть nil.
func NewDownloader(cfg *cfg.DownloaderCfg, catalog *cfg.CatalogCfg, mirror usecase.ImageMirror, logger logger.Logger) *Downloader {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.MaxRetries
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = nil

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}

	workers := max(cfg.Workers, 1)

	return &Downloader{
		client:   client,
		local:    resolver.NewLocalResolver(catalog.ImagesDir, catalog.ImageExtensions),
		dir:      catalog.ImagesDir,
		exts:     catalog.ImageExtensions,
		limiter:  rate.NewLimiter(limit, workers),
		workers:  workers,
		maxBytes: cfg.MaxFileBytes,
		mirror:   mirror,
		logger:   logger,
	}
}

// DownloadMissing скачивает недостающие изображения. Ошибка отдельной строки становится
// предупреждением отчета; ошибку возвращают только отмена ctx и недоступная директория.
func (d *Downloader) DownloadMissing(ctx context.Context, rows []domain.CatalogRow) (*usecase.DownloadReport, error) {
	const op = "Downloader.DownloadMissing"

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, e.Wrap(op, err)
	}

	report := &usecase.DownloadReport{}
	var (
		mu      sync.Mutex
		present []usecase.MirrorImage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for _, row := range rows {
		if p, err := d.local.Locate(row); err == nil {
			if row.ImageRef != "" && !row.ImageIsRemote() {
				report.Local++
			} else {
				report.Existing++
			}
			present = append(present, usecase.MirrorImage{RowID: row.ID, Path: p})
			continue
		}

		if !row.ImageIsRemote() {
			report.Warnings = append(report.Warnings, usecase.BuildWarning{
				RowID:  row.ID,
				Reason: fmt.Sprintf("%v: no local file and img_url %q is not http(s)", e.ErrImageNotFound, row.ImageRef),
			})
			continue
		}

		g.Go(func() error {
			if err := d.limiter.Wait(gctx); err != nil {
				return err
			}

			p, err := d.fetch(gctx, row)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				d.logger.Warnf("failed to download image for row %q: %v", row.ID, err)
				report.Warnings = append(report.Warnings, usecase.BuildWarning{RowID: row.ID, Reason: err.Error()})
				return nil
			}
			report.Downloaded++
			present = append(present, usecase.MirrorImage{RowID: row.ID, Path: p})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, e.Wrap(op, err)
	}

	if d.mirror != nil && len(present) > 0 {
		res, err := d.mirror.MirrorImages(ctx, &usecase.MirrorImagesReq{Images: present})
		if res != nil {
			report.Mirrored = len(res.Keys)
			report.Warnings = append(report.Warnings, res.Failed...)
		}
		if err != nil {
			return report, e.Wrap(op, err)
		}
	}

	slices.SortStableFunc(report.Warnings, func(a, b usecase.BuildWarning) int {
		return strings.Compare(a.RowID, b.RowID)
	})

	return report, nil
}

// fetch скачивает изображение строки и возвращает путь к сохраненному файлу.
func (d *Downloader) fetch(ctx context.Context, row domain.CatalogRow) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, row.ImageRef, nil)
	if err != nil {
		return "", err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: unexpected status %d", row.ImageRef, resp.StatusCode)
	}
	if resp.ContentLength > d.maxBytes {
		return "", fmt.Errorf("%w: %d bytes", e.ErrFileTooLarge, resp.ContentLength)
	}

	ext := d.extension(row.ImageRef, resp.Header.Get("Content-Type"))
	target := filepath.Join(d.dir, row.ID+"."+ext)
	if err := d.writeFile(target, resp.Body); err != nil {
		return "", err
	}

	return target, nil
}

// extension берет расширение из пути URL, затем из Content-Type, иначе первое из списка
// расширений каталога. Результат всегда входит в этот список, иначе LocalResolver файл не найдет.
// Формат при декодировании определяется по содержимому, а не по расширению.
func (d *Downloader) extension(rawURL, contentType string) string {
	if u, err := url.Parse(rawURL); err == nil {
		ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
		if slices.Contains(d.exts, ext) {
			return ext
		}
	}

	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext, err := imagecodec.ExtensionFromMIME(mediaType); err == nil && slices.Contains(d.exts, ext) {
			return ext
		}
	}

	if len(d.exts) > 0 {
		return d.exts[0]
	}
	return defaultExtension
}

func (d *Downloader) writeFile(target string, body io.Reader) (err error) {
	tmp, err := os.CreateTemp(d.dir, ".download-*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, io.LimitReader(body, d.maxBytes+1))
	if err != nil {
		return err
	}
	if n > d.maxBytes {
		return fmt.Errorf("%w: more than %d bytes", e.ErrFileTooLarge, d.maxBytes)
	}
	if n == 0 {
		return errors.New("empty response body")
	}

	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}
