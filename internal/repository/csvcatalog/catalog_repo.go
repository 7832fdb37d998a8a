// Package csvcatalog читает каталог товаров из CSV с колонками id, name, price, url, img_url.
package csvcatalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
	"github.com/shopspring/decimal"
)

const (
	colID       = "id"
	colName     = "name"
	colPrice    = "price"
	colURL      = "url"
	colImageURL = "img_url"
)

var requiredColumns = []string{colID, colName, colPrice, colURL, colImageURL}

type CatalogRepo struct {
	logger logger.Logger
}

func NewCatalogRepo(logger logger.Logger) *CatalogRepo {
	return &CatalogRepo{logger: logger}
}

func (c *CatalogRepo) ReadFile(ctx context.Context, path string) ([]domain.CatalogRow, error) {
	const op = "CatalogRepo.ReadFile"

	f, err := os.Open(path)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	defer f.Close()

	rows, err := c.Read(ctx, f)
	if err != nil {
		return nil, e.Wrap(fmt.Sprintf("%s %s", op, path), err)
	}

	c.logger.Infof("catalog loaded: path=%s rows=%d", path, len(rows))
	return rows, nil
}

// Read разбирает CSV. Порядок колонок произвольный, лишние колонки игнорируются.
// Строки без id пропускаются с предупреждением.
func (c *CatalogRepo) Read(ctx context.Context, r io.Reader) ([]domain.CatalogRow, error) {
	const op = "CatalogRepo.Read"

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, e.Wrap(op, fmt.Errorf("%w: empty catalog file", e.ErrMissingColumn))
		}
		return nil, e.Wrap(op, err)
	}

	index, err := headerIndex(header)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	var rows []domain.CatalogRow
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, e.Wrap(op, err)
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, e.Wrap(op, err)
		}

		field := func(name string) string {
			i := index[name]
			if i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		id := field(colID)
		if id == "" {
			c.logger.Warnf("catalog line %d has no id, skipping", line)
			continue
		}
		if !validID(id) {
			c.logger.Warnf("catalog line %d: id %q is not a valid file name, skipping", line, id)
			continue
		}

		rows = append(rows, domain.NewCatalogRow(
			id,
			field(colName),
			NormalizePrice(field(colPrice)),
			field(colURL),
			field(colImageURL),
		))
	}

	return rows, nil
}

// NormalizePrice дополняет цену вида 12 или 12.5 до двух знаков после точки.
// Остальные значения ("1,299", "9.999", "по запросу") возвращаются как есть: запятая может
// быть разделителем тысяч, а округление изменило бы отображаемую цену.
func NormalizePrice(raw string) string {
	if !plainAmount(raw) {
		return raw
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return raw
	}
	return d.StringFixed(2)
}

// plainAmount проверяет формат -?\d+(\.\d{1,2})?.
func plainAmount(s string) bool {
	s = strings.TrimPrefix(s, "-")
	intPart, frac, hasDot := strings.Cut(s, ".")
	if !digitsOnly(intPart) {
		return false
	}
	if !hasDot {
		return true
	}
	return len(frac) <= 2 && digitsOnly(frac)
}

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// validID отсекает id, которые нельзя использовать как имя файла <id>.<ext>.
func validID(id string) bool {
	return id != "." && id != ".." && !strings.ContainsAny(id, "/\\\x00")
}

func headerIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", e.ErrMissingColumn, strings.Join(missing, ", "))
	}

	return index, nil
}
