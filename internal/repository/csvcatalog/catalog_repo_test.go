package csvcatalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogRepo_Read(t *testing.T) {
	const data = "\ufeffurl, img_url ,id,name,price,extra\n" +
		"https://shop/1,https://cdn/1.jpg,1,Молоко,89.9,x\n" +
		"https://shop/2,data/product_images/2.png,2,\"Хлеб, нарезка\",\"45,5\",y\n" +
		"https://shop/3,,,No id,10,z\n" +
		"https://shop/4,,4,Акция,по запросу\n" +
		"https://shop/5,,../5,Escape,1\n" +
		"https://shop/6,,a/6,Nested,1\n" +
		"https://shop/7,,..,Parent,1\n"

	repo := NewCatalogRepo(logger.NewNopLogger())
	rows, err := repo.Read(context.Background(), strings.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, []domain.CatalogRow{
		{ID: "1", Name: "Молоко", Price: "89.90", URL: "https://shop/1", ImageRef: "https://cdn/1.jpg"},
		{ID: "2", Name: "Хлеб, нарезка", Price: "45,5", URL: "https://shop/2", ImageRef: "data/product_images/2.png"},
		{ID: "4", Name: "Акция", Price: "по запросу", URL: "https://shop/4", ImageRef: ""},
	}, rows)
}

func TestCatalogRepo_MissingColumns(t *testing.T) {
	repo := NewCatalogRepo(logger.NewNopLogger())

	_, err := repo.Read(context.Background(), strings.NewReader("id,name,price\n1,a,2\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, e.ErrMissingColumn)
	assert.Contains(t, err.Error(), "url, img_url")

	_, err = repo.Read(context.Background(), strings.NewReader(""))
	assert.ErrorIs(t, err, e.ErrMissingColumn)
}

func TestCatalogRepo_HeaderOnly(t *testing.T) {
	repo := NewCatalogRepo(logger.NewNopLogger())

	rows, err := repo.Read(context.Background(), strings.NewReader("id,name,price,url,img_url\n"))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCatalogRepo_ReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "product_data.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name,price,url,img_url\n10,Сыр,300,https://shop/10,https://cdn/10.jpg\n"), 0o644))

	repo := NewCatalogRepo(logger.NewNopLogger())
	rows, err := repo.ReadFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "300.00", rows[0].Price)

	_, err = repo.ReadFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestNormalizePrice(t *testing.T) {
	tests := map[string]string{
		"":        "",
		"10":      "10.00",
		"12.5":    "12.50",
		"-3":      "-3.00",
		"9.999":   "9.999",
		"1,5":     "1,5",
		"1,299":   "1,299",
		"12,500":  "12,500",
		"1e3":     "1e3",
		".5":      ".5",
		"free":    "free",
		"  12.30": "  12.30",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePrice(in), "input %q", in)
	}
}

func TestValidID(t *testing.T) {
	for _, id := range []string{"1", "sku-42", "a.b", "..x"} {
		assert.True(t, validID(id), "id %q", id)
	}
	for _, id := range []string{".", "..", "../x", "a/b", `a\b`, "x\x00"} {
		assert.False(t, validID(id), "id %q", id)
	}
}
