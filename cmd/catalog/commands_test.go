package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/DRSN-tech/product-matcher/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// isolatedEnv отключает внешние бэкенды, чтобы команды работали только с файлами.
func isolatedEnv(t *testing.T, imagesDir string) {
	t.Helper()
	for _, key := range []string{"MINIO_ENDPOINT", "POSTGRES_DB", "KAFKA_BROKERS", "MODEL_WEIGHTS_PATH"} {
		t.Setenv(key, "")
	}
	t.Setenv("MODEL_BACKEND", "local")
	t.Setenv("CACHE_TYPE", "none")
	t.Setenv("IMAGES_DIR", imagesDir)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd(logger.NewNopLogger())
	root.SetOut(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBuildAndInspect(t *testing.T) {
	dir := t.TempDir()
	imagesDir := filepath.Join(dir, "images")
	require.NoError(t, os.MkdirAll(imagesDir, 0o755))
	isolatedEnv(t, imagesDir)

	writePNG(t, filepath.Join(imagesDir, "1.png"), color.RGBA{R: 255, A: 255})
	writePNG(t, filepath.Join(imagesDir, "3.png"), color.RGBA{G: 255, A: 255})

	csvPath := filepath.Join(dir, "catalog.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(
		"id,name,price,url,img_url\n"+
			"1,Red mug,4.99,https://shop/1,\n"+
			"2,Lost item,1,https://shop/2,\n"+
			"3,Green tea,2.5,https://shop/3,\n"), 0o644))
	storePath := filepath.Join(dir, "store.bin")

	out, err := run(t, "build", "--catalog", csvPath, "--store", storePath)
	require.NoError(t, err)
	assert.Contains(t, out, "rows: 3, embedded: 2, skipped: 1")
	assert.Contains(t, out, "row 2:")
	assert.FileExists(t, storePath)

	out, err = run(t, "inspect", "--store", storePath, "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "count: 2")
	assert.Contains(t, out, "dim: 48")
	assert.Contains(t, out, "Red mug")
	assert.NotContains(t, out, "Green tea")
}

func TestInspectMissingStore(t *testing.T) {
	isolatedEnv(t, t.TempDir())

	_, err := run(t, "inspect", "--store", filepath.Join(t.TempDir(), "absent.bin"))
	assert.Error(t, err)
}
