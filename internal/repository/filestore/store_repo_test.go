package filestore

import (
	"bytes"
	"context"
	"io/fs"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStore(t *testing.T) *domain.EmbeddingStore {
	t.Helper()

	store := domain.NewEmbeddingStore(3, "avgpool-g1-s224", "7f1c2d9e", time.Unix(1700000000, 123).UTC())
	require.NoError(t, store.Append(domain.ProductRecord{ID: "101", Name: "Молоко 3.2%", Price: "89.90", URL: "https://shop/101", Embedding: []float32{0.1, -0.2, 0.3}}))
	require.NoError(t, store.Append(domain.ProductRecord{ID: "101", Name: "duplicate id", Price: "", URL: "", Embedding: []float32{0, 0, 0}}))
	require.NoError(t, store.Append(domain.ProductRecord{ID: "sku-7", Name: "Хлеб", Price: "по акции", URL: "https://shop/7", Embedding: []float32{float32(math.Pi), 1e-30, -5}}))
	return store
}

func TestStoreRepo_RoundTrip(t *testing.T) {
	repo := NewStoreRepo(logger.NewNopLogger())
	path := filepath.Join(t.TempDir(), "embeddings", "store.bin")

	want := sampleStore(t)
	require.NoError(t, repo.Save(context.Background(), path, want))

	got, err := repo.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStoreRepo_RoundTripEmpty(t *testing.T) {
	repo := NewStoreRepo(logger.NewNopLogger())
	path := filepath.Join(t.TempDir(), "store.bin")

	want := domain.NewEmbeddingStore(2048, "resnet", "", time.Unix(0, 0).UTC())
	require.NoError(t, repo.Save(context.Background(), path, want))

	got, err := repo.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Count())
	assert.Equal(t, 2048, got.Dim)
}

func TestStoreRepo_SaveRejectsMixedDimensions(t *testing.T) {
	repo := NewStoreRepo(logger.NewNopLogger())
	path := filepath.Join(t.TempDir(), "store.bin")

	good := sampleStore(t)
	require.NoError(t, repo.Save(context.Background(), path, good))

	bad := sampleStore(t)
	bad.Records[1].Embedding = []float32{1, 2}
	err := repo.Save(context.Background(), path, bad)
	assert.ErrorIs(t, err, e.ErrStoreCorrupt)

	got, err := repo.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, good, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")
}

func TestStoreRepo_LoadMissing(t *testing.T) {
	repo := NewStoreRepo(logger.NewNopLogger())

	_, err := repo.Load(context.Background(), filepath.Join(t.TempDir(), "nope.bin"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.NotErrorIs(t, err, e.ErrStoreCorrupt)
}

func TestStoreRepo_LoadCorrupt(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleStore(t)))
	valid := buf.Bytes()

	flipped := bytes.Clone(valid)
	flipped[len(flipped)/2] ^= 0xFF

	badMagic := bytes.Clone(valid)
	copy(badMagic, "PICKLE")

	hugeCount := bytes.Clone(valid)
	// count лежит сразу после magic, version и dim
	copy(hugeCount[len(storeMagic)+2+4:], []byte{0xFF, 0xFF, 0xFF, 0x7F})

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "truncated header", data: valid[:10]},
		{name: "truncated records", data: valid[:len(valid)-20]},
		{name: "flipped byte", data: flipped},
		{name: "bad magic", data: badMagic},
		{name: "huge count", data: hugeCount},
		{name: "trailing garbage", data: append(bytes.Clone(valid), 1, 2, 3)},
		{name: "python pickle", data: []byte("\x80\x04\x95\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00.")},
	}

	repo := NewStoreRepo(logger.NewNopLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "store.bin")
			require.NoError(t, os.WriteFile(path, tt.data, 0o644))

			_, err := repo.Load(context.Background(), path)
			assert.ErrorIs(t, err, e.ErrStoreCorrupt)
		})
	}
}

func TestStoreRepo_Lock(t *testing.T) {
	repo := NewStoreRepo(logger.NewNopLogger())
	path := filepath.Join(t.TempDir(), "store.bin")

	unlock, err := repo.Lock(path)
	require.NoError(t, err)

	_, err = repo.Lock(path)
	assert.ErrorIs(t, err, e.ErrBuildInProgress)

	require.NoError(t, unlock())
	require.NoError(t, unlock())

	unlockAgain, err := repo.Lock(path)
	require.NoError(t, err)
	require.NoError(t, unlockAgain())
}

func TestStoreRepo_LockRemovesStaleLock(t *testing.T) {
	repo := NewStoreRepo(logger.NewNopLogger())
	path := filepath.Join(t.TempDir(), "store.bin")

	// PID завершившегося дочернего процесса.
	cmd := exec.Command(os.Args[0], "-test.run=^$")
	require.NoError(t, cmd.Run())
	deadPID := cmd.ProcessState.Pid()

	require.NoError(t, os.WriteFile(path+".lock", []byte(strconv.Itoa(deadPID)), 0o644))

	unlock, err := repo.Lock(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path + ".lock")
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
	require.NoError(t, unlock())
}

func TestStoreRepo_LockKeepsLiveOrUnreadableLock(t *testing.T) {
	repo := NewStoreRepo(logger.NewNopLogger())

	for name, content := range map[string]string{
		"live process": strconv.Itoa(os.Getpid()),
		"empty":        "",
		"garbage":      "not-a-pid",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "store.bin")
			require.NoError(t, os.WriteFile(path+".lock", []byte(content), 0o644))

			_, err := repo.Lock(path)
			assert.ErrorIs(t, err, e.ErrBuildInProgress)
			assert.Contains(t, err.Error(), "remove it if no build is running")
			assert.FileExists(t, path+".lock")
		})
	}
}

func TestStoreRepo_SaveRejectsUnsupportedDimension(t *testing.T) {
	repo := NewStoreRepo(logger.NewNopLogger())
	path := filepath.Join(t.TempDir(), "store.bin")

	good := sampleStore(t)
	require.NoError(t, repo.Save(context.Background(), path, good))

	wide := domain.NewEmbeddingStore(maxDim+1, "avgpool-g4-s224+pmwt", "wide", time.Unix(0, 0).UTC())
	require.NoError(t, wide.Append(domain.ProductRecord{ID: "1", Embedding: make([]float32, maxDim+1)}))

	err := repo.Save(context.Background(), path, wide)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside supported range")

	got, err := repo.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, good, got, "previous artifact is kept")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")
}

func TestStoreRepo_SaveHonoursCancelledContext(t *testing.T) {
	repo := NewStoreRepo(logger.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := filepath.Join(t.TempDir(), "store.bin")
	err := repo.Save(ctx, path, sampleStore(t))
	assert.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat(path)
	assert.ErrorIs(t, statErr, fs.ErrNotExist)
}
