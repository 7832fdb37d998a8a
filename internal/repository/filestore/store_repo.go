// Package filestore хранит эмбеддинги каталога в одном бинарном файле.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
)

type StoreRepo struct {
	logger logger.Logger
}

func NewStoreRepo(logger logger.Logger) *StoreRepo {
	return &StoreRepo{logger: logger}
}

// Save атомарно записывает хранилище: временный файл в той же директории, fsync, rename.
// При ошибке прежний файл остается нетронутым.
func (s *StoreRepo) Save(ctx context.Context, path string, store *domain.EmbeddingStore) (err error) {
	const op = "StoreRepo.Save"

	if err := store.Validate(); err != nil {
		return e.Wrap(op, err)
	}
	if err := ctx.Err(); err != nil {
		return e.Wrap(op, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return e.Wrap(op, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return e.Wrap(op, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = Encode(tmp, store); err != nil {
		return e.Wrap(op, err)
	}
	if err = tmp.Sync(); err != nil {
		return e.Wrap(op, err)
	}
	if err = tmp.Close(); err != nil {
		return e.Wrap(op, err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return e.Wrap(op, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return e.Wrap(op, err)
	}
	syncDir(dir)

	s.logger.Infof("embedding store saved: path=%s records=%d dim=%d build=%s", path, store.Count(), store.Dim, store.BuildID)
	return nil
}

// Load читает и проверяет хранилище. Отсутствующий файл возвращает ошибку с fs.ErrNotExist,
// поврежденный: e.ErrStoreCorrupt.
func (s *StoreRepo) Load(ctx context.Context, path string) (*domain.EmbeddingStore, error) {
	const op = "StoreRepo.Load"

	if err := ctx.Err(); err != nil {
		return nil, e.Wrap(op, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	if info.IsDir() {
		return nil, e.Wrap(op, fmt.Errorf("%w: %s is a directory", e.ErrStoreCorrupt, path))
	}

	store, err := Decode(f, info.Size())
	if err != nil {
		return nil, e.Wrap(fmt.Sprintf("%s %s", op, path), err)
	}

	s.logger.Infof("embedding store loaded: path=%s records=%d dim=%d model=%s build=%s",
		path, store.Count(), store.Dim, store.Model, store.BuildID)
	return store, nil
}

// Lock создает <path>.lock эксклюзивно и пишет в него PID. Если файл уже есть, сборка идет в другом
// процессе. Lock, оставленный упавшим процессом (PID больше не существует), снимается автоматически.
func (s *StoreRepo) Lock(path string) (func() error, error) {
	const op = "StoreRepo.Lock"

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, e.Wrap(op, err)
	}

	lockPath := path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) && s.removeStaleLock(lockPath) {
		f, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	}
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, e.Wrap(op, fmt.Errorf("%w: %s exists, remove it if no build is running", e.ErrBuildInProgress, lockPath))
		}
		return nil, e.Wrap(op, err)
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
	_ = f.Close()

	unlock := func() error {
		if err := os.Remove(lockPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return e.Wrap("StoreRepo.Unlock", err)
		}
		return nil
	}
	return unlock, nil
}

// removeStaleLock удаляет lock, если записанный в нем процесс завершился.
// Пустой или нечитаемый lock считается занятым: владелец мог еще не успеть записать PID.
func (s *StoreRepo) removeStaleLock(lockPath string) bool {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 || processAlive(pid) {
		return false
	}

	if err := os.Remove(lockPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false
	}
	s.logger.Warnf("removed stale build lock %s left by process %d", lockPath, pid)
	return true
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return !errors.Is(err, os.ErrProcessDone) && !errors.Is(err, syscall.ESRCH)
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
