package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/scenekeep-go/pkg/log"
	"github.com/lk2023060901/scenekeep-go/pkg/util/merr"
)

const fileSuffix = ".snap"

// FileStore 将每个 key 保存为目录下的 <key>.snap 文件，写入通过临时文件 + rename 完成。
type FileStore struct {
	dir string
}

var _ Store = (*FileStore)(nil)

// NewFileStore 创建 FileStore，目录不存在时自动创建。
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, merr.WrapErrParameterMissing("dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, merr.WrapErrIoFailed(dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", merr.WrapErrParameterInvalidMsg("key %q must not contain path separators", key)
	}
	return filepath.Join(s.dir, key+fileSuffix), nil
}

func (s *FileStore) Save(ctx context.Context, key string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return merr.WrapErrIoFailed(key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return merr.WrapErrIoFailed(key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return merr.WrapErrIoFailed(key, err)
	}
	if err := tmp.Close(); err != nil {
		return merr.WrapErrIoFailed(key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return merr.WrapErrIoFailed(key, err)
	}
	log.Ctx(ctx).Debug("record saved", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

func (s *FileStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, merr.WrapErrIoFailed(key, err)
	}
	return data, true, nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return merr.WrapErrIoFailed(key, err)
	}
	return nil
}
