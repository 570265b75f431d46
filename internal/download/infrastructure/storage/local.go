// Package storage 从媒体目录读取数字商品文件
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/wyfcoding/storefront/internal/download/domain"
)

// LocalStorage 本地媒体目录
type LocalStorage struct {
	root string
}

// NewLocalStorage 创建本地存储，root 为媒体根目录
func NewLocalStorage(root string) (*LocalStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media root: %w", err)
	}
	return &LocalStorage{root: abs}, nil
}

// Resolve 返回文件在媒体目录内的绝对路径。
// 越出媒体目录的路径与不存在的文件都返回 ErrFileMissing。
func (s *LocalStorage) Resolve(rel string) (string, error) {
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "/")
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	inside, err := filepath.Rel(s.root, full)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", domain.ErrFileMissing
	}

	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return "", domain.ErrFileMissing
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat download file: %w", err)
	}
	if info.IsDir() {
		return "", domain.ErrFileMissing
	}
	return full, nil
}
