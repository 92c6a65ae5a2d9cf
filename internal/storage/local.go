package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Local はローカルファイルシステム上のストレージ実装です。
// 保存から ttl 経過したファイルは自動削除されます（ttl=0 で無効）。
type Local struct {
	dir string
	ttl time.Duration
}

// NewLocal は Local を初期化し、保存先ディレクトリを作成します。
func NewLocal(dir string, ttl time.Duration) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &Local{dir: dir, ttl: ttl}, nil
}

// Save はデータをファイルとして保存し、ハンドルを返します。
func (l *Local) Save(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	handle := uuid.NewString()
	path := l.pathFor(handle)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}

	if l.ttl > 0 {
		time.AfterFunc(l.ttl, func() {
			_ = os.Remove(path)
		})
	}
	return handle, nil
}

// Open はハンドルに対応するファイルを開きます。
func (l *Local) Open(ctx context.Context, handle string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	path, err := l.safePath(handle)
	if err != nil {
		return nil, 0, err
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("failed to open blob: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("failed to stat blob: %w", err)
	}
	return file, info.Size(), nil
}

// Delete はハンドルに対応するファイルを削除します。
func (l *Local) Delete(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := l.safePath(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

func (l *Local) pathFor(handle string) string {
	return filepath.Join(l.dir, handle+".bin")
}

func (l *Local) safePath(handle string) (string, error) {
	if handle == "" || strings.ContainsAny(handle, `/\`) || strings.Contains(handle, "..") {
		return "", ErrNotFound
	}
	return l.pathFor(handle), nil
}
