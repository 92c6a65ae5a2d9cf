// Package storage は変換入出力バイト列のストレージ抽象化レイヤーを提供します。
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound はハンドルに対応するデータが存在しない（期限切れ含む）ことを表します。
var ErrNotFound = errors.New("storage: not found")

// Storage はジョブTTLにスコープされたバイト列ストレージです。
type Storage interface {
	// Save はデータを保存し、参照用ハンドルを返します。
	Save(ctx context.Context, data []byte) (string, error)
	// Open はハンドルに対応するデータの読み取りストリームとサイズを返します。
	Open(ctx context.Context, handle string) (io.ReadCloser, int64, error)
	// Delete はハンドルに対応するデータを削除します。存在しない場合もエラーにしません。
	Delete(ctx context.Context, handle string) error
}
