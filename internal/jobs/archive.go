package jobs

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ArchiveEntry はZIPに格納する1ファイル分の結果です。
type ArchiveEntry struct {
	Name   string
	Reader io.ReadCloser
}

// ArchiveEntries はバッチの成功ジョブの結果をすべて開いて返します。
// 成功ジョブが1件もない場合は ErrNoResults を返します。
// ヘッダー送信前にすべて開くことで、途中失敗時も正しいHTTPステータスを返せます。
func (c *Coordinator) ArchiveEntries(ctx context.Context, batchID string) ([]ArchiveEntry, error) {
	batch, err := c.batch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	entries := make([]ArchiveEntry, 0, len(batch.JobIDs))
	closeAll := func() {
		for _, entry := range entries {
			entry.Reader.Close()
		}
	}

	for _, jobID := range batch.JobIDs {
		record, err := c.Job(ctx, jobID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			closeAll()
			return nil, err
		}
		if record.Status != StatusSuccess {
			continue
		}

		rc, _, err := c.storage.Open(ctx, record.ResultHandle)
		if err != nil {
			c.logger.Warn("skipping missing result file", "jobId", jobID, "error", err)
			continue
		}
		entries = append(entries, ArchiveEntry{Name: record.OutputFilename, Reader: rc})
	}

	if len(entries) == 0 {
		return nil, ErrNoResults
	}
	return entries, nil
}

// WriteArchive はエントリをZIPとして書き出し、リーダーをすべて閉じます。
// 同名の出力ファイルは連番を付けて区別します。
func WriteArchive(w io.Writer, entries []ArchiveEntry) error {
	defer func() {
		for _, entry := range entries {
			entry.Reader.Close()
		}
	}()

	zw := zip.NewWriter(w)
	seen := make(map[string]int, len(entries))

	for _, entry := range entries {
		header := &zip.FileHeader{
			Name:   uniqueName(seen, entry.Name),
			Method: zip.Deflate,
		}
		fw, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("jobs: failed to create archive entry %s: %w", entry.Name, err)
		}
		if _, err := io.Copy(fw, entry.Reader); err != nil {
			return fmt.Errorf("jobs: failed to write archive entry %s: %w", entry.Name, err)
		}
	}

	return zw.Close()
}

func uniqueName(seen map[string]int, name string) string {
	count := seen[name]
	seen[name] = count + 1
	if count == 0 {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s_%d%s", stem, count, ext)
}
