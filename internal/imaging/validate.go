package imaging

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// allowedExtensions は受け付ける入力ファイルの拡張子です。
var allowedExtensions = map[string]struct{}{
	".heic": {},
	".heif": {},
	".dng":  {},
	".jpg":  {},
	".jpeg": {},
}

// ValidateFile はサイズ・拡張子・MIMEタイプ（マジックナンバー）を検証します。
// 不正な場合は *Error を返します。
func ValidateFile(data []byte, filename string, maxSize int64) error {
	if len(data) == 0 {
		return newError("INVALID_INPUT", "ファイルが空です。", nil)
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return newError("LIMIT_EXCEEDED",
			fmt.Sprintf("ファイルサイズが上限（%dMB）を超えています。", maxSize/(1024*1024)), nil)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return newError("INVALID_INPUT",
			fmt.Sprintf("未対応のファイル形式です: %s（対応形式: .heic, .heif, .dng, .jpg, .jpeg）", ext), nil)
	}

	mime := mimetype.Detect(data).String()
	switch ext {
	case ".heic", ".heif":
		// HEICはMIMEタイプの揺れが大きい
		if !strings.HasPrefix(mime, "image/heic") && mime != "image/heif" && mime != "image/heif-sequence" {
			return newError("INVALID_INPUT",
				fmt.Sprintf("HEICファイルとして認識できません（検出: %s）。", mime), nil)
		}
	case ".dng":
		// DNGはTIFFコンテナベース
		switch mime {
		case "image/x-adobe-dng", "image/tiff", "image/x-canon-cr2", "application/octet-stream":
		default:
			return newError("INVALID_INPUT",
				fmt.Sprintf("DNGファイルとして認識できません（検出: %s）。", mime), nil)
		}
	case ".jpg", ".jpeg":
		if mime != "image/jpeg" {
			return newError("INVALID_INPUT",
				fmt.Sprintf("JPEGファイルとして認識できません（検出: %s）。", mime), nil)
		}
	}

	return nil
}
