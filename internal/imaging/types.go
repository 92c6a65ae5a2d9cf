// Package imaging は画像ファイルの検証と変換機能を提供します。
package imaging

import (
	"fmt"
	"path/filepath"
	"strings"
)

// OutputFormat は変換先フォーマットの種別を表します。
type OutputFormat string

const (
	FormatJPEG OutputFormat = "jpeg"
	FormatWebP OutputFormat = "webp"
)

// Options は変換オプションを表します。
type Options struct {
	OutputFormat OutputFormat `json:"outputFormat"`
	Quality      int          `json:"quality"`
	Lossless     bool         `json:"lossless"`
}

// Validate はオプションの妥当性を検証します。
func (o Options) Validate() error {
	if o.OutputFormat != FormatJPEG && o.OutputFormat != FormatWebP {
		return newError("INVALID_INPUT", "output_format は jpeg または webp を指定してください。", nil)
	}
	if o.Quality < 0 || o.Quality > 100 {
		return newError("INVALID_INPUT", "quality は 0〜100 の範囲で指定してください。", nil)
	}
	return nil
}

// ConvertFunc は1ファイルの変換処理を表します。
// 同期的に実行され、成功時は変換後のバイト列、失敗時は *ConversionError を返します。
// 中断には対応しないため、タイムアウトは呼び出し側が放棄によって実現します。
type ConvertFunc func(input []byte, filename string, opts Options) ([]byte, error)

// OutputFilename は変換後ファイル名を生成します（例: photo.heic → photo_converted.jpg）。
func OutputFilename(filename string, format OutputFormat) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if stem == "" {
		stem = "output"
	}
	ext := "jpg"
	if format == FormatWebP {
		ext = "webp"
	}
	return fmt.Sprintf("%s_converted.%s", stem, ext)
}

// ContentType は変換後フォーマットに対応するMIMEタイプを返します。
func ContentType(format OutputFormat) string {
	if format == FormatWebP {
		return "image/webp"
	}
	return "image/jpeg"
}
