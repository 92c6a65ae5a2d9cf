package imaging

import (
	"bytes"
	"image"
	"image/jpeg"

	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Convert は純Goデコーダーで扱える範囲の既定実装です。
// JPEG（およびTIFFコンテナとして読めるDNG）をデコードし、JPEGへ再エンコードします。
// WebP出力とRAW現像はこの実装の範囲外で、対応するには ConvertFunc を差し替えます。
func Convert(input []byte, filename string, opts Options) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return nil, NewConversionError(KindDecode, "画像のデコードに失敗しました。", err)
	}

	switch opts.OutputFormat {
	case FormatJPEG:
		quality := opts.Quality
		if quality < 1 {
			quality = 85
		}
		if quality > 95 {
			// JPEGの実効上限は95とする
			quality = 95
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, NewConversionError(KindEncode, "JPEGエンコードに失敗しました。", err)
		}
		return buf.Bytes(), nil

	case FormatWebP:
		return nil, NewConversionError(KindEncode,
			"この構成ではWebPエンコードに対応していません。", nil)

	default:
		return nil, NewConversionError(KindInternal,
			"未対応の出力フォーマットです: "+string(opts.OutputFormat), nil)
	}
}
