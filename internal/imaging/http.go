package imaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// Service は同期変換のアプリケーションサービスです。
type Service struct {
	convert     ConvertFunc
	maxFileSize int64
}

// NewService は Service を初期化します。convert が nil の場合は既定実装を使用します。
func NewService(convert ConvertFunc, maxFileSize int64) *Service {
	if convert == nil {
		convert = Convert
	}
	return &Service{convert: convert, maxFileSize: maxFileSize}
}

// MaxFileSize は単一ファイルの上限サイズを返します。
func (s *Service) MaxFileSize() int64 {
	return s.maxFileSize
}

// ConvertBytes は検証済みの入力を変換し、変換後バイト列と出力ファイル名を返します。
func (s *Service) ConvertBytes(data []byte, filename string, opts Options) ([]byte, string, error) {
	if err := ValidateFile(data, filename, s.maxFileSize); err != nil {
		return nil, "", err
	}
	if err := opts.Validate(); err != nil {
		return nil, "", err
	}
	out, err := s.convert(data, filename, opts)
	if err != nil {
		return nil, "", err
	}
	return out, OutputFilename(filename, opts.OutputFormat), nil
}

// ConvertHandler は同期変換エンドポイントのハンドラーを返します。
// 変換完了までブロックし、変換後の画像をそのままストリーム返却します。
func ConvertHandler(svc *Service, format OutputFormat) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "multipart/form-data で画像ファイルを送信してください。",
			})
			return
		}
		defer form.RemoveAll()

		file, err := ExtractSingleFile(form)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": err.Error(),
			})
			return
		}

		opts, err := ParseOptions(c, format)
		if err != nil {
			WriteError(c, err)
			return
		}

		data, err := ReadFileHeader(file)
		if err != nil {
			WriteError(c, err)
			return
		}

		out, outName, err := svc.ConvertBytes(data, file.Filename, opts)
		if err != nil {
			WriteError(c, err)
			return
		}

		contentType := ContentType(opts.OutputFormat)
		encodedName := url.PathEscape(outName)
		c.Header("Content-Type", contentType)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", outName, encodedName))
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, contentType, out)
	}
}

// ParseOptions はフォームから変換オプションを読み取ります。
func ParseOptions(c *gin.Context, defaultFormat OutputFormat) (Options, error) {
	opts := Options{
		OutputFormat: defaultFormat,
		Quality:      85,
	}

	if raw := strings.TrimSpace(c.PostForm("output_format")); raw != "" {
		opts.OutputFormat = OutputFormat(strings.ToLower(raw))
	}
	if raw := strings.TrimSpace(c.PostForm("quality")); raw != "" {
		quality, err := strconv.Atoi(raw)
		if err != nil {
			return opts, newError("INVALID_INPUT", "quality は整数で指定してください。", err)
		}
		opts.Quality = quality
	}
	if raw := strings.TrimSpace(c.PostForm("lossless")); raw != "" {
		lossless, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, newError("INVALID_INPUT", "lossless は true/false で指定してください。", err)
		}
		opts.Lossless = lossless
	}

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// WriteError はエラー種別に応じたJSONレスポンスを書き込みます。
func WriteError(c *gin.Context, err error) {
	var apiErr *Error
	var convErr *ConversionError
	switch {
	case errors.As(err, &apiErr):
		status := http.StatusBadRequest
		if apiErr.Code == "LIMIT_EXCEEDED" {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.As(err, &convErr):
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "CONVERSION_FAILED",
			"kind":    convErr.Kind,
			"message": convErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}

// ExtractSingleFile はフォームから最初の画像ファイルを取り出します。
func ExtractSingleFile(form *multipart.Form) (*multipart.FileHeader, error) {
	if form == nil {
		return nil, errors.New("画像ファイルを選択してください。")
	}
	if file := form.File["file"]; len(file) > 0 {
		return file[0], nil
	}
	if file := form.File["file[]"]; len(file) > 0 {
		return file[0], nil
	}
	if files := form.File["files"]; len(files) > 0 {
		return files[0], nil
	}
	if alt := form.File["files[]"]; len(alt) > 0 {
		return alt[0], nil
	}
	return nil, errors.New("画像ファイルを選択してください。")
}

// ReadFileHeader はアップロードファイルの内容を読み取ります。
func ReadFileHeader(file *multipart.FileHeader) ([]byte, error) {
	src, err := file.Open()
	if err != nil {
		return nil, newError("INVALID_INPUT", "アップロードファイルの読み込みに失敗しました。", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, newError("INVALID_INPUT", "アップロードファイルの読み込みに失敗しました。", err)
	}
	return data, nil
}
