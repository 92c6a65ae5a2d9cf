package imaging

import "fmt"

// Error はリクエスト却下時にAPIへ返すエラーを表します。
type Error struct {
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError は Error を生成します。
func NewError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func newError(code, message string, cause error) *Error {
	return NewError(code, message, cause)
}

// ConversionErrorKind は変換失敗の分類を表します。
type ConversionErrorKind string

const (
	KindDecode       ConversionErrorKind = "decode"
	KindEncode       ConversionErrorKind = "encode"
	KindMetadataCopy ConversionErrorKind = "metadata-copy"
	KindTimeout      ConversionErrorKind = "timeout"
	KindInternal     ConversionErrorKind = "internal"
)

// ConversionError は個々のファイル変換の失敗を表します。
// 変換失敗は該当ジョブのみを終端させ、同一バッチの他ジョブには影響しません。
type ConversionError struct {
	Kind    ConversionErrorKind
	Message string
	cause   error
}

func (e *ConversionError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("conversion failed (%s): %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("conversion failed (%s): %s", e.Kind, e.Message)
}

func (e *ConversionError) Unwrap() error {
	return e.cause
}

// NewConversionError は ConversionError を生成します。
func NewConversionError(kind ConversionErrorKind, message string, cause error) *ConversionError {
	return &ConversionError{Kind: kind, Message: message, cause: cause}
}
