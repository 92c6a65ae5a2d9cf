// Package jobs は非同期変換ジョブの状態管理と実行を提供します。
package jobs

import (
	"time"

	"github.com/yourusername/photo-forge/internal/imaging"
)

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailure    Status = "FAILURE"

	// StatusPartial はバッチ集計専用の状態です（個別ジョブでは使用しません）。
	StatusPartial Status = "PARTIAL"
)

// Terminal は終端状態（以後変化しない状態）かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JobRecord は1ファイル分の変換ジョブの現在状態を表します。
// PENDING→PROCESSING の遷移は担当ワーカーのクレームによってのみ行われ、
// 終端状態に達した後は変更されません。
type JobRecord struct {
	JobID          string          `json:"jobId"`
	BatchID        string          `json:"batchId,omitempty"`
	Filename       string          `json:"filename"`
	Size           int64           `json:"size"`
	Options        imaging.Options `json:"options"`
	Status         Status          `json:"status"`
	InputHandle    string          `json:"inputHandle,omitempty"`
	ResultHandle   string          `json:"resultHandle,omitempty"`
	OutputFilename string          `json:"outputFilename,omitempty"`
	OutputSize     int64           `json:"outputSize,omitempty"`
	Error          *ErrorInfo      `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	ExpiresAt      time.Time       `json:"expiresAt"`
}

// Clone は JobRecord の複製を返します。
func (r *JobRecord) Clone() *JobRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Error != nil {
		errCopy := *r.Error
		clone.Error = &errCopy
	}
	return &clone
}

// BatchRecord は一括変換の構成ジョブを表します。作成後は変更されません。
// 集計状態は保持せず、照会のたびに構成ジョブから導出します。
type BatchRecord struct {
	BatchID    string    `json:"batchId"`
	JobIDs     []string  `json:"jobIds"`
	TotalFiles int       `json:"totalFiles"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Clone は BatchRecord の複製を返します。
func (r *BatchRecord) Clone() *BatchRecord {
	if r == nil {
		return nil
	}
	clone := *r
	clone.JobIDs = append([]string(nil), r.JobIDs...)
	return &clone
}

// FileStatus はバッチ内の1ファイル分の状態を表します。
type FileStatus struct {
	JobID          string     `json:"jobId"`
	Filename       string     `json:"filename"`
	Status         Status     `json:"status"`
	OutputFilename string     `json:"outputFilename,omitempty"`
	OutputSize     int64      `json:"outputSize,omitempty"`
	Error          *ErrorInfo `json:"error,omitempty"`
}

// BatchStatus は照会時に導出されるバッチの集計状態です。
type BatchStatus struct {
	BatchID    string       `json:"batchId"`
	Status     Status       `json:"status"`
	Total      int          `json:"totalFiles"`
	Completed  int          `json:"completed"`
	Failed     int          `json:"failed"`
	Pending    int          `json:"pending"`
	Processing int          `json:"processing"`
	Percent    int          `json:"percent"`
	Files      []FileStatus `json:"files"`
}
