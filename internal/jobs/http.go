package jobs

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/photo-forge/internal/imaging"
)

// SubmitJobHandler は単一ファイルの非同期変換を受け付けるハンドラーを返します。
func SubmitJobHandler(coord *Coordinator) gin.HandlerFunc {
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

		header, err := imaging.ExtractSingleFile(form)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": err.Error(),
			})
			return
		}

		opts, err := imaging.ParseOptions(c, imaging.FormatJPEG)
		if err != nil {
			imaging.WriteError(c, err)
			return
		}

		data, err := imaging.ReadFileHeader(header)
		if err != nil {
			imaging.WriteError(c, err)
			return
		}

		record, err := coord.SubmitJob(c.Request.Context(), UploadFile{Filename: header.Filename, Data: data}, opts)
		if err != nil {
			respondWithError(c, err, "JOB_NOT_FOUND", jobNotFoundMessage)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"jobId":  record.JobID,
			"status": record.Status,
		})
	}
}

// JobStatusHandler はジョブの現在状態を返すハンドラーを返します。
func JobStatusHandler(coord *Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := coord.Job(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondWithError(c, err, "JOB_NOT_FOUND", jobNotFoundMessage)
			return
		}

		body := gin.H{
			"jobId":    record.JobID,
			"status":   record.Status,
			"filename": record.Filename,
		}
		if record.BatchID != "" {
			body["batchId"] = record.BatchID
		}
		if record.Status == StatusSuccess {
			body["outputFilename"] = record.OutputFilename
			body["outputSize"] = record.OutputSize
			body["resultUrl"] = fmt.Sprintf("/api/jobs/%s/result", record.JobID)
		}
		if record.Error != nil {
			body["error"] = record.Error
		}
		c.JSON(http.StatusOK, body)
	}
}

// JobResultHandler は成功したジョブの変換結果を返すハンドラーを返します。
func JobResultHandler(coord *Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc, record, err := coord.OpenResult(c.Request.Context(), c.Param("id"))
		if err != nil {
			// 結果は成功後にのみ存在するリソースとして扱い、それまでは404を返す
			if errors.Is(err, ErrResultNotReady) {
				c.JSON(http.StatusNotFound, gin.H{
					"code":    "RESULT_NOT_READY",
					"message": fmt.Sprintf("変換結果はまだ存在しません（状態: %s）。", record.Status),
				})
				return
			}
			respondWithError(c, err, "JOB_NOT_FOUND", jobNotFoundMessage)
			return
		}
		defer rc.Close()

		contentType := imaging.ContentType(record.Options.OutputFormat)
		encodedName := url.PathEscape(record.OutputFilename)
		c.Header("Content-Type", contentType)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", record.OutputFilename, encodedName))
		c.Header("Cache-Control", "no-store")
		c.Status(http.StatusOK)
		if _, err := io.Copy(c.Writer, rc); err != nil {
			c.Abort()
		}
	}
}

// SubmitBatchHandler は一括変換を受け付けるハンドラーを返します。
func SubmitBatchHandler(coord *Coordinator) gin.HandlerFunc {
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

		opts, err := imaging.ParseOptions(c, imaging.FormatJPEG)
		if err != nil {
			imaging.WriteError(c, err)
			return
		}

		files, err := readBatchFiles(form)
		if err != nil {
			imaging.WriteError(c, err)
			return
		}

		result, err := coord.SubmitBatch(c.Request.Context(), files, opts)
		if err != nil {
			respondWithError(c, err, "BATCH_NOT_FOUND", batchNotFoundMessage)
			return
		}

		jobs := make([]gin.H, 0, len(result.Jobs))
		for _, job := range result.Jobs {
			jobs = append(jobs, gin.H{
				"jobId":    job.JobID,
				"filename": job.Filename,
				"status":   job.Status,
			})
		}
		c.JSON(http.StatusAccepted, gin.H{
			"batchId":    result.BatchID,
			"totalFiles": result.TotalFiles,
			"jobs":       jobs,
		})
	}
}

// BatchStatusHandler はバッチの集計状態を返すハンドラーを返します。
func BatchStatusHandler(coord *Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := coord.BatchStatus(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondWithError(c, err, "BATCH_NOT_FOUND", batchNotFoundMessage)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

// BatchArchiveHandler はバッチの成功結果をZIPで返すハンドラーを返します。
// 成功ジョブが1件もない場合は 204 を返します。
func BatchArchiveHandler(coord *Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		batchID := c.Param("id")
		entries, err := coord.ArchiveEntries(c.Request.Context(), batchID)
		if err != nil {
			if errors.Is(err, ErrNoResults) {
				c.Status(http.StatusNoContent)
				return
			}
			respondWithError(c, err, "BATCH_NOT_FOUND", batchNotFoundMessage)
			return
		}

		archiveName := fmt.Sprintf("converted_%s.zip", batchID)
		c.Header("Content-Type", "application/zip")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", archiveName))
		c.Header("Cache-Control", "no-store")
		c.Status(http.StatusOK)
		if err := WriteArchive(c.Writer, entries); err != nil {
			c.Abort()
		}
	}
}

// respondWithError はジョブ系エラーをHTTPレスポンスに変換します。
// ジョブ固有のエラー以外は imaging.WriteError に委譲します。
func respondWithError(c *gin.Context, err error, notFoundCode, notFoundMessage string) {
	switch {
	case errors.Is(err, ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    "QUEUE_FULL",
			"message": "変換キューが混雑しています。しばらくしてから再度お試しください。",
		})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"code":    notFoundCode,
			"message": notFoundMessage,
		})
	default:
		imaging.WriteError(c, err)
	}
}

const (
	jobNotFoundMessage   = "指定されたジョブが見つかりません（保持期限切れの可能性があります）。"
	batchNotFoundMessage = "指定されたバッチが見つかりません（保持期限切れの可能性があります）。"
)

func readBatchFiles(form *multipart.Form) ([]UploadFile, error) {
	headers := form.File["files"]
	if len(headers) == 0 {
		headers = form.File["files[]"]
	}
	if len(headers) == 0 {
		headers = form.File["file"]
	}

	files := make([]UploadFile, 0, len(headers))
	for _, header := range headers {
		data, err := imaging.ReadFileHeader(header)
		if err != nil {
			return nil, err
		}
		files = append(files, UploadFile{Filename: header.Filename, Data: data})
	}
	return files, nil
}
