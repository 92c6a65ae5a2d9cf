package jobs

// Aggregate はバッチの集計状態を構成ジョブから導出します。
// レコードが見つからないジョブ（TTLで先に消えたもの）は失敗として数えます。
// records に含まれるキーは batch.JobIDs の部分集合であれば十分です。
func Aggregate(batch *BatchRecord, records map[string]*JobRecord) *BatchStatus {
	status := &BatchStatus{
		BatchID: batch.BatchID,
		Total:   batch.TotalFiles,
		Files:   make([]FileStatus, 0, len(batch.JobIDs)),
	}

	for _, jobID := range batch.JobIDs {
		record, ok := records[jobID]
		if !ok || record == nil {
			status.Failed++
			status.Files = append(status.Files, FileStatus{
				JobID:  jobID,
				Status: StatusFailure,
				Error: &ErrorInfo{
					Code:    "EXPIRED",
					Message: "ジョブレコードの保持期限が切れました。",
				},
			})
			continue
		}

		file := FileStatus{
			JobID:          record.JobID,
			Filename:       record.Filename,
			Status:         record.Status,
			OutputFilename: record.OutputFilename,
			OutputSize:     record.OutputSize,
			Error:          record.Error,
		}
		status.Files = append(status.Files, file)

		switch record.Status {
		case StatusSuccess:
			status.Completed++
		case StatusFailure:
			status.Failed++
		case StatusProcessing:
			status.Processing++
		default:
			status.Pending++
		}
	}

	if status.Total > 0 {
		status.Percent = (status.Completed + status.Failed) * 100 / status.Total
	}

	switch {
	case status.Completed+status.Failed < status.Total:
		if status.Processing > 0 {
			status.Status = StatusProcessing
		} else {
			status.Status = StatusPending
		}
	case status.Failed == 0:
		status.Status = StatusSuccess
	case status.Completed == 0:
		status.Status = StatusFailure
	default:
		status.Status = StatusPartial
	}

	return status
}
