package jobs

import "testing"

func record(id string, status Status) *JobRecord {
	return &JobRecord{JobID: id, Filename: id + ".heic", Status: status}
}

func TestAggregateAllPending(t *testing.T) {
	batch := &BatchRecord{BatchID: "b", JobIDs: []string{"j1", "j2"}, TotalFiles: 2}
	status := Aggregate(batch, map[string]*JobRecord{
		"j1": record("j1", StatusPending),
		"j2": record("j2", StatusPending),
	})

	if status.Status != StatusPending {
		t.Fatalf("status = %s, want PENDING", status.Status)
	}
	if status.Percent != 0 {
		t.Fatalf("percent = %d, want 0", status.Percent)
	}
}

func TestAggregateProcessing(t *testing.T) {
	batch := &BatchRecord{BatchID: "b", JobIDs: []string{"j1", "j2", "j3"}, TotalFiles: 3}
	status := Aggregate(batch, map[string]*JobRecord{
		"j1": record("j1", StatusSuccess),
		"j2": record("j2", StatusProcessing),
		"j3": record("j3", StatusPending),
	})

	if status.Status != StatusProcessing {
		t.Fatalf("status = %s, want PROCESSING", status.Status)
	}
	if status.Completed != 1 || status.Processing != 1 || status.Pending != 1 {
		t.Fatalf("unexpected counts: %#v", status)
	}
	if status.Percent != 33 {
		t.Fatalf("percent = %d, want 33", status.Percent)
	}
}

func TestAggregateAllSuccess(t *testing.T) {
	batch := &BatchRecord{BatchID: "b", JobIDs: []string{"j1", "j2"}, TotalFiles: 2}
	status := Aggregate(batch, map[string]*JobRecord{
		"j1": record("j1", StatusSuccess),
		"j2": record("j2", StatusSuccess),
	})

	if status.Status != StatusSuccess {
		t.Fatalf("status = %s, want SUCCESS", status.Status)
	}
	if status.Percent != 100 {
		t.Fatalf("percent = %d, want 100", status.Percent)
	}
}

func TestAggregateAllFailed(t *testing.T) {
	batch := &BatchRecord{BatchID: "b", JobIDs: []string{"j1", "j2"}, TotalFiles: 2}
	status := Aggregate(batch, map[string]*JobRecord{
		"j1": record("j1", StatusFailure),
		"j2": record("j2", StatusFailure),
	})

	if status.Status != StatusFailure {
		t.Fatalf("status = %s, want FAILURE", status.Status)
	}
}

func TestAggregatePartial(t *testing.T) {
	batch := &BatchRecord{BatchID: "b", JobIDs: []string{"j1", "j2", "j3"}, TotalFiles: 3}
	status := Aggregate(batch, map[string]*JobRecord{
		"j1": record("j1", StatusSuccess),
		"j2": record("j2", StatusFailure),
		"j3": record("j3", StatusSuccess),
	})

	if status.Status != StatusPartial {
		t.Fatalf("status = %s, want PARTIAL", status.Status)
	}
	if status.Completed != 2 || status.Failed != 1 {
		t.Fatalf("unexpected counts: completed=%d failed=%d", status.Completed, status.Failed)
	}
	if status.Percent != 100 {
		t.Fatalf("percent = %d, want 100", status.Percent)
	}
}

func TestAggregateMissingJobCountsAsFailed(t *testing.T) {
	batch := &BatchRecord{BatchID: "b", JobIDs: []string{"j1", "j2"}, TotalFiles: 2}
	status := Aggregate(batch, map[string]*JobRecord{
		"j1": record("j1", StatusSuccess),
	})

	if status.Status != StatusPartial {
		t.Fatalf("status = %s, want PARTIAL", status.Status)
	}
	if status.Failed != 1 {
		t.Fatalf("failed = %d, want 1", status.Failed)
	}

	var missing *FileStatus
	for i := range status.Files {
		if status.Files[i].JobID == "j2" {
			missing = &status.Files[i]
		}
	}
	if missing == nil {
		t.Fatal("missing job must still appear in the file list")
	}
	if missing.Status != StatusFailure || missing.Error == nil || missing.Error.Code != "EXPIRED" {
		t.Fatalf("unexpected entry for missing job: %#v", missing)
	}
}
