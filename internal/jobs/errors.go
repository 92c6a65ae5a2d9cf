package jobs

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound はレコードが存在しない（期限切れ含む）ことを表します。
	// 期待される結果であり、インフラ障害とは区別されます。
	ErrNotFound = errors.New("jobs: record not found")

	// ErrQueueFull は変換待ちキューが満杯で受け付けられないことを表します。
	ErrQueueFull = errors.New("jobs: conversion queue is full")

	// ErrNoResults はバッチに成功ジョブが1件もないことを表します。
	ErrNoResults = errors.New("jobs: batch has no successful results")

	// ErrResultNotReady はジョブが成功状態に達していないことを表します。
	ErrResultNotReady = errors.New("jobs: result is not ready")

	// errAlreadyClaimed はクレーム競合の敗者側が観測する内部エラーです。
	errAlreadyClaimed = errors.New("jobs: job already claimed")
)

// StoreError は一時的なストア障害を表します。呼び出し側は規定回数まで再試行します。
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("jobs: store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

const (
	storeRetryAttempts = 3
	storeRetryBackoff  = 50 * time.Millisecond
)

// withRetry は一時的なストア障害（*StoreError）に限り再試行します。
func withRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < storeRetryAttempts; attempt++ {
		err = fn()
		var storeErr *StoreError
		if err == nil || !errors.As(err, &storeErr) {
			return err
		}
		time.Sleep(storeRetryBackoff << attempt)
	}
	return err
}
