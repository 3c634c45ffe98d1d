// Package worker runs statement conversions queued on asynq and records their
// outcome in Redis.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TypeConvertPDF is the asynq task type of a queued PDF conversion.
const TypeConvertPDF = "conversion:pdf"

const (
	maxRetry    = 3
	taskTimeout = 15 * time.Minute
)

// ConversionPayload names a PDF that is already in blob storage.
type ConversionPayload struct {
	UploadID  string `json:"uploadId"`
	SourceKey string `json:"sourceKey"`
	FileName  string `json:"fileName"`
	BankName  string `json:"bankName,omitempty"`
	MaxPages  int    `json:"maxPages,omitempty"`
}

// NewConversionTask builds the task for p.
func NewConversionTask(p ConversionPayload) (*asynq.Task, error) {
	if p.UploadID == "" || p.SourceKey == "" {
		return nil, fmt.Errorf("conversion task needs an upload id and a source key")
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode conversion payload: %w", err)
	}
	return asynq.NewTask(TypeConvertPDF, payload, asynq.MaxRetry(maxRetry), asynq.Timeout(taskTimeout)), nil
}

// Enqueue puts a conversion on queue and records it as queued.
func Enqueue(ctx context.Context, client *asynq.Client, statuses StatusStore, queue string, p ConversionPayload) (*asynq.TaskInfo, error) {
	task, err := NewConversionTask(p)
	if err != nil {
		return nil, err
	}
	var opts []asynq.Option
	if queue != "" {
		opts = append(opts, asynq.Queue(queue))
	}
	info, err := client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return nil, fmt.Errorf("enqueue conversion: %w", err)
	}
	if statuses != nil {
		if err := statuses.Set(ctx, Status{UploadID: p.UploadID, State: StateQueued, SourceKey: p.SourceKey}); err != nil {
			return info, err
		}
	}
	return info, nil
}
