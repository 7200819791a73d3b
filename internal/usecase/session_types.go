package usecase

import (
	"log/slog"
	"time"

	"snapword/internal/domain"
)

// CaptureRequest is one trigger into the pipeline.
type CaptureRequest struct {
	Source domain.TriggerSource
	Prompt string
}

type activeCapture struct {
	id        string
	source    domain.TriggerSource
	prompt    string
	startedAt time.Time
	logger    *slog.Logger
}

func (a *activeCapture) result() domain.CaptureResult {
	return domain.CaptureResult{
		ID:        a.id,
		Source:    a.source,
		Prompt:    a.prompt,
		StartedAt: a.startedAt,
	}
}

func reasonForStatus(status domain.CaptureStatus) domain.PipelineReason {
	switch status {
	case domain.CaptureStatusUploaded:
		return domain.PipelineReasonUploaded
	case domain.CaptureStatusCameraFailed:
		return domain.PipelineReasonCaptureFailed
	default:
		return domain.PipelineReasonUploadFailed
	}
}
