package usecase

import (
	"context"
	"time"

	"snapword/internal/domain"
	"snapword/internal/ports"
)

type captureFinalizer struct {
	uploader ports.Uploader
	ledger   ports.CaptureLedger
	events   ports.EventSink
	now      func() time.Time
}

func newCaptureFinalizer(uploader ports.Uploader, ledger ports.CaptureLedger, events ports.EventSink) captureFinalizer {
	return captureFinalizer{uploader: uploader, ledger: ledger, events: events, now: time.Now}
}

// Deliver uploads the image once. Failures are reported and never retried.
func (f captureFinalizer) Deliver(ctx context.Context, active *activeCapture, result *domain.CaptureResult) {
	if f.uploader == nil {
		result.Status = domain.CaptureStatusUploadSkipped
		result.Error = "no uploader configured"
		return
	}

	uploaded, err := f.uploader.Upload(ctx, ports.UploadRequest{
		CaptureID: active.id,
		ImageURI:  result.ImageURI,
		Prompt:    active.prompt,
	})
	result.HTTPStatus = uploaded.StatusCode
	if err != nil {
		result.Status = domain.CaptureStatusUploadFailed
		result.Error = err.Error()
		active.logger.Error("upload failed", "error", err, "http_status", uploaded.StatusCode)
		f.events.Error(domain.ErrorCodeUpload, err.Error())
		return
	}

	result.Status = domain.CaptureStatusUploaded
	active.logger.Info("upload finished", "http_status", uploaded.StatusCode, "message", uploaded.Message)
}

// Record stamps, persists and publishes a finished run.
func (f captureFinalizer) Record(ctx context.Context, active *activeCapture, result *domain.CaptureResult) {
	result.FinishedAt = f.now()
	if f.ledger != nil {
		if err := f.ledger.Record(ctx, *result); err != nil {
			active.logger.Warn("ledger write failed", "error", err)
			f.events.Error(domain.ErrorCodeLedger, err.Error())
		}
	}
	f.events.CaptureFinished(*result)
}
