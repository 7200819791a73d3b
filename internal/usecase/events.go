package usecase

import (
	"context"
	"io"
	"log/slog"
	"time"

	"snapword/internal/domain"
	"snapword/internal/ports"
)

func loggerOrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}

func sinkOrNoop(events ports.EventSink) ports.EventSink {
	if events == nil {
		return noopEventSink{}
	}
	return events
}

type noopEventSink struct{}

func (noopEventSink) PipelineStateChanged(domain.PipelineState, domain.PipelineReason) {}
func (noopEventSink) RecognitionStateChanged(domain.RecognitionState)                  {}
func (noopEventSink) RecognizingChanged(bool)                                          {}
func (noopEventSink) LiveTranscript(string)                                            {}
func (noopEventSink) PromptCaptured(domain.CapturedPrompt)                             {}
func (noopEventSink) CaptureFinished(domain.CaptureResult)                             {}
func (noopEventSink) Error(domain.ErrorCode, string)                                   {}

// sleepContext waits for d and reports whether it elapsed before ctx ended.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
