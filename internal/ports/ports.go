package ports

import (
	"context"
	"image"
	"io"

	"snapword/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// RecognitionOptions mirrors the engine start command.
type RecognitionOptions struct {
	Language       string
	InterimResults bool
	Continuous     bool
	SilenceHintMS  int
}

// RecognitionStream is one started recognition run. Events is closed when the
// engine ends the stream, which is equivalent to an end event.
type RecognitionStream interface {
	Events() <-chan domain.RecognitionEvent
	Stop() error
}

// RecognitionEngine starts speech recognition streams.
type RecognitionEngine interface {
	Start(ctx context.Context, opts RecognitionOptions) (RecognitionStream, error)
}

// Camera takes still frames from the active camera session.
type Camera interface {
	TakeStillFrame(ctx context.Context) (domain.Frame, error)
}

// ImageProcessor crops and re-encodes frames.
type ImageProcessor interface {
	Crop(ctx context.Context, frame domain.Frame, rect image.Rectangle) (domain.Frame, error)
	Encode(ctx context.Context, frame domain.Frame, quality int) (domain.EncodedImage, error)
}

// UploadRequest is one photo and its prompt text.
type UploadRequest struct {
	CaptureID string
	ImageURI  string
	Prompt    string
}

// UploadResult is the accepted server response.
type UploadResult struct {
	StatusCode int
	Message    string
}

// Uploader sends captured photos to the remote endpoint.
type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (UploadResult, error)
}

// CuePlayer restarts the preloaded shutter cue from the beginning.
type CuePlayer interface {
	Play(ctx context.Context) error
}

// VolumeControl reads, writes and watches the output volume (0..1).
type VolumeControl interface {
	Volume(ctx context.Context) (float64, error)
	SetVolume(ctx context.Context, volume float64) error
	Watch(ctx context.Context, onChange func(volume float64)) (stop func(), err error)
}

// Foreground reports whether the application is in the foreground.
type Foreground interface {
	IsForeground() bool
	Subscribe(fn func(active bool)) (cancel func())
}

// PromptRules rewrites prompt text deterministically.
type PromptRules interface {
	Apply(text string) (string, error)
}

// CaptureLedger persists completed capture runs.
type CaptureLedger interface {
	Record(ctx context.Context, result domain.CaptureResult) error
}

// EventSink receives backend state/events.
type EventSink interface {
	PipelineStateChanged(state domain.PipelineState, reason domain.PipelineReason)
	RecognitionStateChanged(state domain.RecognitionState)
	RecognizingChanged(recognizing bool)
	LiveTranscript(text string)
	PromptCaptured(prompt domain.CapturedPrompt)
	CaptureFinished(result domain.CaptureResult)
	Error(code domain.ErrorCode, detail string)
}
