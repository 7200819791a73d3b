package domain

import (
	"errors"
	"time"
)

// ErrPermissionDenied is returned by collaborators when the platform refuses
// microphone, camera or credential access. It is never retried automatically.
var ErrPermissionDenied = errors.New("permission denied")

// RecognitionState models the trigger-phrase detector lifecycle.
type RecognitionState string

const (
	RecognitionStateIdle  RecognitionState = "idle"
	RecognitionStateArmed RecognitionState = "armed"
)

// PipelineState models the single-flight capture/upload lifecycle.
type PipelineState string

const (
	PipelineStateIdle     PipelineState = "idle"
	PipelineStateRunning  PipelineState = "running"
	PipelineStateCooldown PipelineState = "cooldown"
)

// PipelineReason provides a structured reason for pipeline transitions.
type PipelineReason string

const (
	PipelineReasonReady          PipelineReason = "ready"
	PipelineReasonCaptureStarted PipelineReason = "capture_started"
	PipelineReasonUploaded       PipelineReason = "uploaded"
	PipelineReasonCaptureFailed  PipelineReason = "capture_failed"
	PipelineReasonUploadFailed   PipelineReason = "upload_failed"
	PipelineReasonCooldownEnded  PipelineReason = "cooldown_ended"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup     ErrorCode = "startup"
	ErrorCodeRecognition ErrorCode = "recognition"
	ErrorCodePermission  ErrorCode = "permission"
	ErrorCodeVolume      ErrorCode = "volume"
	ErrorCodeCue         ErrorCode = "cue"
	ErrorCodeCamera      ErrorCode = "camera"
	ErrorCodeCrop        ErrorCode = "crop"
	ErrorCodeUpload      ErrorCode = "upload"
	ErrorCodeLedger      ErrorCode = "ledger"
	ErrorCodeRules       ErrorCode = "rules"
)

// TriggerSource identifies what initiated a capture.
type TriggerSource string

const (
	TriggerSourceManual TriggerSource = "manual"
	TriggerSourceVoice  TriggerSource = "voice"
)

// TranscriptEvent is a single recognition result as it arrived.
type TranscriptEvent struct {
	Text       string    `json:"text"`
	IsFinal    bool      `json:"isFinal"`
	ObservedAt time.Time `json:"observedAt"`
}

// HistoryEntry is a retained final transcript inside the detector window.
type HistoryEntry struct {
	Transcript string    `json:"transcript"`
	Timestamp  time.Time `json:"timestamp"`
}

// CapturedPrompt is produced when an end phrase closes an armed window.
type CapturedPrompt struct {
	Text       string    `json:"text"`
	CapturedAt time.Time `json:"capturedAt"`
}

// RecognitionEventKind enumerates the recognition engine stream events.
type RecognitionEventKind string

const (
	RecognitionEventStart  RecognitionEventKind = "start"
	RecognitionEventResult RecognitionEventKind = "result"
	RecognitionEventError  RecognitionEventKind = "error"
	RecognitionEventEnd    RecognitionEventKind = "end"
)

// RecognitionEvent is emitted by a recognition engine stream.
type RecognitionEvent struct {
	Kind       RecognitionEventKind `json:"kind"`
	Transcript string               `json:"transcript,omitempty"`
	IsFinal    bool                 `json:"isFinal,omitempty"`
	Code       string               `json:"code,omitempty"`
	Message    string               `json:"message,omitempty"`
}

// Frame is a still image stored at URI.
type Frame struct {
	URI    string `json:"uri"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// EncodedImage is a re-encoded frame ready for upload.
type EncodedImage struct {
	URI string `json:"uri"`
}

// CaptureStatus summarizes how a capture run ended.
type CaptureStatus string

const (
	CaptureStatusUploaded      CaptureStatus = "uploaded"
	CaptureStatusCameraFailed  CaptureStatus = "camera_failed"
	CaptureStatusUploadFailed  CaptureStatus = "upload_failed"
	CaptureStatusUploadSkipped CaptureStatus = "upload_skipped"
)

// CaptureResult describes one completed capture/upload sequence.
type CaptureResult struct {
	ID         string        `json:"id"`
	Source     TriggerSource `json:"source"`
	Prompt     string        `json:"prompt"`
	Status     CaptureStatus `json:"status"`
	HTTPStatus int           `json:"httpStatus,omitempty"`
	Error      string        `json:"error,omitempty"`
	ImageURI   string        `json:"imageUri,omitempty"`
	Cropped    bool          `json:"cropped"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// Status summarizes the current runtime status.
type Status struct {
	Pipeline       PipelineState    `json:"pipeline"`
	Recognition    RecognitionState `json:"recognition"`
	Recognizing    bool             `json:"recognizing"`
	Foreground     bool             `json:"foreground"`
	LiveTranscript string           `json:"liveTranscript"`
	PendingPrompt  string           `json:"pendingPrompt"`
	LastCapture    *CaptureResult   `json:"lastCapture,omitempty"`
	Message        string           `json:"message,omitempty"`
}
