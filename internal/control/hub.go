package control

import (
	"sync"
	"time"

	"snapword/internal/domain"
)

const maxRecentErrors = 20

// ErrorEntry is one reported backend error.
type ErrorEntry struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Detail  string           `json:"detail"`
	At      time.Time        `json:"at"`
}

// Snapshot is the latest state observed through the event sink.
type Snapshot struct {
	Pipeline    domain.PipelineState    `json:"pipeline"`
	Recognition domain.RecognitionState `json:"recognition"`
	Recognizing bool                    `json:"recognizing"`
	Live        string                  `json:"liveTranscript"`
	LastPrompt  *domain.CapturedPrompt  `json:"lastPrompt,omitempty"`
	LastCapture *domain.CaptureResult   `json:"lastCapture,omitempty"`
	Message     string                  `json:"message"`
	Errors      []ErrorEntry            `json:"errors"`
}

// Hub implements ports.EventSink and keeps the latest snapshot for the API.
type Hub struct {
	describeReason func(domain.PipelineReason) string
	describeError  func(domain.ErrorCode, string) string
	now            func() time.Time

	mu       sync.Mutex
	snapshot Snapshot
}

// NewHub creates a hub. The describe functions turn reasons and error codes
// into human-readable messages and may be nil.
func NewHub(describeReason func(domain.PipelineReason) string, describeError func(domain.ErrorCode, string) string) *Hub {
	return &Hub{
		describeReason: describeReason,
		describeError:  describeError,
		now:            time.Now,
		snapshot: Snapshot{
			Pipeline:    domain.PipelineStateIdle,
			Recognition: domain.RecognitionStateIdle,
		},
	}
}

func (h *Hub) PipelineStateChanged(state domain.PipelineState, reason domain.PipelineReason) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot.Pipeline = state
	if h.describeReason != nil {
		h.snapshot.Message = h.describeReason(reason)
	} else {
		h.snapshot.Message = string(reason)
	}
}

func (h *Hub) RecognitionStateChanged(state domain.RecognitionState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot.Recognition = state
}

func (h *Hub) RecognizingChanged(recognizing bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot.Recognizing = recognizing
}

func (h *Hub) LiveTranscript(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot.Live = text
}

func (h *Hub) PromptCaptured(prompt domain.CapturedPrompt) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot.LastPrompt = &prompt
}

func (h *Hub) CaptureFinished(result domain.CaptureResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot.LastCapture = &result
}

func (h *Hub) Error(code domain.ErrorCode, detail string) {
	message := detail
	if h.describeError != nil {
		message = h.describeError(code, detail)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot.Errors = append(h.snapshot.Errors, ErrorEntry{Code: code, Message: message, Detail: detail, At: h.now()})
	if overflow := len(h.snapshot.Errors) - maxRecentErrors; overflow > 0 {
		h.snapshot.Errors = append([]ErrorEntry(nil), h.snapshot.Errors[overflow:]...)
	}
}

// Snapshot returns a copy of the latest state.
func (h *Hub) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.snapshot
	out.Errors = append([]ErrorEntry{}, h.snapshot.Errors...)
	if h.snapshot.LastPrompt != nil {
		prompt := *h.snapshot.LastPrompt
		out.LastPrompt = &prompt
	}
	if h.snapshot.LastCapture != nil {
		capture := *h.snapshot.LastCapture
		out.LastCapture = &capture
	}
	return out
}
