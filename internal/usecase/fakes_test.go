package usecase

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"snapword/internal/domain"
	"snapword/internal/ports"
)

type fakeEventSink struct {
	mu sync.Mutex

	pipelineStates []pipelineEvent
	recognition    []domain.RecognitionState
	recognizing    []bool
	live           []string
	prompts        []domain.CapturedPrompt
	finished       []domain.CaptureResult
	errors         []errEvent
}

type pipelineEvent struct {
	state  domain.PipelineState
	reason domain.PipelineReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) PipelineStateChanged(state domain.PipelineState, reason domain.PipelineReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pipelineStates = append(f.pipelineStates, pipelineEvent{state: state, reason: reason})
}

func (f *fakeEventSink) RecognitionStateChanged(state domain.RecognitionState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recognition = append(f.recognition, state)
}

func (f *fakeEventSink) RecognizingChanged(recognizing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recognizing = append(f.recognizing, recognizing)
}

func (f *fakeEventSink) LiveTranscript(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live = append(f.live, text)
}

func (f *fakeEventSink) PromptCaptured(prompt domain.CapturedPrompt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
}

func (f *fakeEventSink) CaptureFinished(result domain.CaptureResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, result)
}

func (f *fakeEventSink) Error(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotFinished() []domain.CaptureResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.CaptureResult, len(f.finished))
	copy(out, f.finished)
	return out
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) snapshotPipeline() []pipelineEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]pipelineEvent, len(f.pipelineStates))
	copy(out, f.pipelineStates)
	return out
}

func (f *fakeEventSink) hasError(code domain.ErrorCode) bool {
	for _, e := range f.snapshotErrors() {
		if e.code == code {
			return true
		}
	}
	return false
}

type fakeCue struct {
	mu    sync.Mutex
	plays int
	err   error
}

func (f *fakeCue) Play(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays++
	return f.err
}

type fakeCamera struct {
	mu      sync.Mutex
	frame   domain.Frame
	err     error
	calls   int
	release chan struct{}
	entered chan struct{}
}

func (f *fakeCamera) TakeStillFrame(ctx context.Context) (domain.Frame, error) {
	f.mu.Lock()
	f.calls++
	release, entered := f.release, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return domain.Frame{}, ctx.Err()
		}
	}
	return f.frame, f.err
}

func (f *fakeCamera) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeImages struct {
	mu        sync.Mutex
	crops     []image.Rectangle
	qualities []int
	cropErr   error
	encodeErr error
}

func (f *fakeImages) Crop(_ context.Context, frame domain.Frame, rect image.Rectangle) (domain.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cropErr != nil {
		return domain.Frame{}, f.cropErr
	}
	f.crops = append(f.crops, rect)
	return domain.Frame{URI: frame.URI + ".crop", Width: rect.Dx(), Height: rect.Dy()}, nil
}

func (f *fakeImages) Encode(_ context.Context, frame domain.Frame, quality int) (domain.EncodedImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.encodeErr != nil {
		return domain.EncodedImage{}, f.encodeErr
	}
	f.qualities = append(f.qualities, quality)
	return domain.EncodedImage{URI: frame.URI + ".jpg"}, nil
}

type fakeUploader struct {
	mu       sync.Mutex
	requests []ports.UploadRequest
	status   int
	err      error
}

func (f *fakeUploader) Upload(_ context.Context, req ports.UploadRequest) (ports.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	status := f.status
	if status == 0 {
		status = 200
	}
	return ports.UploadResult{StatusCode: status, Message: "images stored"}, f.err
}

func (f *fakeUploader) snapshot() []ports.UploadRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ports.UploadRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

type fakeLedger struct {
	mu      sync.Mutex
	results []domain.CaptureResult
	err     error
}

func (f *fakeLedger) Record(_ context.Context, result domain.CaptureResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, result)
	return f.err
}

type fakeVolume struct {
	mu       sync.Mutex
	volume   float64
	sets     []float64
	readErr  error
	setErr   error
	watchErr error
	onChange func(float64)
	stopped  bool
}

func (f *fakeVolume) Volume(_ context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume, f.readErr
}

func (f *fakeVolume) SetVolume(_ context.Context, volume float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, volume)
	if f.setErr != nil {
		return f.setErr
	}
	f.volume = volume
	return nil
}

func (f *fakeVolume) Watch(_ context.Context, onChange func(float64)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	f.onChange = onChange
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.stopped = true
	}, nil
}

// press simulates the hardware changing the volume.
func (f *fakeVolume) press(volume float64) {
	f.mu.Lock()
	f.volume = volume
	onChange := f.onChange
	f.mu.Unlock()
	if onChange != nil {
		onChange(volume)
	}
}

func (f *fakeVolume) snapshotSets() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]float64, len(f.sets))
	copy(out, f.sets)
	return out
}

type fakeForeground struct {
	mu          sync.Mutex
	active      bool
	subscribers []func(bool)
}

func (f *fakeForeground) IsForeground() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeForeground) Subscribe(fn func(bool)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers = append(f.subscribers, fn)
	return func() {}
}

func (f *fakeForeground) set(active bool) {
	f.mu.Lock()
	f.active = active
	subs := append([]func(bool){}, f.subscribers...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(active)
	}
}

type fakeRules struct {
	transform func(string) string
	err       error
}

func (f *fakeRules) Apply(text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.transform != nil {
		return f.transform(text), nil
	}
	return text, nil
}

type fakeEngine struct {
	mu      sync.Mutex
	streams []*fakeStream
	errs    []error
	calls   int
	opts    []ports.RecognitionOptions
}

func (f *fakeEngine) Start(_ context.Context, opts ports.RecognitionOptions) (ports.RecognitionStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.calls
	f.calls++
	f.opts = append(f.opts, opts)
	if call < len(f.errs) && f.errs[call] != nil {
		return nil, f.errs[call]
	}
	if call >= len(f.streams) {
		return nil, errors.New("no stream configured")
	}
	return f.streams[call], nil
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStream struct {
	events chan domain.RecognitionEvent
	mu     sync.Mutex
	stops  int
}

func newFakeStream(events ...domain.RecognitionEvent) *fakeStream {
	ch := make(chan domain.RecognitionEvent, len(events)+1)
	for _, e := range events {
		ch <- e
	}
	close(ch)
	return &fakeStream{events: ch}
}

func (f *fakeStream) Events() <-chan domain.RecognitionEvent { return f.events }

func (f *fakeStream) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
