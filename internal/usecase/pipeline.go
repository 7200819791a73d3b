package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"snapword/internal/domain"
	"snapword/internal/ports"
)

var ErrPipelineBusy = errors.New("capture pipeline is busy")

// PipelineConfig controls the capture sequence timing and output.
type PipelineConfig struct {
	ShutterDelay time.Duration
	Cooldown     time.Duration
	JPEGQuality  int
}

// Pipeline runs at most one capture/upload sequence at a time.
type Pipeline struct {
	cue       ports.CuePlayer
	camera    ports.Camera
	images    ports.ImageProcessor
	finalizer captureFinalizer
	events    ports.EventSink
	logger    *slog.Logger
	cfg       PipelineConfig
	now       func() time.Time
	newID     func() string

	mu       sync.Mutex
	state    domain.PipelineState
	cooldown *time.Timer
	inflight sync.WaitGroup
}

func NewPipeline(
	cue ports.CuePlayer,
	camera ports.Camera,
	images ports.ImageProcessor,
	uploader ports.Uploader,
	ledger ports.CaptureLedger,
	events ports.EventSink,
	logger *slog.Logger,
	cfg PipelineConfig,
) *Pipeline {
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 30
	}
	events = sinkOrNoop(events)
	return &Pipeline{
		cue:       cue,
		camera:    camera,
		images:    images,
		finalizer: newCaptureFinalizer(uploader, ledger, events),
		events:    events,
		logger:    loggerOrDiscard(logger),
		cfg:       cfg,
		now:       time.Now,
		newID:     uuid.NewString,
		state:     domain.PipelineStateIdle,
	}
}

// Trigger starts a capture in the background. It reports false when the
// trigger was dropped because a capture is running or cooling down.
func (p *Pipeline) Trigger(ctx context.Context, req CaptureRequest) bool {
	active, err := p.begin(req)
	if err != nil {
		return false
	}
	go func() {
		defer p.inflight.Done()
		p.run(ctx, active)
	}()
	return true
}

// Capture runs a capture synchronously. It returns ErrPipelineBusy when the
// trigger was dropped.
func (p *Pipeline) Capture(ctx context.Context, req CaptureRequest) (domain.CaptureResult, error) {
	active, err := p.begin(req)
	if err != nil {
		return domain.CaptureResult{}, err
	}
	defer p.inflight.Done()
	return p.run(ctx, active), nil
}

// Wait blocks until no capture sequence is in flight.
func (p *Pipeline) Wait() {
	p.inflight.Wait()
}

func (p *Pipeline) State() domain.PipelineState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) begin(req CaptureRequest) (*activeCapture, error) {
	p.mu.Lock()
	if p.state != domain.PipelineStateIdle {
		state := p.state
		p.mu.Unlock()
		p.logger.Debug("trigger dropped", "state", state, "source", req.Source)
		return nil, ErrPipelineBusy
	}
	p.state = domain.PipelineStateRunning
	p.inflight.Add(1)
	p.mu.Unlock()

	id := p.newID()
	active := &activeCapture{
		id:        id,
		source:    req.Source,
		prompt:    req.Prompt,
		startedAt: p.now(),
		logger:    p.logger.With("capture_id", id, "source", req.Source),
	}
	active.logger.Info("capture started", "prompt", req.Prompt)
	p.events.PipelineStateChanged(domain.PipelineStateRunning, domain.PipelineReasonCaptureStarted)
	return active, nil
}

func (p *Pipeline) run(ctx context.Context, active *activeCapture) (result domain.CaptureResult) {
	// Stages are not cancellable once started.
	ctx = context.WithoutCancel(ctx)
	result = active.result()
	defer func() {
		p.finalizer.Record(ctx, active, &result)
		p.finish(reasonForStatus(result.Status))
	}()

	p.playCue(ctx, active)
	sleepContext(ctx, p.cfg.ShutterDelay)

	frame, err := p.camera.TakeStillFrame(ctx)
	if err != nil {
		result.Status = domain.CaptureStatusCameraFailed
		result.Error = err.Error()
		active.logger.Error("still capture failed", "error", err)
		p.events.Error(domain.ErrorCodeCamera, err.Error())
		return result
	}

	result.ImageURI, result.Cropped = p.cropAndEncode(ctx, active, frame)
	p.finalizer.Deliver(ctx, active, &result)
	return result
}

func (p *Pipeline) playCue(ctx context.Context, active *activeCapture) {
	if p.cue == nil {
		return
	}
	if err := p.cue.Play(ctx); err != nil {
		active.logger.Warn("cue playback failed", "error", err)
		p.events.Error(domain.ErrorCodeCue, err.Error())
	}
}

// cropAndEncode falls back to the original frame when any step fails.
func (p *Pipeline) cropAndEncode(ctx context.Context, active *activeCapture, frame domain.Frame) (string, bool) {
	encoded, err := p.processFrame(ctx, frame)
	if err != nil {
		active.logger.Warn("crop failed, uploading original frame", "error", err)
		p.events.Error(domain.ErrorCodeCrop, err.Error())
		return frame.URI, false
	}
	return encoded.URI, true
}

func (p *Pipeline) processFrame(ctx context.Context, frame domain.Frame) (domain.EncodedImage, error) {
	if p.images == nil {
		return domain.EncodedImage{}, errors.New("no image processor configured")
	}
	first, second := CropPlan(frame.Width, frame.Height)
	if first.Empty() || second.Empty() {
		return domain.EncodedImage{}, fmt.Errorf("invalid frame dimensions %dx%d", frame.Width, frame.Height)
	}

	cropped, err := p.images.Crop(ctx, frame, first)
	if err != nil {
		return domain.EncodedImage{}, fmt.Errorf("crop lower half: %w", err)
	}
	cropped, err = p.images.Crop(ctx, cropped, second)
	if err != nil {
		return domain.EncodedImage{}, fmt.Errorf("crop aspect: %w", err)
	}
	encoded, err := p.images.Encode(ctx, cropped, p.cfg.JPEGQuality)
	if err != nil {
		return domain.EncodedImage{}, fmt.Errorf("encode: %w", err)
	}
	return encoded, nil
}

func (p *Pipeline) finish(reason domain.PipelineReason) {
	p.mu.Lock()
	if p.cfg.Cooldown <= 0 {
		p.state = domain.PipelineStateIdle
		p.mu.Unlock()
		p.events.PipelineStateChanged(domain.PipelineStateIdle, reason)
		return
	}
	p.state = domain.PipelineStateCooldown
	p.cooldown = time.AfterFunc(p.cfg.Cooldown, p.endCooldown)
	p.mu.Unlock()

	p.events.PipelineStateChanged(domain.PipelineStateCooldown, reason)
}

func (p *Pipeline) endCooldown() {
	p.mu.Lock()
	if p.state != domain.PipelineStateCooldown {
		p.mu.Unlock()
		return
	}
	p.state = domain.PipelineStateIdle
	p.cooldown = nil
	p.mu.Unlock()

	p.events.PipelineStateChanged(domain.PipelineStateIdle, domain.PipelineReasonCooldownEnded)
}
