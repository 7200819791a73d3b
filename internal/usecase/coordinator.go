package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"snapword/internal/domain"
	"snapword/internal/ports"
)

// Coordinator funnels voice prompts and manual triggers into the pipeline.
type Coordinator struct {
	detector   *Detector
	pipeline   *Pipeline
	trigger    *VolumeTrigger
	supervisor *RecognitionSupervisor
	rules      ports.PromptRules
	events     ports.EventSink
	logger     *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	pending *domain.CapturedPrompt
}

func NewCoordinator(
	detector *Detector,
	pipeline *Pipeline,
	trigger *VolumeTrigger,
	supervisor *RecognitionSupervisor,
	rules ports.PromptRules,
	events ports.EventSink,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		detector:   detector,
		pipeline:   pipeline,
		trigger:    trigger,
		supervisor: supervisor,
		rules:      rules,
		events:     sinkOrNoop(events),
		logger:     loggerOrDiscard(logger),
		ctx:        context.Background(),
	}
}

// Run wires both trigger sources and blocks until ctx ends.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	if err := c.trigger.Listen(ctx, c.ManualTrigger); err != nil {
		c.logger.Warn("manual trigger unavailable", "error", err)
		c.events.Error(domain.ErrorCodeVolume, err.Error())
	}
	defer c.trigger.Close()

	err := c.supervisor.Run(ctx, c.OnTranscript)
	if errors.Is(err, domain.ErrPermissionDenied) {
		c.logger.Warn("voice trigger disabled, manual trigger only")
		<-ctx.Done()
		return nil
	}
	return err
}

// OnTranscript feeds the detector and fires a capture when a prompt closes.
func (c *Coordinator) OnTranscript(event domain.TranscriptEvent) {
	prompt, ok := c.detector.OnTranscript(event)
	if !ok {
		return
	}
	c.mu.Lock()
	c.pending = &prompt
	c.mu.Unlock()
	c.dispatch(domain.TriggerSourceVoice)
}

// ManualTrigger fires a capture with the captured or accumulated prompt.
func (c *Coordinator) ManualTrigger() {
	c.dispatch(domain.TriggerSourceManual)
}

// Press behaves like a hardware button press, including the foreground gate.
// It reports false when the press was suppressed or nothing is listening yet.
func (c *Coordinator) Press() bool {
	return c.trigger.Fire()
}

// Reset clears any unclaimed prompt and the detector window.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
	c.detector.Reset()
}

// Status snapshots the coordinated components.
func (c *Coordinator) Status() domain.Status {
	c.mu.Lock()
	pending := ""
	if c.pending != nil {
		pending = c.pending.Text
	}
	c.mu.Unlock()
	if pending == "" {
		pending = c.detector.PendingPrompt()
	}

	return domain.Status{
		Pipeline:       c.pipeline.State(),
		Recognition:    c.detector.State(),
		Recognizing:    c.supervisor.Recognizing(),
		Foreground:     c.trigger.isForeground(),
		LiveTranscript: c.detector.LiveTranscript(),
		PendingPrompt:  pending,
	}
}

func (c *Coordinator) dispatch(source domain.TriggerSource) {
	c.mu.Lock()
	text, fromLive := "", false
	switch {
	case c.pending != nil:
		text = c.pending.Text
	case source == domain.TriggerSourceManual:
		text, fromLive = c.detector.PendingPrompt(), true
	}

	accepted := c.pipeline.Trigger(c.ctx, CaptureRequest{Source: source, Prompt: c.rewrite(text)})
	if accepted {
		c.pending = nil
	}
	c.mu.Unlock()

	if !accepted {
		c.logger.Info("trigger dropped, capture in progress", "source", source)
		return
	}
	if fromLive {
		c.detector.Reset()
	}
}

func (c *Coordinator) rewrite(text string) string {
	if c.rules == nil || text == "" {
		return text
	}
	out, err := c.rules.Apply(text)
	if err != nil {
		c.logger.Warn("prompt rules failed", "error", err)
		c.events.Error(domain.ErrorCodeRules, err.Error())
		return text
	}
	return out
}
