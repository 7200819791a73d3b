package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"snapword/internal/domain"
	"snapword/internal/ports"
)

type coordinatorFixture struct {
	*pipelineFixture
	volume      *fakeVolume
	foreground  *fakeForeground
	engine      *fakeEngine
	detector    *Detector
	coordinator *Coordinator
}

func newCoordinatorFixture(rules ports.PromptRules, engine *fakeEngine) *coordinatorFixture {
	p := newPipelineFixture(PipelineConfig{})
	f := &coordinatorFixture{
		pipelineFixture: p,
		volume:          &fakeVolume{volume: 0.70},
		foreground:      &fakeForeground{active: true},
		engine:          engine,
	}
	if f.engine == nil {
		f.engine = &fakeEngine{}
	}
	f.detector = NewDetector(DetectorConfig{Window: 20 * time.Second, MaxEntries: 10}, p.events, nil)
	trigger := NewVolumeTrigger(f.volume, f.foreground, p.events, nil, VolumeTriggerConfig{})
	supervisor := NewRecognitionSupervisor(f.engine, p.events, nil, SupervisorConfig{RetryDelay: time.Hour})
	f.coordinator = NewCoordinator(f.detector, p.pipeline, trigger, supervisor, rules, p.events, nil)
	return f
}

func (f *coordinatorFixture) run(t *testing.T) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.coordinator.Run(ctx) }()
	waitFor(t, "volume listener", func() bool {
		f.volume.mu.Lock()
		defer f.volume.mu.Unlock()
		return f.volume.onChange != nil
	})
	return func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("coordinator stopped with error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Errorf("coordinator did not stop")
		}
		f.pipeline.Wait()
	}
}

func (f *coordinatorFixture) uploadedPrompts() []string {
	var prompts []string
	for _, req := range f.uploader.snapshot() {
		prompts = append(prompts, req.Prompt)
	}
	return prompts
}

func TestCoordinatorVoicePromptTriggersCapture(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{streams: []*fakeStream{newFakeStream(
		domain.RecognitionEvent{Kind: domain.RecognitionEventStart},
		domain.RecognitionEvent{Kind: domain.RecognitionEventResult, Transcript: "okay camera make it", IsFinal: true},
		domain.RecognitionEvent{Kind: domain.RecognitionEventResult, Transcript: "snow", IsFinal: true},
		domain.RecognitionEvent{Kind: domain.RecognitionEventResult, Transcript: "one two three", IsFinal: true},
	)}}
	f := newCoordinatorFixture(nil, engine)
	stop := f.run(t)
	defer stop()

	waitFor(t, "voice capture", func() bool { return len(f.events.snapshotFinished()) == 1 })
	finished := f.events.snapshotFinished()[0]
	if finished.Source != domain.TriggerSourceVoice || finished.Prompt != "make it snow" {
		t.Fatalf("unexpected capture: %+v", finished)
	}
	if got := f.uploadedPrompts(); len(got) != 1 || got[0] != "make it snow" {
		t.Fatalf("unexpected uploads: %v", got)
	}
	if f.coordinator.Status().PendingPrompt != "" {
		t.Fatalf("expected prompt to be claimed")
	}
}

func TestCoordinatorManualTriggerUsesLiveWindow(t *testing.T) {
	t.Parallel()

	f := newCoordinatorFixture(nil, nil)
	f.coordinator.OnTranscript(final("okay camera add a hat", 0))
	if got := f.coordinator.Status().PendingPrompt; got != "add a hat" {
		t.Fatalf("unexpected pending prompt: %q", got)
	}

	f.coordinator.ManualTrigger()
	f.pipeline.Wait()

	if got := f.uploadedPrompts(); len(got) != 1 || got[0] != "add a hat" {
		t.Fatalf("unexpected uploads: %v", got)
	}
	if f.detector.State() != domain.RecognitionStateIdle || len(f.detector.History()) != 0 {
		t.Fatalf("expected detector reset after manual capture")
	}
}

func TestCoordinatorManualTriggerWithoutPrompt(t *testing.T) {
	t.Parallel()

	f := newCoordinatorFixture(nil, nil)
	f.coordinator.ManualTrigger()
	f.pipeline.Wait()

	finished := f.events.snapshotFinished()
	if len(finished) != 1 || finished[0].Prompt != "" || finished[0].Source != domain.TriggerSourceManual {
		t.Fatalf("unexpected capture: %+v", finished)
	}
}

func TestCoordinatorBackgroundSuppressesPress(t *testing.T) {
	t.Parallel()

	f := newCoordinatorFixture(nil, nil)
	f.foreground.active = false
	stop := f.run(t)
	defer stop()

	f.volume.press(0.8)
	if f.coordinator.Press() {
		t.Fatalf("expected press to be suppressed in background")
	}
	f.pipeline.Wait()
	if f.camera.callCount() != 0 {
		t.Fatalf("expected no capture while backgrounded")
	}

	f.foreground.set(true)
	f.volume.press(0.8)
	waitFor(t, "foreground capture", func() bool { return len(f.events.snapshotFinished()) == 1 })
}

func TestCoordinatorKeepsPromptWhenDropped(t *testing.T) {
	t.Parallel()

	f := newCoordinatorFixture(nil, nil)
	f.camera.release = make(chan struct{})
	f.camera.entered = make(chan struct{}, 4)

	f.coordinator.ManualTrigger()
	<-f.camera.entered

	f.coordinator.OnTranscript(final("hey camera add a crown", 0))
	f.coordinator.OnTranscript(final("one two three", time.Second))
	if got := f.coordinator.Status().PendingPrompt; got != "add a crown" {
		t.Fatalf("expected dropped prompt to stay pending, got %q", got)
	}

	close(f.camera.release)
	f.pipeline.Wait()

	f.coordinator.ManualTrigger()
	f.pipeline.Wait()

	got := f.uploadedPrompts()
	if len(got) != 2 || got[0] != "" || got[1] != "add a crown" {
		t.Fatalf("unexpected uploads: %v", got)
	}
	if f.coordinator.Status().PendingPrompt != "" {
		t.Fatalf("expected prompt to be claimed")
	}
}

func TestCoordinatorAppliesPromptRules(t *testing.T) {
	t.Parallel()

	f := newCoordinatorFixture(&fakeRules{transform: strings.ToUpper}, nil)
	f.coordinator.OnTranscript(final("ok camera a dragon", 0))
	f.coordinator.OnTranscript(final("3 2 1", time.Second))
	f.pipeline.Wait()

	if got := f.uploadedPrompts(); len(got) != 1 || got[0] != "A DRAGON" {
		t.Fatalf("unexpected uploads: %v", got)
	}
}

func TestCoordinatorRuleFailureKeepsOriginalPrompt(t *testing.T) {
	t.Parallel()

	f := newCoordinatorFixture(&fakeRules{err: errors.New("bad rule")}, nil)
	f.coordinator.OnTranscript(final("ok camera a dragon", 0))
	f.coordinator.OnTranscript(final("3 2 1", time.Second))
	f.pipeline.Wait()

	if got := f.uploadedPrompts(); len(got) != 1 || got[0] != "a dragon" {
		t.Fatalf("unexpected uploads: %v", got)
	}
	if !f.events.hasError(domain.ErrorCodeRules) {
		t.Fatalf("expected rules error event")
	}
}

func TestCoordinatorSurvivesPermissionDenied(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{errs: []error{fmt.Errorf("key rejected: %w", domain.ErrPermissionDenied)}}
	f := newCoordinatorFixture(nil, engine)
	stop := f.run(t)
	defer stop()

	waitFor(t, "permission error", func() bool { return f.events.hasError(domain.ErrorCodePermission) })
	if !f.coordinator.Press() {
		t.Fatalf("expected manual trigger to stay available")
	}
	waitFor(t, "manual capture", func() bool { return len(f.events.snapshotFinished()) == 1 })
}

func TestCoordinatorReset(t *testing.T) {
	t.Parallel()

	f := newCoordinatorFixture(nil, nil)
	f.coordinator.OnTranscript(final("okay camera sparkles", 0))
	f.coordinator.Reset()

	status := f.coordinator.Status()
	if status.PendingPrompt != "" || status.Recognition != domain.RecognitionStateIdle {
		t.Fatalf("unexpected status after reset: %+v", status)
	}
}
