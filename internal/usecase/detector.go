package usecase

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"snapword/internal/domain"
	"snapword/internal/ports"
)

// DetectorConfig controls trigger-phrase detection.
type DetectorConfig struct {
	StartPhrases []string
	EndPhrases   []string
	// Window is the maximum age of a retained final transcript, relative to
	// the newest one. Zero disables age eviction.
	Window time.Duration
	// MaxEntries bounds the retained history. Zero disables the bound.
	MaxEntries int
	// ArmedTimeout drops an armed window that has not closed in time.
	// Zero keeps listening indefinitely.
	ArmedTimeout time.Duration
}

// Detector watches transcript events for a start phrase, accumulates final
// transcripts while armed and emits a captured prompt when an end phrase shows up.
type Detector struct {
	cfg     DetectorConfig
	matcher *phraseMatcher
	events  ports.EventSink
	logger  *slog.Logger

	mu      sync.Mutex
	state   domain.RecognitionState
	armedAt time.Time
	history []domain.HistoryEntry
	live    string
}

func NewDetector(cfg DetectorConfig, events ports.EventSink, logger *slog.Logger) *Detector {
	if len(cfg.StartPhrases) == 0 {
		cfg.StartPhrases = DefaultStartPhrases
	}
	if len(cfg.EndPhrases) == 0 {
		cfg.EndPhrases = DefaultEndPhrases
	}
	return &Detector{
		cfg:     cfg,
		matcher: newPhraseMatcher(cfg.StartPhrases, cfg.EndPhrases),
		events:  sinkOrNoop(events),
		logger:  loggerOrDiscard(logger),
		state:   domain.RecognitionStateIdle,
	}
}

// OnTranscript consumes one transcript event. It reports a captured prompt
// when the event closes an armed window.
func (d *Detector) OnTranscript(event domain.TranscriptEvent) (domain.CapturedPrompt, bool) {
	d.mu.Lock()
	previous := d.state
	prompt, captured := d.apply(event)
	state := d.state
	d.mu.Unlock()

	d.events.LiveTranscript(strings.TrimSpace(event.Text))
	if captured {
		d.events.LiveTranscript("")
	}
	if state != previous {
		d.events.RecognitionStateChanged(state)
	}
	if captured {
		d.events.PromptCaptured(prompt)
	}
	return prompt, captured
}

func (d *Detector) apply(event domain.TranscriptEvent) (domain.CapturedPrompt, bool) {
	text := strings.TrimSpace(event.Text)
	d.live = text
	if !event.IsFinal || text == "" {
		return domain.CapturedPrompt{}, false
	}

	at := event.ObservedAt
	if at.IsZero() {
		at = time.Now()
	}
	normalized := d.matcher.normalize(text)

	if d.state == domain.RecognitionStateArmed && d.cfg.ArmedTimeout > 0 && at.Sub(d.armedAt) > d.cfg.ArmedTimeout {
		d.logger.Info("armed window timed out", "armed_for", at.Sub(d.armedAt))
		d.clear()
	}

	switch d.state {
	case domain.RecognitionStateIdle:
		phrase, ok := d.matcher.matchStart(normalized)
		if !ok {
			return domain.CapturedPrompt{}, false
		}
		d.state = domain.RecognitionStateArmed
		d.armedAt = at
		d.history = []domain.HistoryEntry{{Transcript: text, Timestamp: at}}
		d.logger.Info("start phrase detected", "phrase", phrase)
		return domain.CapturedPrompt{}, false

	case domain.RecognitionStateArmed:
		d.history = append(d.history, domain.HistoryEntry{Transcript: text, Timestamp: at})
		d.evict(at)

		window := d.windowText()
		phrase, ok := d.matcher.matchEnd(window)
		if !ok {
			return domain.CapturedPrompt{}, false
		}
		prompt := domain.CapturedPrompt{Text: d.matcher.strip(window, phrase), CapturedAt: at}
		d.logger.Info("end phrase detected", "phrase", phrase, "prompt", prompt.Text)
		d.clear()
		return prompt, true
	}
	return domain.CapturedPrompt{}, false
}

func (d *Detector) evict(now time.Time) {
	if d.cfg.Window > 0 {
		d.history = lo.Filter(d.history, func(entry domain.HistoryEntry, _ int) bool {
			return now.Sub(entry.Timestamp) <= d.cfg.Window
		})
	}
	if d.cfg.MaxEntries > 0 && len(d.history) > d.cfg.MaxEntries {
		d.history = d.history[len(d.history)-d.cfg.MaxEntries:]
	}
}

func (d *Detector) windowText() string {
	transcripts := lo.Map(d.history, func(entry domain.HistoryEntry, _ int) string {
		return entry.Transcript
	})
	return d.matcher.normalize(strings.Join(transcripts, " "))
}

func (d *Detector) clear() {
	d.history = nil
	d.live = ""
	d.armedAt = time.Time{}
	d.state = domain.RecognitionStateIdle
}

// Reset drops any armed window and returns to idle.
func (d *Detector) Reset() {
	d.mu.Lock()
	previous := d.state
	d.clear()
	d.mu.Unlock()

	d.events.LiveTranscript("")
	if previous != domain.RecognitionStateIdle {
		d.events.RecognitionStateChanged(domain.RecognitionStateIdle)
	}
}

// PendingPrompt returns the prompt text accumulated so far in an armed window.
func (d *Detector) PendingPrompt() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != domain.RecognitionStateArmed {
		return ""
	}
	return d.matcher.strip(d.windowText(), "")
}

func (d *Detector) State() domain.RecognitionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Detector) LiveTranscript() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

// History returns a copy of the retained window.
func (d *Detector) History() []domain.HistoryEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.HistoryEntry, len(d.history))
	copy(out, d.history)
	return out
}
