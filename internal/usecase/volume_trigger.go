package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/bep/debounce"

	"snapword/internal/domain"
	"snapword/internal/ports"
)

var ErrAlreadyListening = errors.New("trigger source already has a listener")

// volumeTolerance absorbs rounding by the mixer (percent steps).
const volumeTolerance = 0.005

// VolumeTriggerConfig controls the hardware volume trigger.
type VolumeTriggerConfig struct {
	ReferenceVolume float64
	// Debounce coalesces bursts of raw volume events. Zero fires immediately.
	Debounce time.Duration
}

// VolumeTrigger turns volume button presses into manual capture triggers.
// Every observed change away from the reference level fires once and the
// level is forced back so the next press is observable again.
type VolumeTrigger struct {
	volume     ports.VolumeControl
	foreground ports.Foreground
	events     ports.EventSink
	logger     *slog.Logger
	cfg        VolumeTriggerConfig
	debounced  func(f func())

	mu        sync.Mutex
	listener  func()
	stopWatch func()
	cancelFg  func()
}

func NewVolumeTrigger(volume ports.VolumeControl, foreground ports.Foreground, events ports.EventSink, logger *slog.Logger, cfg VolumeTriggerConfig) *VolumeTrigger {
	if cfg.ReferenceVolume <= 0 || cfg.ReferenceVolume > 1 {
		cfg.ReferenceVolume = 0.70
	}
	t := &VolumeTrigger{
		volume:     volume,
		foreground: foreground,
		events:     sinkOrNoop(events),
		logger:     loggerOrDiscard(logger),
		cfg:        cfg,
	}
	if cfg.Debounce > 0 {
		t.debounced = debounce.New(cfg.Debounce)
	}
	return t
}

// Listen registers the single trigger listener and starts watching volume.
func (t *VolumeTrigger) Listen(ctx context.Context, listener func()) error {
	if listener == nil {
		return errors.New("trigger listener is nil")
	}
	t.mu.Lock()
	if t.listener != nil {
		t.mu.Unlock()
		return ErrAlreadyListening
	}
	t.listener = listener
	t.mu.Unlock()

	if t.volume == nil {
		return nil
	}

	t.normalize(ctx)
	var cancelFg func()
	if t.foreground != nil {
		cancelFg = t.foreground.Subscribe(func(active bool) {
			if active {
				t.normalize(ctx)
			}
		})
	}

	stop, err := t.volume.Watch(ctx, func(volume float64) {
		t.onVolume(ctx, volume)
	})
	if err != nil {
		if cancelFg != nil {
			cancelFg()
		}
		return fmt.Errorf("watch volume: %w", err)
	}

	t.mu.Lock()
	t.stopWatch = stop
	t.cancelFg = cancelFg
	t.mu.Unlock()
	return nil
}

// Fire forwards a trigger through the foreground gate, as a volume press would.
func (t *VolumeTrigger) Fire() bool {
	if !t.isForeground() {
		t.logger.Info("manual trigger suppressed in background")
		return false
	}
	return t.dispatch()
}

// Close stops watching volume and foreground changes.
func (t *VolumeTrigger) Close() {
	t.mu.Lock()
	stop, cancelFg := t.stopWatch, t.cancelFg
	t.stopWatch, t.cancelFg = nil, nil
	t.mu.Unlock()

	if stop != nil {
		stop()
	}
	if cancelFg != nil {
		cancelFg()
	}
}

func (t *VolumeTrigger) onVolume(ctx context.Context, volume float64) {
	if t.atReference(volume) {
		return
	}
	if !t.isForeground() {
		t.logger.Debug("volume change ignored in background", "volume", volume)
		return
	}
	t.reassert(ctx, volume)
	t.dispatch()
}

func (t *VolumeTrigger) dispatch() bool {
	t.mu.Lock()
	listener := t.listener
	t.mu.Unlock()
	if listener == nil {
		return false
	}
	if t.debounced != nil {
		t.debounced(listener)
		return true
	}
	listener()
	return true
}

func (t *VolumeTrigger) normalize(ctx context.Context) {
	volume, err := t.volume.Volume(ctx)
	if err != nil {
		t.logger.Warn("read volume failed", "error", err)
		t.events.Error(domain.ErrorCodeVolume, err.Error())
		return
	}
	if !t.atReference(volume) {
		t.reassert(ctx, volume)
	}
}

func (t *VolumeTrigger) reassert(ctx context.Context, observed float64) {
	if err := t.volume.SetVolume(ctx, t.cfg.ReferenceVolume); err != nil {
		t.logger.Warn("reset volume failed", "error", err, "observed", observed)
		t.events.Error(domain.ErrorCodeVolume, err.Error())
	}
}

func (t *VolumeTrigger) atReference(volume float64) bool {
	return math.Abs(volume-t.cfg.ReferenceVolume) < volumeTolerance
}

func (t *VolumeTrigger) isForeground() bool {
	return t.foreground == nil || t.foreground.IsForeground()
}
