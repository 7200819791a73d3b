package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"snapword/internal/domain"
	"snapword/internal/ports"
)

// SupervisorConfig controls recognition stream restarts.
type SupervisorConfig struct {
	Options ports.RecognitionOptions
	// RestartDelay follows a natural end of the stream.
	RestartDelay time.Duration
	// ErrorRestartDelay follows an engine error event.
	ErrorRestartDelay time.Duration
	// RetryDelay follows a failed start.
	RetryDelay time.Duration
}

// RecognitionSupervisor keeps a recognition stream running and forwards its
// results as transcript events.
type RecognitionSupervisor struct {
	engine ports.RecognitionEngine
	events ports.EventSink
	logger *slog.Logger
	cfg    SupervisorConfig
	now    func() time.Time

	recognizing atomic.Bool
}

func NewRecognitionSupervisor(engine ports.RecognitionEngine, events ports.EventSink, logger *slog.Logger, cfg SupervisorConfig) *RecognitionSupervisor {
	if cfg.RestartDelay < 0 {
		cfg.RestartDelay = 100 * time.Millisecond
	}
	if cfg.ErrorRestartDelay < 0 {
		cfg.ErrorRestartDelay = time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	cfg.Options.InterimResults = true
	cfg.Options.Continuous = true
	return &RecognitionSupervisor{
		engine: engine,
		events: sinkOrNoop(events),
		logger: loggerOrDiscard(logger),
		cfg:    cfg,
		now:    time.Now,
	}
}

// Run blocks until ctx ends or the engine reports a permission denial.
func (s *RecognitionSupervisor) Run(ctx context.Context, handle func(domain.TranscriptEvent)) error {
	for {
		stream, err := s.engine.Start(ctx, s.cfg.Options)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, domain.ErrPermissionDenied) {
				s.logger.Error("recognition permission denied", "error", err)
				s.events.Error(domain.ErrorCodePermission, err.Error())
				return err
			}
			s.logger.Warn("recognition start failed", "error", err, "retry_in", s.cfg.RetryDelay)
			s.events.Error(domain.ErrorCodeRecognition, fmt.Sprintf("failed to start recognition: %v", err))
			if !sleepContext(ctx, s.cfg.RetryDelay) {
				return nil
			}
			continue
		}

		failed := s.consume(ctx, stream, handle)
		if err := stream.Stop(); err != nil {
			s.logger.Debug("recognition stream stop", "error", err)
		}
		s.setRecognizing(false)

		delay := s.cfg.RestartDelay
		if failed {
			delay = s.cfg.ErrorRestartDelay
		}
		if !sleepContext(ctx, delay) {
			return nil
		}
		s.logger.Debug("restarting recognition", "after_error", failed)
	}
}

// Recognizing reports whether the engine confirmed an active stream.
func (s *RecognitionSupervisor) Recognizing() bool {
	return s.recognizing.Load()
}

func (s *RecognitionSupervisor) consume(ctx context.Context, stream ports.RecognitionStream, handle func(domain.TranscriptEvent)) (failed bool) {
	events := stream.Events()
	for {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			switch event.Kind {
			case domain.RecognitionEventStart:
				s.setRecognizing(true)
			case domain.RecognitionEventResult:
				handle(domain.TranscriptEvent{
					Text:       event.Transcript,
					IsFinal:    event.IsFinal,
					ObservedAt: s.now(),
				})
			case domain.RecognitionEventError:
				s.logger.Warn("recognition error", "code", event.Code, "message", event.Message)
				s.events.Error(domain.ErrorCodeRecognition, fmt.Sprintf("%s: %s", event.Code, event.Message))
				return true
			case domain.RecognitionEventEnd:
				return false
			}
		}
	}
}

func (s *RecognitionSupervisor) setRecognizing(value bool) {
	if s.recognizing.Swap(value) != value {
		s.events.RecognizingChanged(value)
	}
}
