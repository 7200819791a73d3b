package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"snapword/internal/bootstrap"
	"snapword/internal/config"
	"snapword/internal/control"
	"snapword/internal/domain"
	"snapword/internal/usecase"
)

const shutdownTimeout = 3 * time.Second

// App is the service root. It receives backend events, keeps the control hub
// current and fronts the coordinator for the control API.
type App struct {
	logOutput io.Writer
	logger    *slog.Logger
	hub       *control.Hub

	coordinator *usecase.Coordinator
	cfg         config.Config
	bootErr     error
}

func NewApp(logOutput io.Writer) *App {
	return &App{
		logOutput: logOutput,
		logger:    slog.New(slog.NewTextHandler(logOutput, nil)),
		hub:       control.NewHub(pipelineReasonMessage, errorMessage),
	}
}

// Run builds the service graph and blocks until ctx ends.
func (a *App) Run(ctx context.Context) error {
	services, err := bootstrap.Build(a, a.logOutput)
	if err != nil {
		a.bootErr = err
		a.Error(domain.ErrorCodeStartup, err.Error())
		return err
	}
	defer func() {
		if err := services.Close(); err != nil {
			a.logger.Warn("close services", "error", err)
		}
	}()

	a.logger = services.Logger
	a.cfg = services.Config
	a.coordinator = services.Coordinator
	a.logger.Info("snapword starting", a.runtimeInfo()...)
	a.PipelineStateChanged(domain.PipelineStateIdle, domain.PipelineReasonReady)

	var server *control.Server
	if addr := a.cfg.Control.Addr; addr != "" {
		var history control.History
		if services.Ledger != nil {
			history = services.Ledger
		}
		server = control.NewServer(a, services.Foreground, history, a.hub, a.logger)
		go func() {
			if err := server.Start(addr); err != nil {
				a.logger.Error("control api stopped", "error", err)
				a.Error(domain.ErrorCodeStartup, err.Error())
			}
		}()
	}

	runErr := a.coordinator.Run(ctx)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("control api shutdown", "error", err)
		}
		cancel()
	}
	services.Pipeline.Wait()
	a.logger.Info("snapword stopped")
	return runErr
}

// Press fires a manual capture through the same gate as the volume buttons.
func (a *App) Press() bool {
	if err := a.requireReady(); err != nil {
		return false
	}
	return a.coordinator.Press()
}

// Reset clears the detector and any pending prompt.
func (a *App) Reset() {
	if err := a.requireReady(); err != nil {
		return
	}
	a.coordinator.Reset()
}

// Status returns the current runtime status.
func (a *App) Status() domain.Status {
	if a.coordinator == nil {
		status := domain.Status{
			Pipeline:    domain.PipelineStateIdle,
			Recognition: domain.RecognitionStateIdle,
		}
		if a.bootErr != nil {
			status.Message = a.bootErr.Error()
		}
		return status
	}
	return a.coordinator.Status()
}

func (a *App) runtimeInfo() []any {
	return []any{
		"provider", "Deepgram",
		"model", a.cfg.Deepgram.Model,
		"language", a.cfg.Recognition.Language,
		"rules_file", a.cfg.Rules.Path,
		"camera", a.cfg.Camera.Device,
		"upload_endpoint", a.cfg.Upload.Endpoint,
		"ledger", a.cfg.Ledger.Path,
		"control_addr", a.cfg.Control.Addr,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.coordinator == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) PipelineStateChanged(state domain.PipelineState, reason domain.PipelineReason) {
	a.logger.Info("pipeline state", "state", state, "reason", reason)
	a.hub.PipelineStateChanged(state, reason)
}

func (a *App) RecognitionStateChanged(state domain.RecognitionState) {
	a.logger.Info("recognition state", "state", state)
	a.hub.RecognitionStateChanged(state)
}

func (a *App) RecognizingChanged(recognizing bool) {
	a.logger.Debug("recognizing", "active", recognizing)
	a.hub.RecognizingChanged(recognizing)
}

func (a *App) LiveTranscript(text string) {
	a.logger.Debug("live transcript", "text", text)
	a.hub.LiveTranscript(text)
}

func (a *App) PromptCaptured(prompt domain.CapturedPrompt) {
	a.logger.Info("prompt captured", "prompt", prompt.Text)
	a.hub.PromptCaptured(prompt)
}

func (a *App) CaptureFinished(result domain.CaptureResult) {
	a.logger.Info("capture finished",
		"id", result.ID,
		"source", result.Source,
		"status", result.Status,
		"http_status", result.HTTPStatus,
		"cropped", result.Cropped,
	)
	a.hub.CaptureFinished(result)
}

func (a *App) Error(code domain.ErrorCode, detail string) {
	a.logger.Warn(errorMessage(code, detail), "code", code, "detail", detail)
	a.hub.Error(code, detail)
}

func pipelineReasonMessage(reason domain.PipelineReason) string {
	switch reason {
	case domain.PipelineReasonReady:
		return "Ready"
	case domain.PipelineReasonCaptureStarted:
		return "Capturing photo"
	case domain.PipelineReasonUploaded:
		return "Photo uploaded"
	case domain.PipelineReasonCaptureFailed:
		return "Camera capture failed"
	case domain.PipelineReasonUploadFailed:
		return "Upload failed"
	case domain.PipelineReasonCooldownEnded:
		return "Ready for the next capture"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeRecognition:
		return "Speech recognition issue"
	case domain.ErrorCodePermission:
		return "Microphone or credential access denied"
	case domain.ErrorCodeVolume:
		return "Volume button trigger issue"
	case domain.ErrorCodeCue:
		return "Shutter cue failed"
	case domain.ErrorCodeCamera:
		return "Camera capture failed"
	case domain.ErrorCodeCrop:
		return "Crop failed; original frame used"
	case domain.ErrorCodeUpload:
		return "Upload failed"
	case domain.ErrorCodeLedger:
		return "Capture history write failed"
	case domain.ErrorCodeRules:
		return "Prompt rules failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
