package bootstrap

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/afero"

	"snapword/internal/config"
	"snapword/internal/device"
	"snapword/internal/imageproc"
	"snapword/internal/ledger"
	"snapword/internal/logging"
	"snapword/internal/media"
	"snapword/internal/ports"
	"snapword/internal/providers/deepgram"
	"snapword/internal/rules"
	"snapword/internal/upload"
	"snapword/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Coordinator *usecase.Coordinator
	Pipeline    *usecase.Pipeline
	Foreground  *device.ForegroundState
	// Cue is nil when no cue file is configured.
	Cue *media.CuePlayer
	// Ledger is nil when capture history is disabled.
	Ledger *ledger.Store
	Config config.Config
	Logger *slog.Logger
}

// Close releases resources held by the graph.
func (s Services) Close() error {
	if s.Cue != nil {
		s.Cue.Stop()
	}
	if s.Ledger == nil {
		return nil
	}
	return s.Ledger.Close()
}

// Build wires all backend dependencies for the current runtime. Logs are
// written to logOutput.
func Build(eventSink ports.EventSink, logOutput io.Writer) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	logger := logging.New(logOutput, cfg.Log.Level)

	// ffmpeg and paplay work on real paths.
	fs := afero.NewOsFs()

	promptRules, err := rules.Load(fs, cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return Services{}, err
	}
	if promptRules.Len() > 0 {
		logger.Info("prompt rules loaded", "path", cfg.Rules.Path, "count", promptRules.Len())
	}

	var uploader ports.Uploader
	if cfg.Upload.Endpoint != "" {
		client, err := upload.NewClient(fs, upload.Config{
			Endpoint: cfg.Upload.Endpoint,
			APIKey:   cfg.Upload.APIKey,
			HTTP2:    cfg.Upload.HTTP2,
			Timeout:  cfg.Upload.Timeout,
		})
		if err != nil {
			return Services{}, err
		}
		uploader = client
	} else {
		logger.Warn("SNAPWORD_API_URL is not set, captures will not be uploaded")
	}

	var (
		store         *ledger.Store
		captureLedger ports.CaptureLedger
	)
	if cfg.Ledger.Path != "" {
		store, err = ledger.Open(cfg.Ledger.Path)
		if err != nil {
			return Services{}, fmt.Errorf("open capture ledger: %w", err)
		}
		captureLedger = store
	}

	var (
		cuePlayer *media.CuePlayer
		cue       ports.CuePlayer
	)
	if cfg.Pipeline.CueFile != "" {
		cuePlayer = media.NewCuePlayer(cfg.Pipeline.CueCommand, cfg.Pipeline.CueFile)
		cue = cuePlayer
	}

	audio := ports.AudioConfig{
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		InputFormat: cfg.Audio.InputFormat,
		InputDevice: cfg.Audio.InputDevice,
	}
	engine := deepgram.NewEngine(media.NewMicCapture(cfg.Audio.RecorderCommand), deepgram.Config{
		APIKey:      cfg.Deepgram.APIKey,
		APIBaseURL:  cfg.Deepgram.APIBaseURL,
		Model:       cfg.Deepgram.Model,
		SmartFormat: cfg.Deepgram.SmartFormat,
		Audio:       audio,
		ChunkSize:   cfg.Audio.ChunkSize,
	}, logger)

	foreground := device.NewForegroundState(cfg.Volume.StartForeground)

	detector := usecase.NewDetector(usecase.DetectorConfig{
		StartPhrases: cfg.Trigger.StartPhrases,
		EndPhrases:   cfg.Trigger.EndPhrases,
		Window:       cfg.Trigger.Window,
		MaxEntries:   cfg.Trigger.MaxEntries,
		ArmedTimeout: cfg.Trigger.ArmedTimeout,
	}, eventSink, logger)

	pipeline := usecase.NewPipeline(
		cue,
		media.NewStillCamera(fs, media.CameraConfig{
			Command:     cfg.Camera.Command,
			InputFormat: cfg.Camera.InputFormat,
			Device:      cfg.Camera.Device,
			FrameDir:    cfg.Camera.FrameDir,
		}),
		imageproc.NewProcessor(fs),
		uploader,
		captureLedger,
		eventSink,
		logger,
		usecase.PipelineConfig{
			ShutterDelay: cfg.Pipeline.ShutterDelay,
			Cooldown:     cfg.Pipeline.Cooldown,
			JPEGQuality:  cfg.Camera.JPEGQuality,
		},
	)

	trigger := usecase.NewVolumeTrigger(
		device.NewPulseVolume(cfg.Volume.PactlCommand, logger),
		foreground,
		eventSink,
		logger,
		usecase.VolumeTriggerConfig{
			ReferenceVolume: cfg.Volume.ReferenceVolume,
			Debounce:        cfg.Volume.Debounce,
		},
	)

	supervisor := usecase.NewRecognitionSupervisor(engine, eventSink, logger, usecase.SupervisorConfig{
		Options: ports.RecognitionOptions{
			Language:       cfg.Recognition.Language,
			InterimResults: true,
			Continuous:     true,
			SilenceHintMS:  cfg.Recognition.SilenceHintMS,
		},
		RestartDelay:      cfg.Recognition.RestartDelay,
		ErrorRestartDelay: cfg.Recognition.ErrorRestartDelay,
		RetryDelay:        cfg.Recognition.RetryDelay,
	})

	coordinator := usecase.NewCoordinator(detector, pipeline, trigger, supervisor, promptRules, eventSink, logger)

	return Services{
		Coordinator: coordinator,
		Pipeline:    pipeline,
		Foreground:  foreground,
		Cue:         cuePlayer,
		Ledger:      store,
		Config:      cfg,
		Logger:      logger,
	}, nil
}
