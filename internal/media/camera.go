package media

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"snapword/internal/domain"
)

// CameraConfig describes the still capture device.
type CameraConfig struct {
	Command     string
	InputFormat string
	Device      string
	// FrameDir is where captured frames are written. The filesystem passed to
	// NewStillCamera must address the same files the capture command writes.
	FrameDir string
}

// StillCamera grabs single frames from a video device using ffmpeg.
type StillCamera struct {
	cfg   CameraConfig
	fs    afero.Fs
	newID func() string
}

func NewStillCamera(fs afero.Fs, cfg CameraConfig) *StillCamera {
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "v4l2"
	}
	if cfg.Device == "" {
		cfg.Device = "/dev/video0"
	}
	if cfg.FrameDir == "" {
		cfg.FrameDir = filepath.Join(afero.GetTempDir(fs, "snapword"), "frames")
	}
	return &StillCamera{cfg: cfg, fs: fs, newID: uuid.NewString}
}

func (c *StillCamera) TakeStillFrame(ctx context.Context) (domain.Frame, error) {
	if err := c.fs.MkdirAll(c.cfg.FrameDir, 0o755); err != nil {
		return domain.Frame{}, fmt.Errorf("create frame dir: %w", err)
	}
	path := filepath.Join(c.cfg.FrameDir, "frame-"+c.newID()+".jpg")

	cmd := exec.CommandContext(ctx, c.cfg.Command,
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-f", c.cfg.InputFormat,
		"-i", c.cfg.Device,
		"-frames:v", "1",
		"-q:v", "2",
		"-y",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		_ = c.fs.Remove(path)
		return domain.Frame{}, fmt.Errorf("capture still frame: %w: %s", err, trimOutput(output))
	}

	width, height, err := frameSize(c.fs, path)
	if err != nil {
		_ = c.fs.Remove(path)
		return domain.Frame{}, err
	}
	return domain.Frame{URI: path, Width: width, Height: height}, nil
}

func frameSize(fs afero.Fs, path string) (int, int, error) {
	file, err := fs.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open frame: %w", err)
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, fmt.Errorf("read frame header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
