package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

const defaultSink = "@DEFAULT_SINK@"

var percentPattern = regexp.MustCompile(`(\d+)%`)

// PulseVolume reads, writes and watches the default sink volume through pactl.
type PulseVolume struct {
	command string
	sink    string
	logger  *slog.Logger
}

func NewPulseVolume(command string, logger *slog.Logger) *PulseVolume {
	if command == "" {
		command = "pactl"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PulseVolume{command: command, sink: defaultSink, logger: logger}
}

func (v *PulseVolume) Volume(ctx context.Context) (float64, error) {
	output, err := exec.CommandContext(ctx, v.command, "get-sink-volume", v.sink).CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("get sink volume: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return parseVolume(string(output))
}

func (v *PulseVolume) SetVolume(ctx context.Context, volume float64) error {
	if volume < 0 || volume > 1 {
		return fmt.Errorf("volume %.2f out of range", volume)
	}
	percent := strconv.Itoa(int(math.Round(volume*100))) + "%"
	output, err := exec.CommandContext(ctx, v.command, "set-sink-volume", v.sink, percent).CombinedOutput()
	if err != nil {
		return fmt.Errorf("set sink volume: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Watch follows pactl sink change events and reports each new volume level.
// Repeated events for an unchanged level are collapsed.
func (v *PulseVolume) Watch(ctx context.Context, onChange func(volume float64)) (func(), error) {
	watchCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(watchCtx, v.command, "subscribe")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create subscribe pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start pactl subscribe: %w", err)
	}

	last, err := v.Volume(watchCtx)
	if err != nil {
		last = -1
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if !isSinkChange(scanner.Text()) {
				continue
			}
			volume, err := v.Volume(watchCtx)
			if err != nil {
				if watchCtx.Err() == nil {
					v.logger.Warn("read volume after change failed", "error", err)
				}
				continue
			}
			if volume == last {
				continue
			}
			last = volume
			onChange(volume)
		}
		_ = cmd.Wait()
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

func isSinkChange(line string) bool {
	return strings.Contains(line, "'change'") && strings.Contains(line, " sink ")
}

func parseVolume(output string) (float64, error) {
	match := percentPattern.FindStringSubmatch(output)
	if match == nil {
		return 0, errors.New("no volume level in pactl output")
	}
	percent, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, fmt.Errorf("parse volume %q: %w", match[1], err)
	}
	return float64(percent) / 100, nil
}
