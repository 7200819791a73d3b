package media

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
)

// CuePlayer plays the shutter cue through an external player. Each Play
// restarts the cue from the beginning.
type CuePlayer struct {
	command string
	file    string

	mu      sync.Mutex
	current *exec.Cmd
}

func NewCuePlayer(command, file string) *CuePlayer {
	if command == "" {
		command = "paplay"
	}
	return &CuePlayer{command: command, file: file}
}

// Play starts the cue and returns without waiting for it to finish.
func (p *CuePlayer) Play(_ context.Context) error {
	if p.file == "" {
		return errors.New("no cue file configured")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil && p.current.Process != nil {
		_ = p.current.Process.Kill()
	}

	// Not bound to the caller's context; playback overlaps the shutter delay.
	cmd := exec.Command(p.command, p.file)
	if err := cmd.Start(); err != nil {
		p.current = nil
		return fmt.Errorf("start cue: %w", err)
	}
	p.current = cmd

	go func() {
		_ = cmd.Wait()
		p.mu.Lock()
		if p.current == cmd {
			p.current = nil
		}
		p.mu.Unlock()
	}()
	return nil
}

// Stop kills a cue that is still playing.
func (p *CuePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil && p.current.Process != nil {
		_ = p.current.Process.Kill()
	}
}

func (p *CuePlayer) playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}
