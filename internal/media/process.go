package media

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"time"
)

// stopGrace is how long an interrupted process may take before it is killed.
const stopGrace = 1200 * time.Millisecond

// interruptAndWait asks the process to exit and kills it after stopGrace.
func interruptAndWait(process *os.Process, waitErr <-chan error) error {
	if process != nil {
		_ = process.Signal(os.Interrupt)
	}
	select {
	case err, ok := <-waitErr:
		if ok {
			return normalizeExitErr(err)
		}
		return nil
	case <-time.After(stopGrace):
		if process != nil {
			_ = process.Kill()
		}
		err, ok := <-waitErr
		if ok {
			return normalizeExitErr(err)
		}
		return nil
	}
}

// normalizeExitErr treats a non-zero exit after a stop request as success.
func normalizeExitErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimOutput(output []byte) string {
	return string(bytes.TrimSpace(output))
}
