package stdio

import (
	"fmt"
	"os"
	"os/exec"
	"time"
)

// shutdownGrace is how long Close waits for the server process to exit
// after its stdin is closed before killing it.
const shutdownGrace = 5 * time.Second

// Command starts name with args and connects to its stdin and stdout. The
// process's stderr is passed through to ours. env entries are appended to
// the current environment. Closing the Conn stops the process.
func Command(name string, args []string, env []string, opts ...Option) (*Conn, error) {
	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin of %s: %w", name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout of %s: %w", name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	c := NewConn(stdout, stdin, opts...)
	c.onClose = func() error { return stopProcess(cmd) }
	return c, nil
}

func stopProcess(cmd *exec.Cmd) error {
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	select {
	case <-exited:
		return nil
	case <-time.After(shutdownGrace):
		if err := cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill server process: %w", err)
		}
		<-exited
		return nil
	}
}
