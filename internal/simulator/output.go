package simulator

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	StdoutFile = "stdout"
	StderrFile = "stderr"
)

type stream int

const (
	streamStdout stream = iota
	streamStderr
)

// OutputMux captures the child's stdout and stderr. Reader goroutines buffer
// whatever the child writes; Drain moves the buffered bytes into per-stream
// log files in the run directory without ever blocking on the pipes.
//
// Logs are cumulative: every Drain appends, nothing captured earlier is lost.
type OutputMux struct {
	readers [2]io.ReadCloser
	files   [2]*os.File

	mu      sync.Mutex
	pending [2]bytes.Buffer

	done      chan struct{}
	pumpErr   error
	closeOnce sync.Once
	closeErr  error
}

// NewOutputMux starts capturing stdout and stderr into dir/stdout and
// dir/stderr.
func NewOutputMux(dir string, stdout, stderr io.ReadCloser) (*OutputMux, error) {
	m := &OutputMux{
		readers: [2]io.ReadCloser{stdout, stderr},
		done:    make(chan struct{}),
	}

	for i, name := range []string{StdoutFile, StderrFile} {
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			m.closeFiles()
			return nil, fmt.Errorf("opening %s log: %w", name, err)
		}
		m.files[i] = f
	}

	var g errgroup.Group
	g.Go(func() error { return m.pump(streamStdout) })
	g.Go(func() error { return m.pump(streamStderr) })
	go func() {
		m.pumpErr = g.Wait()
		close(m.done)
	}()

	return m, nil
}

func (m *OutputMux) pump(s stream) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := m.readers[s].Read(buf)
		if n > 0 {
			m.mu.Lock()
			m.pending[s].Write(buf[:n])
			m.mu.Unlock()
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("reading child output: %w", err)
		}
	}
}

// Drain appends any output captured since the previous call to the log
// files. It returns immediately when nothing is pending and only fails on a
// hard I/O error.
func (m *OutputMux) Drain() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.pending {
		if m.pending[i].Len() == 0 || m.files[i] == nil {
			continue
		}
		if _, err := m.pending[i].WriteTo(m.files[i]); err != nil {
			return fmt.Errorf("writing %s log: %w", m.files[i].Name(), err)
		}
	}
	return nil
}

// Wait blocks until both streams reached EOF or the timeout elapsed, and
// reports whether the streams are finished.
func (m *OutputMux) Wait(timeout time.Duration) bool {
	select {
	case <-m.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close stops capturing, flushes what is pending and closes the log files.
// It is safe to call more than once.
func (m *OutputMux) Close() error {
	m.closeOnce.Do(func() {
		for _, r := range m.readers {
			r.Close()
		}
		<-m.done

		err := m.Drain()

		m.mu.Lock()
		if cerr := m.closeFiles(); err == nil {
			err = cerr
		}
		m.mu.Unlock()

		if err == nil {
			err = m.pumpErr
		}
		m.closeErr = err
	})
	return m.closeErr
}

func (m *OutputMux) closeFiles() error {
	var firstErr error
	for i, f := range m.files {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.files[i] = nil
	}
	return firstErr
}

// ReadLog returns the captured contents of one of the run's log files.
func ReadLog(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return string(data)
}
