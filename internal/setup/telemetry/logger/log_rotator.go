// Package logger provides the line-capped file writer behind the session logs.
package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LogRotator wraps a log file and keeps at most maxLines lines in it.
// The file is rewritten with the newest maxLines lines every time another
// maxLines lines have been written past the cap.
type LogRotator struct {
	writer   io.Writer
	filePath string
	maxLines int
	lines    []string // ring of the newest lines
	head     int      // next write position in lines
	pending  int      // lines written since the file was last trimmed
	mutex    sync.Mutex
}

// NewLogRotator creates a new LogRotator. A non-positive maxLines disables trimming.
func NewLogRotator(writer io.Writer, maxLines int, filePath string) *LogRotator {
	r := &LogRotator{
		writer:   writer,
		filePath: filePath,
		maxLines: maxLines,
	}

	if maxLines > 0 {
		r.lines = make([]string, 0, maxLines)
	}

	return r
}

// Write implements io.Writer.
func (w *LogRotator) Write(p []byte) (int, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	n, err := w.writer.Write(p)
	if err != nil || w.maxLines <= 0 {
		return n, err
	}

	for line := range bytes.SplitSeq(bytes.TrimRight(p, "\n"), []byte("\n")) {
		if len(line) == 0 {
			continue
		}

		w.remember(string(line))

		if w.pending >= w.maxLines*2 {
			if err := w.trim(); err != nil {
				return n, fmt.Errorf("failed to rotate log file: %w", err)
			}

			w.pending = len(w.lines)
		}
	}

	return n, nil
}

// Lines returns the remembered lines, oldest first.
func (w *LogRotator) Lines() []string {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	return w.ordered()
}

func (w *LogRotator) remember(line string) {
	if len(w.lines) < w.maxLines {
		w.lines = append(w.lines, line)
	} else {
		w.lines[w.head] = line
	}

	w.head = (w.head + 1) % w.maxLines
	w.pending++
}

func (w *LogRotator) ordered() []string {
	if len(w.lines) < w.maxLines {
		return append([]string(nil), w.lines...)
	}

	out := make([]string, 0, len(w.lines))
	out = append(out, w.lines[w.head:]...)

	return append(out, w.lines[:w.head]...)
}

// trim replaces the file with the remembered lines and reopens it for appending.
func (w *LogRotator) trim() error {
	lines := w.ordered()
	if len(lines) == 0 {
		return nil
	}

	temp, err := os.CreateTemp(filepath.Dir(w.filePath), "temp-log-")
	if err != nil {
		return err
	}

	tempPath := temp.Name()

	if _, err := temp.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		temp.Close()
		os.Remove(tempPath)

		return err
	}

	if err := temp.Close(); err != nil {
		os.Remove(tempPath)
		return err
	}

	if closer, ok := w.writer.(io.Closer); ok {
		closer.Close()
	}

	// Windows refuses to rename over an existing file
	os.Remove(w.filePath)

	if err := os.Rename(tempPath, w.filePath); err != nil {
		return err
	}

	file, err := os.OpenFile(w.filePath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	w.writer = file

	return nil
}
