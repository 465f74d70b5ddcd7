package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// DefaultWindowSize matches the amount of a log file a single run reads.
const DefaultWindowSize = 8_500_000

// Window is a bounded slice of the input file. Text never ends in the middle
// of a line unless the file itself does, or a single line is longer than the
// window.
type Window struct {
	Text string
	// Next is the offset the following window starts at.
	Next int64
	EOF  bool
}

// ReadWindow reads at most size bytes of path starting at offset.
func ReadWindow(path string, offset, size int64) (Window, error) {
	if size <= 0 {
		size = DefaultWindowSize
	}
	f, err := os.Open(path)
	if err != nil {
		return Window{}, fmt.Errorf("failed to open input %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, size)
	n, err := f.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return Window{}, fmt.Errorf("failed to read input %s at %d: %w", path, offset, err)
	}
	buf = buf[:n]

	eof := errors.Is(err, io.EOF)
	if !eof {
		// A full read may still have ended exactly at EOF.
		stat, statErr := f.Stat()
		if statErr == nil && offset+int64(n) >= stat.Size() {
			eof = true
		}
	}

	if !eof {
		if cut := bytes.LastIndexByte(buf, '\n'); cut >= 0 {
			buf = buf[:cut+1]
		}
	}

	return Window{
		Text: string(buf),
		Next: offset + int64(len(buf)),
		EOF:  eof,
	}, nil
}

// ReadAll reads path window by window until EOF and returns the windows in
// order. ctx is checked between windows.
func ReadAll(ctx context.Context, path string, size int64, logger *slog.Logger) ([]string, error) {
	var (
		texts  []string
		offset int64
	)
	for {
		if err := ctx.Err(); err != nil {
			return texts, err
		}
		w, err := ReadWindow(path, offset, size)
		if err != nil {
			return texts, err
		}
		if w.Text != "" {
			texts = append(texts, w.Text)
		}
		logger.Debug("read input window", "path", path, "offset", offset, "bytes", len(w.Text), "eof", w.EOF)
		if w.EOF || w.Next == offset {
			return texts, nil
		}
		offset = w.Next
	}
}
