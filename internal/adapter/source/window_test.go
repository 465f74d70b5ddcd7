package source

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "access.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadWindow(t *testing.T) {
	path := writeInput(t, "aaaa\nbbbb\ncccc\n")

	t.Run("Cut At Last Newline", func(t *testing.T) {
		w, err := ReadWindow(path, 0, 12)
		require.NoError(t, err)
		assert.Equal(t, "aaaa\nbbbb\n", w.Text)
		assert.Equal(t, int64(10), w.Next)
		assert.False(t, w.EOF)
	})

	t.Run("Continue From Next", func(t *testing.T) {
		w, err := ReadWindow(path, 10, 12)
		require.NoError(t, err)
		assert.Equal(t, "cccc\n", w.Text)
		assert.True(t, w.EOF)
	})

	t.Run("Exact Fit Is EOF", func(t *testing.T) {
		w, err := ReadWindow(path, 0, 15)
		require.NoError(t, err)
		assert.Equal(t, "aaaa\nbbbb\ncccc\n", w.Text)
		assert.True(t, w.EOF)
	})

	t.Run("Line Longer Than Window", func(t *testing.T) {
		w, err := ReadWindow(path, 0, 3)
		require.NoError(t, err)
		assert.Equal(t, "aaa", w.Text)
		assert.Equal(t, int64(3), w.Next)
	})

	t.Run("Missing File", func(t *testing.T) {
		_, err := ReadWindow(filepath.Join(t.TempDir(), "nope.log"), 0, 10)
		assert.Error(t, err)
	})
}

func TestReadAll(t *testing.T) {
	lines := []string{"one", "two", "three", "four", "five"}
	path := writeInput(t, strings.Join(lines, "\n"))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	texts, err := ReadAll(context.Background(), path, 9, logger)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(lines, "\n"), strings.Join(texts, ""))
	for _, text := range texts[:len(texts)-1] {
		assert.True(t, strings.HasSuffix(text, "\n"), "window %q splits a line", text)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ReadAll(ctx, path, 9, logger)
	assert.ErrorIs(t, err, context.Canceled)
}
