package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineWriter_SplitsLines(t *testing.T) {
	w := NewLineWriter(4)
	_, err := w.Write([]byte("Engine: one\nEngine: t"))
	require.NoError(t, err)
	_, err = w.Write([]byte("wo\n"))
	require.NoError(t, err)

	assert.Equal(t, "Engine: one", <-w.C())
	assert.Equal(t, "Engine: two", <-w.C())
}

func TestLineWriter_NeverBlocks(t *testing.T) {
	w := NewLineWriter(1)
	for i := 0; i < 10; i++ {
		_, err := w.Write([]byte("line\n"))
		require.NoError(t, err)
	}
	assert.Len(t, w.C(), 1)

	w.Close()
	w.Close()
	n, err := w.Write([]byte("after close\n"))
	assert.NoError(t, err)
	assert.Equal(t, 12, n)
}

func TestNew_WritesFileAndLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "runner.log")
	l, err := New(Options{File: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})
	require.NoError(t, err)

	l.Println("Tracker: watching position")
	line := <-l.Lines()
	assert.Contains(t, line, "Tracker: watching position")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Tracker: watching position")

	_, open := <-l.Lines()
	assert.False(t, open)
}
