package dirsource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"topsolver/internal/integrations"
)

const line3 = "n 3\nm 1\ntmax 4\n0 0 0\n1 0 10\n2 0 0\n"

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestListReadsHeaders(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", line3)
	writeFile(t, dir, "a.txt", "n 2\nm 2\ntmax 7.5\n0 0 5\n1 1 5\n")
	writeFile(t, dir, "notes.md", "ignored")
	writeFile(t, dir, "broken.txt", "hello\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.txt"), 0o755))

	entries, err := New(dir).List(t.Context())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Name)
	assert.Equal(t, 2, entries[0].Cars)
	assert.Equal(t, 7.5, entries[0].MaxTime)
	assert.Equal(t, integrations.Entry{Name: "b", Points: 3, Cars: 1, MaxTime: 4, Size: int64(len(line3))}, entries[1])
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "line.txt", line3)
	src := New(dir)

	got, err := src.Load(t.Context(), "line")
	require.NoError(t, err)
	assert.Equal(t, "line", got.Instance.Name())
	assert.Equal(t, 10, got.Instance.TotalProfit())
	assert.Equal(t, line3, got.Text)

	_, err = src.Load(t.Context(), "line.txt")
	require.NoError(t, err)

	_, err = src.Load(t.Context(), "missing")
	assert.ErrorIs(t, err, integrations.ErrNoSuchInstance)
	_, err = src.Load(t.Context(), "../etc/passwd")
	assert.ErrorIs(t, err, integrations.ErrNoSuchInstance)
}

func TestListMissingDir(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope")).List(t.Context())
	assert.Error(t, err)
}
