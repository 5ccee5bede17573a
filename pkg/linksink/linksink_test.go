package linksink

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	likeerrors "likesync/pkg/errors"
)

func TestAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "42", "external_urls.txt")
	sink := New(path)

	lines, err := sink.Lines()
	require.NoError(t, err)
	assert.Empty(t, lines)

	require.NoError(t, sink.Append("https://twitter.com/a/status/1"))
	require.NoError(t, New(path).Append("https://twitter.com/b/status/2"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://twitter.com/a/status/1\nhttps://twitter.com/b/status/2\n", string(data))

	lines, err = sink.Lines()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://twitter.com/a/status/1", "https://twitter.com/b/status/2"}, lines)
}

func TestAppendRejectsMultiline(t *testing.T) {
	sink := New(filepath.Join(t.TempDir(), "external_urls.txt"))
	assert.Error(t, sink.Append("https://a\nhttps://b"))
	assert.Error(t, sink.Append(""))
}

func TestAppendFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	err := New(filepath.Join(blocker, "external_urls.txt")).Append("https://twitter.com/a/status/1")
	var persistErr *likeerrors.PersistWriteError
	require.True(t, errors.As(err, &persistErr))
}
