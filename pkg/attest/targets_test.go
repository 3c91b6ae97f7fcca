package attest

import (
	"os"
	"path/filepath"
	"testing"

	"ledgerseal/pkg/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargets_File(t *testing.T) {
	path := writeFile(t, t.TempDir(), "hello.txt", "hello")

	got, err := Targets(path, "")
	require.NoError(t, err)
	assert.Equal(t, []Target{{Path: path, Name: "hello.txt"}}, got)

	got, err = Targets(path, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "greeting", got[0].Name)
}

func TestTargets_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hello.txt", "hello")
	writeFile(t, dir, ".env", "PRIVATE_KEY=x")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	writeFile(t, filepath.Join(dir, "sub"), "a.bin", "a")

	got, err := Targets(dir, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "hello.txt", got[0].Name)
	assert.Equal(t, "sub/a.bin", got[1].Name)
	assert.Equal(t, filepath.Join(dir, "sub", "a.bin"), got[1].Path)

	got, err = Targets(dir, "release-1")
	require.NoError(t, err)
	assert.Equal(t, "release-1/sub/a.bin", got[1].Name)
}

func TestTargets_Missing(t *testing.T) {
	_, err := Targets(filepath.Join(t.TempDir(), "nope"), "")
	assert.ErrorIs(t, err, core.ErrIOFailure)
}
