package docio

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinwang15/yamldedup"
)

var fixedNow = func() time.Time { return time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC) }

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(b)
}

func TestSinkWritesAndBacksUp(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "values.yaml", "a: 1\n")

	sink := NewSink(SinkOptions{Backup: true, Now: fixedNow}, nil)
	res, err := sink.Write(Output{Name: p, Data: []byte("a: 2\n")})
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.True(t, res.Written)
	assert.Equal(t, p+".20261014T093000Z.bak", res.BackupPath)
	assert.Equal(t, "a: 2\n", readFile(t, p))
	assert.Equal(t, "a: 1\n", readFile(t, res.BackupPath))

	fi, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o600), fi.Mode().Perm(), "mode of the original file should be kept")
}

func TestSinkCreatesNewFileWithoutBackup(t *testing.T) {
	p := filepath.Join(t.TempDir(), "common.yaml")

	res, err := NewSink(SinkOptions{Backup: true, Now: fixedNow}, nil).Write(Output{Name: p, Data: []byte("x: 1\n")})
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.Empty(t, res.BackupPath)
	assert.Equal(t, "x: 1\n", readFile(t, p))
}

func TestSinkSkipsUnchangedFiles(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "values.yaml", "a: 1\n")

	res, err := NewSink(SinkOptions{Backup: true, Now: fixedNow}, nil).Write(Output{Name: p, Data: []byte("a: 1\n")})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.False(t, res.Written)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no backup or temp file should be left behind")
}

func TestSinkDryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "values.yaml", "a: 1\nb: 2\n")

	var diff bytes.Buffer
	sink := NewSink(SinkOptions{DryRun: true, Backup: true, Diff: &diff, Now: fixedNow}, nil)
	res, err := sink.Write(Output{Name: p, Data: []byte("b: 2\n")})
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.False(t, res.Written)
	assert.Equal(t, "a: 1\nb: 2\n", readFile(t, p))
	assert.Contains(t, diff.String(), "-a: 1")
	assert.NotContains(t, diff.String(), "\x1b[")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSinkColorDiff(t *testing.T) {
	p := writeFile(t, t.TempDir(), "values.yaml", "a: 1\n")

	var diff bytes.Buffer
	_, err := NewSink(SinkOptions{DryRun: true, Diff: &diff, Color: true}, nil).Write(Output{Name: p, Data: []byte("a: 2\n")})
	require.NoError(t, err)
	assert.Contains(t, diff.String(), "\x1b[")
	assert.Contains(t, diff.String(), "a: 2")
}

func TestWriteAllStopsAtFirstFailure(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "first.yaml", "a: 1\n")
	broken := filepath.Join(dir, "missing", "second.yaml")
	third := writeFile(t, dir, "third.yaml", "c: 1\n")

	sink := NewSink(SinkOptions{}, nil)
	results, err := sink.WriteAll([]Output{
		{Name: first, Data: []byte("a: 2\n")},
		{Name: broken, Data: []byte("b: 2\n")},
		{Name: third, Data: []byte("c: 2\n")},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, yamldedup.ErrWrite), "got %v", err)

	var be *BatchError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, broken, be.Failed)
	assert.Equal(t, []string{first}, be.Committed)
	assert.Len(t, results, 1)

	assert.Equal(t, "a: 2\n", readFile(t, first), "committed file stays committed")
	assert.Equal(t, "c: 1\n", readFile(t, third), "files after the failure are not touched")
}

func TestLoadAllAbortsOnFirstFailure(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", "a: 1\n")
	bad := writeFile(t, dir, "bad.yaml", "a: [1, 2\n")

	docs, err := NewSource(nil).LoadAll([]string{good, bad, good})
	require.Error(t, err)
	assert.Nil(t, docs)
	assert.True(t, errors.Is(err, yamldedup.ErrParse), "got %v", err)
	assert.True(t, strings.Contains(err.Error(), bad), "error should name %s: %v", bad, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewSource(nil).Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist), "got %v", err)
}

func TestLoadDetectsIndent(t *testing.T) {
	p := writeFile(t, t.TempDir(), "four.yaml", "root:\n    child: 1\n")
	doc, err := NewSource(nil).Load(p)
	require.NoError(t, err)
	assert.Equal(t, 4, doc.Indent)
	assert.Equal(t, p, doc.Name)
}
