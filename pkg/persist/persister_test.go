package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBasename = "replay-report"

func TestPersister_SaveLoad(t *testing.T) {
	t.Parallel()

	for _, codec := range []Codec{NewJSONCodec(), NewYAMLCodec()} {
		t.Run(codec.Extension(), func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			p := NewPersister[reportDoc](testBasename, codec)
			doc := forkReport()

			path, err := p.Save(dir, &doc)
			require.NoError(t, err)
			assert.Equal(t, p.Path(dir), path)

			loaded, err := p.Load(dir)
			require.NoError(t, err)
			assert.Equal(t, doc, *loaded)
		})
	}
}

func TestPersister_SaveReplaces(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := NewPersister[reportDoc](testBasename, NewJSONCodec())

	first := forkReport()

	_, err := p.Save(dir, &first)
	require.NoError(t, err)

	second := reportDoc{Name: "rerun", SessionID: "s-2", Failed: 1}

	_, err = p.Save(dir, &second)
	require.NoError(t, err)

	loaded, err := p.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, second, *loaded)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPersister_CreatesDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "reports", "nightly")
	p := NewPersister[reportDoc](testBasename, NewYAMLCodec())
	doc := forkReport()

	path, err := p.Save(dir, &doc)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "replay-report.yaml"), path)
	assert.FileExists(t, path)
}

func TestPersister_NilDocument(t *testing.T) {
	t.Parallel()

	p := NewPersister[reportDoc](testBasename, NewJSONCodec())

	_, err := p.Save(t.TempDir(), nil)
	require.ErrorIs(t, err, ErrNilDocument)
}

func TestPersister_LoadMissing(t *testing.T) {
	t.Parallel()

	p := NewPersister[reportDoc](testBasename, NewJSONCodec())

	_, err := p.Load(t.TempDir())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestPersister_DirIsFile(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "taken")
	require.NoError(t, os.WriteFile(file, []byte("x"), testFilePerm))

	p := NewPersister[reportDoc](testBasename, NewJSONCodec())
	doc := forkReport()

	_, err := p.Save(filepath.Join(file, "sub"), &doc)
	require.Error(t, err)
}
