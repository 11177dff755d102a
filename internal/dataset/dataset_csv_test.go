package dataset

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndReadDatasetCSV(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "1089", "134686")
	writeFile(t, filepath.Join(dir, "1089-134686.trans.txt"),
		"1089-134686-0001 STUFF IT INTO YOU, HIS BELLY COUNSELLED HIM\n1089-134686-0000 HE HOPED THERE WOULD BE STEW\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored line\n")

	out := filepath.Join(root, "dataset.csv")
	n, err := GenerateDatasetCSV(root, out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := ReadDatasetCSV(out)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "1089-134686-0000", entries[0].ID)
	assert.Equal(t, filepath.Join(dir, "1089-134686-0000.flac"), entries[0].AudioPath)
	assert.Equal(t, "HE HOPED THERE WOULD BE STEW", entries[0].GroundTruth)
	assert.Equal(t, "stuff it into you his belly counselled him", entries[1].NormalizedGroundTruth)

	wav := entries[0].WithAudioExt(".wav")
	assert.Equal(t, filepath.Join(dir, "1089-134686-0000.wav"), wav.AudioPath)
	assert.Equal(t, filepath.Join(dir, "1089-134686-0000.flac"), entries[0].AudioPath)
}

func TestReadDatasetCSVWithoutNormalizedColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.csv")
	writeFile(t, path, "audio_path,ground_truth\nx/a.flac,\"Hello, There\"\n")
	entries, err := ReadDatasetCSV(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hello there", entries[0].NormalizedGroundTruth)
	assert.Equal(t, "a", entries[0].ID)
}

func TestReadDatasetCSVRequiresColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.csv")
	writeFile(t, path, "filename,wer\na,1%\n")
	_, err := ReadDatasetCSV(path)
	assert.Error(t, err)
}
