package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"speech-eval-toolkit/internal/coreengine/textnormalizer"
)

// Header of a dataset CSV.
var csvHeader = []string{"audio_path", "ground_truth", "normalized_gt"}

// Entry is one row of a dataset CSV.
type Entry struct {
	ID                    string `json:"id"`
	AudioPath             string `json:"audio_path"`
	GroundTruth           string `json:"ground_truth"`
	NormalizedGroundTruth string `json:"normalized_gt"`
}

// WithAudioExt returns a copy of e whose audio path has its extension replaced
// by ext (".flac" -> ".wav" after conversion).
func (e Entry) WithAudioExt(ext string) Entry {
	e.AudioPath = strings.TrimSuffix(e.AudioPath, filepath.Ext(e.AudioPath)) + ext
	return e
}

// CollectEntries gathers a dataset entry for every line of every *.trans.txt
// file below root. Audio paths point at <dir>/<id>.flac.
func CollectEntries(root string) ([]Entry, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".trans.txt") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(files)

	var entries []Entry
	for _, path := range files {
		log.Info().Str("file", path).Msg("Parsing transcript")
		lines, err := ParseTranscriptFile(path)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(lines))
		for id := range lines {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		dir := filepath.Dir(path)
		for _, id := range ids {
			text := lines[id]
			entries = append(entries, Entry{
				ID:                    id,
				AudioPath:             filepath.Join(dir, id+".flac"),
				GroundTruth:           text,
				NormalizedGroundTruth: textnormalizer.Normalize(text),
			})
		}
	}
	return entries, nil
}

// GenerateDatasetCSV writes the dataset CSV for root to out and returns the
// number of rows written.
func GenerateDatasetCSV(root, out string) (int, error) {
	entries, err := CollectEntries(root)
	if err != nil {
		return 0, err
	}
	f, err := os.Create(out)
	if err != nil {
		return 0, fmt.Errorf("create dataset csv: %w", err)
	}
	if err := WriteEntries(f, entries); err != nil {
		f.Close()
		return 0, err
	}
	return len(entries), f.Close()
}

// WriteEntries writes entries as a dataset CSV.
func WriteEntries(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write([]string{e.AudioPath, e.GroundTruth, e.NormalizedGroundTruth}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadDatasetCSV loads a dataset CSV. A missing normalized_gt column is
// computed from ground_truth.
func ReadDatasetCSV(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read dataset header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimPrefix(name, "\ufeff")] = i
	}
	pathCol, okPath := index["audio_path"]
	gtCol, okGT := index["ground_truth"]
	if !okPath || !okGT {
		return nil, fmt.Errorf("dataset csv %s: audio_path and ground_truth columns are required", path)
	}
	normCol, hasNorm := index["normalized_gt"]

	var entries []Entry
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dataset csv %s: %w", path, err)
		}
		e := Entry{AudioPath: row[pathCol], GroundTruth: row[gtCol]}
		e.ID = strings.TrimSuffix(filepath.Base(e.AudioPath), filepath.Ext(e.AudioPath))
		if hasNorm {
			e.NormalizedGroundTruth = row[normCol]
		} else {
			e.NormalizedGroundTruth = textnormalizer.Normalize(e.GroundTruth)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
