// Package dataset discovers audio files and pairs them with ground-truth
// transcripts.
package dataset

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Skip reasons reported for audio files that are not paired.
const (
	ReasonNoTranscript = "no matching transcript"
	ReasonAmbiguous    = "ambiguous transcript"
)

// Pair is an audio file together with its ground-truth text.
type Pair struct {
	ID             string
	AudioPath      string
	GroundTruth    string
	TranscriptPath string
}

// Skipped is an audio file that was discovered but not paired.
type Skipped struct {
	AudioPath string
	Reason    string
}

// WalkResult is the outcome of walking a dataset tree.
type WalkResult struct {
	Pairs   []Pair
	Skipped []Skipped
}

// WalkOptions controls which files are considered.
type WalkOptions struct {
	// AudioExt is the audio file extension to pair, ".wav" when empty.
	AudioExt string
}

// transcriptEntry remembers which file defined a text, so that conflicting
// definitions across transcript files can be detected.
type transcriptEntry struct {
	text      string
	path      string
	ambiguous bool
}

// Walk recursively scans root. In every directory all transcript files
// (*.txt, not hidden) are read in lexical order and merged; audio files whose
// base name is a known id are paired with that text. An id defined with
// different texts by two transcript files is ambiguous and its audio is
// skipped. Unmatched audio is reported in Skipped and never aborts the walk.
func Walk(root string, opts WalkOptions) (*WalkResult, error) {
	ext := opts.AudioExt
	if ext == "" {
		ext = ".wav"
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("input directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input %s is not a directory", root)
	}

	result := &WalkResult{}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return walkDirectory(path, ext, result)
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result.Pairs, func(i, j int) bool { return result.Pairs[i].AudioPath < result.Pairs[j].AudioPath })
	sort.Slice(result.Skipped, func(i, j int) bool { return result.Skipped[i].AudioPath < result.Skipped[j].AudioPath })
	return result, nil
}

func walkDirectory(dir, audioExt string, result *WalkResult) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	transcripts := make(map[string]*transcriptEntry)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".txt") {
			continue
		}
		path := filepath.Join(dir, name)
		lines, err := ParseTranscriptFile(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Skipping unreadable transcript file")
			continue
		}
		log.Debug().Str("file", path).Int("lines", len(lines)).Msg("Parsed transcript file")
		for id, text := range lines {
			prev, ok := transcripts[id]
			if !ok {
				transcripts[id] = &transcriptEntry{text: text, path: path}
				continue
			}
			if prev.text != text {
				prev.ambiguous = true
			}
		}
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), audioExt) {
			continue
		}
		audioPath := filepath.Join(dir, name)
		id := strings.TrimSuffix(name, filepath.Ext(name))

		entry, ok := transcripts[id]
		switch {
		case !ok:
			log.Warn().Str("file", audioPath).Msg("Skipping audio: no matching transcript found")
			result.Skipped = append(result.Skipped, Skipped{AudioPath: audioPath, Reason: ReasonNoTranscript})
		case entry.ambiguous:
			log.Warn().Str("file", audioPath).Str("id", id).Msg("Skipping audio: transcript files disagree on ground truth")
			result.Skipped = append(result.Skipped, Skipped{AudioPath: audioPath, Reason: ReasonAmbiguous})
		default:
			result.Pairs = append(result.Pairs, Pair{
				ID:             id,
				AudioPath:      audioPath,
				GroundTruth:    entry.text,
				TranscriptPath: entry.path,
			})
		}
	}
	return nil
}
