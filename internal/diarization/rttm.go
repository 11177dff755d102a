package diarization

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"speech-eval-toolkit/internal/coreengine/metricscalculator"
)

// ReadRTTM parses an RTTM file.
func ReadRTTM(path string) ([]metricscalculator.SpeakerSegment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	segs, err := ParseRTTM(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return segs, nil
}

// ParseRTTM reads SPEAKER records of the form
//
//	SPEAKER <uri> <channel> <onset> <duration> <NA> <NA> <speaker> ...
//
// Blank lines, comments and other record types are ignored. A malformed
// SPEAKER line is an error naming its line number.
func ParseRTTM(r io.Reader) ([]metricscalculator.SpeakerSegment, error) {
	var segs []metricscalculator.SpeakerSegment
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") || fields[0] != "SPEAKER" {
			continue
		}
		if len(fields) < 8 {
			return nil, fmt.Errorf("line %d: SPEAKER record has %d fields, want at least 8", lineNo, len(fields))
		}
		onset, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: onset %q: %w", lineNo, fields[3], err)
		}
		dur, err := strconv.ParseFloat(fields[4], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: duration %q: %w", lineNo, fields[4], err)
		}
		if math.IsNaN(onset) || math.IsInf(onset, 0) {
			return nil, fmt.Errorf("line %d: onset %q is not finite", lineNo, fields[3])
		}
		if math.IsNaN(dur) || math.IsInf(dur, 0) {
			return nil, fmt.Errorf("line %d: duration %q is not finite", lineNo, fields[4])
		}
		if dur < 0 {
			return nil, fmt.Errorf("line %d: negative duration %s", lineNo, fields[4])
		}
		segs = append(segs, metricscalculator.SpeakerSegment{
			URI:     fields[1],
			Start:   onset,
			End:     onset + dur,
			Speaker: fields[7],
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return segs, nil
}

// WriteRTTM writes segments as RTTM SPEAKER records on channel 1.
func WriteRTTM(w io.Writer, segs []metricscalculator.SpeakerSegment) error {
	bw := bufio.NewWriter(w)
	for _, s := range segs {
		if _, err := fmt.Fprintf(bw, "SPEAKER %s 1 %.3f %.3f <NA> <NA> %s <NA> <NA>\n",
			s.URI, s.Start, s.Duration(), s.Speaker); err != nil {
			return err
		}
	}
	return bw.Flush()
}
