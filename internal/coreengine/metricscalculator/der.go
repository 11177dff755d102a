package metricscalculator

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNoReferenceSpeech is returned when the reference contains no speech to
// normalize the diarization error by.
var ErrNoReferenceSpeech = errors.New("reference contains no speech")

// SpeakerSegment is one speaker-labelled span of a recording, in seconds.
type SpeakerSegment struct {
	URI     string
	Start   float64
	End     float64
	Speaker string
}

// Duration returns the segment length in seconds.
func (s SpeakerSegment) Duration() float64 {
	return s.End - s.Start
}

// DERResult holds the components of a diarization error rate, all in seconds.
type DERResult struct {
	Total      float64 // total reference speech
	Missed     float64
	FalseAlarm float64
	Confusion  float64
	// Mapping maps "<uri>/<reference speaker>" to the hypothesis speaker it was
	// matched with.
	Mapping map[string]string
}

// Rate returns (missed + false alarm + confusion) / total reference speech.
func (r DERResult) Rate() float64 {
	if r.Total == 0 {
		return 0
	}
	return (r.Missed + r.FalseAlarm + r.Confusion) / r.Total
}

// CalculateDER scores hypothesis speaker segments against the reference.
// Recordings are scored independently by URI and summed. Overlapping speech is
// scored and no forgiveness collar is applied. Reference and hypothesis
// speakers are matched one-to-one so that total overlap is maximal.
func CalculateDER(reference, hypothesis []SpeakerSegment) (DERResult, error) {
	res := DERResult{Mapping: make(map[string]string)}

	refByURI := groupByURI(reference)
	hypByURI := groupByURI(hypothesis)
	uris := make([]string, 0, len(refByURI)+len(hypByURI))
	for uri := range refByURI {
		uris = append(uris, uri)
	}
	for uri := range hypByURI {
		if _, ok := refByURI[uri]; !ok {
			uris = append(uris, uri)
		}
	}
	sort.Strings(uris)

	for _, uri := range uris {
		for _, s := range append(refByURI[uri], hypByURI[uri]...) {
			if s.End < s.Start {
				return DERResult{}, fmt.Errorf("segment %s/%s has negative duration (%.3f-%.3f)", uri, s.Speaker, s.Start, s.End)
			}
		}
		scoreRecording(uri, refByURI[uri], hypByURI[uri], &res)
	}

	if res.Total == 0 {
		return res, ErrNoReferenceSpeech
	}
	return res, nil
}

func groupByURI(segments []SpeakerSegment) map[string][]SpeakerSegment {
	out := make(map[string][]SpeakerSegment)
	for _, s := range segments {
		out[s.URI] = append(out[s.URI], s)
	}
	return out
}

// interval is an elementary time span on which the set of active speakers on
// each side is constant.
type interval struct {
	duration float64
	ref      []string
	hyp      []string
}

func scoreRecording(uri string, ref, hyp []SpeakerSegment, res *DERResult) {
	intervals := elementaryIntervals(ref, hyp)

	refSpeakers := speakerIndex(ref)
	hypSpeakers := speakerIndex(hyp)

	n := len(refSpeakers)
	if len(hypSpeakers) > n {
		n = len(hypSpeakers)
	}
	overlap := make([][]float64, n)
	for i := range overlap {
		overlap[i] = make([]float64, n)
	}
	for _, iv := range intervals {
		for _, r := range iv.ref {
			for _, h := range iv.hyp {
				overlap[refSpeakers[r]][hypSpeakers[h]] += iv.duration
			}
		}
	}

	mapping := make(map[string]string)
	if n > 0 {
		cost := make([][]float64, n)
		for i := range cost {
			cost[i] = make([]float64, n)
			for j := range cost[i] {
				cost[i][j] = -overlap[i][j]
			}
		}
		assigned := minCostAssignment(cost)
		refNames := invert(refSpeakers)
		hypNames := invert(hypSpeakers)
		for i, j := range assigned {
			if i >= len(refNames) || j >= len(hypNames) || overlap[i][j] == 0 {
				continue
			}
			mapping[refNames[i]] = hypNames[j]
			res.Mapping[uri+"/"+refNames[i]] = hypNames[j]
		}
	}

	for _, iv := range intervals {
		nr, nh := float64(len(iv.ref)), float64(len(iv.hyp))
		res.Total += iv.duration * nr
		if nr > nh {
			res.Missed += iv.duration * (nr - nh)
		} else {
			res.FalseAlarm += iv.duration * (nh - nr)
		}
		correct := 0
		active := make(map[string]bool, len(iv.hyp))
		for _, h := range iv.hyp {
			active[h] = true
		}
		for _, r := range iv.ref {
			if h, ok := mapping[r]; ok && active[h] {
				correct++
			}
		}
		res.Confusion += iv.duration * (minFloat(nr, nh) - float64(correct))
	}
}

func elementaryIntervals(ref, hyp []SpeakerSegment) []interval {
	var bounds []float64
	for _, s := range ref {
		bounds = append(bounds, s.Start, s.End)
	}
	for _, s := range hyp {
		bounds = append(bounds, s.Start, s.End)
	}
	sort.Float64s(bounds)

	var out []interval
	for i := 0; i+1 < len(bounds); i++ {
		lo, hi := bounds[i], bounds[i+1]
		if hi <= lo {
			continue
		}
		iv := interval{
			duration: hi - lo,
			ref:      activeSpeakers(ref, lo, hi),
			hyp:      activeSpeakers(hyp, lo, hi),
		}
		if len(iv.ref) == 0 && len(iv.hyp) == 0 {
			continue
		}
		out = append(out, iv)
	}
	return out
}

// activeSpeakers returns the distinct speakers whose segments cover [lo, hi).
func activeSpeakers(segments []SpeakerSegment, lo, hi float64) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range segments {
		if s.Start <= lo && s.End >= hi && !seen[s.Speaker] {
			seen[s.Speaker] = true
			out = append(out, s.Speaker)
		}
	}
	return out
}

func speakerIndex(segments []SpeakerSegment) map[string]int {
	idx := make(map[string]int)
	names := make([]string, 0)
	for _, s := range segments {
		if _, ok := idx[s.Speaker]; !ok {
			idx[s.Speaker] = -1
			names = append(names, s.Speaker)
		}
	}
	sort.Strings(names)
	for i, name := range names {
		idx[name] = i
	}
	return idx
}

func invert(idx map[string]int) []string {
	out := make([]string, len(idx))
	for name, i := range idx {
		out[i] = name
	}
	return out
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
