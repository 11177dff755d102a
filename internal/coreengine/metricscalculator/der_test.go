package metricscalculator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seg(speaker string, start, end float64) SpeakerSegment {
	return SpeakerSegment{URI: "rec", Start: start, End: end, Speaker: speaker}
}

func TestCalculateDERIdentical(t *testing.T) {
	ref := []SpeakerSegment{seg("A", 0, 5)}
	res, err := CalculateDER(ref, []SpeakerSegment{seg("A", 0, 5)})
	require.NoError(t, err)
	assert.Zero(t, res.Rate())
	assert.InDelta(t, 5.0, res.Total, 1e-9)
}

func TestCalculateDERSpeakerLabelsAreArbitrary(t *testing.T) {
	ref := []SpeakerSegment{seg("A", 0, 5), seg("B", 5, 9)}
	hyp := []SpeakerSegment{seg("spk1", 0, 5), seg("spk0", 5, 9)}
	res, err := CalculateDER(ref, hyp)
	require.NoError(t, err)
	assert.Zero(t, res.Rate())
	assert.Equal(t, "spk1", res.Mapping["rec/A"])
	assert.Equal(t, "spk0", res.Mapping["rec/B"])
}

func TestCalculateDERComponents(t *testing.T) {
	t.Run("missed", func(t *testing.T) {
		res, err := CalculateDER([]SpeakerSegment{seg("A", 0, 10)}, []SpeakerSegment{seg("A", 0, 5)})
		require.NoError(t, err)
		assert.InDelta(t, 5.0, res.Missed, 1e-9)
		assert.InDelta(t, 0.5, res.Rate(), 1e-9)
	})
	t.Run("false alarm", func(t *testing.T) {
		res, err := CalculateDER([]SpeakerSegment{seg("A", 0, 5)}, []SpeakerSegment{seg("A", 0, 7)})
		require.NoError(t, err)
		assert.InDelta(t, 2.0, res.FalseAlarm, 1e-9)
		assert.InDelta(t, 0.4, res.Rate(), 1e-9)
	})
	t.Run("confusion", func(t *testing.T) {
		ref := []SpeakerSegment{seg("A", 0, 6), seg("B", 6, 10)}
		res, err := CalculateDER(ref, []SpeakerSegment{seg("X", 0, 10)})
		require.NoError(t, err)
		assert.InDelta(t, 4.0, res.Confusion, 1e-9)
		assert.InDelta(t, 0.4, res.Rate(), 1e-9)
		assert.Equal(t, "X", res.Mapping["rec/A"])
	})
	t.Run("overlapped speech", func(t *testing.T) {
		ref := []SpeakerSegment{seg("A", 0, 4), seg("B", 2, 4)}
		res, err := CalculateDER(ref, []SpeakerSegment{seg("A", 0, 4)})
		require.NoError(t, err)
		assert.InDelta(t, 6.0, res.Total, 1e-9)
		assert.InDelta(t, 2.0, res.Missed, 1e-9)
	})
}

func TestCalculateDERPerRecording(t *testing.T) {
	ref := []SpeakerSegment{
		{URI: "one", Start: 0, End: 5, Speaker: "A"},
		{URI: "two", Start: 0, End: 5, Speaker: "A"},
	}
	hyp := []SpeakerSegment{
		{URI: "one", Start: 0, End: 5, Speaker: "S"},
		{URI: "two", Start: 0, End: 5, Speaker: "T"},
	}
	res, err := CalculateDER(ref, hyp)
	require.NoError(t, err)
	assert.Zero(t, res.Rate())
}

func TestCalculateDERNoReferenceSpeech(t *testing.T) {
	_, err := CalculateDER(nil, []SpeakerSegment{seg("A", 0, 1)})
	assert.ErrorIs(t, err, ErrNoReferenceSpeech)
}

func TestMinCostAssignment(t *testing.T) {
	cost := [][]float64{
		{4, 1, 3},
		{2, 0, 5},
		{3, 2, 2},
	}
	got := minCostAssignment(cost)
	total := 0.0
	for i, j := range got {
		total += cost[i][j]
	}
	assert.Equal(t, 5.0, total)
}
