package metricscalculator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// ErrEmptyReference is returned when the reference text has no units to
// normalize the edit distance by. The accompanying rate is 1.0 (100% error).
var ErrEmptyReference = errors.New("reference is empty")

// editOptions are unit-cost Levenshtein options for items compared by equality.
var editOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// CalculateWER calculates the Word Error Rate (WER).
// WER = (Substitutions + Insertions + Deletions) / Number of words in reference
// Inputs are compared as given; callers normalize both sides first.
func CalculateWER(groundTruth string, recognizedText string) (float64, error) {
	wordsGroundTruth := strings.Fields(groundTruth)
	wordsRecognized := strings.Fields(recognizedText)

	if len(wordsGroundTruth) == 0 {
		if len(wordsRecognized) == 0 {
			return 0.0, nil
		}
		return 1.0, fmt.Errorf("%w: cannot normalize WER (recognized: %d words, treated as 100%% error)", ErrEmptyReference, len(wordsRecognized))
	}

	source, target := wordsToRunes(wordsGroundTruth, wordsRecognized)
	distance := levenshtein.DistanceForStrings(source, target, editOptions)
	return float64(distance) / float64(len(wordsGroundTruth)), nil
}

// CalculateCER calculates the Character Error Rate (CER).
// CER = (Substitutions + Insertions + Deletions) / Number of characters in reference
func CalculateCER(groundTruth string, recognizedText string) (float64, error) {
	runesGroundTruth := []rune(groundTruth)
	runesRecognized := []rune(recognizedText)

	if len(runesGroundTruth) == 0 {
		if len(runesRecognized) == 0 {
			return 0.0, nil
		}
		return 1.0, fmt.Errorf("%w: cannot normalize CER (recognized: %d chars, treated as 100%% error)", ErrEmptyReference, len(runesRecognized))
	}

	distance := levenshtein.DistanceForStrings(runesGroundTruth, runesRecognized, editOptions)
	return float64(distance) / float64(len(runesGroundTruth)), nil
}

// wordsToRunes assigns every distinct word a rune so word sequences can be
// scored with the rune-based Levenshtein implementation.
func wordsToRunes(reference, hypothesis []string) ([]rune, []rune) {
	ids := make(map[string]rune, len(reference))
	encode := func(words []string) []rune {
		out := make([]rune, len(words))
		for i, w := range words {
			id, ok := ids[w]
			if !ok {
				id = rune(len(ids))
				ids[w] = id
			}
			out[i] = id
		}
		return out
	}
	return encode(reference), encode(hypothesis)
}
