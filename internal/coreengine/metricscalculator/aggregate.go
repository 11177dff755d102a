package metricscalculator

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"speech-eval-toolkit/internal/resulttable"
)

// ErrNoValidValues is returned when an aggregate is requested over a set that
// contains no parsable error rate.
var ErrNoValidValues = errors.New("no valid error rate values")

// FormatRate renders a fractional rate (0.0234) as a percentage string ("2.34%").
func FormatRate(rate float64) string {
	return fmt.Sprintf("%.2f%%", rate*100)
}

// ParseRate parses a percentage string such as "2.35%" or " 2.35 " into its
// numeric percentage value (2.35). A single trailing percent marker is optional.
// NaN and infinities are rejected.
func ParseRate(value string) (float64, error) {
	trimmed := strings.TrimSpace(value)
	trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "%"))
	if trimmed == "" {
		return 0, fmt.Errorf("empty rate value %q", value)
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("parse rate %q: %w", value, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("rate %q is not a finite number", value)
	}
	return f, nil
}

// Aggregate is the mean of every parsable value of a rate column.
type Aggregate struct {
	Mean    float64 // percentage points, e.g. 3.0 for "3.00%"
	Valid   int
	Skipped int
}

// String renders the aggregate mean as a percentage string.
func (a Aggregate) String() string {
	return fmt.Sprintf("%.2f%%", a.Mean)
}

// AverageRates returns the arithmetic mean of all values that parse as a rate.
// Values that do not parse (legacy sentinels such as "ERROR", empty cells) are
// excluded rather than counted as zero. When nothing parses, ErrNoValidValues is
// returned together with the skip count.
func AverageRates(values []string) (Aggregate, error) {
	valid := make([]float64, 0, len(values))
	agg := Aggregate{}
	for _, v := range values {
		f, err := ParseRate(v)
		if err != nil {
			agg.Skipped++
			continue
		}
		valid = append(valid, f)
	}
	agg.Valid = len(valid)
	if agg.Valid == 0 {
		return agg, ErrNoValidValues
	}
	agg.Mean = stat.Mean(valid, nil)
	return agg, nil
}

// AverageFromTable computes the aggregate over the wer column of a result table.
func AverageFromTable(path string) (Aggregate, error) {
	records, err := resulttable.Read(path)
	if err != nil {
		return Aggregate{}, fmt.Errorf("read result table %s: %w", path, err)
	}
	values := make([]string, len(records))
	for i, r := range records {
		values[i] = r.WER
	}
	return AverageRates(values)
}
