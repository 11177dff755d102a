// Package resulttable persists per-file evaluation records as CSV.
package resulttable

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Status values recorded per row. A failed row carries an empty wer cell and
// the failure text in the error column.
const (
	StatusOK           = "ok"
	StatusError        = "error"
	StatusSkipped      = "skipped"
	StatusFileNotFound = "file_not_found"
)

// Column names of the result table, in write order.
const (
	ColFilename    = "filename"
	ColWER         = "wer"
	ColCER         = "cer"
	ColGroundTruth = "ground_truth"
	ColHypothesis  = "hypothesis"
	ColStatus      = "status"
	ColError       = "error"
	ColLatencyMs   = "latency_ms"
)

// Header is the header row written by Write.
var Header = []string{ColFilename, ColWER, ColCER, ColGroundTruth, ColHypothesis, ColStatus, ColError, ColLatencyMs}

// ErrMissingColumn is returned by Read when the table lacks a required column.
var ErrMissingColumn = errors.New("result table is missing a required column")

// Record is one evaluated audio file. Rates are percentage strings ("12.34%").
type Record struct {
	Filename    string `json:"filename"`
	WER         string `json:"wer"`
	CER         string `json:"cer,omitempty"`
	GroundTruth string `json:"ground_truth"`
	Hypothesis  string `json:"hypothesis"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	LatencyMs   int64  `json:"latency_ms"`
}

// OK reports whether the record holds a measured error rate.
func (r Record) OK() bool {
	return r.Status == StatusOK || (r.Status == "" && r.WER != "")
}

// Write writes records to path, creating parent directories as needed.
func Write(path string, records []Record) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create result table: %w", err)
	}
	if err := Encode(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Encode writes the header and records as CSV to w.
func Encode(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		latency := ""
		if r.LatencyMs > 0 {
			latency = strconv.FormatInt(r.LatencyMs, 10)
		}
		row := []string{r.Filename, r.WER, r.CER, escapeText(r.GroundTruth), escapeText(r.Hypothesis), r.Status, escapeText(r.Error), latency}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row for %s: %w", r.Filename, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read loads a result table from path.
func Read(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a result table. Columns are located by header name, so tables
// written by older tools with only filename,wer,ground_truth,hypothesis are
// accepted; absent optional columns are left empty.
func Decode(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty table", ErrMissingColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[trimBOM(name)] = i
	}
	for _, required := range []string{ColFilename, ColWER} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var records []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		rec := Record{
			Filename:    field(row, ColFilename),
			WER:         field(row, ColWER),
			CER:         field(row, ColCER),
			GroundTruth: unescapeText(field(row, ColGroundTruth)),
			Hypothesis:  unescapeText(field(row, ColHypothesis)),
			Status:      field(row, ColStatus),
			Error:       unescapeText(field(row, ColError)),
		}
		if v := field(row, ColLatencyMs); v != "" {
			rec.LatencyMs, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: latency_ms %q: %w", line, v, err)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// encoding/csv folds \r\n inside quoted fields to \n, so carriage returns in
// free text are written as the two characters \r and backslashes are doubled.
var textEscaper = strings.NewReplacer(`\`, `\\`, "\r", `\r`)

func escapeText(s string) string {
	return textEscaper.Replace(s)
}

// unescapeText reverses escapeText. Other backslash sequences, as found in
// tables written by older tools, are kept as they are.
func unescapeText(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			case 'r':
				b.WriteByte('\r')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func trimBOM(s string) string {
	if len(s) >= 3 && s[0] == 0xEF && s[1] == 0xBB && s[2] == 0xBF {
		return s[3:]
	}
	return s
}
