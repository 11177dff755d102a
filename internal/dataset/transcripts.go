package dataset

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ParseTranscriptFile parses a LibriSpeech-style transcript file where every
// line is "<id> <text>". Lines without both an id and text are ignored.
func ParseTranscriptFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	result := make(map[string]string)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			continue
		}
		text := strings.TrimSpace(parts[1])
		if text == "" {
			continue
		}
		result[parts[0]] = text
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transcript %s: %w", path, err)
	}
	return result, nil
}
